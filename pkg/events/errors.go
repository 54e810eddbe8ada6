package events

import "errors"

// Error kinds. Every pipeline error wraps exactly one of these so callers can
// classify failures with errors.Is.
var (
	// ErrIO covers missing directories, unreadable files and malformed JSON.
	ErrIO = errors.New("io error")
	// ErrSchema covers records with missing or unparseable fields.
	ErrSchema = errors.New("schema error")
	// ErrShape covers empty batches, inconsistent row widths and invalid model shapes.
	ErrShape = errors.New("shape error")
	// ErrResource covers unwritable output paths and failed persistence.
	ErrResource = errors.New("resource error")
)

// Kind returns the name of the error kind wrapped by err, or "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrShape):
		return "shape"
	case errors.Is(err, ErrResource):
		return "resource"
	default:
		return "unknown"
	}
}
