// Package pcap turns captured network packets into event records.
package pcap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/hed1ad/netanomaly/pkg/events"
)

// DefaultFilter is the BPF filter applied when none is given.
const DefaultFilter = "tcp or udp"

// LiveConfig configures a live capture.
type LiveConfig struct {
	Snaplen     int32
	Promiscuous bool
	// Timeout is how long the handle blocks waiting for packets.
	Timeout time.Duration
	Filter  string
}

// DefaultLiveConfig returns settings suitable for most interfaces.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		Snaplen: 65535,
		Timeout: 500 * time.Millisecond,
		Filter:  DefaultFilter,
	}
}

// Reader reads packets from PCAP files or live interfaces.
type Reader struct {
	handle *pcap.Handle
	isLive bool
}

// NewFileReader opens a PCAP file. An empty filter reads every packet.
func NewFileReader(filename, filter string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", filename, err, events.ErrIO)
	}
	if err := applyFilter(handle, filter); err != nil {
		handle.Close()
		return nil, err
	}

	return &Reader{handle: handle}, nil
}

// NewLiveReader starts capturing on iface.
func NewLiveReader(iface string, cfg LiveConfig) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, cfg.Snaplen, cfg.Promiscuous, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("capture on %s: %v: %w", iface, err, events.ErrResource)
	}
	if err := applyFilter(handle, cfg.Filter); err != nil {
		handle.Close()
		return nil, err
	}

	return &Reader{handle: handle, isLive: true}, nil
}

func applyFilter(handle *pcap.Handle, filter string) error {
	if filter == "" {
		return nil
	}
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("bpf filter %q: %v: %w", filter, err, events.ErrSchema)
	}
	return nil
}

// IsLive reports whether the reader captures from an interface.
func (r *Reader) IsLive() bool {
	return r.isLive
}

// Read returns every packet in the file as a record. On a live reader it
// blocks until the handle is closed; use Stream instead.
func (r *Reader) Read() ([]events.Record, error) {
	if r.handle == nil {
		return nil, errors.New("reader not initialized")
	}

	var records []events.Record
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	for packet := range packetSource.Packets() {
		records = append(records, ToRecord(packet))
	}

	return records, nil
}

// Stream returns a channel of records for real-time processing. The channel
// closes when the source is exhausted or ctx is cancelled.
func (r *Reader) Stream(ctx context.Context) (<-chan events.Record, error) {
	if r.handle == nil {
		return nil, errors.New("reader not initialized")
	}

	out := make(chan events.Record, 1000)
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-packetSource.Packets():
				if !ok {
					return
				}
				select {
				case out <- ToRecord(packet):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.handle != nil {
		r.handle.Close()
	}
	return nil
}
