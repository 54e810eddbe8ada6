package pcap

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/hed1ad/netanomaly/pkg/events"
)

// Protocol names written into records.
const (
	ProtocolTCP   = "TCP"
	ProtocolUDP   = "UDP"
	ProtocolICMP  = "ICMP"
	ProtocolOther = "OTHER"
)

// ToRecord converts a packet to an event record. The timestamp is the capture
// time, or the current time when the packet carries none. The length is the
// on-wire length, falling back to the captured bytes.
func ToRecord(packet gopacket.Packet) events.Record {
	ts := time.Now()
	length := len(packet.Data())
	if md := packet.Metadata(); md != nil {
		if !md.Timestamp.IsZero() {
			ts = md.Timestamp
		}
		if md.Length > 0 {
			length = md.Length
		}
	}

	rec := events.NewRecord(ts.UTC().Format(time.RFC3339Nano), float64(length), Protocol(packet))

	if nl := packet.NetworkLayer(); nl != nil {
		src, dst := nl.NetworkFlow().Endpoints()
		rec.SourceIP = src.String()
		rec.DestinationIP = dst.String()
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		rec.SourcePort = uint16(tcp.SrcPort)
		rec.DestinationPort = uint16(tcp.DstPort)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		rec.SourcePort = uint16(udp.SrcPort)
		rec.DestinationPort = uint16(udp.DstPort)
	}

	return rec
}

// Protocol classifies a packet's transport.
func Protocol(packet gopacket.Packet) string {
	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		return ProtocolTCP
	case packet.Layer(layers.LayerTypeUDP) != nil:
		return ProtocolUDP
	case packet.Layer(layers.LayerTypeICMPv4) != nil, packet.Layer(layers.LayerTypeICMPv6) != nil:
		return ProtocolICMP
	default:
		return ProtocolOther
	}
}
