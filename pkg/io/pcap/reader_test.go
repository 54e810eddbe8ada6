package pcap

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/netanomaly/pkg/events"
	pkgio "github.com/hed1ad/netanomaly/pkg/io"
)

var _ pkgio.StreamReader = (*Reader)(nil)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	srcIP  = net.IP{10, 0, 0, 1}
	dstIP  = net.IP{10, 0, 0, 2}
)

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: proto, SrcIP: srcIP, DstIP: dstIP}
}

func ethernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: t}
}

func tcpFrame(t testing.TB) []byte {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 51000, DstPort: 443, SYN: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload("hello"))
}

func udpFrame(t testing.TB) []byte {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 53000, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ip, udp, gopacket.Payload("query"))
}

func icmpFrame(t testing.TB) []byte {
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	return serialize(t, ethernet(layers.EthernetTypeIPv4), ipv4(layers.IPProtocolICMPv4), icmp)
}

func arpFrame(t testing.TB) []byte {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: srcIP.To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    dstIP.To4(),
	}
	return serialize(t, ethernet(layers.EthernetTypeARP), arp)
}

func decode(data []byte) gopacket.Packet {
	return gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
}

func TestToRecord(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)

	tests := []struct {
		name     string
		frame    func(testing.TB) []byte
		protocol string
		srcPort  uint16
		dstPort  uint16
		hasIPs   bool
	}{
		{"tcp", tcpFrame, ProtocolTCP, 51000, 443, true},
		{"udp", udpFrame, ProtocolUDP, 53000, 53, true},
		{"icmp", icmpFrame, ProtocolICMP, 0, 0, true},
		{"arp", arpFrame, ProtocolOther, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet := decode(tt.frame(t))
			packet.Metadata().Timestamp = ts
			packet.Metadata().Length = 1500

			rec := ToRecord(packet)
			require.NoError(t, rec.Validate(0))
			assert.Equal(t, "2024-03-01T12:30:00.123456789Z", *rec.Timestamp)
			assert.Equal(t, 1500.0, *rec.Length)
			assert.Equal(t, tt.protocol, *rec.Protocol)
			assert.Equal(t, tt.srcPort, rec.SourcePort)
			assert.Equal(t, tt.dstPort, rec.DestinationPort)
			if tt.hasIPs {
				assert.Equal(t, "10.0.0.1", rec.SourceIP)
				assert.Equal(t, "10.0.0.2", rec.DestinationIP)
			} else {
				assert.Empty(t, rec.SourceIP)
			}
		})
	}
}

func TestToRecordWithoutMetadata(t *testing.T) {
	data := tcpFrame(t)
	before := time.Now().Add(-time.Second)

	rec := ToRecord(decode(data))
	assert.Equal(t, float64(len(data)), *rec.Length)

	parsed, err := time.Parse(time.RFC3339Nano, *rec.Timestamp)
	require.NoError(t, err)
	assert.True(t, parsed.After(before))
}

func writePcap(t testing.TB, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, data := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Second),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func TestFileReader(t *testing.T) {
	path := writePcap(t, tcpFrame(t), udpFrame(t), icmpFrame(t))

	r, err := NewFileReader(path, "")
	require.NoError(t, err)
	defer r.Close()
	assert.False(t, r.IsLive())

	records, err := r.Read()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ProtocolTCP, *records[0].Protocol)
	assert.Equal(t, ProtocolUDP, *records[1].Protocol)
	assert.Equal(t, ProtocolICMP, *records[2].Protocol)
	assert.Equal(t, "2024-03-01T00:00:01Z", *records[1].Timestamp)
}

func TestFileReaderFilter(t *testing.T) {
	path := writePcap(t, tcpFrame(t), udpFrame(t), icmpFrame(t))

	r, err := NewFileReader(path, DefaultFilter)
	require.NoError(t, err)
	defer r.Close()

	ch, err := r.Stream(context.Background())
	require.NoError(t, err)

	var protocols []string
	for rec := range ch {
		protocols = append(protocols, *rec.Protocol)
	}
	assert.Equal(t, []string{ProtocolTCP, ProtocolUDP}, protocols)
}

func TestFileReaderErrors(t *testing.T) {
	_, err := NewFileReader(filepath.Join(t.TempDir(), "absent.pcap"), "")
	assert.ErrorIs(t, err, events.ErrIO)

	path := writePcap(t, tcpFrame(t))
	_, err = NewFileReader(path, "not a ( valid filter")
	assert.ErrorIs(t, err, events.ErrSchema)
}

func BenchmarkToRecord(b *testing.B) {
	packet := decode(tcpFrame(b))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ToRecord(packet)
	}
}
