// Package rfcap captures a simulated superframe (beacon, per-slot DATA,
// ACK) to a .pcap file for offline inspection in Wireshark and for
// replaying golden vectors into decode tests. There is no real NIC or
// 2.4 GHz radio capture here — synthetic RF frames are wrapped in
// throwaway Ethernet/IPv4/UDP headers purely so the output is a valid
// pcap. Grounded on internal/lidar/network/pcap.go's PCAP handling
// shape, but built on the pure-Go gopacket/pcapgo.Writer/Reader instead
// of the teacher's cgo-linked gopacket/pcap.OpenOffline, since this
// package both writes and reads its own captures and never touches a
// live interface.
package rfcap

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// capturePort is the synthetic UDP port stamped on every wrapped frame,
// distinct enough to filter on in Wireshark ("udp port 24724" — picked
// to read as "2.4" GHz on a phone keypad).
const capturePort = 24724

var (
	syntheticSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	syntheticDstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	syntheticSrcIP  = net.IPv4(10, 24, 7, 1)
	syntheticDstIP  = net.IPv4(10, 24, 7, 2)
)

// Writer wraps a pcapgo.Writer, stamping each captured RF frame with
// throwaway link/network/transport headers.
type Writer struct {
	w   *pcapgo.Writer
	buf gopacket.SerializeBuffer
}

// NewWriter writes a pcap global header to w and returns a Writer ready
// to accept captured frames.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("rfcap: failed to write pcap file header: %w", err)
	}
	return &Writer{w: pw, buf: gopacket.NewSerializeBuffer()}, nil
}

// WriteFrame wraps one raw RF frame (as produced by internal/rf's codec)
// in synthetic Ethernet/IPv4/UDP headers and appends it to the capture,
// timestamped at.
func (cw *Writer) WriteFrame(at time.Time, frame []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       syntheticSrcMAC,
		DstMAC:       syntheticDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    syntheticSrcIP,
		DstIP:    syntheticDstIP,
	}
	udp := &layers.UDP{
		SrcPort: capturePort,
		DstPort: capturePort,
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("rfcap: failed to bind UDP checksum to IPv4 layer: %w", err)
	}

	cw.buf.Clear()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(cw.buf, opts, eth, ip, udp, gopacket.Payload(frame)); err != nil {
		return fmt.Errorf("rfcap: failed to serialize synthetic packet: %w", err)
	}

	return cw.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     at,
		CaptureLength: len(cw.buf.Bytes()),
		Length:        len(cw.buf.Bytes()),
	}, cw.buf.Bytes())
}

// Reader replays a capture written by Writer, yielding the raw RF frame
// bytes (the UDP payload, with the synthetic headers stripped) in
// capture order.
type Reader struct {
	src *gopacket.PacketSource
}

// NewReader reads a pcap global header from r and returns a Reader ready
// to replay its frames.
func NewReader(r io.Reader) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("rfcap: failed to read pcap file header: %w", err)
	}
	return &Reader{src: gopacket.NewPacketSource(pr, pr.LinkType())}, nil
}

// Next returns the next captured frame's payload and timestamp, or
// io.EOF once the capture is exhausted.
func (r *Reader) Next() ([]byte, time.Time, error) {
	packet, err := r.src.NextPacket()
	if err != nil {
		return nil, time.Time{}, err
	}
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, time.Time{}, fmt.Errorf("rfcap: captured packet has no UDP layer")
	}
	udp := udpLayer.(*layers.UDP)
	return udp.Payload, packet.Metadata().Timestamp, nil
}
