package flow

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/carrodher/loadBalancer/internal/openflow"
)

// PortUnknown is the ingress port code a switch reports when it cannot name
// the port.
const PortUnknown int32 = -1

// NormalizePort maps a switch ingress port code onto an OpenFlow port number.
func NormalizePort(code int32) (uint16, error) {
	if code == PortUnknown {
		return openflow.OFPP_NONE, nil
	}
	if code < 0 || code > 0xffff {
		return 0, errors.Errorf("ingress port code %d out of range", code)
	}
	return uint16(code), nil
}

// Extract decodes the flow fields of an Ethernet frame. ARP sender and
// target protocol addresses are reported as the network source and
// destination, so a probe carries an unspecified source.
func Extract(frame []byte, inPortCode int32, wildcards uint32) (Descriptor, error) {
	var d Descriptor

	port, err := NormalizePort(inPortCode)
	if err != nil {
		return d, err
	}
	d.InPort = port
	d.Wildcards = wildcards

	var (
		eth     layers.Ethernet
		dot1q   layers.Dot1Q
		ip4     layers.IPv4
		arp     layers.ARP
		decoded []gopacket.LayerType
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &dot1q, &ip4, &arp)
	parser.IgnoreUnsupported = true
	decodeErr := parser.DecodeLayers(frame, &decoded)

	sawEthernet := false
	for _, typ := range decoded {
		switch typ {
		case layers.LayerTypeEthernet:
			sawEthernet = true
			copy(d.DlSrc[:], eth.SrcMAC)
			copy(d.DlDst[:], eth.DstMAC)
		case layers.LayerTypeIPv4:
			d.NwSrc = IPv4FromBytes(ip4.SrcIP.To4())
			d.NwDst = IPv4FromBytes(ip4.DstIP.To4())
		case layers.LayerTypeARP:
			if arp.Protocol == layers.EthernetTypeIPv4 && arp.ProtAddressSize == 4 {
				d.NwSrc = IPv4FromBytes(arp.SourceProtAddress)
				d.NwDst = IPv4FromBytes(arp.DstProtAddress)
			}
		}
	}
	if !sawEthernet {
		if decodeErr == nil {
			decodeErr = errors.New("no ethernet header")
		}
		return d, errors.Wrap(decodeErr, "extract flow")
	}
	return d, nil
}
