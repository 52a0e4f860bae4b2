package core

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/encodeous/dvr/state"
)

// DiscoverAddr finds the address this host uses for outbound traffic. No packet is sent.
func DiscoverAddr() (netip.Addr, error) {
	conn, err := net.Dial("udp4", state.AddrProbeTarget)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to discover local address: %w", err)
	}
	defer conn.Close()
	ua, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unexpected local address %s", conn.LocalAddr())
	}
	return ua.AddrPort().Addr().Unmap(), nil
}
