package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/encodeous/dvr/protocol"
	"golang.org/x/net/ipv4"
)

// Sender delivers an encoded advertisement to a neighbour
type Sender interface {
	Send(to netip.AddrPort, pkt []byte) error
}

// UDPSender sends every advertisement from a fresh ephemeral socket, so only the header identifies the sender.
type UDPSender struct {
	Timeout time.Duration
}

func (u *UDPSender) Send(to netip.AddrPort, pkt []byte) error {
	conn, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(to))
	if err != nil {
		return err
	}
	defer conn.Close()
	if u.Timeout > 0 {
		err = conn.SetWriteDeadline(time.Now().Add(u.Timeout))
		if err != nil {
			return err
		}
	}
	n, err := conn.Write(pkt)
	if err != nil {
		return err
	}
	if n != len(pkt) {
		return fmt.Errorf("short write to %s: %d of %d bytes", to, n, len(pkt))
	}
	return nil
}

// Datagram is a single datagram read from the listening socket
type Datagram struct {
	Payload []byte
	From    netip.AddrPort
	// Dst is the local address the datagram was sent to, if the platform reports it
	Dst netip.Addr
}

// ListenUDP binds the advertisement socket on every interface.
func ListenUDP(ctx context.Context, port uint16) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: sockControl}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// readDatagrams reads from conn until it is closed, handing every datagram to the main loop through out.
func readDatagrams(ctx context.Context, conn *net.UDPConn, log *slog.Logger, out chan<- Datagram) {
	defer close(out)
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagDst, true); err != nil {
		log.Debug("destination address of datagrams will not be reported", "err", err)
	}
	// one extra byte so oversized datagrams are detected instead of silently truncated
	buf := make([]byte, protocol.MaxMessageSize+1)
	for {
		n, cm, src, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Warn("failed to read datagram", "err", err)
			continue
		}
		dg := Datagram{Payload: bytes.Clone(buf[:n])}
		if ua, ok := src.(*net.UDPAddr); ok {
			dg.From = ua.AddrPort()
		}
		if cm != nil {
			if dst, ok := netip.AddrFromSlice(cm.Dst); ok {
				dg.Dst = dst.Unmap()
			}
		}
		select {
		case out <- dg:
		case <-ctx.Done():
			return
		}
	}
}
