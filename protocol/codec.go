package protocol

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/encodeous/dvr/state"
)

// Advertisement datagram layout, multi-byte fields are big-endian and addresses are carried in network order:
//
//	header: count u16 | port u16 | addr [4]byte
//	entry:  addr [4]byte | port u16 | pad u16 | id u16 | cost u16
const (
	HeaderSize     = 8
	EntrySize      = 12
	MaxMessageSize = HeaderSize + state.MaxRouters*EntrySize
)

type Entry struct {
	Addr netip.Addr
	Port uint16
	Id   state.RouterId
	Cost uint16
}

func (e Entry) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.Addr, e.Port)
}

type Advertisement struct {
	SenderAddr netip.Addr
	SenderPort uint16
	Entries    []Entry
}

func (a Advertisement) Sender() netip.AddrPort {
	return netip.AddrPortFrom(a.SenderAddr, a.SenderPort)
}

// FormatError is returned when a datagram does not hold a well-formed advertisement
type FormatError struct {
	Len    int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed advertisement (%d bytes): %s", e.Len, e.Reason)
}

// FromTable builds the advertisement of the full table, as sent by self.
func FromTable(s *state.RouterState) Advertisement {
	adv := Advertisement{
		SenderAddr: s.Addr,
		SenderPort: s.Port,
		Entries:    make([]Entry, 0, s.Table.Len()),
	}
	for _, e := range s.Table.Entries() {
		adv.Entries = append(adv.Entries, Entry{
			Addr: e.Addr,
			Port: e.Port,
			Id:   e.Id,
			Cost: e.Cost,
		})
	}
	return adv
}

func putAddr(b []byte, addr netip.Addr) {
	if addr.Is4() || addr.Is4In6() {
		a4 := addr.Unmap().As4()
		copy(b, a4[:])
		return
	}
	clear(b[:4])
}

func Encode(adv Advertisement) ([]byte, error) {
	if len(adv.Entries) > state.MaxRouters {
		return nil, fmt.Errorf("advertisement has %d entries, at most %d fit in a message", len(adv.Entries), state.MaxRouters)
	}
	buf := make([]byte, HeaderSize+len(adv.Entries)*EntrySize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(adv.Entries)))
	binary.BigEndian.PutUint16(buf[2:4], adv.SenderPort)
	putAddr(buf[4:8], adv.SenderAddr)

	off := HeaderSize
	for _, e := range adv.Entries {
		b := buf[off : off+EntrySize]
		putAddr(b[0:4], e.Addr)
		binary.BigEndian.PutUint16(b[4:6], e.Port)
		// b[6:8] is padding, left zero
		binary.BigEndian.PutUint16(b[8:10], uint16(e.Id))
		binary.BigEndian.PutUint16(b[10:12], e.Cost)
		off += EntrySize
	}
	return buf, nil
}

// EncodeTable encodes the full routing table of s.
func EncodeTable(s *state.RouterState) ([]byte, error) {
	return Encode(FromTable(s))
}

// Decode parses a datagram. The datagram must be exactly as long as its header declares.
func Decode(b []byte) (Advertisement, error) {
	if len(b) < HeaderSize {
		return Advertisement{}, &FormatError{Len: len(b), Reason: "shorter than header"}
	}
	count := int(binary.BigEndian.Uint16(b[0:2]))
	if count > state.MaxRouters {
		return Advertisement{}, &FormatError{Len: len(b), Reason: fmt.Sprintf("declares %d entries, at most %d are allowed", count, state.MaxRouters)}
	}
	want := HeaderSize + count*EntrySize
	if len(b) < want {
		return Advertisement{}, &FormatError{Len: len(b), Reason: fmt.Sprintf("truncated, %d entries need %d bytes", count, want)}
	}
	if len(b) > want {
		return Advertisement{}, &FormatError{Len: len(b), Reason: fmt.Sprintf("%d trailing bytes after %d entries", len(b)-want, count)}
	}

	adv := Advertisement{
		SenderPort: binary.BigEndian.Uint16(b[2:4]),
		SenderAddr: netip.AddrFrom4([4]byte(b[4:8])),
		Entries:    make([]Entry, count),
	}
	off := HeaderSize
	for i := range count {
		e := b[off : off+EntrySize]
		adv.Entries[i] = Entry{
			Addr: netip.AddrFrom4([4]byte(e[0:4])),
			Port: binary.BigEndian.Uint16(e[4:6]),
			Id:   state.RouterId(binary.BigEndian.Uint16(e[8:10])),
			Cost: binary.BigEndian.Uint16(e[10:12]),
		}
		off += EntrySize
	}
	return adv, nil
}
