package state

import (
	"fmt"
	"net/netip"
	"slices"

	"github.com/gaissmai/bart"
)

type RouterId uint16

func (id RouterId) String() string {
	if id == NoHop {
		return "none"
	}
	return fmt.Sprintf("%d", uint16(id))
}

// RouteEntry is the state kept for a single destination
type RouteEntry struct {
	Id      RouterId
	Addr    netip.Addr
	Port    uint16
	Cost    uint16
	NextHop RouterId
	Counter int
	// Disabled is set when the operator has taken the link down, only a manual update brings it back
	Disabled bool
}

func (e RouteEntry) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.Addr, e.Port)
}

func (e RouteEntry) IsDead() bool {
	return e.Counter == CounterDead
}

// IsDirect reports whether the destination is reached over its own link.
func (e RouteEntry) IsDirect() bool {
	return e.NextHop == e.Id && e.Cost != INF
}

func (e RouteEntry) String() string {
	cost := "inf"
	if e.Cost != INF {
		cost = fmt.Sprintf("%d", e.Cost)
	}
	return fmt.Sprintf("(id: %s, addr: %s, nh: %s, cost: %s, counter: %d)", e.Id, e.AddrPort(), e.NextHop, cost, e.Counter)
}

// RoutingTable holds one row per known destination, always sorted by id.
// It must only be accessed from the main loop.
type RoutingTable struct {
	entries []RouteEntry
	// addrs indexes destinations by their address, several routers may share one host
	addrs bart.Table[[]RouterId]
}

func NewRoutingTable() *RoutingTable {
	return &RoutingTable{
		entries: make([]RouteEntry, 0, MaxRouters),
	}
}

func cmpEntry(e RouteEntry, id RouterId) int {
	return int(e.Id) - int(id)
}

// Insert adds the row for entry.Id, replacing any existing row with the same id.
func (t *RoutingTable) Insert(entry RouteEntry) error {
	if entry.Id == NoHop {
		return fmt.Errorf("router id %d is reserved", uint16(NoHop))
	}
	if entry.Cost == INF {
		entry.NextHop = NoHop
		entry.Counter = CounterDead
	}
	idx, found := slices.BinarySearchFunc(t.entries, entry.Id, cmpEntry)
	if found {
		t.unindex(t.entries[idx])
		t.entries[idx] = entry
	} else {
		if len(t.entries) >= MaxRouters {
			return fmt.Errorf("routing table is full (%d entries)", MaxRouters)
		}
		t.entries = slices.Insert(t.entries, idx, entry)
	}
	t.index(entry)
	return nil
}

func (t *RoutingTable) index(entry RouteEntry) {
	prefix := netip.PrefixFrom(entry.Addr, entry.Addr.BitLen())
	ids, _ := t.addrs.Get(prefix)
	ids = append(slices.Clone(ids), entry.Id)
	slices.Sort(ids)
	t.addrs.Insert(prefix, ids)
}

func (t *RoutingTable) unindex(entry RouteEntry) {
	prefix := netip.PrefixFrom(entry.Addr, entry.Addr.BitLen())
	ids, ok := t.addrs.Get(prefix)
	if !ok {
		return
	}
	ids = slices.DeleteFunc(slices.Clone(ids), func(id RouterId) bool {
		return id == entry.Id
	})
	if len(ids) == 0 {
		t.addrs.Delete(prefix)
	} else {
		t.addrs.Insert(prefix, ids)
	}
}

func (t *RoutingTable) FindById(id RouterId) (int, bool) {
	return slices.BinarySearchFunc(t.entries, id, cmpEntry)
}

// FindByAddr returns the lowest id row hosted at addr.
func (t *RoutingTable) FindByAddr(addr netip.Addr) (int, bool) {
	ids, ok := t.addrs.Lookup(addr)
	if !ok || len(ids) == 0 {
		return -1, false
	}
	return t.FindById(ids[0])
}

// FindByAddrPort returns the row whose endpoint is exactly ap.
func (t *RoutingTable) FindByAddrPort(ap netip.AddrPort) (int, bool) {
	ids, ok := t.addrs.Lookup(ap.Addr())
	if !ok {
		return -1, false
	}
	for _, id := range ids {
		idx, found := t.FindById(id)
		if found && t.entries[idx].Port == ap.Port() {
			return idx, true
		}
	}
	return -1, false
}

// SetRoute is the single mutation primitive for routes. Unknown ids are ignored.
// Setting an INF cost puts the row into the dead state.
func (t *RoutingTable) SetRoute(id RouterId, nextHop RouterId, cost uint16) bool {
	idx, ok := t.FindById(id)
	if !ok {
		return false
	}
	e := &t.entries[idx]
	if cost == INF || nextHop == NoHop {
		e.Cost = INF
		e.NextHop = NoHop
		e.Counter = CounterDead
		return true
	}
	e.Cost = cost
	e.NextHop = nextHop
	e.Counter = 0
	return true
}

// Kill moves the row for id into the dead state.
func (t *RoutingTable) Kill(id RouterId) bool {
	return t.SetRoute(id, NoHop, INF)
}

// Touch records liveness evidence for a live row.
func (t *RoutingTable) Touch(id RouterId) {
	idx, ok := t.FindById(id)
	if !ok {
		return
	}
	e := &t.entries[idx]
	if e.IsDead() || e.Disabled {
		return
	}
	e.Counter = 0
}

func (t *RoutingTable) SetDisabled(id RouterId, disabled bool) bool {
	idx, ok := t.FindById(id)
	if !ok {
		return false
	}
	t.entries[idx].Disabled = disabled
	return true
}

func (t *RoutingTable) Len() int {
	return len(t.entries)
}

// Get returns a pointer to the row at idx, valid until the next Insert.
func (t *RoutingTable) Get(idx int) *RouteEntry {
	return &t.entries[idx]
}

func (t *RoutingTable) Lookup(id RouterId) (RouteEntry, bool) {
	idx, ok := t.FindById(id)
	if !ok {
		return RouteEntry{}, false
	}
	return t.entries[idx], true
}

// Entries returns a copy of all rows in ascending id order.
func (t *RoutingTable) Entries() []RouteEntry {
	return slices.Clone(t.entries)
}

func (t *RoutingTable) IsSorted() bool {
	return slices.IsSortedFunc(t.entries, func(a, b RouteEntry) int {
		return int(a.Id) - int(b.Id)
	})
}
