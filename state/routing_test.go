package state

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id RouterId, addr string, port uint16) RouteEntry {
	return RouteEntry{
		Id:      id,
		Addr:    netip.MustParseAddr(addr),
		Port:    port,
		Cost:    INF,
		NextHop: NoHop,
		Counter: CounterDead,
	}
}

func TestInsertKeepsOrder(t *testing.T) {
	tbl := NewRoutingTable()
	for _, id := range []RouterId{5, 1, 3, 2, 4} {
		require.NoError(t, tbl.Insert(entry(id, fmt.Sprintf("10.0.0.%d", id), 4000)))
		assert.True(t, tbl.IsSorted())
	}
	ids := make([]RouterId, 0)
	for _, e := range tbl.Entries() {
		ids = append(ids, e.Id)
	}
	assert.Equal(t, []RouterId{1, 2, 3, 4, 5}, ids)
}

func TestInsertReplaces(t *testing.T) {
	tbl := NewRoutingTable()
	require.NoError(t, tbl.Insert(entry(1, "10.0.0.1", 4000)))
	require.NoError(t, tbl.Insert(entry(1, "10.0.0.9", 4001)))
	assert.Equal(t, 1, tbl.Len())

	_, ok := tbl.FindByAddr(netip.MustParseAddr("10.0.0.1"))
	assert.False(t, ok, "stale address index")
	idx, ok := tbl.FindByAddr(netip.MustParseAddr("10.0.0.9"))
	require.True(t, ok)
	assert.Equal(t, uint16(4001), tbl.Get(idx).Port)
}

func TestInsertRejects(t *testing.T) {
	tbl := NewRoutingTable()
	assert.Error(t, tbl.Insert(entry(NoHop, "10.0.0.1", 4000)))
	for i := range MaxRouters {
		require.NoError(t, tbl.Insert(entry(RouterId(i), "10.0.0.1", uint16(4000+i))))
	}
	assert.Error(t, tbl.Insert(entry(MaxRouters, "10.0.0.1", 5000)))
	// replacing is still allowed when full
	assert.NoError(t, tbl.Insert(entry(0, "10.0.0.2", 4000)))
	assert.Equal(t, MaxRouters, tbl.Len())
}

func TestInsertNormalizesUnreachable(t *testing.T) {
	tbl := NewRoutingTable()
	e := entry(1, "10.0.0.1", 4000)
	e.NextHop = 7
	e.Counter = 2
	require.NoError(t, tbl.Insert(e))
	got, _ := tbl.Lookup(1)
	assert.Equal(t, NoHop, got.NextHop)
	assert.True(t, got.IsDead())
}

func TestFindByAddrPortSharedHost(t *testing.T) {
	tbl := NewRoutingTable()
	require.NoError(t, tbl.Insert(entry(3, "127.0.0.1", 4003)))
	require.NoError(t, tbl.Insert(entry(1, "127.0.0.1", 4001)))
	require.NoError(t, tbl.Insert(entry(2, "127.0.0.1", 4002)))

	idx, ok := tbl.FindByAddr(netip.MustParseAddr("127.0.0.1"))
	require.True(t, ok)
	assert.Equal(t, RouterId(1), tbl.Get(idx).Id)

	idx, ok = tbl.FindByAddrPort(netip.MustParseAddrPort("127.0.0.1:4002"))
	require.True(t, ok)
	assert.Equal(t, RouterId(2), tbl.Get(idx).Id)

	_, ok = tbl.FindByAddrPort(netip.MustParseAddrPort("127.0.0.1:4009"))
	assert.False(t, ok)
	_, ok = tbl.FindByAddr(netip.MustParseAddr("127.0.0.2"))
	assert.False(t, ok)
}

func TestSetRoute(t *testing.T) {
	tbl := NewRoutingTable()
	require.NoError(t, tbl.Insert(entry(1, "10.0.0.1", 4000)))
	require.NoError(t, tbl.Insert(entry(2, "10.0.0.2", 4000)))

	assert.True(t, tbl.SetRoute(2, 1, 7))
	got, _ := tbl.Lookup(2)
	assert.Equal(t, RouteEntry{Id: 2, Addr: netip.MustParseAddr("10.0.0.2"), Port: 4000, Cost: 7, NextHop: 1, Counter: 0}, got)

	before := tbl.Entries()
	assert.False(t, tbl.SetRoute(9, 1, 1))
	if diff := cmp.Diff(before, tbl.Entries(), cmpopts.EquateComparable(netip.Addr{})); diff != "" {
		t.Errorf("SetRoute on unknown id mutated the table (-want +got):\n%s", diff)
	}

	assert.True(t, tbl.SetRoute(2, 1, INF))
	got, _ = tbl.Lookup(2)
	assert.Equal(t, NoHop, got.NextHop)
	assert.Equal(t, CounterDead, got.Counter)

	assert.True(t, tbl.SetRoute(2, 2, 3))
	got, _ = tbl.Lookup(2)
	assert.True(t, got.IsDirect())
	assert.False(t, got.IsDead())
}

func TestTouch(t *testing.T) {
	tbl := NewRoutingTable()
	require.NoError(t, tbl.Insert(entry(1, "10.0.0.1", 4000)))
	require.NoError(t, tbl.Insert(entry(2, "10.0.0.2", 4000)))
	tbl.SetRoute(1, 1, 4)
	tbl.Get(0).Counter = 3

	tbl.Touch(1)
	tbl.Touch(2)
	tbl.Touch(42)

	e1, _ := tbl.Lookup(1)
	e2, _ := tbl.Lookup(2)
	assert.Equal(t, 0, e1.Counter)
	assert.True(t, e2.IsDead(), "touch must not revive a dead row")

	tbl.SetDisabled(1, true)
	tbl.Get(0).Counter = 2
	tbl.Touch(1)
	e1, _ = tbl.Lookup(1)
	assert.Equal(t, 2, e1.Counter)
}

func TestKill(t *testing.T) {
	tbl := NewRoutingTable()
	require.NoError(t, tbl.Insert(entry(1, "10.0.0.1", 4000)))
	tbl.SetRoute(1, 1, 4)
	assert.True(t, tbl.Kill(1))
	assert.False(t, tbl.Kill(2))
	e, _ := tbl.Lookup(1)
	assert.Equal(t, INF, e.Cost)
	assert.Equal(t, NoHop, e.NextHop)
	assert.True(t, e.IsDead())
}

func TestEntriesIsACopy(t *testing.T) {
	tbl := NewRoutingTable()
	require.NoError(t, tbl.Insert(entry(1, "10.0.0.1", 4000)))
	entries := tbl.Entries()
	entries[0].Cost = 1
	e, _ := tbl.Lookup(1)
	assert.Equal(t, INF, e.Cost)
}

func TestRouterIdString(t *testing.T) {
	assert.Equal(t, "none", NoHop.String())
	assert.Equal(t, "12", RouterId(12).String())
}
