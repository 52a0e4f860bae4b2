package core

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

type RouterHarness struct {
	actions []HarnessEvent
}

func (h *RouterHarness) SendAdvertisement(neigh state.RouteEntry, pkt []byte) {
	h.actions = append(h.actions, MakeEvent("SEND", neigh.Id, len(pkt)))
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns and clears the recorded sends
func (h *RouterHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}
	h.actions = make([]HarnessEvent, 0)
	return x
}

// GetLogs returns and clears the recorded router events
func (h *RouterHarness) GetLogs() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message == "LOG" {
			x = append(x, action)
		}
	}
	h.actions = make([]HarnessEvent, 0)
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

// MakeTopology builds servers 1..n on 10.0.0.<id>:<4000+id> with the given links
func MakeTopology(n int, edges ...state.EdgeCfg) *state.Topology {
	topo := &state.Topology{}
	for i := 1; i <= n; i++ {
		topo.Servers = append(topo.Servers, state.ServerCfg{
			Id:   state.RouterId(i),
			Addr: netip.AddrFrom4([4]byte{10, 0, 0, byte(i)}),
			Port: uint16(4000 + i),
		})
	}
	topo.Edges = edges
	return topo
}

func Link(from, to state.RouterId, cost uint16) state.EdgeCfg {
	return state.EdgeCfg{From: from, To: to, Cost: cost}
}

func MakeRouterState(t *testing.T, topo *state.Topology, self state.RouterId) *state.RouterState {
	t.Helper()
	rs, err := state.NewRouterState(topo, self)
	require.NoError(t, err)
	return rs
}

// AdvertiseFrom builds the advertisement that sender would send, given its costs to each destination
func AdvertiseFrom(topo *state.Topology, sender state.RouterId, costs map[state.RouterId]uint16) protocol.Advertisement {
	srv, _ := topo.Server(sender)
	adv := protocol.Advertisement{
		SenderAddr: srv.Addr,
		SenderPort: srv.Port,
	}
	for _, s := range topo.Servers {
		cost, ok := costs[s.Id]
		if !ok {
			cost = state.INF
		}
		if s.Id == sender {
			cost = 0
		}
		adv.Entries = append(adv.Entries, protocol.Entry{
			Addr: s.Addr,
			Port: s.Port,
			Id:   s.Id,
			Cost: cost,
		})
	}
	return adv
}

func RequireRoute(t *testing.T, rs *state.RouterState, id, nh state.RouterId, cost uint16) {
	t.Helper()
	e, ok := rs.Table.Lookup(id)
	require.True(t, ok, "no row for %s", id)
	require.Equal(t, cost, e.Cost, "cost of %s", id)
	require.Equal(t, nh, e.NextHop, "next hop of %s", id)
}

func RequireInvariants(t *testing.T, rs *state.RouterState) {
	t.Helper()
	require.True(t, rs.Table.IsSorted())
	self := rs.Self()
	require.Equal(t, uint16(0), self.Cost)
	require.Equal(t, rs.Id, self.NextHop)
	for _, e := range rs.Table.Entries() {
		require.Equal(t, e.Cost == state.INF, e.NextHop == state.NoHop, "row %s", e)
		if e.Cost == state.INF {
			require.True(t, e.IsDead(), "row %s", e)
		}
	}
}
