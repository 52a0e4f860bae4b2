//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
)

type linkKey struct {
	From, To state.RouterId
}

// VirtualLink carries advertisements in one direction between two nodes
type VirtualLink struct {
	PacketLoss float64
	down       atomic.Bool
}

func (v *VirtualLink) WithPacketLoss(loss float64) *VirtualLink {
	v.PacketLoss = loss
	return v
}

// Cut drops everything sent over the link from now on
func (v *VirtualLink) Cut() {
	v.down.Store(true)
}

// VirtualHarness runs several nodes in memory, each with its own main loop. Datagrams are exchanged through
// channels instead of sockets and every advertisement a node sends is recorded.
type VirtualHarness struct {
	Topology state.Topology
	Interval time.Duration
	Context  context.Context
	Cancel   context.CancelCauseFunc
	States   map[state.RouterId]*state.State

	links     map[linkKey]*VirtualLink
	endpoints map[netip.AddrPort]state.RouterId
	packets   map[state.RouterId]chan core.Datagram
	lines     map[state.RouterId]chan string
	outputs   map[state.RouterId]*syncBuffer

	mu     sync.Mutex
	latest map[state.RouterId]protocol.Advertisement
	sends  map[state.RouterId]int
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type linkSender struct {
	h    *VirtualHarness
	from state.RouterId
}

func (l *linkSender) Send(to netip.AddrPort, pkt []byte) error {
	h := l.h
	adv, err := protocol.Decode(pkt)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.latest[l.from] = adv
	h.sends[l.from]++
	h.mu.Unlock()

	dst, ok := h.endpoints[to]
	if !ok {
		return fmt.Errorf("no node at %s", to)
	}
	link, ok := h.links[linkKey{l.from, dst}]
	if !ok || link.down.Load() || rand.Float64() < link.PacketLoss {
		return nil
	}
	select {
	case h.packets[dst] <- core.Datagram{Payload: bytes.Clone(pkt), From: adv.Sender()}:
	default:
		// receiver is not keeping up, drop like a full socket buffer would
	}
	return nil
}

// NewNode adds server id at 127.0.0.1:<port>
func (v *VirtualHarness) NewNode(id state.RouterId, port uint16) {
	v.Topology.Servers = append(v.Topology.Servers, state.ServerCfg{
		Id:   id,
		Addr: netip.MustParseAddr("127.0.0.1"),
		Port: port,
	})
}

// AddLink connects a and b in both directions with the given cost
func (v *VirtualHarness) AddLink(a, b state.RouterId, cost uint16) (*VirtualLink, *VirtualLink) {
	if v.links == nil {
		v.links = make(map[linkKey]*VirtualLink)
	}
	v.Topology.Edges = append(v.Topology.Edges,
		state.EdgeCfg{From: a, To: b, Cost: cost},
		state.EdgeCfg{From: b, To: a, Cost: cost})
	ab := &VirtualLink{}
	ba := &VirtualLink{}
	v.links[linkKey{a, b}] = ab
	v.links[linkKey{b, a}] = ba
	return ab, ba
}

// Start runs every node. The returned channel yields one result per node once the harness is stopped.
func (v *VirtualHarness) Start() (<-chan error, error) {
	if err := state.TopologyValidator(&v.Topology); err != nil {
		return nil, err
	}
	if v.Interval == 0 {
		v.Interval = 20 * time.Millisecond
	}
	v.Context, v.Cancel = context.WithCancelCause(context.Background())
	v.States = make(map[state.RouterId]*state.State)
	v.endpoints = make(map[netip.AddrPort]state.RouterId)
	v.packets = make(map[state.RouterId]chan core.Datagram)
	v.lines = make(map[state.RouterId]chan string)
	v.outputs = make(map[state.RouterId]*syncBuffer)
	v.latest = make(map[state.RouterId]protocol.Advertisement)
	v.sends = make(map[state.RouterId]int)
	if v.links == nil {
		v.links = make(map[linkKey]*VirtualLink)
	}

	for _, srv := range v.Topology.Servers {
		v.endpoints[netip.AddrPortFrom(srv.Addr, srv.Port)] = srv.Id
		v.packets[srv.Id] = make(chan core.Datagram, 64)
		v.lines[srv.Id] = make(chan string, 8)
		v.outputs[srv.Id] = &syncBuffer{}
	}

	errs := make(chan error, len(v.Topology.Servers))
	for _, srv := range v.Topology.Servers {
		rs, err := state.NewRouterState(&v.Topology, srv.Id)
		if err != nil {
			v.Cancel(err)
			return nil, err
		}
		ctx, cancel := context.WithCancelCause(v.Context)
		s, err := core.NewNode(&state.Env{
			LocalCfg: state.LocalCfg{
				Interval: 1,
			},
			Topology:      &v.Topology,
			Context:       ctx,
			Cancel:        cancel,
			Log:           slog.New(slog.NewTextHandler(io.Discard, nil)).With("node", srv.Id),
			Console:       v.outputs[srv.Id],
			RoundInterval: v.Interval,
		}, rs, &core.NodeTrace{}, &core.NodeRouter{Sender: &linkSender{h: v, from: srv.Id}}, &core.Console{})
		if err != nil {
			cancel(err)
			v.Cancel(err)
			return nil, err
		}
		v.States[srv.Id] = s
		go func() {
			errs <- core.MainLoop(s, v.packets[srv.Id], v.lines[srv.Id])
		}()
	}
	return errs, nil
}

// Stop cancels every node and waits for their main loops to return.
func (v *VirtualHarness) Stop(errs <-chan error) error {
	v.Cancel(context.Canceled)
	var first error
	for range v.States {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Exec types a command into the console of node id
func (v *VirtualHarness) Exec(id state.RouterId, line string) {
	v.lines[id] <- line
}

func (v *VirtualHarness) Output(id state.RouterId) string {
	return v.outputs[id].String()
}

// AdvertisedCost is the cost from node from to node to, as last advertised by from.
func (v *VirtualHarness) AdvertisedCost(from, to state.RouterId) (uint16, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	adv, ok := v.latest[from]
	if !ok {
		return 0, false
	}
	for _, e := range adv.Entries {
		if e.Id == to {
			return e.Cost, true
		}
	}
	return 0, false
}

// Sends is the number of advertisements node id has sent so far
func (v *VirtualHarness) Sends(id state.RouterId) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sends[id]
}
