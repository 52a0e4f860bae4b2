package state

import (
	"fmt"
	"net/netip"
)

// RouterState is all protocol state of this node
type RouterState struct {
	Id    RouterId
	Addr  netip.Addr
	Port  uint16
	Table *RoutingTable
	// Packets is the number of advertisements accepted since startup
	Packets uint64
	// Crashed is set by the crash command, the node stops participating in the protocol
	Crashed bool
}

func (s *RouterState) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(s.Addr, s.Port)
}

func (s *RouterState) Self() RouteEntry {
	e, ok := s.Table.Lookup(s.Id)
	if !ok {
		panic(fmt.Sprintf("routing table has no row for self (%s)", s.Id))
	}
	return e
}

// Neighbours returns every destination that is directly reachable, in id order.
func (s *RouterState) Neighbours() []RouteEntry {
	neighs := make([]RouteEntry, 0)
	for _, e := range s.Table.Entries() {
		if e.Id != s.Id && e.IsDirect() {
			neighs = append(neighs, e)
		}
	}
	return neighs
}

// NewRouterState builds the initial table from the topology, with self being the server self.
// Every other server starts unreachable, then each edge leaving self becomes a direct link.
func NewRouterState(topo *Topology, self RouterId) (*RouterState, error) {
	srv, ok := topo.Server(self)
	if !ok {
		return nil, &ConfigError{Field: "id", Err: fmt.Errorf("router %s is not in the topology", self)}
	}
	s := &RouterState{
		Id:    srv.Id,
		Addr:  srv.Addr,
		Port:  srv.Port,
		Table: NewRoutingTable(),
	}
	for _, server := range topo.Servers {
		entry := RouteEntry{
			Id:      server.Id,
			Addr:    server.Addr,
			Port:    server.Port,
			Cost:    INF,
			NextHop: NoHop,
			Counter: CounterDead,
		}
		if server.Id == self {
			entry.Cost = 0
			entry.NextHop = self
			entry.Counter = 0
		}
		if err := s.Table.Insert(entry); err != nil {
			return nil, &ConfigError{Field: "servers", Err: err}
		}
	}
	for _, edge := range topo.Edges {
		if edge.From != self || edge.To == self {
			continue
		}
		s.Table.SetRoute(edge.To, edge.To, edge.Cost)
	}
	return s, nil
}
