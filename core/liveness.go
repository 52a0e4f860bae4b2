package core

import (
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
)

// AgeRoutes ages every route by one round and expires the routes that missed too many rounds.
func AgeRoutes(s *state.RouterState, r Router) {
	for i := range s.Table.Len() {
		e := s.Table.Get(i)
		if e.Id == s.Id {
			e.Counter = 0
		} else if !e.IsDead() {
			e.Counter++
		}
	}
	for i := range s.Table.Len() {
		e := s.Table.Get(i)
		if e.Id != s.Id && !e.IsDead() && e.Counter > state.CounterMax {
			r.Log(RouteExpired, "route expired", "dst", e.Id, "nh", e.NextHop, "missed", e.Counter)
			s.Table.Kill(e.Id)
		}
	}
}

// BroadcastTable sends the full table to every directly reachable neighbour.
func BroadcastTable(s *state.RouterState, r Router) error {
	pkt, err := protocol.EncodeTable(s)
	if err != nil {
		return err
	}
	for _, neigh := range s.Neighbours() {
		r.SendAdvertisement(neigh, pkt)
	}
	return nil
}

// RunRound runs one protocol round. A crashed node still ages its (dead) routes but stays silent.
func RunRound(s *state.RouterState, r Router) error {
	AgeRoutes(s, r)
	if s.Crashed {
		return nil
	}
	return BroadcastTable(s, r)
}
