package core

import (
	"errors"
	"fmt"
	"slices"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
)

type RouterEvent int

// trace events

const (
	RouteImproved RouterEvent = iota
	LinkCostLearned
	RouteExpired
	LinkUpdated
	LinkDisabled
	NodeCrashed
)

func (e RouterEvent) String() string {
	switch e {
	case RouteImproved:
		return "ROUTE_IMPROVED"
	case LinkCostLearned:
		return "LINK_COST_LEARNED"
	case RouteExpired:
		return "ROUTE_EXPIRED"
	case LinkUpdated:
		return "LINK_UPDATED"
	case LinkDisabled:
		return "LINK_DISABLED"
	case NodeCrashed:
		return "NODE_CRASHED"
	}
	return fmt.Sprintf("RouterEvent(%d)", int(e))
}

var (
	ErrMalformedAdvertisement = errors.New("malformed advertisement")
	ErrUnknownSender          = errors.New("advertisement from unknown sender")
	ErrSenderDisabled         = errors.New("advertisement over a disabled link")
	ErrCrashed                = errors.New("node has crashed")
	ErrUnknownRouter          = errors.New("unknown router")
	ErrNotSelf                = errors.New("link does not start at this node")
)

// Router is an interface that defines the underlying router operations
type Router interface {
	SendAdvertisement(neigh state.RouteEntry, pkt []byte)
	Log(event RouterEvent, desc string, args ...any)
}

// HandleAdvertisement applies one advertisement from a neighbour to the table: a single Bellman-Ford
// relaxation pass over the sender's vector. It returns the id of the sender. Nothing is changed when
// an error is returned.
func HandleAdvertisement(s *state.RouterState, r Router, adv protocol.Advertisement) (state.RouterId, error) {
	if s.Crashed {
		return state.NoHop, ErrCrashed
	}

	senderIdx := slices.IndexFunc(adv.Entries, func(e protocol.Entry) bool {
		return e.AddrPort() == adv.Sender()
	})
	if senderIdx == -1 {
		return state.NoHop, fmt.Errorf("%w: sender %s does not advertise itself", ErrMalformedAdvertisement, adv.Sender())
	}
	selfIdx := slices.IndexFunc(adv.Entries, func(e protocol.Entry) bool {
		return e.Id == s.Id
	})
	if selfIdx == -1 {
		return state.NoHop, fmt.Errorf("%w: no entry for this node (%s)", ErrMalformedAdvertisement, s.Id)
	}
	sender := adv.Entries[senderIdx].Id
	if sender == s.Id {
		return sender, fmt.Errorf("%w: sender claims our id %s", ErrMalformedAdvertisement, s.Id)
	}

	// the sender is whoever our table has at the header endpoint, the advertised id must agree
	neighIdx, ok := s.Table.FindByAddrPort(adv.Sender())
	if !ok {
		return sender, fmt.Errorf("%w: %s at %s", ErrUnknownSender, sender, adv.Sender())
	}
	if known := s.Table.Get(neighIdx).Id; known != sender {
		return sender, fmt.Errorf("%w: %s is %s, not %s", ErrMalformedAdvertisement, adv.Sender(), known, sender)
	}
	if s.Table.Get(neighIdx).Disabled {
		return sender, fmt.Errorf("%w: %s", ErrSenderDisabled, sender)
	}
	s.Table.Touch(sender)

	// the neighbour tells us what our link costs from its side
	selfCost := adv.Entries[selfIdx].Cost
	neigh := s.Table.Get(neighIdx)
	if selfCost <= neigh.Cost {
		if selfCost != neigh.Cost || !neigh.IsDirect() {
			r.Log(LinkCostLearned, "link cost learned from neighbour", "neigh", sender, "old", neigh.Cost, "new", selfCost)
		}
		s.Table.SetRoute(sender, sender, selfCost)
	}
	costToSender := s.Table.Get(neighIdx).Cost

	for i, e := range adv.Entries {
		if i == senderIdx || i == selfIdx || e.Id == s.Id || e.Id == sender {
			continue
		}
		idx, ok := s.Table.FindById(e.Id)
		if !ok {
			continue
		}
		dest := s.Table.Get(idx)
		candidate := AddCost(e.Cost, costToSender)
		if !dest.Disabled && candidate < dest.Cost {
			r.Log(RouteImproved, "found better route", "dst", e.Id, "nh", sender, "old", dest.Cost, "new", candidate)
			s.Table.SetRoute(e.Id, sender, candidate)
		}
		// any mention of a destination counts as evidence that it is alive
		s.Table.Touch(e.Id)
	}
	s.Packets++
	return sender, nil
}

// UpdateLink sets the cost of the direct link from to to. It is the only way to bring back a disabled link.
func UpdateLink(s *state.RouterState, r Router, from, to state.RouterId, cost uint16) error {
	if s.Crashed {
		return ErrCrashed
	}
	if from != s.Id {
		return fmt.Errorf("%w: %s is not %s", ErrNotSelf, from, s.Id)
	}
	if to == s.Id {
		return errors.New("cannot change the cost to self")
	}
	old, ok := s.Table.Lookup(to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRouter, to)
	}
	s.Table.SetDisabled(to, false)
	s.Table.SetRoute(to, to, cost)
	r.Log(LinkUpdated, "link cost changed by operator", "neigh", to, "old", old.Cost, "new", cost)
	return nil
}

// DisableLink forces the route to id into the dead state and keeps it there until it is updated.
func DisableLink(s *state.RouterState, r Router, id state.RouterId) error {
	if s.Crashed {
		return ErrCrashed
	}
	if id == s.Id {
		return errors.New("cannot disable self")
	}
	if !s.Table.Kill(id) {
		return fmt.Errorf("%w: %s", ErrUnknownRouter, id)
	}
	s.Table.SetDisabled(id, true)
	r.Log(LinkDisabled, "link disabled by operator", "neigh", id)
	return nil
}

// Crash disables every link and stops this node from taking part in the protocol.
func Crash(s *state.RouterState, r Router) {
	for _, e := range s.Table.Entries() {
		if e.Id == s.Id {
			continue
		}
		s.Table.Kill(e.Id)
		s.Table.SetDisabled(e.Id, true)
	}
	s.Crashed = true
	r.Log(NodeCrashed, "node crashed")
}
