package core

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/jellydator/ttlcache/v3"
)

type NodeRouter struct {
	*state.State
	Sender Sender
	// UnknownSenders rate limits the warning logged for advertisements from servers outside the topology
	UnknownSenders *ttlcache.Cache[netip.AddrPort, struct{}]
}

func (r *NodeRouter) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.State = s
	if r.Sender == nil {
		r.Sender = &UDPSender{Timeout: state.SendTimeout}
	}
	r.UnknownSenders = ttlcache.New[netip.AddrPort, struct{}](
		ttlcache.WithTTL[netip.AddrPort, struct{}](state.UnknownSenderLogTTL),
		ttlcache.WithDisableTouchOnHit[netip.AddrPort, struct{}](),
	)
	return nil
}

func (r *NodeRouter) Cleanup(s *state.State) error {
	r.UnknownSenders.DeleteAll()
	r.State = nil
	return nil
}

func (r *NodeRouter) SendAdvertisement(neigh state.RouteEntry, pkt []byte) {
	err := r.Sender.Send(neigh.AddrPort(), pkt)
	if err != nil {
		perf.SendErrors.Add(1)
		r.Env.Log.Warn("failed to send advertisement", "neigh", neigh.Id, "addr", neigh.AddrPort(), "err", err)
		return
	}
	perf.AdvertisementsSent.Add(1)
	perf.SentBytesPerSecond.Add(float64(len(pkt)))
}

func (r *NodeRouter) Log(event RouterEvent, desc string, args ...any) {
	r.Env.Log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
	switch event {
	case RouteImproved, LinkCostLearned, RouteExpired:
		perf.RouteChanges.Add(1)
	}
	if t, ok := TryGet[*NodeTrace](r.State); ok {
		t.Submit(TraceEvent{
			Router: r.Id,
			Event:  event,
			Desc:   desc,
			Args:   args,
		})
	}
}

// HandleDatagram processes one datagram read from the listening socket. The sender is identified by the
// advertisement header, the transport source is only logged.
func (r *NodeRouter) HandleDatagram(s *state.State, dg Datagram) {
	perf.RecvBytesPerSecond.Add(float64(len(dg.Payload)))
	adv, err := protocol.Decode(dg.Payload)
	if err != nil {
		perf.AdvertisementsDropped.Add(1)
		s.Log.Warn("dropped datagram", "from", dg.From, "dst", dg.Dst, "err", err)
		return
	}
	if dg.From.IsValid() && dg.From.Addr() != adv.Sender().Addr() {
		s.Log.Debug("advertisement header differs from transport source", "header", adv.Sender(), "from", dg.From, "dst", dg.Dst)
	}
	sender, err := HandleAdvertisement(s.RouterState, r, adv)
	switch {
	case err == nil:
		perf.AdvertisementsReceived.Add(1)
		s.Log.Debug("received advertisement", "from", sender, "addr", adv.Sender(), "entries", len(adv.Entries))
		printAdvertisement(s, sender, adv)
	case errors.Is(err, ErrCrashed):
		perf.AdvertisementsDropped.Add(1)
		s.Log.Debug("ignored advertisement while crashed", "from", dg.From)
	case errors.Is(err, ErrUnknownSender):
		perf.AdvertisementsDropped.Add(1)
		if r.UnknownSenders.Get(adv.Sender()) == nil {
			r.UnknownSenders.Set(adv.Sender(), struct{}{}, ttlcache.DefaultTTL)
			s.Log.Warn("dropped advertisement", "from", dg.From, "dst", dg.Dst, "err", err)
		}
	default:
		perf.AdvertisementsDropped.Add(1)
		s.Log.Warn("dropped advertisement", "from", dg.From, "dst", dg.Dst, "err", err)
	}
}

// Round runs one protocol round: aging, expiry and the periodic broadcast.
func (r *NodeRouter) Round(s *state.State) error {
	start := time.Now()
	err := RunRound(s.RouterState, r)
	r.UnknownSenders.DeleteExpired()
	perf.RoundLatency.Add(float64(time.Since(start).Microseconds()))
	return err
}

func printAdvertisement(s *state.State, sender state.RouterId, adv protocol.Advertisement) {
	printLine(s, "RECEIVED A MESSAGE FROM SERVER %s", sender)
	for _, e := range adv.Entries {
		printLine(s, "%-15s%s", e.Id, formatCost(e.Cost))
	}
}
