package core

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/dvr/state"
)

// TraceEvent is published for every change the router makes to its table
type TraceEvent struct {
	Router state.RouterId
	Event  RouterEvent
	Desc   string
	Args   []any
}

func (e TraceEvent) String() string {
	return fmt.Sprintf("[%s] %s %s %v", e.Router, e.Event, e.Desc, e.Args)
}

type NodeTrace struct {
	broadcast.Broadcaster
	follower chan any
	done     chan struct{}
}

func (n *NodeTrace) Init(s *state.State) error {
	n.Broadcaster = broadcast.NewBroadcaster(1024)
	if s.Trace {
		n.follower = make(chan any, 128)
		n.done = make(chan struct{})
		n.Register(n.follower)
		go n.follow(s.Log)
	}
	return nil
}

func (n *NodeTrace) follow(log *slog.Logger) {
	defer close(n.done)
	for ev := range n.follower {
		if te, ok := ev.(TraceEvent); ok {
			log.Info(fmt.Sprintf("trace %s %s", te.Event, te.Desc), te.Args...)
		}
	}
}

func (n *NodeTrace) Cleanup(s *state.State) error {
	if n.follower != nil {
		n.Unregister(n.follower)
		close(n.follower)
		<-n.done
		n.follower = nil
	}
	return n.Broadcaster.Close()
}
