package state

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

type Module interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// State access must be done only on the main loop goroutine
type State struct {
	*Env
	*RouterState
	Modules map[string]Module
}

// Env can be read from any goroutine
type Env struct {
	LocalCfg
	Topology *Topology
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Log      *slog.Logger
	// Console receives the output of operator commands
	Console       io.Writer
	RoundInterval time.Duration
	Stopping      atomic.Bool
}
