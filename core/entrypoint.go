package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/state"
	"github.com/encodeous/tint"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	slogmulti "github.com/samber/slog-multi"
)

func newLogger(cfg state.LocalCfg, logLevel slog.Level, prefix string) (*slog.Logger, io.Closer, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: prefix,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	var closer io.Closer = io.NopCloser(nil)
	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		w, err := rotatelogs.New(
			cfg.LogPath+".%Y%m%d%H%M",
			rotatelogs.WithLinkName(cfg.LogPath),
			rotatelogs.WithMaxAge(state.LogMaxAge),
			rotatelogs.WithRotationTime(state.LogRotationTime),
		)
		if err != nil {
			return nil, nil, err
		}
		closer = w
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Bootstrap validates the node configuration, loads the topology and runs the node until it is stopped.
func Bootstrap(cfg state.LocalCfg) error {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	err := state.NodeConfigValidator(&cfg)
	if err != nil {
		return err
	}
	topo, err := state.LoadTopology(cfg.TopologyPath)
	if err != nil {
		return err
	}
	return Start(cfg, topo, level)
}

func Start(cfg state.LocalCfg, topo *state.Topology, logLevel slog.Level) error {
	addr := cfg.Address
	if !addr.IsValid() && cfg.Id == nil {
		var err error
		addr, err = DiscoverAddr()
		if err != nil {
			return err
		}
	}
	self, err := topo.ResolveSelf(cfg.Id, addr)
	if err != nil {
		return err
	}
	rs, err := state.NewRouterState(topo, self)
	if err != nil {
		return err
	}

	logger, logCloser, err := newLogger(cfg, logLevel, self.String())
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(context.Canceled)

	conn, err := ListenUDP(ctx, rs.Port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", rs.Port, err)
	}
	defer conn.Close()

	s, err := NewNode(&state.Env{
		LocalCfg:      cfg,
		Topology:      topo,
		Context:       ctx,
		Cancel:        cancel,
		Log:           logger,
		Console:       os.Stdout,
		RoundInterval: time.Duration(cfg.Interval) * time.Second,
	}, rs)
	if err != nil {
		return err
	}

	packets := make(chan Datagram, 64)
	lines := make(chan string)
	go readDatagrams(ctx, conn, logger, packets)
	// never joined, it stays blocked on stdin until the process exits
	go readLines(ctx, os.Stdin, lines)

	if cfg.DebugAddr != "" {
		srv := startDebugServer(s)
		defer srv.Close()
	}

	s.Log.Info("router is running. To gracefully exit, send SIGINT or Ctrl+C.",
		"id", s.Id, "addr", s.AddrPort(), "interval", s.RoundInterval, "neighbours", len(s.Neighbours()))

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			s.Cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
			return
		}
	}()

	return MainLoop(s, packets, lines)
}

// NewNode builds the state of a node and initializes its modules, the defaults are used when none are given.
// The node runs once it is handed to MainLoop.
func NewNode(env *state.Env, rs *state.RouterState, modules ...state.Module) (*state.State, error) {
	s := &state.State{
		Env:         env,
		RouterState: rs,
		Modules:     make(map[string]state.Module),
	}
	if len(modules) == 0 {
		modules = defaultModules()
	}
	s.Log.Info("init modules")
	err := initModules(s, modules)
	if err != nil {
		return nil, err
	}
	s.Log.Info("init modules complete")
	return s, nil
}

func defaultModules() []state.Module {
	return []state.Module{
		&NodeTrace{},
		&NodeRouter{},
		&Console{},
	}
}

func initModules(s *state.State, modules []state.Module) error {
	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

func startDebugServer(s *state.State) *http.Server {
	srv := &http.Server{
		Addr:              s.DebugAddr,
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log.Warn("debug server stopped", "addr", s.DebugAddr, "err", err)
		}
	}()
	s.Log.Info("serving metrics", "addr", s.DebugAddr, "paths", []string{"/debug/vars", "/debug/metrics"})
	return srv
}

func dispatch(s *state.State, fun func() error) error {
	start := time.Now()
	err := fun()
	elapsed := time.Since(start)
	perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
	if elapsed > state.SlowDispatch {
		s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed)
	}
	return err
}

// MainLoop owns the router state. It multiplexes datagrams, console lines and the round timer until the context
// is cancelled. The round deadline persists across iterations, so a steady stream of input cannot starve the
// periodic broadcast.
func MainLoop(s *state.State, packets <-chan Datagram, lines <-chan string) error {
	s.Log.Debug("started main loop")
	r := Get[*NodeRouter](s)
	console := Get[*Console](s)

	timer := time.NewTimer(s.RoundInterval)
	defer timer.Stop()

	var loopErr error
	handle := func(dg Datagram) {
		_ = dispatch(s, func() error {
			r.HandleDatagram(s, dg)
			return nil
		})
	}

	for {
		select {
		case dg, ok := <-packets:
			if !ok {
				s.Cancel(errors.New("listening socket closed"))
				goto endLoop
			}
			handle(dg)
		case line, ok := <-lines:
			if !ok {
				s.Log.Info("console input closed")
				lines = nil
				continue
			}
			// datagrams that are already queued are handled before the command
			for range len(packets) {
				dg, ok := <-packets
				if !ok {
					break
				}
				handle(dg)
			}
			_ = dispatch(s, func() error {
				return console.RunLine(s, line)
			})
		case <-timer.C:
			err := dispatch(s, func() error {
				return r.Round(s)
			})
			if err != nil {
				s.Log.Error("error occurred during round", "error", err)
				loopErr = err
				s.Cancel(err)
				goto endLoop
			}
			timer.Reset(s.RoundInterval)
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return loopErr
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
