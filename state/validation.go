package state

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// ConfigError is returned for missing or invalid startup parameters. It is always fatal.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config (%s): %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NodeConfigValidator(cfg *LocalCfg) error {
	if cfg.TopologyPath == "" {
		return &ConfigError{Field: "topology", Err: errors.New("path to topology file not given")}
	}
	if cfg.Interval <= 0 {
		return &ConfigError{Field: "interval", Err: fmt.Errorf("routing update interval must be positive, got %d", cfg.Interval)}
	}
	if cfg.Id != nil && *cfg.Id == NoHop {
		return &ConfigError{Field: "id", Err: fmt.Errorf("router id %d is reserved", uint16(NoHop))}
	}
	if cfg.Address.IsValid() && !cfg.Address.Is4() {
		return &ConfigError{Field: "address", Err: fmt.Errorf("%s is not an IPv4 address", cfg.Address)}
	}
	if cfg.LogPath != "" {
		if err := PathValidator(cfg.LogPath); err != nil {
			return &ConfigError{Field: "log_path", Err: err}
		}
	}
	if cfg.DumpPath != "" {
		if err := PathValidator(cfg.DumpPath); err != nil {
			return &ConfigError{Field: "dump_path", Err: err}
		}
	}
	return nil
}

func TopologyValidator(topo *Topology) error {
	if len(topo.Servers) == 0 {
		return errors.New("topology has no servers")
	}
	if len(topo.Servers) > MaxRouters {
		return fmt.Errorf("topology has %d servers, at most %d are supported", len(topo.Servers), MaxRouters)
	}
	seen := make(map[RouterId]struct{})
	endpoints := make(map[string]RouterId)
	for _, srv := range topo.Servers {
		if srv.Id == NoHop {
			return fmt.Errorf("router id %d is reserved", uint16(NoHop))
		}
		if _, ok := seen[srv.Id]; ok {
			return fmt.Errorf("duplicate server id %s", srv.Id)
		}
		seen[srv.Id] = struct{}{}
		if !srv.Addr.Is4() {
			return fmt.Errorf("server %s: %s is not an IPv4 address", srv.Id, srv.Addr)
		}
		if srv.Port == 0 {
			return fmt.Errorf("server %s: port must not be 0", srv.Id)
		}
		ep := fmt.Sprintf("%s:%d", srv.Addr, srv.Port)
		if other, ok := endpoints[ep]; ok {
			return fmt.Errorf("servers %s and %s share endpoint %s", other, srv.Id, ep)
		}
		endpoints[ep] = srv.Id
	}
	for _, edge := range topo.Edges {
		if edge.From == edge.To {
			return fmt.Errorf("edge %s -> %s is a self loop", edge.From, edge.To)
		}
		if _, ok := seen[edge.From]; !ok {
			return fmt.Errorf("edge %s -> %s: server %s not defined", edge.From, edge.To, edge.From)
		}
		if _, ok := seen[edge.To]; !ok {
			return fmt.Errorf("edge %s -> %s: server %s not defined", edge.From, edge.To, edge.To)
		}
	}
	return nil
}
