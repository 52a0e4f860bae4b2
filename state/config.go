package state

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// LocalCfg represents node-level configuration
type LocalCfg struct {
	TopologyPath string     `yaml:"topology"`                // path to the topology file
	Interval     int        `yaml:"interval"`                // seconds between routing updates
	Id           *RouterId  `yaml:"id,omitempty"`            // picks the self server when several share this host's address
	Address      netip.Addr `yaml:"address,omitempty"`       // address of this node, discovered if empty
	LogPath      string     `yaml:"log_path,omitempty"`      // if not empty, logs are also written (and rotated) here
	DumpPath     string     `yaml:"dump_path,omitempty"`     // file that the dump command appends to
	Trace        bool       `yaml:"trace,omitempty"`         // log every route change
	DebugAddr    string     `yaml:"debug_addr,omitempty"`    // serves expvar metrics when set
	Verbose      bool       `yaml:"verbose,omitempty"`
}

type ServerCfg struct {
	Id   RouterId   `yaml:"id"`
	Addr netip.Addr `yaml:"addr"`
	Port uint16     `yaml:"port"`
}

type EdgeCfg struct {
	From RouterId `yaml:"from"`
	To   RouterId `yaml:"to"`
	Cost uint16   `yaml:"cost"`
}

// Topology is the static description of the network read at startup
type Topology struct {
	Servers []ServerCfg `yaml:"servers"`
	Edges   []EdgeCfg   `yaml:"edges"`
}

func (t *Topology) Server(id RouterId) (ServerCfg, bool) {
	idx := slices.IndexFunc(t.Servers, func(cfg ServerCfg) bool {
		return cfg.Id == id
	})
	if idx == -1 {
		return ServerCfg{}, false
	}
	return t.Servers[idx], true
}

// ResolveSelf finds the server that this node runs as. An explicit id wins over the address.
func (t *Topology) ResolveSelf(id *RouterId, addr netip.Addr) (RouterId, error) {
	if id != nil {
		if _, ok := t.Server(*id); !ok {
			return 0, &ConfigError{Field: "id", Err: fmt.Errorf("router %s is not in the topology", *id)}
		}
		return *id, nil
	}
	matches := make([]RouterId, 0)
	for _, srv := range t.Servers {
		if srv.Addr == addr {
			matches = append(matches, srv.Id)
		}
	}
	switch len(matches) {
	case 0:
		return 0, &ConfigError{Field: "address", Err: fmt.Errorf("no server in the topology has address %s", addr)}
	case 1:
		return matches[0], nil
	default:
		return 0, &ConfigError{Field: "address", Err: fmt.Errorf("servers %v share address %s, pick one with --id", matches, addr)}
	}
}

/*
ParseTopology reads the topology text format:

	<number of servers>
	<number of edges>
	<id> <ipv4> <port>     (one line per server)
	<id1> <id2> <cost>     (one line per edge)

Blank lines are skipped. The edge cost may be written as "inf".
*/
func ParseTopology(r io.Reader) (*Topology, error) {
	sc := bufio.NewScanner(r)
	lineNo := 0
	next := func() ([]string, error) {
		for sc.Scan() {
			lineNo++
			fields := strings.Fields(sc.Text())
			if len(fields) != 0 {
				return fields, nil
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}
	count := func(what string) (int, error) {
		fields, err := next()
		if err != nil {
			return 0, fmt.Errorf("reading number of %s: %w", what, err)
		}
		if len(fields) != 1 {
			return 0, fmt.Errorf("line %d: expected number of %s", lineNo, what)
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("line %d: invalid number of %s %q", lineNo, what, fields[0])
		}
		return n, nil
	}

	numServers, err := count("servers")
	if err != nil {
		return nil, err
	}
	if numServers > MaxRouters {
		return nil, fmt.Errorf("topology has %d servers, at most %d are supported", numServers, MaxRouters)
	}
	numEdges, err := count("edges")
	if err != nil {
		return nil, err
	}

	topo := &Topology{}
	for range numServers {
		fields, err := next()
		if err != nil {
			return nil, fmt.Errorf("reading server: %w", err)
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected \"<id> <ip> <port>\"", lineNo)
		}
		id, err := ParseRouterId(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		addr, err := netip.ParseAddr(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		port, err := strconv.ParseUint(fields[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid port %q", lineNo, fields[2])
		}
		topo.Servers = append(topo.Servers, ServerCfg{Id: id, Addr: addr, Port: uint16(port)})
	}
	for range numEdges {
		fields, err := next()
		if err != nil {
			return nil, fmt.Errorf("reading edge: %w", err)
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected \"<id1> <id2> <cost>\"", lineNo)
		}
		from, err := ParseRouterId(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		to, err := ParseRouterId(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		cost, err := ParseCost(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		topo.Edges = append(topo.Edges, EdgeCfg{From: from, To: to, Cost: cost})
	}
	return topo, nil
}

func LoadTopology(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Field: "topology", Err: err}
	}
	defer f.Close()
	topo, err := ParseTopology(f)
	if err != nil {
		return nil, &ConfigError{Field: "topology", Err: fmt.Errorf("%s: %w", path, err)}
	}
	if err := TopologyValidator(topo); err != nil {
		return nil, &ConfigError{Field: "topology", Err: fmt.Errorf("%s: %w", path, err)}
	}
	return topo, nil
}

func LoadLocalConfig(path string) (*LocalCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "config", Err: err}
	}
	var cfg LocalCfg
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, &ConfigError{Field: "config", Err: fmt.Errorf("%s: %w", path, err)}
	}
	return &cfg, nil
}

func ParseRouterId(s string) (RouterId, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil || RouterId(v) == NoHop {
		return 0, fmt.Errorf("invalid router id %q", s)
	}
	return RouterId(v), nil
}

// ParseCost accepts a decimal link cost or "inf".
func ParseCost(s string) (uint16, error) {
	if strings.EqualFold(s, "inf") {
		return INF, nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid cost %q", s)
	}
	return uint16(v), nil
}
