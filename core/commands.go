package core

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
)

// CommandError is reported on the console as "<cmd>:<reason>"
type CommandError struct {
	Cmd    string
	Reason string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s:%s", e.Cmd, e.Reason)
}

type command struct {
	args int
	run  func(c *Console, s *state.State, args []string) error
}

var commands = map[string]command{
	"academic_integrity": {0, (*Console).academicIntegrity},
	"update":             {3, (*Console).update},
	"disable":            {1, (*Console).disable},
	"step":               {0, (*Console).step},
	"crash":              {0, (*Console).crash},
	"packets":            {0, (*Console).packets},
	"display":            {0, (*Console).display},
	"dump":               {0, (*Console).dump},
}

// Console executes operator commands read from standard input
type Console struct {
	*state.State
}

func (c *Console) Init(s *state.State) error {
	s.Log.Debug("init console")
	c.State = s
	if s.DumpPath != "" {
		// every run starts with an empty dump file
		err := os.WriteFile(s.DumpPath, nil, 0600)
		if err != nil {
			return &state.ConfigError{Field: "dump_path", Err: err}
		}
	}
	return nil
}

func (c *Console) Cleanup(s *state.State) error {
	c.State = nil
	return nil
}

// RunLine parses and executes a single console line. The result is always printed, the returned error is only
// informational.
func (c *Console) RunLine(s *state.State, line string) error {
	tokens := strings.Fields(strings.ToLower(line))
	if len(tokens) == 0 {
		return nil
	}
	name, args := tokens[0], tokens[1:]
	s.Log.Debug("running command", "cmd", name, "args", args)
	var err error
	cmd, ok := commands[name]
	switch {
	case !ok:
		err = errors.New("unknown command")
	case len(args) != cmd.args:
		err = fmt.Errorf("expected %d arguments, got %d", cmd.args, len(args))
	default:
		err = cmd.run(c, s, args)
	}
	if err != nil {
		ce := &CommandError{Cmd: name, Reason: err.Error()}
		printLine(s, "%s", ce.Error())
		return ce
	}
	return nil
}

func (c *Console) academicIntegrity(s *state.State, args []string) error {
	printLine(s, "academic_integrity:SUCCESS")
	printLine(s, "I have read and understood the course academic integrity policy.")
	return nil
}

func (c *Console) update(s *state.State, args []string) error {
	from, err := state.ParseRouterId(args[0])
	if err != nil {
		return err
	}
	to, err := state.ParseRouterId(args[1])
	if err != nil {
		return err
	}
	cost, err := state.ParseCost(args[2])
	if err != nil {
		return err
	}
	err = UpdateLink(s.RouterState, Get[*NodeRouter](s), from, to, cost)
	if err != nil {
		return err
	}
	printLine(s, "update:SUCCESS")
	return nil
}

func (c *Console) disable(s *state.State, args []string) error {
	id, err := state.ParseRouterId(args[0])
	if err != nil {
		return err
	}
	err = DisableLink(s.RouterState, Get[*NodeRouter](s), id)
	if err != nil {
		return err
	}
	printLine(s, "disable:SUCCESS")
	return nil
}

func (c *Console) step(s *state.State, args []string) error {
	err := Get[*NodeRouter](s).Round(s)
	if err != nil {
		return err
	}
	printLine(s, "step:SUCCESS")
	return nil
}

func (c *Console) crash(s *state.State, args []string) error {
	if s.Crashed {
		return ErrCrashed
	}
	Crash(s.RouterState, Get[*NodeRouter](s))
	printLine(s, "crash:SUCCESS")
	return nil
}

func (c *Console) packets(s *state.State, args []string) error {
	printLine(s, "packets:SUCCESS")
	printLine(s, "%d", s.Packets)
	return nil
}

func (c *Console) display(s *state.State, args []string) error {
	printLine(s, "display:SUCCESS")
	for _, line := range FormatTable(s.RouterState) {
		printLine(s, "%s", line)
	}
	return nil
}

// dump appends the encoded table to the dump file, or prints it as hex if there is none.
func (c *Console) dump(s *state.State, args []string) error {
	pkt, err := protocol.EncodeTable(s.RouterState)
	if err != nil {
		return err
	}
	if s.DumpPath != "" {
		f, err := os.OpenFile(s.DumpPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return err
		}
		_, err = f.Write(pkt)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	s.Log.Debug("dumped routing table", "bytes", len(pkt), "path", s.DumpPath, "hex", hex.EncodeToString(pkt))
	printLine(s, "dump:SUCCESS")
	if s.DumpPath == "" {
		printLine(s, "%s", strings.TrimRight(hex.Dump(pkt), "\n"))
	}
	return nil
}

// FormatTable renders the routing table as "<id> <next hop> <cost>" rows, -1 marks a missing next hop.
func FormatTable(s *state.RouterState) []string {
	lines := make([]string, 0, s.Table.Len())
	for _, e := range s.Table.Entries() {
		nh := "-1"
		if e.NextHop != state.NoHop {
			nh = e.NextHop.String()
		}
		lines = append(lines, fmt.Sprintf("%-15s%-15s%s", e.Id, nh, formatCost(e.Cost)))
	}
	return lines
}

func formatCost(cost uint16) string {
	if cost == state.INF {
		return "inf"
	}
	return strconv.Itoa(int(cost))
}

func printLine(s *state.State, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if s.Console != nil {
		fmt.Fprintln(s.Console, line)
	}
	s.Log.Debug("console", "out", line)
}

// readLines forwards every line of r to out until r is exhausted. Cancelling ctx only stops the forwarding,
// a goroutine blocked reading os.Stdin is abandoned on shutdown.
func readLines(ctx context.Context, r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case out <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
}
