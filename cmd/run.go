package cmd

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

var (
	topologyPath string
	configPath   string
	interval     int
	routerId     int
	address      string
	logPath      string
	dumpPath     string
	trace        bool
	debugAddr    string
	verbose      bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a routing node",
	Long: `Runs the node described by the topology file whose address matches this host.
Flags override values read from the node config file.`,
	Example: "  dvr run -t topology.txt -i 5\n  dvr run -c node.yaml --id 2 --trace",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildLocalConfig(cmd)
		if err != nil {
			return err
		}
		return core.Bootstrap(*cfg)
	},
	GroupID: "node",
}

func buildLocalConfig(cmd *cobra.Command) (*state.LocalCfg, error) {
	cfg := &state.LocalCfg{
		Interval: int(state.DefaultRoundInterval.Seconds()),
	}
	if configPath != "" {
		var err error
		cfg, err = state.LoadLocalConfig(configPath)
		if err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("topology") || cfg.TopologyPath == "" {
		cfg.TopologyPath = topologyPath
	}
	if flags.Changed("interval") || cfg.Interval == 0 {
		cfg.Interval = interval
	}
	if flags.Changed("id") {
		if routerId < 0 || routerId >= int(state.NoHop) {
			return nil, &state.ConfigError{Field: "id", Err: fmt.Errorf("invalid router id %d", routerId)}
		}
		id := state.RouterId(routerId)
		cfg.Id = &id
	}
	if flags.Changed("addr") {
		addr, err := netip.ParseAddr(address)
		if err != nil {
			return nil, &state.ConfigError{Field: "address", Err: err}
		}
		cfg.Address = addr
	}
	if flags.Changed("log") {
		cfg.LogPath = logPath
	}
	if flags.Changed("dump") {
		cfg.DumpPath = dumpPath
	}
	if flags.Changed("trace") {
		cfg.Trace = trace
	}
	if flags.Changed("debug-addr") {
		cfg.DebugAddr = debugAddr
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "optional node config file (yaml)")
	runCmd.Flags().IntVarP(&interval, "interval", "i", int(state.DefaultRoundInterval.Seconds()), "seconds between routing updates")
	runCmd.Flags().IntVar(&routerId, "id", -1, "run as this server id instead of matching by address")
	runCmd.Flags().StringVar(&address, "addr", "", "address of this host, discovered when empty")
	runCmd.Flags().StringVar(&logPath, "log", "", "also write logs to this file, rotated hourly")
	runCmd.Flags().StringVar(&dumpPath, "dump", "", "file the dump command appends the encoded table to")
	runCmd.Flags().BoolVar(&trace, "trace", false, "log every routing table change")
	runCmd.Flags().StringVar(&debugAddr, "debug-addr", "", "serve expvar metrics on this address")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
