package cmd

import (
	"fmt"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var (
	topologyAs   int
	topologyYaml bool
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Validates a topology file and prints the initial routing tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		topo, err := state.LoadTopology(topologyPath)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if topologyYaml {
			b, err := yaml.Marshal(topo)
			if err != nil {
				return err
			}
			_, err = out.Write(b)
			return err
		}
		ids := make([]state.RouterId, 0)
		if cmd.Flags().Changed("as") {
			if topologyAs < 0 || topologyAs >= int(state.NoHop) {
				return &state.ConfigError{Field: "as", Err: fmt.Errorf("invalid router id %d", topologyAs)}
			}
			ids = append(ids, state.RouterId(topologyAs))
		} else {
			for _, srv := range topo.Servers {
				ids = append(ids, srv.Id)
			}
		}
		for _, id := range ids {
			rs, err := state.NewRouterState(topo, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "server %s (%s), %d neighbours\n", rs.Id, rs.AddrPort(), len(rs.Neighbours()))
			for _, line := range core.FormatTable(rs) {
				fmt.Fprintf(out, "  %s\n", line)
			}
		}
		return nil
	},
	GroupID: "node",
}

func init() {
	rootCmd.AddCommand(topologyCmd)
	topologyCmd.Flags().IntVar(&topologyAs, "as", -1, "only print the table of this server")
	topologyCmd.Flags().BoolVar(&topologyYaml, "yaml", false, "print the parsed topology as yaml")
}
