package state

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTopology = `4
3
1 192.168.0.1 4091
2 192.168.0.2 4092

3 192.168.0.3 4093
4 192.168.0.4 4094
1 2 7
1 3 inf
1 4 2
`

func TestParseTopology(t *testing.T) {
	topo, err := ParseTopology(strings.NewReader(sampleTopology))
	require.NoError(t, err)
	require.Len(t, topo.Servers, 4)
	assert.Equal(t, ServerCfg{Id: 2, Addr: netip.MustParseAddr("192.168.0.2"), Port: 4092}, topo.Servers[1])
	assert.Equal(t, []EdgeCfg{
		{From: 1, To: 2, Cost: 7},
		{From: 1, To: 3, Cost: INF},
		{From: 1, To: 4, Cost: 2},
	}, topo.Edges)
	assert.NoError(t, TopologyValidator(topo))
}

func TestParseTopologyErrors(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"bad count":       "x\n0\n",
		"negative count":  "-1\n0\n",
		"missing server":  "2\n0\n1 10.0.0.1 4000\n",
		"bad address":     "1\n0\n1 10.0.0.300 4000\n",
		"bad port":        "1\n0\n1 10.0.0.1 70000\n",
		"reserved id":     "1\n0\n65535 10.0.0.1 4000\n",
		"short edge":      "1\n1\n1 10.0.0.1 4000\n1 2\n",
		"bad cost":        "1\n1\n1 10.0.0.1 4000\n1 2 far\n",
		"too many fields": "1\n0\n1 10.0.0.1 4000 9\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTopology(strings.NewReader(text))
			assert.Error(t, err)
		})
	}
}

func TestParseTopologyReportsLine(t *testing.T) {
	_, err := ParseTopology(strings.NewReader("1\n0\n\n1 10.0.0.1 port\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 4")
}

func TestLoadTopology(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte(sampleTopology), 0600))
	topo, err := LoadTopology(good)
	require.NoError(t, err)
	assert.Len(t, topo.Servers, 4)

	dup := filepath.Join(dir, "dup.txt")
	require.NoError(t, os.WriteFile(dup, []byte("2\n0\n1 10.0.0.1 4000\n1 10.0.0.2 4000\n"), 0600))
	_, err = LoadTopology(dup)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "topology", ce.Field)

	_, err = LoadTopology(filepath.Join(dir, "missing.txt"))
	assert.True(t, errors.As(err, &ce))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestResolveSelf(t *testing.T) {
	topo, err := ParseTopology(strings.NewReader("3\n0\n1 127.0.0.1 4001\n2 127.0.0.1 4002\n3 10.0.0.3 4003\n"))
	require.NoError(t, err)

	id, err := topo.ResolveSelf(nil, netip.MustParseAddr("10.0.0.3"))
	require.NoError(t, err)
	assert.Equal(t, RouterId(3), id)

	_, err = topo.ResolveSelf(nil, netip.MustParseAddr("127.0.0.1"))
	assert.Error(t, err, "ambiguous address must be rejected")

	_, err = topo.ResolveSelf(nil, netip.MustParseAddr("10.9.9.9"))
	assert.Error(t, err)

	two := RouterId(2)
	id, err = topo.ResolveSelf(&two, netip.MustParseAddr("127.0.0.1"))
	require.NoError(t, err)
	assert.Equal(t, RouterId(2), id)

	nine := RouterId(9)
	_, err = topo.ResolveSelf(&nine, netip.Addr{})
	assert.Error(t, err)
}

func TestNewRouterStateTwoNodes(t *testing.T) {
	topo, err := ParseTopology(strings.NewReader("2\n1\n1 10.0.0.1 4001\n2 10.0.0.2 4002\n1 2 5\n"))
	require.NoError(t, err)
	rs, err := NewRouterState(topo, 1)
	require.NoError(t, err)

	entries := rs.Table.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, RouterId(1), entries[0].Id)
	assert.Equal(t, uint16(0), entries[0].Cost)
	assert.Equal(t, RouterId(1), entries[0].NextHop)
	assert.Equal(t, 0, entries[0].Counter)

	assert.Equal(t, RouterId(2), entries[1].Id)
	assert.Equal(t, uint16(5), entries[1].Cost)
	assert.Equal(t, RouterId(2), entries[1].NextHop)

	neighs := rs.Neighbours()
	require.Len(t, neighs, 1)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.2:4002"), neighs[0].AddrPort())
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:4001"), rs.AddrPort())
}

func TestNewRouterStateIgnoresForeignEdges(t *testing.T) {
	topo, err := ParseTopology(strings.NewReader("3\n2\n1 10.0.0.1 4001\n2 10.0.0.2 4002\n3 10.0.0.3 4003\n2 3 1\n1 3 inf\n"))
	require.NoError(t, err)
	rs, err := NewRouterState(topo, 1)
	require.NoError(t, err)
	for _, e := range rs.Table.Entries() {
		if e.Id == rs.Id {
			continue
		}
		assert.Equal(t, INF, e.Cost, "row %s", e.Id)
		assert.Equal(t, NoHop, e.NextHop, "row %s", e.Id)
		assert.True(t, e.IsDead(), "row %s", e.Id)
	}
	assert.Empty(t, rs.Neighbours())

	_, err = NewRouterState(topo, 8)
	assert.Error(t, err)
}

func TestLoadLocalConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
topology: topo.txt
interval: 3
id: 2
address: 10.1.2.3
trace: true
`), 0600))
	cfg, err := LoadLocalConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "topo.txt", cfg.TopologyPath)
	assert.Equal(t, 3, cfg.Interval)
	require.NotNil(t, cfg.Id)
	assert.Equal(t, RouterId(2), *cfg.Id)
	assert.Equal(t, netip.MustParseAddr("10.1.2.3"), cfg.Address)
	assert.True(t, cfg.Trace)
}

func TestParseCost(t *testing.T) {
	c, err := ParseCost("INF")
	require.NoError(t, err)
	assert.Equal(t, INF, c)
	c, err = ParseCost("65535")
	require.NoError(t, err)
	assert.Equal(t, INF, c)
	c, err = ParseCost("12")
	require.NoError(t, err)
	assert.Equal(t, uint16(12), c)
	_, err = ParseCost("-1")
	assert.Error(t, err)
	_, err = ParseCost("65536")
	assert.Error(t, err)
}
