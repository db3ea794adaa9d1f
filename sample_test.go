package netsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSampleNetworkIsIdempotent(t *testing.T) {
	topo := CreateTopology()
	require.NoError(t, BuildSampleNetwork(topo))
	require.NoError(t, topo.SetLinkLatency("Reititin_A", "Reititin_B", 7))

	require.NoError(t, BuildSampleNetwork(topo))
	devs, lnks := topo.Len()
	assert.Equal(t, 5, devs)
	assert.Equal(t, 5, lnks)

	// an existing link keeps its edited latency
	lnk, err := topo.Link("Reititin_B", "Reititin_A")
	require.NoError(t, err)
	assert.Equal(t, 7.0, lnk.LatencyMs)

	dev, err := topo.Device("PC_Helsinki")
	require.NoError(t, err)
	assert.Equal(t, Host, dev.Kind)
}
