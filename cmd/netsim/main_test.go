package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/iti/netsim"
	"github.com/iti/netsim/logging"
	"github.com/iti/netsim/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "PC_Helsinki", cfg.Sender)
	assert.Equal(t, "Palvelin_Berlin", cfg.Receiver)
	assert.Equal(t, 10, cfg.Count)
	assert.Equal(t, 0.8, cfg.JitterMin)
	assert.Equal(t, 1.2, cfg.JitterMax)
	assert.Equal(t, "neo4j", cfg.Neo4jDatabase)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("count: 3\nsender: Reititin_A\njitter_min: 1.0\n"), 0o644))
	t.Setenv("NETSIM_COUNT", "7")

	cfg, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Count)
	assert.Equal(t, "Reititin_A", cfg.Sender)
	assert.Equal(t, 1.0, cfg.JitterMin)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestRunSampleBatch(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	cfg.Count = 4
	cfg.Seed = 42
	cfg.TopologyOut = filepath.Join(dir, "topo.yaml")
	cfg.LogOut = filepath.Join(dir, "log.json")

	var out bytes.Buffer
	reg := prometheus.NewRegistry()
	require.NoError(t, run(context.Background(), cfg, reg, &out, logging.Noop()))
	assert.Contains(t, out.String(), "sent=4 ok=4 lost=0")

	doc, err := netsim.ReadTopoDoc(cfg.TopologyOut, true, nil)
	require.NoError(t, err)
	assert.Len(t, doc.Devices, 5)
	assert.Len(t, doc.Links, 5)
	assert.FileExists(t, cfg.LogOut)

	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.Transmissions.WithLabelValues(metrics.Delivered)))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.TopologyDevices))
}

func TestRunImportsDocument(t *testing.T) {
	dir := t.TempDir()
	topo := filepath.Join(dir, "net.json")
	doc := `{"devices":[{"id":"a","kind":"host"},{"id":"b","kind":"host"}],
	"links":[{"a":"a","b":"b","latencyMs":2,"lossProbability":0},{"a":"a","b":"ghost","latencyMs":1}]}`
	require.NoError(t, os.WriteFile(topo, []byte(doc), 0o644))

	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	cfg.Topology = topo
	cfg.Sender, cfg.Receiver = "a", "b"
	cfg.Count = 2

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, prometheus.NewRegistry(), &out, logging.Noop()))
	assert.Contains(t, out.String(), "sent=2 ok=2")
}

func TestRunUnknownSender(t *testing.T) {
	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	cfg.Sender = "nobody"

	err = run(context.Background(), cfg, prometheus.NewRegistry(), new(bytes.Buffer), logging.Noop())
	require.ErrorIs(t, err, netsim.ErrNotFound)
}

func TestSendBatchHonorsCancellation(t *testing.T) {
	sim, err := netsim.CreateSimulator(netsim.WithSource(netsim.NewSeededSource(1)))
	require.NoError(t, err)
	require.NoError(t, netsim.BuildSampleNetwork(sim.Topology()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := config{Sender: "PC_Helsinki", Receiver: "Palvelin_Berlin", Count: 3, Rate: 1}
	require.Error(t, sendBatch(ctx, sim, cfg))
	assert.Equal(t, 0, sim.PacketLog().Len())
}

func TestRunRejectsOversizedPacing(t *testing.T) {
	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)
	cfg.PacingSeconds = 1e10

	var out bytes.Buffer
	err = run(context.Background(), cfg, prometheus.NewRegistry(), &out, logging.Noop())
	require.ErrorIs(t, err, netsim.ErrInvalidInput)
	assert.Empty(t, out.String())
}
