package netsim

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStatsOnEmptyLog(t *testing.T) {
	pl := CreatePacketLog()
	st := pl.Stats()

	assert.Zero(t, st.Count)
	assert.Zero(t, st.SuccessCount)
	assert.Zero(t, st.FailureCount)
	assert.Nil(t, st.Latency, "latency figures must be absent on an empty log")
	assert.Equal(t, "sent=0 ok=0 lost=0 latency=n/a", st.String())

	_, ok := pl.SuccessRate()
	assert.False(t, ok)
}

func TestStatsIncludeFailedEntries(t *testing.T) {
	pl := CreatePacketLog()
	pl.Append(TransmissionRecord{TotalLatencyMs: 10, Success: true})
	pl.Append(TransmissionRecord{TotalLatencyMs: 30, Success: false, FailureReason: "lost"})
	pl.Append(TransmissionRecord{TotalLatencyMs: 20, Success: true})

	st := pl.Stats()
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 2, st.SuccessCount)
	assert.Equal(t, 1, st.FailureCount)
	require.NotNil(t, st.Latency)
	assert.InDelta(t, 20.0, st.Latency.MeanMs, 1e-12)
	assert.Equal(t, 10.0, st.Latency.MinMs)
	assert.Equal(t, 30.0, st.Latency.MaxMs)

	rate, ok := pl.SuccessRate()
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, rate, 1e-12)
}

func TestEntriesAreSnapshots(t *testing.T) {
	pl := CreatePacketLog()
	rec := TransmissionRecord{Sender: "A", PlannedRoute: []string{"A", "B"}, ActualRoute: []string{"A", "B"}, Success: true}
	pl.Append(rec)

	// mutating the appended value or a snapshot leaves the log alone
	rec.PlannedRoute[1] = "Z"
	snap := pl.Entries()
	snap[0].ActualRoute[0] = "Q"
	snap[0].Sender = "Q"

	again := pl.Entries()
	assert.Equal(t, []string{"A", "B"}, again[0].PlannedRoute)
	assert.Equal(t, []string{"A", "B"}, again[0].ActualRoute)
	assert.Equal(t, "A", again[0].Sender)

	pl.Append(TransmissionRecord{Sender: "B"})
	assert.Len(t, snap, 1)
	assert.Equal(t, 2, pl.Len())

	pl.Clear()
	assert.Zero(t, pl.Len())
	assert.Empty(t, pl.Entries())
	assert.Len(t, again, 1)
}

func TestPacketLogWriteToFile(t *testing.T) {
	sim, _, _ := newTestSimulator()
	require.NoError(t, BuildSampleNetwork(sim.Topology()))
	_, err := sim.Send("PC_Helsinki", "Palvelin_Berlin", "to file")
	require.NoError(t, err)

	dir := t.TempDir()

	yamlFile := filepath.Join(dir, "log.yaml")
	require.NoError(t, sim.PacketLog().WriteToFile(yamlFile))
	bytes, err := os.ReadFile(yamlFile)
	require.NoError(t, err)
	var fromYAML packetLogFile
	require.NoError(t, yaml.Unmarshal(bytes, &fromYAML))
	assert.Equal(t, 1, fromYAML.Stats.Count)
	require.Len(t, fromYAML.Entries, 1)
	assert.Equal(t, "to file", fromYAML.Entries[0].Payload)
	assert.Len(t, fromYAML.Entries[0].Hops, 4)

	jsonFile := filepath.Join(dir, "log.json")
	require.NoError(t, sim.PacketLog().WriteToFile(jsonFile))
	bytes, err = os.ReadFile(jsonFile)
	require.NoError(t, err)
	var fromJSON packetLogFile
	require.NoError(t, json.Unmarshal(bytes, &fromJSON))
	require.NotNil(t, fromJSON.Stats.Latency)
	assert.Equal(t, 30.0, fromJSON.Stats.Latency.MaxMs)

	// each hop carries its running arrival time
	var raw struct {
		Entries []struct {
			Hops []struct {
				ArrivalMs float64 `json:"arrivalMs"`
			} `json:"hops"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(bytes, &raw))
	require.Len(t, raw.Entries, 1)
	require.Len(t, raw.Entries[0].Hops, 4)
	for idx, want := range []float64{5, 15, 25, 30} {
		assert.InDelta(t, want, raw.Entries[0].Hops[idx].ArrivalMs, 1e-6, "hop %d", idx)
	}

	var rawYAML struct {
		Entries []struct {
			Hops []map[string]any `yaml:"hops"`
		} `yaml:"entries"`
	}
	bytes, err = os.ReadFile(yamlFile)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(bytes, &rawYAML))
	require.Len(t, rawYAML.Entries, 1)
	last := rawYAML.Entries[0].Hops[3]
	assert.Equal(t, "Palvelin_Berlin", last["to"])
	assert.InDelta(t, 30.0, last["arrivalMs"], 1e-6)

	assert.ErrorIs(t, sim.PacketLog().WriteToFile(filepath.Join(dir, "log.txt")), ErrInvalidInput)
}
