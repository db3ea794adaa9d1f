package netsim

// pcktlog.go holds the record of every transmission attempt and the
// statistics derived from it

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/iti/evt/vrtime"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// HopTrace describes one traversal of one link during a transmission
type HopTrace struct {
	From            string  `json:"from" yaml:"from"`
	To              string  `json:"to" yaml:"to"`
	NominalMs       float64 `json:"nominalMs" yaml:"nominalMs"`
	Jitter          float64 `json:"jitter" yaml:"jitter"`
	ActualMs        float64 `json:"actualMs" yaml:"actualMs"`
	LossProbability float64 `json:"lossProbability" yaml:"lossProbability"`
	Lost            bool    `json:"lost" yaml:"lost"`

	// Arrival is the virtual time, measured from the send, at which the hop
	// ends.  It is written to files as arrivalMs.
	Arrival vrtime.Time `json:"-" yaml:"-"`
}

// hopTraceFile is the serialized form of a HopTrace
type hopTraceFile struct {
	plainHopTrace `yaml:",inline"`
	ArrivalMs     float64 `json:"arrivalMs" yaml:"arrivalMs"`
}

// plainHopTrace drops the marshaling methods of HopTrace
type plainHopTrace HopTrace

func (ht HopTrace) toFile() hopTraceFile {
	return hopTraceFile{plainHopTrace: plainHopTrace(ht), ArrivalMs: ht.Arrival.Seconds() * 1000.0}
}

// MarshalJSON writes the hop with its arrival time in milliseconds
func (ht HopTrace) MarshalJSON() ([]byte, error) {
	return json.Marshal(ht.toFile())
}

// MarshalYAML writes the hop with its arrival time in milliseconds
func (ht HopTrace) MarshalYAML() (any, error) {
	return ht.toFile(), nil
}

// TransmissionRecord is the outcome of one Send.  ActualRoute is the prefix
// of PlannedRoute that was traversed, ending at the receiver on success or
// at the sending side of the hop where the message was lost.
type TransmissionRecord struct {
	Time           time.Time  `json:"time" yaml:"time"`
	Sender         string     `json:"sender" yaml:"sender"`
	Receiver       string     `json:"receiver" yaml:"receiver"`
	Payload        string     `json:"payload" yaml:"payload"`
	PlannedRoute   []string   `json:"plannedRoute" yaml:"plannedRoute"`
	ActualRoute    []string   `json:"actualRoute" yaml:"actualRoute"`
	TotalLatencyMs float64    `json:"totalLatencyMs" yaml:"totalLatencyMs"`
	Success        bool       `json:"success" yaml:"success"`
	FailureReason  string     `json:"failureReason,omitempty" yaml:"failureReason,omitempty"`
	Hops           []HopTrace `json:"hops" yaml:"hops"`
}

// clone returns a copy of the record that shares no slices with it
func (tr TransmissionRecord) clone() TransmissionRecord {
	cpy := tr
	cpy.PlannedRoute = slices.Clone(tr.PlannedRoute)
	cpy.ActualRoute = slices.Clone(tr.ActualRoute)
	cpy.Hops = slices.Clone(tr.Hops)
	return cpy
}

// PacketLog is the append-only, insertion-ordered history of transmissions.
// Entries cannot be edited once written, the log can only be cleared as a whole.
type PacketLog struct {
	entries []TransmissionRecord
}

// CreatePacketLog is a constructor
func CreatePacketLog() *PacketLog {
	return &PacketLog{entries: make([]TransmissionRecord, 0)}
}

// Append adds a record at the end of the log.  The log keeps its own copy.
func (pl *PacketLog) Append(rec TransmissionRecord) {
	pl.entries = append(pl.entries, rec.clone())
}

// Entries returns a snapshot of the log that later appends or clears do not affect
func (pl *PacketLog) Entries() []TransmissionRecord {
	snap := make([]TransmissionRecord, len(pl.entries))
	for idx, rec := range pl.entries {
		snap[idx] = rec.clone()
	}
	return snap
}

// Len returns the number of records in the log
func (pl *PacketLog) Len() int {
	return len(pl.entries)
}

// Clear empties the log
func (pl *PacketLog) Clear() {
	pl.entries = make([]TransmissionRecord, 0)
}

// LatencySummary gathers latency figures over the records of a log
type LatencySummary struct {
	MeanMs float64 `json:"meanMs" yaml:"meanMs"`
	MinMs  float64 `json:"minMs" yaml:"minMs"`
	MaxMs  float64 `json:"maxMs" yaml:"maxMs"`
}

// Stats aggregates the packet log.  Latency covers both successful and failed
// records and is nil when the log is empty, so that "no data" is never
// reported as a zero latency.
type Stats struct {
	Count        int             `json:"count" yaml:"count"`
	SuccessCount int             `json:"successCount" yaml:"successCount"`
	FailureCount int             `json:"failureCount" yaml:"failureCount"`
	Latency      *LatencySummary `json:"latency,omitempty" yaml:"latency,omitempty"`
}

// Stats computes the statistics of the current log
func (pl *PacketLog) Stats() Stats {
	st := Stats{Count: len(pl.entries)}
	if st.Count == 0 {
		return st
	}

	latencies := make([]float64, 0, len(pl.entries))
	for _, rec := range pl.entries {
		if rec.Success {
			st.SuccessCount++
		} else {
			st.FailureCount++
		}
		latencies = append(latencies, rec.TotalLatencyMs)
	}
	st.Latency = &LatencySummary{
		MeanMs: stat.Mean(latencies, nil),
		MinMs:  floats.Min(latencies),
		MaxMs:  floats.Max(latencies),
	}
	return st
}

// SuccessRate returns the fraction of records that arrived.  ok is false on an empty log.
func (pl *PacketLog) SuccessRate() (rate float64, ok bool) {
	st := pl.Stats()
	if st.Count == 0 {
		return 0, false
	}
	return float64(st.SuccessCount) / float64(st.Count), true
}

// String summarizes the statistics on one line
func (st Stats) String() string {
	if st.Latency == nil {
		return fmt.Sprintf("sent=%d ok=%d lost=%d latency=n/a", st.Count, st.SuccessCount, st.FailureCount)
	}
	return fmt.Sprintf("sent=%d ok=%d lost=%d latency mean=%.2fms min=%.2fms max=%.2fms",
		st.Count, st.SuccessCount, st.FailureCount, st.Latency.MeanMs, st.Latency.MinMs, st.Latency.MaxMs)
}

// packetLogFile is the serialized form of a log, with its statistics attached
type packetLogFile struct {
	Stats   Stats                `json:"stats" yaml:"stats"`
	Entries []TransmissionRecord `json:"entries" yaml:"entries"`
}

// WriteToFile stores the log and its statistics to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (pl *PacketLog) WriteToFile(filename string) error {
	useYAML, err := yamlByExt(filename)
	if err != nil {
		return err
	}
	plf := packetLogFile{Stats: pl.Stats(), Entries: pl.entries}

	var bytes []byte
	if useYAML {
		bytes, err = yaml.Marshal(plf)
	} else {
		bytes, err = json.MarshalIndent(plf, "", "\t")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// yamlByExt selects yaml or json from the extension of filename
func yamlByExt(filename string) (bool, error) {
	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		return true, nil
	case ".json", ".JSON":
		return false, nil
	}
	return false, fmt.Errorf("%w: file %q needs a .yaml, .yml or .json extension", ErrInvalidInput, filename)
}
