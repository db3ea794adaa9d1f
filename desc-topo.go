package netsim

// file desc-topo.go holds the serializable description of a topology and its
// transmission settings, and the functions that move a Simulator to and from it.
//
// The description carries no version tag.  Fields it does not know are
// ignored when read, so that newer documents still load.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeviceDesc is the serializable description of a Device.  An entry that
// cannot be decoded is remembered as malformed and skipped by Import.
type DeviceDesc struct {
	ID   string `json:"id" yaml:"id"`
	Kind string `json:"kind" yaml:"kind"`

	decodeErr error
}

// LinkDesc is the serializable description of a Link.  The latency is
// required, the loss probability defaults to zero.  An entry that cannot be
// decoded is remembered as malformed and skipped by Import.
type LinkDesc struct {
	A               string  `json:"a" yaml:"a"`
	B               string  `json:"b" yaml:"b"`
	LatencyMs       float64 `json:"latencyMs" yaml:"latencyMs"`
	LossProbability float64 `json:"lossProbability" yaml:"lossProbability"`

	decodeErr error
}

// SettingsDesc is the serializable description of Settings.  When read from
// a document its values are decoded leniently (numbers or numeric strings);
// a block that still cannot be understood is remembered as malformed instead
// of failing the whole document.
type SettingsDesc struct {
	JitterMin     float64 `json:"jitterMin" yaml:"jitterMin"`
	JitterMax     float64 `json:"jitterMax" yaml:"jitterMax"`
	PacingSeconds float64 `json:"pacingSeconds" yaml:"pacingSeconds"`

	decodeErr error
}

// TopoDoc is the portable document describing a topology and its settings
type TopoDoc struct {
	Devices  []DeviceDesc  `json:"devices" yaml:"devices"`
	Links    []LinkDesc    `json:"links" yaml:"links"`
	Settings *SettingsDesc `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// rawEntry holds one generically decoded block of a document and collects
// the problems found while reading typed values out of it
type rawEntry struct {
	fields map[string]any
	errs   []error
}

func yamlEntry(value *yaml.Node) (*rawEntry, error) {
	re := &rawEntry{fields: make(map[string]any)}
	if err := value.Decode(&re.fields); err != nil {
		return nil, err
	}
	return re, nil
}

func jsonEntry(data []byte) (*rawEntry, error) {
	re := &rawEntry{fields: make(map[string]any)}
	if err := json.Unmarshal(data, &re.fields); err != nil {
		return nil, err
	}
	return re, nil
}

// number reads a numeric field, accepting numeric strings
func (re *rawEntry) number(key string, required bool) float64 {
	val, present := re.fields[key]
	if !present || val == nil {
		if required {
			re.errs = append(re.errs, fmt.Errorf("missing %s", key))
		}
		return 0
	}
	num, err := toFloat(val)
	if err != nil {
		re.errs = append(re.errs, fmt.Errorf("%s: %v", key, err))
	}
	return num
}

// text reads a string field
func (re *rawEntry) text(key string, required bool) string {
	val, present := re.fields[key]
	if !present || val == nil {
		if required {
			re.errs = append(re.errs, fmt.Errorf("missing %s", key))
		}
		return ""
	}
	str, ok := val.(string)
	if !ok {
		re.errs = append(re.errs, fmt.Errorf("%s: value %v of type %T is not text", key, val, val))
	}
	return str
}

// err reports the collected problems as one malformed-document error
func (re *rawEntry) err(block string) error {
	if len(re.errs) == 0 {
		return nil
	}
	return malformed(block, errors.Join(re.errs...))
}

func malformed(block string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedDocument, block, err)
}

// UnmarshalYAML decodes a device entry without failing the document
func (dd *DeviceDesc) UnmarshalYAML(value *yaml.Node) error {
	re, err := yamlEntry(value)
	if err != nil {
		dd.decodeErr = malformed("device", err)
		return nil
	}
	dd.fromRaw(re)
	return nil
}

// UnmarshalJSON decodes a device entry without failing the document
func (dd *DeviceDesc) UnmarshalJSON(data []byte) error {
	re, err := jsonEntry(data)
	if err != nil {
		dd.decodeErr = malformed("device", err)
		return nil
	}
	dd.fromRaw(re)
	return nil
}

func (dd *DeviceDesc) fromRaw(re *rawEntry) {
	dd.ID = re.text("id", true)
	dd.Kind = re.text("kind", false)
	dd.decodeErr = re.err("device")
}

// UnmarshalYAML decodes a link entry without failing the document
func (ld *LinkDesc) UnmarshalYAML(value *yaml.Node) error {
	re, err := yamlEntry(value)
	if err != nil {
		ld.decodeErr = malformed("link", err)
		return nil
	}
	ld.fromRaw(re)
	return nil
}

// UnmarshalJSON decodes a link entry without failing the document
func (ld *LinkDesc) UnmarshalJSON(data []byte) error {
	re, err := jsonEntry(data)
	if err != nil {
		ld.decodeErr = malformed("link", err)
		return nil
	}
	ld.fromRaw(re)
	return nil
}

func (ld *LinkDesc) fromRaw(re *rawEntry) {
	ld.A = re.text("a", true)
	ld.B = re.text("b", true)
	ld.LatencyMs = re.number("latencyMs", true)
	ld.LossProbability = re.number("lossProbability", false)
	ld.decodeErr = re.err("link")
}

// UnmarshalYAML decodes the settings block without failing the document
func (sd *SettingsDesc) UnmarshalYAML(value *yaml.Node) error {
	re, err := yamlEntry(value)
	if err != nil {
		sd.decodeErr = malformed("settings", err)
		return nil
	}
	sd.fromRaw(re)
	return nil
}

// UnmarshalJSON decodes the settings block without failing the document
func (sd *SettingsDesc) UnmarshalJSON(data []byte) error {
	re, err := jsonEntry(data)
	if err != nil {
		sd.decodeErr = malformed("settings", err)
		return nil
	}
	sd.fromRaw(re)
	return nil
}

// fromRaw fills the descriptor from generically decoded values.  The jitter
// bounds are required, the pacing delay defaults to zero.
func (sd *SettingsDesc) fromRaw(re *rawEntry) {
	sd.JitterMin = re.number("jitterMin", true)
	sd.JitterMax = re.number("jitterMax", true)
	sd.PacingSeconds = re.number("pacingSeconds", false)
	sd.decodeErr = re.err("settings")
}

// toFloat accepts the numeric shapes yaml and json decoders produce, and numeric strings
func toFloat(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	return 0, fmt.Errorf("value %v of type %T is not a number", val, val)
}

// Settings converts the descriptor to validated Settings
func (sd *SettingsDesc) Settings() (Settings, error) {
	if sd.decodeErr != nil {
		return Settings{}, sd.decodeErr
	}
	pacing, err := pacingFromSeconds(sd.PacingSeconds)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: settings: %w", ErrMalformedDocument, err)
	}
	s := Settings{JitterMin: sd.JitterMin, JitterMax: sd.JitterMax, Pacing: pacing}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%w: settings: %w", ErrMalformedDocument, err)
	}
	return s, nil
}

// Export describes the current topology and settings.  Devices and links are
// sorted, so equal topologies produce equal documents.
func (sim *Simulator) Export() TopoDoc {
	doc := TopoDoc{
		Devices: make([]DeviceDesc, 0),
		Links:   make([]LinkDesc, 0),
	}
	for _, dev := range sim.topo.Devices() {
		doc.Devices = append(doc.Devices, DeviceDesc{ID: dev.ID, Kind: dev.Kind.String()})
	}
	for _, lnk := range sim.topo.Links() {
		doc.Links = append(doc.Links, LinkDesc{A: lnk.A, B: lnk.B,
			LatencyMs: lnk.LatencyMs, LossProbability: lnk.LossProbability})
	}
	doc.Settings = &SettingsDesc{
		JitterMin:     sim.settings.JitterMin,
		JitterMax:     sim.settings.JitterMax,
		PacingSeconds: sim.settings.Pacing.Seconds(),
	}
	return doc
}

// ImportReport tells what an Import did.  Entries rejected by validation are
// listed in Skipped; they do not stop the rest of the document from loading.
type ImportReport struct {
	DevicesAdded int
	LinksAdded   int
	Skipped      []error

	// SettingsApplied is set when the document's settings replaced the current ones.
	// SettingsErr holds the reason a settings block was rejected.
	SettingsApplied bool
	SettingsErr     error
}

// Complete reports whether every entry of the document was imported
func (ir ImportReport) Complete() bool {
	return len(ir.Skipped) == 0 && ir.SettingsErr == nil
}

// Import replaces the topology by the one the document describes.  Devices
// and links are re-created through the validated mutation operations, and
// any entry they reject is skipped on its own.  A valid settings block
// replaces the settings, a malformed one is reported and the prior settings
// stay in place; with no settings block the settings are not touched.
// The packet log is never modified.
func (sim *Simulator) Import(doc TopoDoc) ImportReport {
	var report ImportReport
	sim.topo.Clear()

	for _, dd := range doc.Devices {
		err := dd.decodeErr
		if err == nil {
			var kind DeviceKind
			kind, err = ParseDeviceKind(dd.Kind)
			if err == nil {
				err = sim.topo.AddDevice(dd.ID, kind)
			}
		}
		if err != nil {
			report.Skipped = append(report.Skipped, fmt.Errorf("device %q skipped: %w", dd.ID, err))
			continue
		}
		report.DevicesAdded++
	}

	for _, ld := range doc.Links {
		err := ld.decodeErr
		if err == nil {
			err = sim.topo.AddLink(ld.A, ld.B, ld.LatencyMs, ld.LossProbability)
		}
		if err != nil {
			report.Skipped = append(report.Skipped, fmt.Errorf("link %s <-> %s skipped: %w", ld.A, ld.B, err))
			continue
		}
		report.LinksAdded++
	}

	if doc.Settings != nil {
		s, err := doc.Settings.Settings()
		if err != nil {
			report.SettingsErr = err
		} else {
			sim.settings = s
			report.SettingsApplied = true
		}
	}
	return report
}

// Marshal serializes the document to yaml or to json
func (doc *TopoDoc) Marshal(useYAML bool) ([]byte, error) {
	if useYAML {
		return yaml.Marshal(*doc)
	}
	return json.MarshalIndent(*doc, "", "\t")
}

// WriteToFile stores the TopoDoc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (doc *TopoDoc) WriteToFile(filename string) error {
	useYAML, err := yamlByExt(filename)
	if err != nil {
		return err
	}
	bytes, err := doc.Marshal(useYAML)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// ReadTopoDoc deserializes a byte slice holding a representation of a TopoDoc struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  A deserialized representation is returned, or an error if one is generated
// from a file read or the deserialization.
func ReadTopoDoc(filename string, useYAML bool, dict []byte) (*TopoDoc, error) {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	doc := TopoDoc{}
	if useYAML {
		err = yaml.Unmarshal(dict, &doc)
	} else {
		err = json.Unmarshal(dict, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return &doc, nil
}
