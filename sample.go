package netsim

// sampleDevices and sampleLinks describe a five-device demo network where the
// cheapest route between the two hosts detours through Reititin_C
var sampleDevices = []Device{
	{ID: "PC_Helsinki", Kind: Host},
	{ID: "Reititin_A", Kind: Router},
	{ID: "Reititin_B", Kind: Router},
	{ID: "Reititin_C", Kind: Router},
	{ID: "Palvelin_Berlin", Kind: Host},
}

var sampleLinks = []Link{
	{A: "PC_Helsinki", B: "Reititin_A", LatencyMs: 5},
	{A: "Reititin_A", B: "Reititin_B", LatencyMs: 50},
	{A: "Reititin_A", B: "Reititin_C", LatencyMs: 10},
	{A: "Reititin_C", B: "Reititin_B", LatencyMs: 10},
	{A: "Reititin_B", B: "Palvelin_Berlin", LatencyMs: 5},
}

// BuildSampleNetwork adds the demo devices and links to topo.  Devices and
// links that already exist are left as they are, so calling it twice is harmless.
func BuildSampleNetwork(topo *Topology) error {
	for _, dev := range sampleDevices {
		if topo.HasDevice(dev.ID) {
			continue
		}
		if err := topo.AddDevice(dev.ID, dev.Kind); err != nil {
			return err
		}
	}
	for _, lnk := range sampleLinks {
		if _, err := topo.Link(lnk.A, lnk.B); err == nil {
			continue
		}
		if err := topo.AddLink(lnk.A, lnk.B, lnk.LatencyMs, lnk.LossProbability); err != nil {
			return err
		}
	}
	return nil
}
