package device

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sarchlab/predprey/compute"
)

// renderDeviceTable writes an aligned device listing for --list-devices.
func renderDeviceTable(w io.Writer, devices []compute.Device) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Index", "Name", "Max LWS", "Compute Units", "Preferred VW (int)"})

	for i, d := range devices {
		info := d.Info()
		t.AppendRow(table.Row{i, info.Name, info.MaxWorkGroupSize, info.ComputeUnits, int(info.PreferredVectorInt)})
	}

	t.Render()
}
