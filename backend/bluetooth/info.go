package bluetooth

import (
	"fmt"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/odio-bluetooth/decode"
)

// Sink accepts labelled lines of a device detail view.
type Sink interface {
	Insert(label, text string)
}

type InfoLine struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// InfoLines is a Sink collecting lines in insertion order.
type InfoLines []InfoLine

func (l *InfoLines) Insert(label, text string) {
	*l = append(*l, InfoLine{Label: label, Text: text})
}

func (l InfoLines) String() string {
	var b strings.Builder
	for _, line := range l {
		fmt.Fprintf(&b, "%s: %s\n", line.Label, line.Text)
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// RenderInfo writes the detail view of d: its own properties followed by
// plugin contributions.
func (r *Registry) RenderInfo(d *Device, sink Sink) {
	info := d.Info()
	sink.Insert("Alias", info.Alias)
	if info.Name != "" && info.Name != info.Alias {
		sink.Insert("Name", info.Name)
	}
	sink.Insert("Address", info.Address)
	sink.Insert("Type", info.Type)
	if info.Class != 0 {
		sink.Insert("Class", fmt.Sprintf("0x%06x", info.Class))
	}
	if mfr, ok := manufacturer(d); ok {
		sink.Insert("Manufacturer", mfr)
	}
	sink.Insert("Paired", yesNo(info.Paired))
	sink.Insert("Trusted", yesNo(info.Trusted))
	sink.Insert("Blocked", yesNo(info.Blocked))
	sink.Insert("Connected", yesNo(info.Connected))
	if info.RSSI != nil {
		sink.Insert("RSSI", fmt.Sprintf("%d dBm", *info.RSSI))
	}
	if len(info.Services) > 0 {
		sink.Insert("Services", strings.Join(info.Services, ", "))
	}
	r.plugins.InsertInfos(d, sink)
}

// manufacturer names the first company id advertised in ManufacturerData.
func manufacturer(d *Device) (string, bool) {
	v, ok := d.Properties[PROP_MANUFACTURER_DATA]
	if !ok {
		return "", false
	}
	ids := manufacturerIDs(v.Value())
	if len(ids) == 0 {
		return "", false
	}
	return decode.Manufacturer(ids[0]), true
}

func manufacturerIDs(raw interface{}) []uint16 {
	var ids []uint16
	switch data := raw.(type) {
	case map[uint16]dbus.Variant:
		for id := range data {
			ids = append(ids, id)
		}
	case map[uint16]interface{}:
		for id := range data {
			ids = append(ids, id)
		}
	case map[uint16][]byte:
		for id := range data {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
