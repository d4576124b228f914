package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// baseUUID is the Bluetooth base UUID; 16 and 32-bit ids replace its first
// four bytes.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

var shortServices = map[uint32]string{
	0x1101: "Serial Port",
	0x1103: "Dialup Networking",
	0x1105: "OBEX Object Push",
	0x1106: "OBEX File Transfer",
	0x1108: "Headset",
	0x110a: "Audio Source",
	0x110b: "Audio Sink",
	0x110c: "A/V Remote Control Target",
	0x110d: "Advanced Audio Distribution",
	0x110e: "A/V Remote Control",
	0x110f: "A/V Remote Control Controller",
	0x1112: "Headset AG",
	0x1115: "PANU",
	0x1116: "NAP",
	0x111e: "Handsfree",
	0x111f: "Handsfree Audio Gateway",
	0x1124: "Human Interface Device",
	0x112d: "SIM Access",
	0x112f: "Phonebook Access Server",
	0x1132: "Message Access Server",
	0x1133: "Message Notification Server",
	0x1200: "PnP Information",
	0x1203: "Generic Audio",
	0x1800: "Generic Access Profile",
	0x1801: "Generic Attribute Profile",
	0x180a: "Device Information",
	0x180f: "Battery Service",
	0x1812: "Human Interface Device Service",
	0x184e: "Audio Stream Control",
	0x184f: "Broadcast Audio Scan",
	0x1850: "Published Audio Capabilities",
	0x1853: "Common Audio",
	0xfe2c: "Google Fast Pair",
}

var longServices = map[uuid.UUID]string{
	uuid.MustParse("74ec2172-0bad-4d01-8f77-997b2be0722a"): "Apple Media Service",
	uuid.MustParse("89d3502b-0f36-433a-8ef4-c502ad55f8dc"): "Apple Notification Center Service",
	uuid.MustParse("d0611e78-bbb4-4591-a5f8-487910ae4366"): "Apple Continuity",
}

// ShortID returns the 16 or 32-bit id of a UUID built on the base UUID.
func ShortID(u uuid.UUID) (uint32, bool) {
	if [12]byte(u[4:]) != [12]byte(baseUUID[4:]) {
		return 0, false
	}
	return binary.BigEndian.Uint32(u[:4]), true
}

// ServiceName labels a service UUID. Unknown UUIDs are returned in canonical
// form, and strings that are not UUIDs are returned unchanged.
func ServiceName(s string) string {
	u, err := uuid.Parse(s)
	if err != nil {
		return s
	}
	if id, ok := ShortID(u); ok {
		if name, ok := shortServices[id]; ok {
			return name
		}
		return fmt.Sprintf("Service 0x%04x", id)
	}
	if name, ok := longServices[u]; ok {
		return name
	}
	return u.String()
}

// ServiceUUID expands a 16 or 32-bit id to its full UUID string.
func ServiceUUID(id uint32) string {
	u := baseUUID
	binary.BigEndian.PutUint32(u[:4], id)
	return u.String()
}
