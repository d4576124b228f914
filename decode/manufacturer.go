package decode

import "fmt"

var manufacturers = map[uint16]string{
	0x0000: "Ericsson",
	0x0001: "Nokia",
	0x0002: "Intel",
	0x0006: "Microsoft",
	0x000a: "Qualcomm Technologies International",
	0x000d: "Texas Instruments",
	0x000f: "Broadcom",
	0x001d: "Qualcomm",
	0x004c: "Apple",
	0x0057: "Harman",
	0x0059: "Nordic Semiconductor",
	0x0075: "Samsung",
	0x0087: "Garmin",
	0x009e: "Bose",
	0x00e0: "Google",
	0x012d: "Sony",
	0x0171: "Amazon",
	0x01da: "Logitech",
	0x02e5: "Espressif",
	0x038f: "Xiaomi",
}

// Manufacturer names a Bluetooth SIG company id.
func Manufacturer(id uint16) string {
	if name, ok := manufacturers[id]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%04x)", id)
}
