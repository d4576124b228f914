// Package decode turns raw Bluetooth identifiers into readable labels.
package decode

import "strings"

// DeviceType names the kind of device from its class of device, falling
// back to the icon name bluetoothd derives from the appearance.
func DeviceType(class uint32, icon string) string {
	if t := TypeFromClass(class); t != "Unknown" {
		return t
	}
	return TypeFromIcon(icon)
}

// TypeFromClass decodes the major and minor device class fields.
//
//gocyclo:ignore
func TypeFromClass(class uint32) string {
	switch (class & 0x1f00) >> 8 {
	case 0x01:
		return "Computer"

	case 0x02:
		switch (class & 0xfc) >> 2 {
		case 0x01, 0x02, 0x03, 0x05:
			return "Phone"
		case 0x04:
			return "Modem"
		}

	case 0x03:
		return "Network"

	case 0x04:
		switch (class & 0xfc) >> 2 {
		case 0x01, 0x02:
			return "Headset"
		case 0x05:
			return "Speakers"
		case 0x06:
			return "Headphones"
		case 0x08:
			return "Car audio"
		case 0x0b, 0x0c, 0x0d:
			return "Video"
		default:
			return "Audio device"
		}

	case 0x05:
		switch (class & 0xc0) >> 6 {
		case 0x00:
			switch (class & 0x1e) >> 2 {
			case 0x01, 0x02:
				return "Gaming input"
			case 0x03:
				return "Remote control"
			}
		case 0x01:
			return "Keyboard"
		case 0x02:
			if (class&0x1e)>>2 == 0x05 {
				return "Tablet"
			}
			return "Mouse"
		}

	case 0x06:
		switch {
		case class&0x80 > 0:
			return "Printer"
		case class&0x40 > 0:
			return "Scanner"
		case class&0x20 > 0:
			return "Camera"
		case class&0x10 > 0:
			return "Monitor"
		}

	case 0x07:
		return "Wearable"

	case 0x08:
		return "Toy"

	case 0x09:
		return "Health"
	}

	return "Unknown"
}

var iconTypes = []struct {
	prefix string
	label  string
}{
	{"audio-headphones", "Headphones"},
	{"audio-headset", "Headset"},
	{"audio-card", "Audio device"},
	{"input-keyboard", "Keyboard"},
	{"input-mouse", "Mouse"},
	{"input-tablet", "Tablet"},
	{"input-gaming", "Gaming input"},
	{"phone", "Phone"},
	{"computer", "Computer"},
	{"network-wireless", "Network"},
	{"camera", "Camera"},
	{"printer", "Printer"},
	{"video-display", "Monitor"},
	{"multimedia-player", "Media player"},
	{"scanner", "Scanner"},
}

// TypeFromIcon maps a freedesktop icon name to a device type.
func TypeFromIcon(icon string) string {
	for _, it := range iconTypes {
		if strings.HasPrefix(icon, it.prefix) {
			return it.label
		}
	}
	return "Unknown"
}
