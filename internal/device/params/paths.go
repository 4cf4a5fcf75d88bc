package params

import (
	"strings"

	"genieacs-portal/internal/device/domain"
)

// Attribute names a display attribute with a fixed list of candidate paths.
type Attribute string

const (
	PPPUsername      Attribute = "pppUsername"
	RxPower          Attribute = "rxPower"
	PPPMac           Attribute = "pppMac"
	PPPMacWildcard   Attribute = "pppMacWildcard"
	PPPoEIP          Attribute = "pppoeIP"
	TR069IP          Attribute = "tr069IP"
	SSID             Attribute = "ssid"
	SSID2G           Attribute = "ssid2G"
	SSID5G           Attribute = "ssid5G"
	UserConnected    Attribute = "userConnected"
	UserConnected2G  Attribute = "userConnected2G"
	UserConnected5G  Attribute = "userConnected5G"
	Uptime           Attribute = "uptime"
	ProductClass     Attribute = "productClass"
	SerialNumber     Attribute = "serialNumber"
	RegisteredTime   Attribute = "registeredTime"
	ActiveDevices    Attribute = "activeDevices"
	ConnectedDevices Attribute = "connectedDevices"
)

// PathTable lists candidate paths per attribute, most specific first.
var PathTable = map[Attribute][]string{
	PPPUsername: {
		"VirtualParameters.pppoeUsername",
		"VirtualParameters.pppUsername",
		"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANPPPConnection.1.Username",
	},
	RxPower: {
		"VirtualParameters.RXPower",
		"VirtualParameters.redaman",
		"InternetGatewayDevice.WANDevice.1.WANPONInterfaceConfig.RXPower",
	},
	PPPMac: {
		"VirtualParameters.pppMac",
		"VirtualParameters.WanMac",
		"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANPPPConnection.1.MACAddress",
		"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANPPPConnection.2.MACAddress",
		"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANIPConnection.1.MACAddress",
		"InternetGatewayDevice.WANDevice.1.WANConnectionDevice.1.WANIPConnection.2.MACAddress",
		"Device.IP.Interface.1.IPv4Address.1.IPAddress",
	},
	PPPMacWildcard: {
		"InternetGatewayDevice.WANDevice.*.WANConnectionDevice.1.WANPPPConnection.*.MACAddress",
		"InternetGatewayDevice.WANDevice.*.WANConnectionDevice.1.WANIPConnection.*.MACAddress",
	},
	PPPoEIP: {
		"VirtualParameters.pppoeIP",
		"VirtualParameters.pppIP",
	},
	TR069IP: {
		"VirtualParameters.IPTR069",
	},
	SSID: {
		"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID",
	},
	SSID2G: {
		"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID",
	},
	SSID5G: {
		"InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.SSID",
	},
	UserConnected: {
		"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.TotalAssociations",
	},
	UserConnected2G: {
		"VirtualParameters.activedevices",
		"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.TotalAssociations",
		"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.AssociatedDeviceNumberOfEntries",
	},
	UserConnected5G: {
		"VirtualParameters.activedevices",
		"InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.TotalAssociations",
		"InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.AssociatedDeviceNumberOfEntries",
	},
	Uptime: {
		"VirtualParameters.getdeviceuptime",
	},
	ProductClass: {
		"DeviceID.ProductClass",
		"InternetGatewayDevice.DeviceInfo.ProductClass",
		"Device.DeviceInfo.ProductClass",
		"InternetGatewayDevice.DeviceInfo.ModelName",
		"Device.DeviceInfo.ModelName",
	},
	SerialNumber: {
		"DeviceID.SerialNumber",
		"InternetGatewayDevice.DeviceInfo.SerialNumber",
		"Device.DeviceInfo.SerialNumber",
	},
	RegisteredTime: {
		"Events.Registered",
	},
	ActiveDevices: {
		"VirtualParameters.activedevices",
	},
	ConnectedDevices: {
		"InternetGatewayDevice.LANDevice.1.Hosts.HostNumberOfEntries",
		"Device.Hosts.HostNumberOfEntries",
	},
}

// Paths returns the candidate paths for a, or nil for an unknown attribute.
func Paths(a Attribute) []string {
	return PathTable[a]
}

// MACPaths is the PPP MAC list followed by its wildcard variants.
func MACPaths() []string {
	paths := make([]string, 0, len(PathTable[PPPMac])+len(PathTable[PPPMacWildcard]))
	paths = append(paths, PathTable[PPPMac]...)
	return append(paths, PathTable[PPPMacWildcard]...)
}

// Get resolves attribute a in rec.
func Get(rec domain.Record, a Attribute) string {
	return Resolve(rec, PathTable[a])
}

// Model resolves the product class. When nothing resolves it falls back to the second
// hyphen-separated part of the device id (OUI-ProductClass-Serial), best-effort.
func Model(rec domain.Record) string {
	model := Get(rec, ProductClass)
	if model == NotAvailable {
		if parts := strings.Split(rec.ID(), "-"); len(parts) >= 2 {
			model = parts[1]
		}
	}
	return strings.Replace(model, encodedHyphen, "-", 1)
}

// Serial resolves the serial number, falling back to the third part of the device id.
func Serial(rec domain.Record) string {
	serial := Get(rec, SerialNumber)
	if serial == NotAvailable {
		if parts := strings.Split(rec.ID(), "-"); len(parts) >= 3 {
			serial = parts[2]
		}
	}
	return serial
}

// Manufacturer reads the manufacturer straight from the identity block.
func Manufacturer(rec domain.Record) string {
	block, ok := rec[aliasBlock].(map[string]any)
	if !ok {
		return NotAvailable
	}
	s, ok := block["Manufacturer"].(string)
	if !ok || s == "" {
		return NotAvailable
	}
	return s
}
