package domain

// Action is an operation a portal session may attempt.
type Action string

// Customer actions apply to one device; admin actions to the whole fleet or settings.
const (
	ActionDeviceView       Action = "device.view"
	ActionDeviceUpdateWiFi Action = "device.update_wifi"
	ActionDeviceReboot     Action = "device.reboot"
	ActionDeviceRefresh    Action = "device.refresh"
	ActionDeviceUpdateTag  Action = "device.update_tag"

	ActionAdminListDevices   Action = "admin.devices.list"
	ActionAdminRefreshDevice Action = "admin.device.refresh"
	ActionAdminRefreshAll    Action = "admin.devices.refresh_all"
	ActionAdminReadSettings  Action = "admin.settings.read"
	ActionAdminWriteSettings Action = "admin.settings.write"
	ActionAdminTestGateway   Action = "admin.gateway.test"
)

// Subject is the session attempting an action.
type Subject struct {
	Role     string
	Username string
	DeviceID string
}

// Request is one authorization question.
type Request struct {
	Subject Subject
	Action  Action
	// DeviceID is the target device, if any.
	DeviceID string
}
