package anx7688

// Collaborator interfaces consumed by the driver. The app wires real
// implementations (regulators, PMIC, USB phy, display pipeline); tests
// wire fakes.

// Regulator switches a named power rail.
type Regulator interface {
	Enable() error
	Disable() error
}

// BCResult is the outcome of BC1.2 charger-type detection performed by
// the upstream power supply.
type BCResult int

const (
	BCResultUnknown BCResult = iota
	BCResultSDP
	BCResultDCP
	BCResultCDP
)

func (r BCResult) String() string {
	switch r {
	case BCResultSDP:
		return "SDP"
	case BCResultDCP:
		return "DCP"
	case BCResultCDP:
		return "CDP"
	default:
		return "unknown"
	}
}

// PowerSupply is the upstream input power source (PMIC).
type PowerSupply interface {
	// SetInputCurrentLimit programs the input current limit in mA.
	SetInputCurrentLimit(mA int) error
	// SetOnline switches the input power path on or off.
	SetOnline(on bool) error
	// SetBCDetection enables or disables BC1.2 charger-type detection.
	SetBCDetection(on bool) error
	// BCDetection reports whether BC1.2 detection is enabled.
	BCDetection() (bool, error)
	// BCResult returns the last BC1.2 detection result.
	BCResult() (BCResult, error)
}

// USBRole is the state of the USB data-role switch.
type USBRole int

const (
	USBRoleNone USBRole = iota
	USBRoleHost
	USBRoleDevice
)

func (r USBRole) String() string {
	switch r {
	case USBRoleHost:
		return "host"
	case USBRoleDevice:
		return "device"
	default:
		return "none"
	}
}

// RoleSwitch controls the USB phy data-role mux.
type RoleSwitch interface {
	Set(role USBRole) error
	Get() (USBRole, error)
}

// HotPlug receives hot-plug-detect signaling for the DisplayPort
// alt-mode link (HDMI side of the bridge).
type HotPlug interface {
	Set(asserted bool) error
}

// OutputPin drives a GPIO output line (chip enable, chip reset).
type OutputPin interface {
	Set(high bool) error
}

// InputPin reads a GPIO input line (cable detect).
type InputPin interface {
	Read() (bool, error)
}
