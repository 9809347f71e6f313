// Package platform implements the collaborator interfaces of the
// driver on top of the kernel's sysfs surfaces and gpio lines.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"anxd/pkg/anx7688"

	"github.com/womat/debug"
)

// GpioRegulator switches a rail through a gpio-controlled load switch.
type GpioRegulator struct {
	pin  anx7688.OutputPin
	name string
}

// NewGpioRegulator wraps pin as a regulator. The name is used in log
// messages only.
func NewGpioRegulator(pin anx7688.OutputPin, name string) *GpioRegulator {
	return &GpioRegulator{pin: pin, name: name}
}

func (r *GpioRegulator) Enable() error {
	debug.TraceLog.Printf("enabling %s rail", r.name)
	return r.pin.Set(true)
}

func (r *GpioRegulator) Disable() error {
	debug.TraceLog.Printf("disabling %s rail", r.name)
	return r.pin.Set(false)
}

// PowerSupply drives the upstream input power source through its
// power_supply sysfs directory.
type PowerSupply struct {
	dir string
}

// NewPowerSupply points at a /sys/class/power_supply/<name> directory.
func NewPowerSupply(dir string) *PowerSupply {
	return &PowerSupply{dir: dir}
}

func (p *PowerSupply) writeProp(prop, value string) error {
	path := filepath.Join(p.dir, prop)
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (p *PowerSupply) readProp(prop string) (string, error) {
	path := filepath.Join(p.dir, prop)
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// SetInputCurrentLimit programs the limit; the sysfs unit is µA.
func (p *PowerSupply) SetInputCurrentLimit(mA int) error {
	return p.writeProp("input_current_limit", strconv.Itoa(mA*1000))
}

func (p *PowerSupply) SetOnline(on bool) error {
	return p.writeProp("online", boolProp(on))
}

func (p *PowerSupply) SetBCDetection(on bool) error {
	return p.writeProp("usb_bc_enabled", boolProp(on))
}

func (p *PowerSupply) BCDetection() (bool, error) {
	v, err := p.readProp("usb_bc_enabled")
	if err != nil {
		return false, err
	}
	return v != "0", nil
}

// BCResult parses the usb_type property; the active type is bracketed,
// e.g. "SDP [DCP] CDP".
func (p *PowerSupply) BCResult() (anx7688.BCResult, error) {
	v, err := p.readProp("usb_type")
	if err != nil {
		return anx7688.BCResultUnknown, err
	}
	switch {
	case strings.Contains(v, "[SDP]"):
		return anx7688.BCResultSDP, nil
	case strings.Contains(v, "[DCP]"):
		return anx7688.BCResultDCP, nil
	case strings.Contains(v, "[CDP]"):
		return anx7688.BCResultCDP, nil
	default:
		return anx7688.BCResultUnknown, nil
	}
}

func boolProp(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// RoleSwitch drives the USB phy mux through its usb_role sysfs entry.
type RoleSwitch struct {
	path string
}

// NewRoleSwitch points at a /sys/class/usb_role/<switch>/role file.
func NewRoleSwitch(path string) *RoleSwitch {
	return &RoleSwitch{path: path}
}

func (r *RoleSwitch) Set(role anx7688.USBRole) error {
	if err := os.WriteFile(r.path, []byte(role.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", r.path, err)
	}
	return nil
}

func (r *RoleSwitch) Get() (anx7688.USBRole, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return anx7688.USBRoleNone, fmt.Errorf("read %s: %w", r.path, err)
	}
	switch strings.TrimSpace(string(b)) {
	case "host":
		return anx7688.USBRoleHost, nil
	case "device":
		return anx7688.USBRoleDevice, nil
	default:
		return anx7688.USBRoleNone, nil
	}
}

// GpioHotPlug asserts hot-plug-detect towards the display pipeline
// through a gpio line.
type GpioHotPlug struct {
	pin anx7688.OutputPin
}

func NewGpioHotPlug(pin anx7688.OutputPin) *GpioHotPlug {
	return &GpioHotPlug{pin: pin}
}

func (h *GpioHotPlug) Set(asserted bool) error {
	debug.TraceLog.Printf("hot-plug-detect %v", asserted)
	return h.pin.Set(asserted)
}

// LogHotPlug only logs hot-plug transitions, for platforms where the
// display pipeline picks the state up elsewhere.
type LogHotPlug struct{}

func (LogHotPlug) Set(asserted bool) error {
	debug.InfoLog.Printf("hot-plug-detect %v", asserted)
	return nil
}
