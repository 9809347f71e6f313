package anx7688

import "time"

// PowerRole is the port power role.
type PowerRole int

const (
	PowerRoleSink PowerRole = iota
	PowerRoleSource
)

func (r PowerRole) String() string {
	if r == PowerRoleSource {
		return "source"
	}
	return "sink"
}

// DataRole is the port data role.
type DataRole int

const (
	DataRoleDevice DataRole = iota
	DataRoleHost
)

func (r DataRole) String() string {
	if r == DataRoleHost {
		return "host"
	}
	return "device"
}

// PowerMode is the negotiated power operating mode of the port.
type PowerMode int

const (
	PowerModeUSB PowerMode = iota
	PowerMode15A
	PowerMode30A
	PowerModePD
)

func (m PowerMode) String() string {
	switch m {
	case PowerMode15A:
		return "1.5A"
	case PowerMode30A:
		return "3.0A"
	case PowerModePD:
		return "PD"
	default:
		return "USB"
	}
}

// Partner represents the attached peer device. At most one exists at a
// time.
type Partner struct {
	Attached time.Time
}

// PortState is a snapshot of the externally visible port status.
type PortState struct {
	PowerRole    PowerRole `json:"power_role"`
	DataRole     DataRole  `json:"data_role"`
	VConnRole    PowerRole `json:"vconn_role"`
	Mode         PowerMode `json:"power_mode"`
	CurrentLimit int       `json:"current_limit_ma"`
	Attached     bool      `json:"attached"`
}

// Port is the externally visible USB-C port abstraction. It is mutated
// only by the status reconciler and the lifecycle controller, always
// under the controller lock.
type Port struct {
	state   PortState
	partner *Partner
	notify  func(PortState)
}

// NewPort returns a port in the default detached state. notify, if not
// nil, is called after every state change.
func NewPort(notify func(PortState)) *Port {
	return &Port{notify: notify}
}

func (p *Port) changed() {
	p.state.Attached = p.partner != nil
	if p.notify != nil {
		p.notify(p.state)
	}
}

// State returns the current port snapshot.
func (p *Port) State() PortState {
	return p.state
}

func (p *Port) SetPowerRole(r PowerRole) {
	p.state.PowerRole = r
	p.changed()
}

func (p *Port) SetDataRole(r DataRole) {
	p.state.DataRole = r
	p.changed()
}

func (p *Port) SetVConnRole(r PowerRole) {
	p.state.VConnRole = r
	p.changed()
}

func (p *Port) SetMode(m PowerMode, currentLimit int) {
	p.state.Mode = m
	p.state.CurrentLimit = currentLimit
	p.changed()
}

// AttachPartner registers a fresh partner, releasing any stale one
// first.
func (p *Port) AttachPartner(now time.Time) *Partner {
	p.partner = &Partner{Attached: now}
	p.changed()
	return p.partner
}

// ReleasePartner drops the current partner, if any.
func (p *Port) ReleasePartner() {
	if p.partner != nil {
		p.partner = nil
		p.changed()
	}
}

// Partner returns the current partner or nil.
func (p *Port) Partner() *Partner {
	return p.partner
}
