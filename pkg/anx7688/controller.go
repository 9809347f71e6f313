// Package anx7688 drives the connection lifecycle of an ANX7688 USB-C
// bridge: cable detection, chip power sequencing, the OCM configuration
// handshake, PD message handling and the platform input current limit.
package anx7688

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"anxd/pkg/pdo"
	"anxd/pkg/regio"

	"github.com/looplab/fsm"
	"github.com/womat/debug"
)

// Lifecycle states of the connection state machine.
const (
	StateDisconnected     = "disconnected"
	StatePoweringUp       = "powering_up"
	StateAwaitingFirmware = "awaiting_firmware"
	StateConfiguring      = "configuring"
	StateConnected        = "connected"
)

const (
	// cableSettleDelay is the debounce window on the cable-detect line;
	// any edge inside the window restarts it.
	cableSettleDelay = 10 * time.Millisecond

	// watchdogInterval guards against a missed cable-detect edge.
	watchdogInterval = time.Second

	// firmware load wait: 100 attempts of 5 ms (500 ms total).
	fwLoadPollInterval = 5 * time.Millisecond
	fwLoadPollAttempts = 100

	// powerOnSettleDelay is the wait between asserting the enable line
	// and releasing reset.
	powerOnSettleDelay = 10 * time.Millisecond

	// resetAssertDelay is how long reset is held before the enable line
	// is dropped on power-off.
	resetAssertDelay = 5 * time.Millisecond
)

// PD contract limits programmed into the firmware on every connect.
const (
	contractMaxVoltage = 50 // 100 mV units, 5 V
	contractMaxPower   = 30 // 500 mW units, 15 W
	contractMinPower   = 1  // 500 mW units, 0.5 W
)

// dpSnkIdentity is the DisplayPort sink identity advertised to the OCM
// (id header, cert stat, product type, alt mode adapter).
var dpSnkIdentity = []byte{
	0x00, 0x00, 0x00, 0xec,
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
	0x39, 0x00, 0x00, 0x51,
}

// svidPayload announces the DisplayPort SVID.
var svidPayload = []byte{0x00, 0x00, 0x01, 0xff}

// ErrFirmwareLoad is returned by a connect attempt whose firmware-load
// wait timed out. The failure is sticky: auto-connect stays suppressed
// until Reset clears it.
var ErrFirmwareLoad = errors.New("boot firmware load failed")

// Config carries the static configuration of one chip instance.
type Config struct {
	// SrcCaps and SnkCaps are the capability sets advertised to the
	// OCM on every connect, 1 to 8 entries each. Advertising more than
	// one sink capability triggers undefined firmware substitution
	// behavior; it is accepted here but warned about at load time.
	SrcCaps []pdo.PDO
	SnkCaps []pdo.PDO
}

// Controller owns the connection state machine and all chip access.
// One mutex serializes every transition and every register sequence;
// it is held across whole multi-step sequences so concurrent triggers
// are ordered, never interleaved.
type Controller struct {
	mu sync.Mutex

	main *regio.Regs
	tcpc *regio.Regs
	ocm  *ocmTransport

	port *Port
	fsm  *fsm.FSM

	vconn  Regulator
	vbus   Regulator
	supply PowerSupply
	roleSw RoleSwitch
	hpd    HotPlug

	enablePin OutputPin
	resetPin  OutputPin
	cabledet  InputPin

	srcCaps []pdo.PDO
	snkCaps []pdo.PDO

	// session state, all under mu
	powered           bool
	fwFailed          bool
	pdCapable         bool
	pdCurrentLimit    int
	inputCurrentLimit int
	vbusOn, vconnOn   bool

	// cached last-observed register values, -1 means never observed
	lastStatus   int
	lastCCStatus int
	lastDPState  int
	lastHPD      int
	lastBCResult int

	// zero means no re-evaluation is armed
	currentUpdateDeadline time.Time

	// set from notification context without taking mu
	supplyChange uint32

	kick      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	debounce  *time.Timer
	watchdog  *time.Ticker
	closeOnce sync.Once

	now   func() time.Time
	sleep func(time.Duration)
}

// Deps bundles the external collaborators of a controller.
type Deps struct {
	Main   regio.Conn
	TCPC   regio.Conn
	VConn  Regulator
	VBus   Regulator
	Supply PowerSupply
	RoleSw RoleSwitch
	HPD    HotPlug

	EnablePin OutputPin
	ResetPin  OutputPin
	CableDet  InputPin

	// Notify, if set, receives every port state change.
	Notify func(PortState)
}

// New creates a controller. Start must be called before any events are
// delivered.
func New(cfg Config, deps Deps) *Controller {
	c := &Controller{
		main:         regio.New(deps.Main, "anx7688"),
		tcpc:         regio.New(deps.TCPC, "anx7688-tcpc"),
		port:         NewPort(deps.Notify),
		vconn:        deps.VConn,
		vbus:         deps.VBus,
		supply:       deps.Supply,
		roleSw:       deps.RoleSw,
		hpd:          deps.HPD,
		enablePin:    deps.EnablePin,
		resetPin:     deps.ResetPin,
		cabledet:     deps.CableDet,
		srcCaps:      append([]pdo.PDO(nil), cfg.SrcCaps...),
		snkCaps:      append([]pdo.PDO(nil), cfg.SnkCaps...),
		lastStatus:   -1,
		lastCCStatus: -1,
		lastDPState:  -1,
		lastHPD:      -1,
		lastBCResult: -1,
		kick:         make(chan struct{}, 1),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		now:          time.Now,
		sleep:        time.Sleep,
	}
	c.ocm = newOCMTransport(c.tcpc, func(d time.Duration) { c.sleep(d) })

	// the debounce timer must exist before Start: the cable-detect line
	// is requested earlier during wiring and may already deliver edges
	c.debounce = time.AfterFunc(cableSettleDelay, c.requestWork)
	c.debounce.Stop()

	c.fsm = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: "power_on", Src: []string{StateDisconnected}, Dst: StatePoweringUp},
			{Name: "await_firmware", Src: []string{StatePoweringUp}, Dst: StateAwaitingFirmware},
			{Name: "configure", Src: []string{StateAwaitingFirmware}, Dst: StateConfiguring},
			{Name: "attach", Src: []string{StateConfiguring}, Dst: StateConnected},
			{Name: "detach", Src: []string{StatePoweringUp, StateAwaitingFirmware, StateConfiguring, StateConnected}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				debug.TraceLog.Printf("lifecycle %s -> %s", e.Src, e.Dst)
			},
		},
	)

	return c
}

// State returns the current lifecycle state name.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.Current()
}

// PortState returns a snapshot of the port.
func (c *Controller) PortState() PortState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.State()
}

// connected reports whether the lifecycle is in the connected state.
// Callers hold mu.
func (c *Controller) connected() bool {
	return c.fsm.Is(StateConnected)
}

// Probe powers the chip up briefly and verifies it answers on the TCPC
// interface by reading the vendor ID.
func (c *Controller) Probe() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.powerEnable()
	defer c.powerDisable()

	vidL, err := c.tcpc.Read(tcpcRegVendorID0)
	if err != nil {
		return err
	}
	vidH, err := c.tcpc.Read(tcpcRegVendorID1)
	if err != nil {
		return err
	}

	debug.InfoLog.Printf("vendor id 0x%04x", uint16(vidL)|uint16(vidH)<<8)
	return nil
}

// Start launches the worker goroutine and the cable-detect watchdog,
// makes sure BC1.2 detection is enabled, and schedules an initial
// cable evaluation.
func (c *Controller) Start() error {
	debug.DebugLog.Print("enabling BC 1.2 detection")
	if err := c.supply.SetBCDetection(true); err != nil {
		return fmt.Errorf("failed to enable BC1.2 detection: %w", err)
	}

	c.debounce.Reset(cableSettleDelay)
	c.watchdog = time.NewTicker(watchdogInterval)

	go c.worker()

	c.requestWork()
	return nil
}

// Close cancels the watchdog and any pending work, then forces a
// disconnect if still connected. Idempotent: further calls are no-ops.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.debounce.Stop()
		if c.watchdog != nil {
			c.watchdog.Stop()
			close(c.quit)
			<-c.done
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.connected() {
			c.disconnect()
		}
	})
	return nil
}

// OnCableEdge is called from the cable-detect interrupt context. It
// does no blocking work, only restarts the debounce window.
func (c *Controller) OnCableEdge() {
	debug.TraceLog.Print("cable-detect edge")
	c.debounce.Reset(cableSettleDelay)
}

// NotifySupplyChange is called from the power-supply notification
// context, which may be atomic. It must not block or take the lock.
func (c *Controller) NotifySupplyChange() {
	atomic.StoreUint32(&c.supplyChange, 1)
	c.requestWork()
}

// requestWork kicks the worker without blocking; a pending kick is
// coalesced.
func (c *Controller) requestWork() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// worker owns the lock and performs all blocking work: cable
// evaluation, status polling and deadline-gated current updates.
func (c *Controller) worker() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case <-c.kick:
		case <-c.watchdog.C:
		}
		c.evaluate()
	}
}

// evaluate is one deferred work pass. While the sticky firmware
// failure is latched, nothing happens until Reset clears it.
func (c *Controller) evaluate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fwFailed {
		return
	}

	if atomic.CompareAndSwapUint32(&c.supplyChange, 1, 0) {
		c.handleSupplyChange()
	}

	c.handleCableChange()

	if c.connected() {
		// poll status outside of the interrupt path too, in case an
		// interrupt was lost
		if err := c.updateStatus(); err != nil {
			debug.ErrorLog.Printf("status update failed: %v", err)
		}

		if !c.currentUpdateDeadline.IsZero() && c.now().After(c.currentUpdateDeadline) {
			c.currentUpdateDeadline = time.Time{}
			c.handleCurrentUpdate()
		}
	}
}

// handleCableChange compares the detect line level against the
// lifecycle state and connects or disconnects accordingly.
func (c *Controller) handleCableChange() {
	present, err := c.cabledet.Read()
	if err != nil {
		debug.ErrorLog.Printf("failed to read cable-detect line: %v", err)
		return
	}

	connected := c.connected()
	if present && !connected {
		if err := c.connect(); err != nil {
			debug.ErrorLog.Printf("connect failed: %v", err)
		}
	} else if !present && connected {
		c.disconnect()
	}
}

// HandleStatusInterrupt is called from the chip's threaded interrupt
// context. It drains and acks the hardware interrupt sources and runs
// the message and status paths synchronously under the lock.
func (c *Controller) HandleStatusInterrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected() {
		// chip should be disabled and powered off
		debug.DebugLog.Print("spurious status irq")
		return
	}

	if alert, err := c.tcpc.Read(tcpcRegAlert0); err == nil && alert != 0 {
		_ = c.tcpc.Write(tcpcRegAlert0, alert)
	}

	ext2, err := c.main.Read(regIrqExtSource2)
	if err != nil || ext2&irq2SoftInt == 0 {
		return
	}

	soft, err := c.main.Read(regStatusInt)
	if err == nil {
		_ = c.main.Write(regStatusInt, 0)

		soft &= softIntMask

		if soft&irqReceivedMsg != 0 {
			if err := c.receiveMessage(); err != nil {
				debug.ErrorLog.Printf("message handling failed: %v", err)
			}
		}

		if soft&irqStatusChangeAny != 0 {
			if err := c.updateStatus(); err != nil {
				debug.ErrorLog.Printf("status update failed: %v", err)
			}
		}
	}

	_ = c.main.Write(regIrqExtSource2, irq2SoftInt)
}

// powerEnable asserts the enable line and releases reset. Callers hold
// mu.
func (c *Controller) powerEnable() {
	_ = c.resetPin.Set(true)
	_ = c.enablePin.Set(true)

	// wait for power to stabilize before releasing reset
	c.sleep(powerOnSettleDelay)
	_ = c.resetPin.Set(false)

	debug.DebugLog.Print("power enabled")
	c.powered = true
}

// powerDisable asserts reset and drops the enable line. Callers hold
// mu.
func (c *Controller) powerDisable() {
	_ = c.resetPin.Set(true)
	c.sleep(resetAssertDelay)
	_ = c.enablePin.Set(false)

	debug.DebugLog.Print("power disabled")
	c.powered = false
}

// connect runs the full power-up and OCM configuration sequence. Any
// failure unwinds completely: no partial rail or chip state survives a
// failed connect.
func (c *Controller) connect() error {
	debug.DebugLog.Print("cable inserted")

	c.lastStatus = -1
	c.lastCCStatus = -1
	c.lastDPState = -1

	c.sleep(cableSettleDelay)
	c.powerEnable()
	_ = c.fsm.Event("power_on")

	if err := c.vconn.Enable(); err != nil {
		debug.ErrorLog.Printf("failed to enable vconn: %v", err)
		c.unwind(false)
		return err
	}
	c.vconnOn = true

	// wait till the firmware is loaded (typically ~30 ms)
	_ = c.fsm.Event("await_firmware")
	waited := 0
	err := regio.Poll(fwLoadPollAttempts, fwLoadPollInterval, c.sleep, func() (bool, error) {
		v, err := c.main.Read(regEepromLoadStatus)
		if err != nil {
			return false, err
		}
		waited++
		return v&eepromFwLoaded == eepromFwLoaded, nil
	})
	if errors.Is(err, regio.ErrTimeout) {
		c.fwFailed = true
		debug.ErrorLog.Print("boot firmware load failed (the chip may need a firmware flash first)")
		c.unwind(true)
		return ErrFirmwareLoad
	}
	if err != nil {
		c.unwind(true)
		return err
	}
	debug.InfoLog.Printf("fw loaded after %d ms", waited*int(fwLoadPollInterval/time.Millisecond))

	var fw [2]byte
	if err := c.main.ReadBlock(regFwVersion1, fw[:]); err != nil {
		debug.ErrorLog.Print("failed to read firmware version")
		c.unwind(true)
		return err
	}
	debug.InfoLog.Printf("OCM firmware loaded (version 0x%04x)", uint16(fw[1])|uint16(fw[0])<<8)

	_ = c.fsm.Event("configure")
	if err := c.configureOCM(); err != nil {
		c.unwind(true)
		debug.ErrorLog.Print("OCM configuration failed")
		return err
	}

	debug.DebugLog.Print("OCM configuration completed")

	// replace any stale partner with a fresh one
	c.port.AttachPartner(c.now())

	// once this passes we know whether the partner is PD capable and
	// can set up the current limit accordingly
	c.armCurrentUpdate(contractSettleDelay)

	_ = c.fsm.Event("attach")
	return nil
}

// configureOCM unmasks status interrupts, programs timing and contract
// registers and advertises capabilities and identity to the firmware.
func (c *Controller) configureOCM() error {
	steps := []struct {
		reg   uint8
		value uint8
	}{
		{regStatusInt, 0},
		{regStatusIntMask, ^uint8(softIntMask)},
		{regIrqExtSource2, 0xff},
		{regIrqExtMask2, ^uint8(irq2SoftInt)},
		// time to turn off vbus after cc disconnect (unit is 4 ms)
		{regVBusOffDelayTime, 100 / 4},
		// 300 ms (unit is 2 ms)
		{regTryUFPTimer, 300 / 2},
		{regMaxVoltage, contractMaxVoltage},
		{regMaxPower, contractMaxPower},
		{regMinPower, contractMinPower},
		// auto_pd, try.sink, goto safe 5V; try.src disabled
		{regFeatureCtrl, 0x1e &^ featureTrySrc},
	}
	for _, s := range steps {
		if err := c.main.Write(s.reg, s.value); err != nil {
			return err
		}
	}

	if err := c.ocm.Send(uint8(KindSrcCap), encodePDOs(c.srcCaps)); err != nil {
		return err
	}
	if err := c.ocm.Send(uint8(KindSnkCap), encodePDOs(c.snkCaps)); err != nil {
		return err
	}
	if err := c.ocm.Send(uint8(KindDPSnkIdentity), dpSnkIdentity); err != nil {
		return err
	}
	return c.ocm.Send(uint8(KindSVID), svidPayload)
}

// unwind reverses a partially completed connect: VCONN off if it was
// switched on, chip power off, lifecycle back to disconnected.
func (c *Controller) unwind(vconnOn bool) {
	if vconnOn {
		if err := c.vconn.Disable(); err != nil {
			debug.ErrorLog.Printf("failed to disable vconn: %v", err)
		}
		c.vconnOn = false
	}
	c.powerDisable()
	_ = c.fsm.Event("detach")
}

// disconnect fully reverses a connect's side effects regardless of
// what state the session is in. Each step is individually safe to
// repeat.
func (c *Controller) disconnect() {
	debug.DebugLog.Print("cable removed")

	c.currentUpdateDeadline = time.Time{}

	c.setHPD(false)

	if c.vconnOn {
		if err := c.vconn.Disable(); err != nil {
			debug.ErrorLog.Printf("failed to disable vconn: %v", err)
		}
		c.vconnOn = false
	}

	if c.vbusOn {
		if err := c.vbus.Disable(); err != nil {
			debug.ErrorLog.Printf("failed to disable vbus: %v", err)
		}
		c.vbusOn = false
	}

	c.powerDisable()

	c.pdCapable = false
	c.port.ReleasePartner()

	c.port.SetPowerRole(PowerRoleSink)
	c.port.SetDataRole(DataRoleDevice)
	c.port.SetMode(PowerModeUSB, 0)
	c.port.SetVConnRole(PowerRoleSink)

	if err := c.roleSw.Set(USBRoleNone); err != nil {
		debug.ErrorLog.Printf("failed to release role switch: %v", err)
	}

	debug.DebugLog.Printf("setting input current limit to %d mA", fallbackCurrentLimit)
	if err := c.supply.SetInputCurrentLimit(fallbackCurrentLimit); err != nil {
		debug.ErrorLog.Printf("failed to set input current to %d mA: %v", fallbackCurrentLimit, err)
	}

	debug.DebugLog.Print("disabling input power path")
	if err := c.supply.SetOnline(false); err != nil {
		debug.ErrorLog.Printf("failed to offline input supply: %v", err)
	}

	debug.DebugLog.Print("enabling BC 1.2 detection")
	if err := c.supply.SetBCDetection(true); err != nil {
		debug.ErrorLog.Printf("failed to enable BC1.2 detection: %v", err)
	}

	_ = c.fsm.Event("detach")
}

// Reset forces a disconnect if connected, clears the sticky firmware
// failure latch and schedules a fresh cable evaluation.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.connected() {
		c.disconnect()
	}
	c.fwFailed = false
	c.mu.Unlock()

	c.requestWork()
}

// RequestDataRole asks the firmware for a data-role swap when the
// current role differs.
func (c *Controller) RequestDataRole(role DataRole) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	debug.InfoLog.Printf("data role set %s", role)
	if c.port.State().DataRole == role {
		return nil
	}
	return c.ocm.Send(uint8(KindDSwapReq), nil)
}

// RequestPowerRole asks the firmware for a power-role swap when the
// current role differs.
func (c *Controller) RequestPowerRole(role PowerRole) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	debug.InfoLog.Printf("power role set %s", role)
	if c.port.State().PowerRole == role {
		return nil
	}
	return c.ocm.Send(uint8(KindPSwapReq), nil)
}

// encodePDOs serializes a capability set as little-endian 32-bit
// objects.
func encodePDOs(objs []pdo.PDO) []byte {
	b := make([]byte, 0, len(objs)*4)
	for _, o := range objs {
		b = append(b, byte(o), byte(o>>8), byte(o>>16), byte(o>>24))
	}
	return b
}
