package anx7688

import (
	"bytes"
	"testing"
	"time"

	"anxd/pkg/pdo"
)

var testCfg = Config{
	SrcCaps: []pdo.PDO{0x36019032},
	SnkCaps: []pdo.PDO{0x0001912c},
}

func TestConnectSequence(t *testing.T) {
	r := newRig(t, testCfg)
	r.main.mem[regStatus] = statusVConnOn
	r.cable.level = true

	r.c.evaluate()

	if got := r.c.fsm.Current(); got != StateConnected {
		t.Fatalf("state = %s, want %s", got, StateConnected)
	}
	if !r.enable.high {
		t.Errorf("enable pin is low after connect")
	}
	if r.reset.high {
		t.Errorf("reset pin still asserted after connect")
	}
	if !r.vconn.on || r.vconn.enables != 1 {
		t.Errorf("vconn on=%v enables=%d, want on with one enable", r.vconn.on, r.vconn.enables)
	}

	// contract and timing registers
	regs := map[uint8]uint8{
		regMaxVoltage:       contractMaxVoltage,
		regMaxPower:         contractMaxPower,
		regMinPower:         contractMinPower,
		regVBusOffDelayTime: 100 / 4,
		regTryUFPTimer:      300 / 2,
		regFeatureCtrl:      0x1e &^ featureTrySrc,
	}
	for reg, want := range regs {
		if got := r.main.mem[reg]; got != want {
			t.Errorf("reg 0x%02x = 0x%02x, want 0x%02x", reg, got, want)
		}
	}

	// capability and identity handshake
	if len(r.tcpc.frames) != 4 {
		t.Fatalf("got %d ocm frames, want 4", len(r.tcpc.frames))
	}
	wantFirst := buildFrame(uint8(KindSrcCap), encodePDOs(testCfg.SrcCaps))
	if !bytes.Equal(r.tcpc.frames[0], wantFirst) {
		t.Errorf("first frame = % x, want % x", r.tcpc.frames[0], wantFirst)
	}
	wantLast := buildFrame(uint8(KindSVID), svidPayload)
	if !bytes.Equal(r.tcpc.frames[3], wantLast) {
		t.Errorf("last frame = % x, want % x", r.tcpc.frames[3], wantLast)
	}

	ps := r.c.port.State()
	if !ps.Attached {
		t.Errorf("port not attached after connect")
	}
	if r.c.currentUpdateDeadline != r.clock.Add(contractSettleDelay) {
		t.Errorf("current update deadline not armed to the contract settle delay")
	}
}

func TestConnectWhileConnectedIsNoop(t *testing.T) {
	r := newRig(t, testCfg)
	r.main.mem[regStatus] = statusVConnOn
	r.cable.level = true

	r.c.evaluate()
	frames := len(r.tcpc.frames)

	r.c.evaluate()
	if len(r.tcpc.frames) != frames {
		t.Errorf("second evaluation re-ran the connect handshake")
	}
	if r.vconn.enables != 1 {
		t.Errorf("vconn enabled %d times, want 1", r.vconn.enables)
	}
}

func TestConnectFirmwareLoadFailure(t *testing.T) {
	r := newRig(t, testCfg)
	r.main.mem[regEepromLoadStatus] = 0
	r.cable.level = true

	r.c.evaluate()

	if got := r.c.fsm.Current(); got != StateDisconnected {
		t.Fatalf("state = %s, want %s", got, StateDisconnected)
	}
	if !r.c.fwFailed {
		t.Errorf("firmware failure was not latched")
	}
	if r.enable.high {
		t.Errorf("chip still powered after failed connect")
	}
	if r.vconn.on {
		t.Errorf("vconn still on after failed connect")
	}
	if len(r.tcpc.frames) != 0 {
		t.Errorf("handshake frames sent despite firmware load failure")
	}

	// the latch suppresses further attempts
	r.c.evaluate()
	if r.vconn.enables != 1 {
		t.Errorf("connect retried while failure latched")
	}

	// Reset clears the latch and the next evaluation connects
	r.main.mem[regEepromLoadStatus] = eepromFwLoaded
	r.main.mem[regStatus] = statusVConnOn
	r.c.Reset()
	r.c.evaluate()
	if got := r.c.fsm.Current(); got != StateConnected {
		t.Errorf("state = %s after reset, want %s", got, StateConnected)
	}
}

func TestDisconnect(t *testing.T) {
	r := newRig(t, testCfg)
	r.main.mem[regStatus] = statusVConnOn
	r.cable.level = true
	r.c.evaluate()

	r.cable.level = false
	r.c.evaluate()

	if got := r.c.fsm.Current(); got != StateDisconnected {
		t.Fatalf("state = %s, want %s", got, StateDisconnected)
	}

	ps := r.c.port.State()
	if ps.Attached {
		t.Errorf("port still attached after disconnect")
	}
	if ps.PowerRole != PowerRoleSink || ps.DataRole != DataRoleDevice || ps.Mode != PowerModeUSB || ps.VConnRole != PowerRoleSink {
		t.Errorf("port roles not reset: %+v", ps)
	}

	if r.roleSw.role != USBRoleNone {
		t.Errorf("role switch = %s, want none", r.roleSw.role)
	}
	if r.supply.limit != fallbackCurrentLimit {
		t.Errorf("input current limit = %d, want %d", r.supply.limit, fallbackCurrentLimit)
	}
	if r.supply.online {
		t.Errorf("input power path still online")
	}
	if !r.supply.bcDetect {
		t.Errorf("BC1.2 detection not re-enabled")
	}
	if r.enable.high {
		t.Errorf("chip still powered after disconnect")
	}
}

func TestSpuriousStatusInterrupt(t *testing.T) {
	r := newRig(t, testCfg)

	r.c.HandleStatusInterrupt()

	if r.main.writes != 0 || r.tcpc.writes != 0 {
		t.Errorf("register writes on a spurious interrupt: main=%d tcpc=%d", r.main.writes, r.tcpc.writes)
	}
}

func TestStatusInterruptDeliversMessage(t *testing.T) {
	r := newRig(t, testCfg)
	r.main.mem[regStatus] = statusVConnOn
	r.cable.level = true
	r.c.evaluate()

	r.main.mem[regIrqExtSource2] = irq2SoftInt
	r.main.mem[regStatusInt] = irqReceivedMsg
	r.main.mem[regMaxVoltageRdo] = 50 // 5 V
	r.main.mem[regMaxPowerRdo] = 30   // 15 W
	r.tcpc.putFrame(uint8(KindSrcCap), encodePDOs([]pdo.PDO{0x36019032}))

	r.c.HandleStatusInterrupt()

	if !r.c.pdCapable {
		t.Fatalf("session not marked PD capable after SRC_CAP")
	}
	if r.c.pdCurrentLimit != 3000 {
		t.Errorf("pd current limit = %d, want 3000", r.c.pdCurrentLimit)
	}
	if r.main.mem[regStatusInt] != 0 {
		t.Errorf("soft interrupt status not cleared")
	}
	if r.c.currentUpdateDeadline != r.clock.Add(pdSettleDelay) {
		t.Errorf("current update not re-armed to the pd settle delay")
	}

	// once the deadline passes, the PD limit is applied
	r.advance(time.Second)
	r.c.evaluate()
	if r.supply.limit != 3000 {
		t.Errorf("input current limit = %d, want 3000", r.supply.limit)
	}
	if r.supply.bcDetect {
		t.Errorf("BC1.2 detection still enabled under a PD contract")
	}
	if ps := r.c.port.State(); ps.Mode != PowerModePD || ps.CurrentLimit != 3000 {
		t.Errorf("port mode = %s limit = %d, want PD 3000", ps.Mode, ps.CurrentLimit)
	}
}

func TestRequestRoleSwap(t *testing.T) {
	r := newRig(t, testCfg)

	// matching roles are a no-op
	if err := r.c.RequestDataRole(DataRoleDevice); err != nil {
		t.Fatalf("RequestDataRole = %v", err)
	}
	if err := r.c.RequestPowerRole(PowerRoleSink); err != nil {
		t.Fatalf("RequestPowerRole = %v", err)
	}
	if len(r.tcpc.frames) != 0 {
		t.Fatalf("swap requested for the current role")
	}

	if err := r.c.RequestDataRole(DataRoleHost); err != nil {
		t.Fatalf("RequestDataRole = %v", err)
	}
	if err := r.c.RequestPowerRole(PowerRoleSource); err != nil {
		t.Fatalf("RequestPowerRole = %v", err)
	}
	if len(r.tcpc.frames) != 2 {
		t.Fatalf("got %d frames, want DSWAP_REQ and PSWAP_REQ", len(r.tcpc.frames))
	}
	if r.tcpc.frames[0][1] != uint8(KindDSwapReq) {
		t.Errorf("first frame cmd = 0x%02x, want DSWAP_REQ", r.tcpc.frames[0][1])
	}
	if r.tcpc.frames[1][1] != uint8(KindPSwapReq) {
		t.Errorf("second frame cmd = 0x%02x, want PSWAP_REQ", r.tcpc.frames[1][1])
	}
}

func TestCloseWithoutStart(t *testing.T) {
	r := newRig(t, testCfg)
	if err := r.c.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
}

func TestCableEdgeBeforeStart(t *testing.T) {
	r := newRig(t, testCfg)

	// the cable-detect line is requested during wiring, so edges can
	// arrive before Start has run
	r.c.OnCableEdge()

	select {
	case <-r.c.kick:
	case <-time.After(time.Second):
		t.Fatalf("debounced edge did not request work")
	}
}

func TestCloseIdempotent(t *testing.T) {
	r := newRig(t, testCfg)
	if err := r.c.Start(); err != nil {
		t.Fatalf("Start = %v", err)
	}

	if err := r.c.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
	if err := r.c.Close(); err != nil {
		t.Fatalf("second Close = %v", err)
	}
}
