package anx7688

import (
	"encoding/binary"
	"errors"

	"anxd/pkg/pdo"

	"github.com/womat/debug"
)

// msgKind is the closed set of message kinds exchanged with the OCM.
// Anything else is KindUnknown, an explicit variant rather than a
// fallthrough.
type msgKind uint8

const (
	KindSrcCap        msgKind = 0x00
	KindSnkCap        msgKind = 0x01
	KindDPSnkIdentity msgKind = 0x02
	KindSVID          msgKind = 0x03
	KindGetDPSnkCap   msgKind = 0x04
	KindAccept        msgKind = 0x05
	KindReject        msgKind = 0x06
	KindPSwapReq      msgKind = 0x10
	KindDSwapReq      msgKind = 0x11
	KindGotoMinReq    msgKind = 0x12
	KindVConnSwapReq  msgKind = 0x13
	KindVDM           msgKind = 0x14
	KindDPSnkCfg      msgKind = 0x15
	KindPwrObjReq     msgKind = 0x16
	KindPDStatusReq   msgKind = 0x17
	KindDPAltEnter    msgKind = 0x19
	KindDPAltExit     msgKind = 0x1a
	KindGetSnkCap     msgKind = 0x1b
	KindResponseToReq msgKind = 0xf0
	KindSoftReset     msgKind = 0xf1
	KindHardReset     msgKind = 0xf2
	KindRestart       msgKind = 0xf3
	KindUnknown       msgKind = 0xff
)

func (k msgKind) String() string {
	switch k {
	case KindSrcCap:
		return "SRC_CAP"
	case KindSnkCap:
		return "SNK_CAP"
	case KindDPSnkIdentity:
		return "DP_SNK_IDENTITY"
	case KindSVID:
		return "SVID"
	case KindGetDPSnkCap:
		return "GET_DP_SNK_CAP"
	case KindAccept:
		return "ACCEPT"
	case KindReject:
		return "REJECT"
	case KindPSwapReq:
		return "PSWAP_REQ"
	case KindDSwapReq:
		return "DSWAP_REQ"
	case KindGotoMinReq:
		return "GOTO_MIN_REQ"
	case KindVConnSwapReq:
		return "VCONN_SWAP_REQ"
	case KindVDM:
		return "VDM"
	case KindDPSnkCfg:
		return "DP_SNK_CFG"
	case KindPwrObjReq:
		return "PWR_OBJ_REQ"
	case KindPDStatusReq:
		return "PD_STATUS_REQ"
	case KindDPAltEnter:
		return "DP_ALT_ENTER"
	case KindDPAltExit:
		return "DP_ALT_EXIT"
	case KindGetSnkCap:
		return "GET_SNK_CAP"
	case KindResponseToReq:
		return "RESPONSE_TO_REQ"
	case KindSoftReset:
		return "SOFT_RST"
	case KindHardReset:
		return "HARD_RST"
	case KindRestart:
		return "RESTART"
	default:
		return "UNKNOWN"
	}
}

// classify maps a raw command byte to a message kind.
func classify(cmd uint8) msgKind {
	k := msgKind(cmd)
	switch k {
	case KindSrcCap, KindSnkCap, KindDPSnkIdentity, KindSVID, KindGetDPSnkCap,
		KindAccept, KindReject, KindPSwapReq, KindDSwapReq, KindGotoMinReq,
		KindVConnSwapReq, KindVDM, KindDPSnkCfg, KindPwrObjReq, KindPDStatusReq,
		KindDPAltEnter, KindDPAltExit, KindGetSnkCap, KindResponseToReq,
		KindSoftReset, KindHardReset, KindRestart:
		return k
	default:
		return KindUnknown
	}
}

// Command response statuses carried by RESPONSE_TO_REQ.
const (
	cmdSuccess = 0
	cmdReject  = 1
	cmdFail    = 2
	cmdBusy    = 3
)

func cmdStatusString(v uint8) string {
	switch v {
	case cmdSuccess:
		return "SUCCESS"
	case cmdReject:
		return "REJECT"
	case cmdFail:
		return "FAIL"
	case cmdBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

var errZeroVoltage = errors.New("firmware reported zero negotiated voltage")

// receiveMessage drains one frame from the mailbox and interprets it.
// Transport and register I/O errors propagate; decode errors have
// already been logged and dropped by the transport.
func (c *Controller) receiveMessage() error {
	cmd, payload, err := c.ocm.Receive()
	if err != nil {
		if errors.Is(err, ErrBadFrame) {
			return nil
		}
		return err
	}
	return c.handleMessage(classify(cmd), cmd, payload)
}

// handleMessage dispatches an inbound OCM message. Handlers only log
// and update session state; the firmware's own negotiation engine
// answers on the wire.
func (c *Controller) handleMessage(kind msgKind, cmd uint8, payload []byte) error {
	switch kind {
	case KindSrcCap:
		return c.handleSourceCaps(payload)

	case KindSnkCap:
		debug.InfoLog.Print("received SNK_CAP")
		logPDOs("SNK_CAP", payload)
		return nil

	case KindPwrObjReq:
		return c.handlePowerRequest(payload)

	case KindResponseToReq:
		if len(payload) < 2 {
			debug.WarningLog.Print("received short RESPONSE_TO_REQ")
			return nil
		}
		debug.InfoLog.Printf("received response to %s (%s)",
			classify(payload[0]), cmdStatusString(payload[1]))
		return nil

	case KindHardReset:
		return c.handleHardReset()

	case KindUnknown:
		debug.InfoLog.Printf("received unknown message 0x%02x", cmd)
		return nil

	default:
		// accept/reject, resets, swap requests, alt-mode and
		// identity queries are observed but never answered here
		debug.InfoLog.Printf("received %s", kind)
		return nil
	}
}

// logPDOs decodes a capability payload as little-endian PDOs and logs
// each one. A size that is not a multiple of four is a protocol error:
// logged, ignored, never fatal.
func logPDOs(tag string, payload []byte) []pdo.PDO {
	if len(payload)%4 != 0 {
		debug.WarningLog.Printf("received invalid sized PDO array (%d bytes)", len(payload))
		return nil
	}

	objs := make([]pdo.PDO, 0, len(payload)/4)
	for i := 0; i+4 <= len(payload); i += 4 {
		o := pdo.PDO(binary.LittleEndian.Uint32(payload[i : i+4]))
		objs = append(objs, o)

		switch o.Type() {
		case pdo.TypeFixed:
			debug.InfoLog.Printf("%s PDO_FIXED (%dmV %dmA)", tag, o.FixedVoltage(), o.MaxCurrent())
		case pdo.TypeBattery:
			debug.InfoLog.Printf("%s PDO_BATT (%dmV-%dmV %dmW)", tag, o.MinVoltage(), o.MaxVoltage(), o.MaxPower())
		case pdo.TypeVariable:
			debug.InfoLog.Printf("%s PDO_VAR (%dmV-%dmV %dmA)", tag, o.MinVoltage(), o.MaxVoltage(), o.MaxCurrent())
		default:
			debug.InfoLog.Printf("%s PDO_APDO (0x%08X)", tag, uint32(o))
		}
	}
	return objs
}

// handleSourceCaps marks the session PD capable and derives the PD
// current limit from the negotiated-result registers the firmware
// fills in during auto-negotiation.
func (c *Controller) handleSourceCaps(payload []byte) error {
	debug.InfoLog.Print("received SRC_CAP")

	if len(payload)%4 != 0 {
		debug.WarningLog.Printf("received invalid sized PDO array (%d bytes)", len(payload))
		return nil
	}

	c.pdCapable = true
	logPDOs("SRC_CAP", payload)

	// The firmware has already chosen an RDO and recorded its limits.
	// The request may still be rejected, but this is the best estimate
	// available for the current limit.
	maxV, err := c.main.Read(regMaxVoltageRdo)
	if err != nil {
		return err
	}
	if maxV == 0 {
		return errZeroVoltage
	}
	maxP, err := c.main.Read(regMaxPowerRdo)
	if err != nil {
		return err
	}

	c.pdCurrentLimit = int(maxP) * 5000 / int(maxV)

	debug.DebugLog.Printf("RDO max voltage = %dmV, max power = %dmW, PD current limit = %dmA",
		int(maxV)*100, int(maxP)*500, c.pdCurrentLimit)

	// re-run the current-limit engine soon, the negotiation result is in
	c.armCurrentUpdate(pdSettleDelay)
	return nil
}

// handlePowerRequest observes a peer RDO against the advertised source
// capabilities. Acceptance is delegated to the firmware.
func (c *Controller) handlePowerRequest(payload []byte) error {
	debug.InfoLog.Print("received PWR_OBJ_REQ")

	c.pdCapable = true

	if len(payload) != 4 {
		debug.WarningLog.Print("received invalid sized RDO")
		return nil
	}

	rdo := pdo.RDO(binary.LittleEndian.Uint32(payload))
	idx := int(rdo.ObjectPosition())
	if idx < 1 || idx > len(c.srcCaps) {
		debug.InfoLog.Printf("PWR_OBJ RDO index out of range (RDO = 0x%08X)", uint32(rdo))
		return nil
	}

	obj := c.srcCaps[idx-1]
	debug.InfoLog.Printf("RDO (idx=%d op=%dmA max=%dmA)",
		idx-1, rdo.OperatingCurrent(), rdo.MaxOperatingCurrent())
	debug.InfoLog.Printf("PDO_FIXED (%dmV %dmA)", obj.FixedVoltage(), obj.MaxCurrent())
	return nil
}

// handleHardReset takes the input path offline and gives the link time
// to resettle before the current limit is re-evaluated.
func (c *Controller) handleHardReset() error {
	if !c.pdCapable {
		debug.DebugLog.Print("received HARD_RST on non-PD session, ignored")
		return nil
	}

	debug.InfoLog.Print("received HARD_RST")

	debug.DebugLog.Print("disabling input power path")
	if err := c.supply.SetOnline(false); err != nil {
		debug.ErrorLog.Printf("failed to offline input supply: %v", err)
	}

	c.armCurrentUpdate(hardResetSettleDelay)
	return nil
}
