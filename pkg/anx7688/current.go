package anx7688

import (
	"time"

	"github.com/womat/debug"
)

const (
	// contractSettleDelay is how long after a connect the partner is
	// given to negotiate a PD contract before the input current limit
	// is decided.
	contractSettleDelay = 3 * time.Second

	// pdSettleDelay re-runs the engine early once a negotiation result
	// is in.
	pdSettleDelay = 500 * time.Millisecond

	// hardResetSettleDelay lets the link resettle after a hard reset.
	hardResetSettleDelay = 3 * time.Second

	// fallbackCurrentLimit is the conservative input limit in mA used
	// when no classification applies and BC1.2 has no result.
	fallbackCurrentLimit = 500
)

// armCurrentUpdate schedules a current-limit re-evaluation d from now.
// The engine never runs eagerly, only once an armed deadline passes.
func (c *Controller) armCurrentUpdate(d time.Duration) {
	c.currentUpdateDeadline = c.now().Add(d)
}

// ccPowerMode classifies a single CC pin nibble. The second return is
// false when the nibble carries no usable advertisement.
func ccPowerMode(v uint8) (PowerMode, bool) {
	switch v {
	case ccSnkDefault:
		return PowerModeUSB, true
	case ccSnkPower15:
		return PowerMode15A, true
	case ccSnkPower30:
		return PowerMode30A, true
	default:
		return PowerModeUSB, false
	}
}

// handleCurrentUpdate decides the input current limit for the platform
// once the armed deadline has passed: a PD contract wins, otherwise the
// CC pin advertisement, otherwise BC1.2 or the conservative default.
func (c *Controller) handleCurrentUpdate() {
	var mode PowerMode

	switch {
	case c.pdCapable:
		mode = PowerModePD
	case c.lastCCStatus < 0:
		mode = PowerModeUSB
	default:
		m, ok := ccPowerMode(uint8(c.lastCCStatus) & 0xf)
		if !ok {
			m, ok = ccPowerMode(uint8(c.lastCCStatus) >> 4 & 0xf)
		}
		if !ok {
			m = PowerModeUSB
		}
		mode = m
	}

	currentLimit := 0
	switch mode {
	case PowerMode15A:
		currentLimit = 1500
	case PowerMode30A:
		currentLimit = 3000
	case PowerModePD:
		currentLimit = c.pdCurrentLimit
	}

	c.inputCurrentLimit = currentLimit

	debug.InfoLog.Printf("updating power mode to %s, current limit %dmA (0 => BC1.2)",
		mode, currentLimit)

	if currentLimit != 0 {
		// the limit comes from PD or the CC advertisement, so charger
		// type detection must not override it
		debug.DebugLog.Print("disabling BC 1.2 detection")
		if err := c.supply.SetBCDetection(false); err != nil {
			debug.ErrorLog.Printf("failed to disable BC1.2 detection: %v", err)
		}

		debug.DebugLog.Printf("setting input current limit to %d mA", currentLimit)
		if err := c.supply.SetInputCurrentLimit(currentLimit); err != nil {
			debug.ErrorLog.Printf("failed to set input current to %d mA: %v", currentLimit, err)
		}
	} else {
		// leave the limit to BC1.2 when it has a say, otherwise fall
		// back to a conservative 500 mA
		bcOn, err := c.supply.BCDetection()
		if err != nil {
			debug.ErrorLog.Printf("failed to get BC1.2 detection status: %v", err)
		}
		if err != nil || !bcOn {
			debug.DebugLog.Printf("setting input current limit to %d mA", fallbackCurrentLimit)
			if err := c.supply.SetInputCurrentLimit(fallbackCurrentLimit); err != nil {
				debug.ErrorLog.Printf("failed to set input current to %d mA: %v", fallbackCurrentLimit, err)
			}
		}
	}

	debug.DebugLog.Print("enabling input power path")
	if err := c.supply.SetOnline(true); err != nil {
		debug.ErrorLog.Printf("failed to enable input supply: %v", err)
	}

	c.port.SetMode(mode, currentLimit)
}

// handleSupplyChange observes power-supply change notifications and
// logs BC1.2 charger-type detection results as they arrive.
func (c *Controller) handleSupplyChange() {
	res, err := c.supply.BCResult()
	if err != nil {
		debug.ErrorLog.Printf("failed to get BC1.2 result: %v", err)
		return
	}

	if c.lastBCResult == int(res) {
		return
	}
	c.lastBCResult = int(res)

	debug.DebugLog.Printf("BC 1.2 result: %s", res)
}
