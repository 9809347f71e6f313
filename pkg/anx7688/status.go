package anx7688

import (
	"github.com/womat/debug"
)

// dpActiveThreshold is the DisplayPort alt-mode state at or above which
// the link carries video and hot-plug-detect is asserted.
const dpActiveThreshold = 3

// setHPD collapses the DP state to a boolean hot-plug signal and
// suppresses redundant writes.
func (c *Controller) setHPD(asserted bool) {
	state := 0
	if asserted {
		state = 1
	}
	if c.lastHPD == state {
		return
	}
	if c.hpd != nil {
		if err := c.hpd.Set(asserted); err != nil {
			debug.ErrorLog.Printf("failed to set hot-plug-detect: %v", err)
			return
		}
	}
	c.lastHPD = state
}

// updateStatus polls the status, CC-status and DP alt-mode registers,
// logs transitions, and reconciles rails, roles and hot-plug signaling
// with what the chip reports.
func (c *Controller) updateStatus() error {
	status, err := c.main.Read(regStatus)
	if err != nil {
		return err
	}

	ccStatus, err := c.main.Read(regCCStatus)
	if err != nil {
		return err
	}

	dpState, err := c.tcpc.Read(tcpcRegDPState)
	if err != nil {
		return err
	}

	dpSubstate, err := c.tcpc.Read(tcpcRegDPSubstate)
	if err != nil {
		return err
	}

	c.setHPD(dpState >= dpActiveThreshold)

	dp := int(dpState)<<8 | int(dpSubstate)

	if c.lastStatus != int(status) {
		c.lastStatus = int(status)
		debug.DebugLog.Printf("status changed to 0x%02x", status)
	}

	if c.lastCCStatus != int(ccStatus) {
		c.lastCCStatus = int(ccStatus)
		debug.DebugLog.Printf("cc_status changed to CC1 = %s CC2 = %s",
			ccStatusString(ccStatus&0xf), ccStatusString((ccStatus>>4)&0xf))
	}

	if c.lastDPState != dp {
		c.lastDPState = dp
		debug.DebugLog.Printf("DP state changed to 0x%04x", dp)
	}

	vbusOn := status&statusVBusOn != 0
	vconnOn := status&statusVConnOn != 0
	drHost := status&statusDataRole != 0

	if c.vbusOn != vbusOn {
		role := PowerRoleSink
		if vbusOn {
			role = PowerRoleSource
		}
		debug.DebugLog.Printf("POWER role change to %s", role)

		if vbusOn {
			if err := c.vbus.Enable(); err != nil {
				debug.ErrorLog.Printf("failed to enable vbus: %v", err)
				return err
			}
		} else {
			if err := c.vbus.Disable(); err != nil {
				debug.ErrorLog.Printf("failed to disable vbus: %v", err)
				return err
			}
		}

		c.port.SetPowerRole(role)
		c.vbusOn = vbusOn
	}

	if c.vconnOn != vconnOn {
		role := PowerRoleSink
		if vconnOn {
			role = PowerRoleSource
		}
		debug.DebugLog.Printf("VCONN role change to %s", role)

		if vconnOn {
			if err := c.vconn.Enable(); err != nil {
				debug.ErrorLog.Printf("failed to enable vconn: %v", err)
				return err
			}
		} else {
			if err := c.vconn.Disable(); err != nil {
				debug.ErrorLog.Printf("failed to disable vconn: %v", err)
				return err
			}
		}

		c.port.SetVConnRole(role)
		c.vconnOn = vconnOn
	}

	dataRole := DataRoleDevice
	usbRole := USBRoleDevice
	if drHost {
		dataRole = DataRoleHost
		usbRole = USBRoleHost
	}
	c.port.SetDataRole(dataRole)

	cur, err := c.roleSw.Get()
	if err != nil {
		return err
	}
	if cur != usbRole {
		debug.DebugLog.Printf("DATA role change requested to %s", usbRole)
		if err := c.roleSw.Set(usbRole); err != nil {
			return err
		}
	}

	return nil
}
