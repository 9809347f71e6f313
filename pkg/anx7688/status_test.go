package anx7688

import "testing"

func TestUpdateStatusVBus(t *testing.T) {
	r := newRig(t, testCfg)

	r.main.mem[regStatus] = statusVBusOn
	if err := r.c.updateStatus(); err != nil {
		t.Fatalf("updateStatus = %v", err)
	}
	if !r.vbus.on {
		t.Errorf("vbus not enabled while the chip reports it on")
	}
	if ps := r.c.port.State(); ps.PowerRole != PowerRoleSource {
		t.Errorf("power role = %s, want source", ps.PowerRole)
	}

	r.main.mem[regStatus] = 0
	if err := r.c.updateStatus(); err != nil {
		t.Fatalf("updateStatus = %v", err)
	}
	if r.vbus.on {
		t.Errorf("vbus still enabled after the chip reports it off")
	}
	if ps := r.c.port.State(); ps.PowerRole != PowerRoleSink {
		t.Errorf("power role = %s, want sink", ps.PowerRole)
	}
}

func TestUpdateStatusVConn(t *testing.T) {
	r := newRig(t, testCfg)

	r.main.mem[regStatus] = statusVConnOn
	if err := r.c.updateStatus(); err != nil {
		t.Fatalf("updateStatus = %v", err)
	}
	if !r.vconn.on {
		t.Errorf("vconn not enabled while the chip reports it on")
	}
	if ps := r.c.port.State(); ps.VConnRole != PowerRoleSource {
		t.Errorf("vconn role = %s, want source", ps.VConnRole)
	}
}

func TestUpdateStatusDataRole(t *testing.T) {
	r := newRig(t, testCfg)

	r.main.mem[regStatus] = statusDataRole
	if err := r.c.updateStatus(); err != nil {
		t.Fatalf("updateStatus = %v", err)
	}
	if r.roleSw.role != USBRoleHost {
		t.Errorf("role switch = %s, want host", r.roleSw.role)
	}
	if ps := r.c.port.State(); ps.DataRole != DataRoleHost {
		t.Errorf("data role = %s, want host", ps.DataRole)
	}

	r.main.mem[regStatus] = 0
	if err := r.c.updateStatus(); err != nil {
		t.Fatalf("updateStatus = %v", err)
	}
	if r.roleSw.role != USBRoleDevice {
		t.Errorf("role switch = %s, want device", r.roleSw.role)
	}
}

func TestUpdateStatusHotPlug(t *testing.T) {
	r := newRig(t, testCfg)

	r.tcpc.mem[tcpcRegDPState] = dpActiveThreshold
	if err := r.c.updateStatus(); err != nil {
		t.Fatalf("updateStatus = %v", err)
	}
	if !r.hpd.asserted {
		t.Fatalf("hot-plug-detect not asserted at DP state %d", dpActiveThreshold)
	}
	sets := r.hpd.sets

	// unchanged state is not re-signaled
	if err := r.c.updateStatus(); err != nil {
		t.Fatalf("updateStatus = %v", err)
	}
	if r.hpd.sets != sets {
		t.Errorf("hot-plug-detect re-signaled without a transition")
	}

	r.tcpc.mem[tcpcRegDPState] = dpActiveThreshold - 1
	if err := r.c.updateStatus(); err != nil {
		t.Fatalf("updateStatus = %v", err)
	}
	if r.hpd.asserted {
		t.Errorf("hot-plug-detect still asserted below the active threshold")
	}
}
