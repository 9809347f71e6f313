package pdo

import "testing"

func TestFixedPDO(t *testing.T) {
	tests := []struct {
		name    string
		obj     PDO
		voltage uint32
		current uint32
	}{
		{"5V 500mA", 0x36019032, 5000, 500},
		{"5V 3A", 0x0001912c, 5000, 3000},
		{"9V 2A", 0x0002d0c8, 9000, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.obj.Type() != TypeFixed {
				t.Fatalf("Type = %s, want FIXED", tt.obj.Type())
			}
			if got := tt.obj.FixedVoltage(); got != tt.voltage {
				t.Errorf("FixedVoltage = %d, want %d", got, tt.voltage)
			}
			if got := tt.obj.MaxCurrent(); got != tt.current {
				t.Errorf("MaxCurrent = %d, want %d", got, tt.current)
			}
		})
	}
}

func TestBatteryPDO(t *testing.T) {
	// 5 V to 12 V, 18 W
	obj := PDO(1)<<30 | PDO(240)<<20 | PDO(100)<<10 | PDO(72)

	if obj.Type() != TypeBattery {
		t.Fatalf("Type = %s, want BATT", obj.Type())
	}
	if got := obj.MinVoltage(); got != 5000 {
		t.Errorf("MinVoltage = %d, want 5000", got)
	}
	if got := obj.MaxVoltage(); got != 12000 {
		t.Errorf("MaxVoltage = %d, want 12000", got)
	}
	if got := obj.MaxPower(); got != 18000 {
		t.Errorf("MaxPower = %d, want 18000", got)
	}
}

func TestVariablePDO(t *testing.T) {
	obj := PDO(2)<<30 | PDO(200)<<20 | PDO(100)<<10 | PDO(150)

	if obj.Type() != TypeVariable {
		t.Fatalf("Type = %s, want VAR", obj.Type())
	}
	if got := obj.MinVoltage(); got != 5000 {
		t.Errorf("MinVoltage = %d, want 5000", got)
	}
	if got := obj.MaxVoltage(); got != 10000 {
		t.Errorf("MaxVoltage = %d, want 10000", got)
	}
	if got := obj.MaxCurrent(); got != 1500 {
		t.Errorf("MaxCurrent = %d, want 1500", got)
	}
}

func TestRDO(t *testing.T) {
	obj := RDO(2)<<28 | RDO(150)<<10 | RDO(300)

	if got := obj.ObjectPosition(); got != 2 {
		t.Errorf("ObjectPosition = %d, want 2", got)
	}
	if got := obj.OperatingCurrent(); got != 1500 {
		t.Errorf("OperatingCurrent = %d, want 1500", got)
	}
	if got := obj.MaxOperatingCurrent(); got != 3000 {
		t.Errorf("MaxOperatingCurrent = %d, want 3000", got)
	}
}
