// Package pdo defines USB Power Delivery data object types.
package pdo

// PDO is a 32-bit Power Data Object describing a supply capability.
// Based on its Type, the accessor methods for the matching supply kind
// apply.
type PDO uint32

// Type returns the supply type encoded in the two top bits.
func (o PDO) Type() Type {
	return Type((o >> 30) & 0b11)
}

// Type represents the supply type of a power data object.
type Type uint8

// Power data object supply types.
const (
	TypeFixed     Type = 0b00
	TypeBattery   Type = 0b01
	TypeVariable  Type = 0b10
	TypeAugmented Type = 0b11
)

func (t Type) String() string {
	switch t {
	case TypeFixed:
		return "FIXED"
	case TypeBattery:
		return "BATT"
	case TypeVariable:
		return "VAR"
	case TypeAugmented:
		return "APDO"
	default:
		return "UNKNOWN"
	}
}

// FixedVoltage returns the supply voltage of a fixed PDO in millivolts.
func (o PDO) FixedVoltage() uint32 {
	return ((uint32(o) >> 10) & 0x3ff) * 50
}

// MaxCurrent returns the maximum current of a fixed or variable PDO in
// milliamps.
func (o PDO) MaxCurrent() uint32 {
	return (uint32(o) & 0x3ff) * 10
}

// MinVoltage returns the minimum voltage of a battery or variable PDO in
// millivolts.
func (o PDO) MinVoltage() uint32 {
	return ((uint32(o) >> 10) & 0x3ff) * 50
}

// MaxVoltage returns the maximum voltage of a battery or variable PDO in
// millivolts.
func (o PDO) MaxVoltage() uint32 {
	return ((uint32(o) >> 20) & 0x3ff) * 50
}

// MaxPower returns the maximum power of a battery PDO in milliwatts.
func (o PDO) MaxPower() uint32 {
	return (uint32(o) & 0x3ff) * 250
}

// RDO is a 32-bit Request Data Object selecting one of the advertised
// PDOs plus the requested current.
type RDO uint32

// ObjectPosition returns the one-based index of the selected PDO in the
// source capability list.
func (o RDO) ObjectPosition() uint8 {
	return uint8((o >> 28) & 0b111)
}

// OperatingCurrent returns the requested operating current in milliamps
// for fixed and variable requests.
func (o RDO) OperatingCurrent() uint32 {
	return ((uint32(o) >> 10) & 0x3ff) * 10
}

// MaxOperatingCurrent returns the requested maximum current in milliamps
// for fixed and variable requests without GiveBack support.
func (o RDO) MaxOperatingCurrent() uint32 {
	return (uint32(o) & 0x3ff) * 10
}
