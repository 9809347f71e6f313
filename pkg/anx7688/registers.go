package anx7688

// Register map of the ANX7688. The chip exposes two independently
// addressed register spaces on the same I2C bus: the main (firmware)
// space and the TCPC-like space.

// main space, firmware registers
const (
	regVBusOffDelayTime = 0x22
	regFeatureCtrl      = 0x27
	regEepromLoadStatus = 0x12
	regFwVersion1       = 0x15
	regFwVersion0       = 0x16

	eepromFwLoaded = 0x01

	regStatusIntMask = 0x17
	regStatusInt     = 0x28

	irqReceivedMsg     = 1 << 0
	irqReceivedAck     = 1 << 1
	irqVConnChange     = 1 << 2
	irqVBusChange      = 1 << 3
	irqCCStatusChange  = 1 << 4
	irqDataRoleChange  = 1 << 5
	irqStatusChangeAny = irqVConnChange | irqVBusChange | irqCCStatusChange | irqDataRoleChange

	regStatus        = 0x29
	statusVConnOn    = 1 << 2 // 0 = off, 1 = on
	statusVBusOn     = 1 << 3 // 0 = off, 1 = on
	statusDataRole   = 1 << 5 // 0 = device, 1 = host
	regCCStatus      = 0x2a
	regTryUFPTimer   = 0x23
	regTimeCtrl      = 0x24
	regMaxVoltage    = 0x1b
	regMaxPower      = 0x1c
	regMinPower      = 0x1d
	regMaxVoltageRdo = 0x1e
	regMaxPowerRdo   = 0x1f

	softIntMask = 0x7f

	featureTrySrc = 1 << 2
)

// main space, hardware interrupt registers
const (
	regIrqExtSource2 = 0x4f
	regIrqExtMask2   = 0x3d

	irq2SoftInt = 1 << 2
)

// TCPC space
const (
	tcpcRegVendorID0     = 0x00
	tcpcRegVendorID1     = 0x01
	tcpcRegAlert0        = 0x10
	tcpcRegInterfaceSend = 0x30
	tcpcRegInterfaceRecv = 0x51
	tcpcRegDPState       = 0x87
	tcpcRegDPSubstate    = 0x88
)

// CC status nibble values, one nibble per CC pin.
const (
	ccSrcOpen    = 0
	ccSrcRd      = 1
	ccSrcRa      = 2
	ccSnkDefault = 4
	ccSnkPower15 = 8
	ccSnkPower30 = 12
)

// ccStatusString renders one CC pin nibble for transition logs.
func ccStatusString(v uint8) string {
	switch v {
	case ccSrcOpen:
		return "SRC.Open"
	case ccSrcRd:
		return "SRC.Rd"
	case ccSrcRa:
		return "SRC.Ra"
	case ccSnkDefault:
		return "SNK.Default"
	case ccSnkPower15:
		return "SNK.Power1.5"
	case ccSnkPower30:
		return "SNK.Power3.0"
	default:
		return "UNK"
	}
}
