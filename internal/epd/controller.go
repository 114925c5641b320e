package epd

// Commands
const (
	panelSetting             byte = 0x00
	powerOff                 byte = 0x02
	powerOn                  byte = 0x04
	boosterSoftStart         byte = 0x06
	deepSleep                byte = 0x07
	dataStartBlack           byte = 0x10
	displayRefresh           byte = 0x12
	dataStartRed             byte = 0x13
	writeLUTRegister         byte = 0x32
	vcomAndDataIntervalSetup byte = 0x50
	resolutionSetting        byte = 0x61
	dataStop                 byte = 0x92
)

// deepSleepCheckCode must follow deepSleep or the panel ignores it.
const deepSleepCheckCode byte = 0xA5

type controller interface {
	sendCommand(byte)
	sendData(...byte)
	waitUntilIdle()
}

func initPanel(ctrl controller, g Geometry, lut LUT) {
	ctrl.sendCommand(boosterSoftStart)
	ctrl.sendData(0x17, 0x17, 0x17)

	ctrl.sendCommand(powerOn)
	ctrl.waitUntilIdle()

	ctrl.sendCommand(panelSetting)
	ctrl.sendData(0x8F)

	ctrl.sendCommand(vcomAndDataIntervalSetup)
	ctrl.sendData(0xF0)

	ctrl.sendCommand(resolutionSetting)
	ctrl.sendData(
		byte(g.Width&0xFF),
		byte(g.Height>>8),
		byte(g.Height&0xFF),
	)

	ctrl.sendCommand(writeLUTRegister)
	ctrl.sendData(lut[:LUTSize]...)
}

// sendPlanes transmits the black plane, then the red plane if red is
// non-nil, and refreshes.
func sendPlanes(ctrl controller, black, red []byte) {
	ctrl.sendCommand(dataStartBlack)
	ctrl.sendData(black...)
	ctrl.sendCommand(dataStop)

	if red != nil {
		ctrl.sendCommand(dataStartRed)
		ctrl.sendData(red...)
		ctrl.sendCommand(dataStop)
	}

	ctrl.sendCommand(displayRefresh)
	ctrl.waitUntilIdle()
}

func powerDown(ctrl controller) {
	ctrl.sendCommand(powerOff)
	ctrl.waitUntilIdle()

	ctrl.sendCommand(deepSleep)
	ctrl.sendData(deepSleepCheckCode)
}
