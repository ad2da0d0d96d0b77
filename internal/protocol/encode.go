package protocol

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/danmuck/wristlink/internal/protocol/frame"
)

// Nval identifiers.
const (
	nvalLcdInvert uint16 = 0x000B
	nvalWrite     byte   = 0x02
)

// mustBuild encodes builders whose payload sizes are fixed well below the
// frame limit.
func mustBuild(t MessageType, options byte, data []byte) []byte {
	raw, err := frame.Build(byte(t), options, data)
	if err != nil {
		panic(fmt.Sprintf("protocol: %s: %v", t, err))
	}
	return raw
}

func BuildGetDeviceType() []byte {
	return mustBuild(GetDeviceType, 0, nil)
}

func BuildGetRealTimeClock() []byte {
	return mustBuild(GetRealTimeClock, 0, nil)
}

// BuildSetRealTimeClock encodes t in device layout: year (big-endian),
// month, day, weekday, hour, minute, second.
func BuildSetRealTimeClock(t time.Time) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint16(data[0:2], uint16(t.Year()))
	data[2] = byte(t.Month())
	data[3] = byte(t.Day())
	data[4] = byte(t.Weekday())
	data[5] = byte(t.Hour())
	data[6] = byte(t.Minute())
	data[7] = byte(t.Second())
	return mustBuild(SetRealTimeClock, 0, data)
}

func BuildReadBatteryVoltage() []byte {
	return mustBuild(ReadBatteryVoltage, 0, nil)
}

func BuildReadLightSensor() []byte {
	return mustBuild(ReadLightSensor, 0, nil)
}

// BuildConfigureMode sets the mode timeout and LCD inversion for a buffer.
func BuildConfigureMode(buf Buffer, timeout byte, invert bool) ([]byte, error) {
	if buf > BufferNotification {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBuffer, buf)
	}
	return mustBuild(ConfigureMode, byte(buf), []byte{timeout, boolByte(invert)}), nil
}

// BuildConfigureIdleBufferSize toggles between the full-screen idle
// buffer and the one that leaves room for the built-in clock.
func BuildConfigureIdleBufferSize(showClock bool) []byte {
	return mustBuild(ConfigureIdleBufferSize, 0, []byte{boolByte(!showClock)})
}

// BuildEnableButton asks the device to report a press of button in buf as
// a ButtonEvent carrying code.
func BuildEnableButton(buf Buffer, button uint8, press PressType, code uint8) []byte {
	return mustBuild(EnableButton, 0, []byte{byte(buf), button, byte(press), byte(ButtonEvent), code})
}

func BuildDisableButton(buf Buffer, button uint8, press PressType) []byte {
	return mustBuild(DisableButton, 0, []byte{byte(buf), button, byte(press)})
}

func BuildNvalLcdInvert(invert bool) []byte {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:2], nvalLcdInvert)
	data[2] = 1
	data[3] = boolByte(invert)
	return mustBuild(NvalOperation, nvalWrite, data)
}

// BuildVibrate encodes a vibration pattern with on/off times in ms.
func BuildVibrate(onMS, offMS uint16, cycles uint8) []byte {
	data := make([]byte, 6)
	data[0] = 1
	binary.LittleEndian.PutUint16(data[1:3], onMS)
	binary.LittleEndian.PutUint16(data[3:5], offMS)
	data[5] = cycles
	return mustBuild(SetVibrateMode, 0, data)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
