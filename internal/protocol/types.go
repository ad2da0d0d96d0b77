package protocol

import "fmt"

// MessageType is the frame type byte. Values are fixed by device firmware.
type MessageType uint8

const (
	GetDeviceType              MessageType = 0x01
	GetDeviceTypeResponse      MessageType = 0x02
	SetVibrateMode             MessageType = 0x23
	SetRealTimeClock           MessageType = 0x26
	GetRealTimeClock           MessageType = 0x27
	GetRealTimeClockResponse   MessageType = 0x28
	NvalOperation              MessageType = 0x30
	NvalOperationResponse      MessageType = 0x31
	StatusChangeEvent          MessageType = 0x33
	ButtonEvent                MessageType = 0x34
	WriteBuffer                MessageType = 0x40
	ConfigureMode              MessageType = 0x41
	ConfigureIdleBufferSize    MessageType = 0x42
	UpdateDisplay              MessageType = 0x43
	EnableButton               MessageType = 0x46
	DisableButton              MessageType = 0x47
	ReadBatteryVoltage         MessageType = 0x56
	ReadBatteryVoltageResponse MessageType = 0x57
	ReadLightSensor            MessageType = 0x58
	ReadLightSensorResponse    MessageType = 0x59
)

var messageTypeNames = map[MessageType]string{
	GetDeviceType:              "GetDeviceType",
	GetDeviceTypeResponse:      "GetDeviceTypeResponse",
	SetVibrateMode:             "SetVibrateMode",
	SetRealTimeClock:           "SetRealTimeClock",
	GetRealTimeClock:           "GetRealTimeClock",
	GetRealTimeClockResponse:   "GetRealTimeClockResponse",
	NvalOperation:              "NvalOperation",
	NvalOperationResponse:      "NvalOperationResponse",
	StatusChangeEvent:          "StatusChangeEvent",
	ButtonEvent:                "ButtonEvent",
	WriteBuffer:                "WriteBuffer",
	ConfigureMode:              "ConfigureMode",
	ConfigureIdleBufferSize:    "ConfigureIdleBufferSize",
	UpdateDisplay:              "UpdateDisplay",
	EnableButton:               "EnableButton",
	DisableButton:              "DisableButton",
	ReadBatteryVoltage:         "ReadBatteryVoltage",
	ReadBatteryVoltageResponse: "ReadBatteryVoltageResponse",
	ReadLightSensor:            "ReadLightSensor",
	ReadLightSensorResponse:    "ReadLightSensorResponse",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02x)", uint8(t))
}

// IsKnown reports whether t is in the closed registry.
func (t MessageType) IsKnown() bool {
	_, ok := messageTypeNames[t]
	return ok
}

// StatusCode is the StatusChangeEvent sub-code carried in payload byte 1.
type StatusCode uint8

const (
	StatusModeChanged    StatusCode = 0x01
	StatusModeTimeout    StatusCode = 0x02
	StatusScrollComplete StatusCode = 0x10
	StatusScrollRequest  StatusCode = 0x11
)

func (c StatusCode) String() string {
	switch c {
	case StatusModeChanged:
		return "mode-changed"
	case StatusModeTimeout:
		return "mode-timeout"
	case StatusScrollComplete:
		return "scroll-complete"
	case StatusScrollRequest:
		return "scroll-request"
	default:
		return fmt.Sprintf("status(0x%02x)", uint8(c))
	}
}

// Buffer selects one of the device display buffers.
type Buffer uint8

const (
	BufferIdle         Buffer = 0
	BufferApplication  Buffer = 1
	BufferNotification Buffer = 2
)

// PressType is the physical press classification the device reports on.
type PressType uint8

const (
	PressImmediate PressType = 0
	PressRelease   PressType = 1
	PressHold      PressType = 2
	PressLongHold  PressType = 3
)

// Physical button indexes.
const (
	ButtonA uint8 = 0
	ButtonB uint8 = 1
	ButtonC uint8 = 2
	ButtonD uint8 = 3
	ButtonE uint8 = 5
	ButtonF uint8 = 6
)
