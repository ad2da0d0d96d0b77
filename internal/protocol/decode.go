package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/wristlink/internal/protocol/frame"
)

// Payload byte 0 is the frame options byte; data starts at byte 1.

// StatusChange is a decoded StatusChangeEvent.
type StatusChange struct {
	Buffer Buffer
	Code   StatusCode
}

// Battery is a decoded ReadBatteryVoltageResponse. Voltages are millivolts.
type Battery struct {
	PowerGood bool
	Charging  bool
	SenseMV   uint16
	AverageMV uint16
}

func (b Battery) SenseVolts() float64   { return float64(b.SenseMV) / 1000 }
func (b Battery) AverageVolts() float64 { return float64(b.AverageMV) / 1000 }

// Light is a decoded ReadLightSensorResponse in fixed-point thousandths.
type Light struct {
	Sense   uint16
	Average uint16
}

func (l Light) SenseValue() float64   { return float64(l.Sense) / 1000 }
func (l Light) AverageValue() float64 { return float64(l.Average) / 1000 }

func DecodeButton(f frame.Frame) (uint8, error) {
	if err := expect(f, ButtonEvent, 1); err != nil {
		return 0, err
	}
	return f.Payload[0], nil
}

func DecodeStatusChange(f frame.Frame) (StatusChange, error) {
	if err := expect(f, StatusChangeEvent, 2); err != nil {
		return StatusChange{}, err
	}
	return StatusChange{
		Buffer: Buffer(f.Payload[0] & 0x0F),
		Code:   StatusCode(f.Payload[1]),
	}, nil
}

// DecodeDeviceType returns the raw device type byte.
func DecodeDeviceType(f frame.Frame) (uint8, error) {
	if err := expect(f, GetDeviceTypeResponse, 2); err != nil {
		return 0, err
	}
	return f.Payload[1], nil
}

func DecodeBattery(f frame.Frame) (Battery, error) {
	if err := expect(f, ReadBatteryVoltageResponse, 7); err != nil {
		return Battery{}, err
	}
	p := f.Payload
	return Battery{
		PowerGood: p[1] > 0,
		Charging:  p[2] > 0,
		SenseMV:   binary.LittleEndian.Uint16(p[3:5]),
		AverageMV: binary.LittleEndian.Uint16(p[5:7]),
	}, nil
}

func DecodeLight(f frame.Frame) (Light, error) {
	if err := expect(f, ReadLightSensorResponse, 5); err != nil {
		return Light{}, err
	}
	p := f.Payload
	return Light{
		Sense:   binary.LittleEndian.Uint16(p[1:3]),
		Average: binary.LittleEndian.Uint16(p[3:5]),
	}, nil
}

func expect(f frame.Frame, t MessageType, minPayload int) error {
	if MessageType(f.Type) != t {
		return fmt.Errorf("%w: got %s want %s", ErrTypeMismatch, MessageType(f.Type), t)
	}
	if len(f.Payload) < minPayload {
		return fmt.Errorf("%w: %s has %d bytes, need %d", ErrShortPayload, t, len(f.Payload), minPayload)
	}
	return nil
}
