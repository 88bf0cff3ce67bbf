// Package sensorhub defines the contract shared by all sensor drivers and the
// bus interfaces they are built against.
//
// A Sensor is constructed with borrowed bus and pin handles, initialized once,
// then driven through Control. Read never blocks: it returns 0 when no new
// sample has been signaled since the previous call.
package sensorhub

import (
	"context"
	"errors"
	"fmt"
)

// Command is the closed set of operations accepted by Sensor.Control.
type Command uint32

const (
	CtrlStart    Command = 1
	CtrlStop     Command = 2
	CtrlSetODR   Command = 3
	CtrlGetODR   Command = 4
	CtrlSelfTest Command = 5
	CtrlSetGain  Command = 6
)

func (c Command) String() string {
	switch c {
	case CtrlStart:
		return "START"
	case CtrlStop:
		return "STOP"
	case CtrlSetODR:
		return "SET_ODR"
	case CtrlGetODR:
		return "GET_ODR"
	case CtrlSelfTest:
		return "SELFTEST"
	case CtrlSetGain:
		return "SET_GAIN"
	default:
		return fmt.Sprintf("Command(%d)", uint32(c))
	}
}

// State is the lifecycle position of a sensor.
type State int

const (
	StateUnconfigured State = iota
	StateStandby
	StateActive
)

func (s State) String() string {
	switch s {
	case StateStandby:
		return "standby"
	case StateActive:
		return "active"
	default:
		return "unconfigured"
	}
}

// Self-test result codes returned by Control(CtrlSelfTest). SelfTestBusError
// means the test could not complete because a register access failed, so the
// chip's answer is unknown.
const (
	SelfTestOK       int32 = 0
	SelfTestPrecheck int32 = -1
	SelfTestMismatch int32 = -2
	SelfTestBusError int32 = -3
)

var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrSelfTestPrecheck = errors.New("self-test precheck failed")
	ErrSelfTestMismatch = errors.New("self-test response mismatch")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrInvalidRate      = errors.New("invalid output data rate")
	ErrNotInitialized   = errors.New("sensor not initialized")
)

// Sensor is implemented by every driver. The registry only ever holds values
// of this type.
type Sensor interface {
	Name() string
	Initialize(ctx context.Context) error
	Uninitialize(ctx context.Context) error
	Write(ctx context.Context, data []byte) (int, error)
	Read(ctx context.Context, data []byte) (int, error)
	Control(ctx context.Context, cmd Command, arg uint32) (int32, error)
}

// SelfTestCode maps a self-test error to its numeric result code. Errors other
// than the two self-test sentinels are transport failures.
func SelfTestCode(err error) int32 {
	switch {
	case err == nil:
		return SelfTestOK
	case errors.Is(err, ErrSelfTestPrecheck):
		return SelfTestPrecheck
	case errors.Is(err, ErrSelfTestMismatch):
		return SelfTestMismatch
	default:
		return SelfTestBusError
	}
}
