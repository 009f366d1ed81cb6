// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package netif

import (
	"errors"
	"fmt"
)

// Controller operation outcomes. A nil error is success.
var (
	ErrCommand = errors.New("command rejected")
	ErrComms   = errors.New("communications failure")
	ErrTimeout = errors.New("timeout")
	ErrParams  = errors.New("invalid parameter")
)

// CommandError carries the error number a module reported with its
// rejection. It matches ErrCommand with errors.Is.
type CommandError struct {
	Code int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command rejected: error %d (%s)", e.Code, ModuleErrorName(e.Code))
}

func (e *CommandError) Unwrap() error {
	return ErrCommand
}

// Module error numbers reported with +ERR=<n>
const (
	ModErrCmdUnknown = iota + 1
	ModErrNumParameterInvalid
	ModErrContentParameterInvalid
	ModErrRestoreToFactory
	ModErrDeviceNotInNetwork
	ModErrDeviceIsInNetwork
	ModErrMACBusy
	ModErrSameFirmwareVersion
	ModErrInformationNotSet
	ModErrMemory
	ModErrUpdateFirmware
	ModErrPayloadSize
	ModErrOnlyABP
	ModErrOnlyOTA
	ModErrBand
	ModErrPowerValue
	ModErrCmdUnusableUnderBand
	ModErrDutyCycleLimits
	ModErrNoChannelAvailable
)

var moduleErrorNames = []string{
	"",
	"unknown command",
	"invalid number of parameters",
	"invalid parameter content",
	"factory reset failed",
	"device not in network",
	"device already in network",
	"mac busy",
	"same firmware version",
	"information not set",
	"memory error",
	"firmware update failed",
	"payload size not valid",
	"only ABP allowed",
	"only OTAA allowed",
	"band not supported",
	"power value out of range",
	"command unusable under band",
	"duty cycle restricted",
	"no channel available",
}

// ModuleErrorName returns a short description of a module error number
func ModuleErrorName(code int) string {
	if code > 0 && code < len(moduleErrorNames) {
		return moduleErrorNames[code]
	}
	if code == -1 {
		return "stale baud rate"
	}
	return "unknown"
}
