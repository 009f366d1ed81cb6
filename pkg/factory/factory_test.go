// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package factory

import (
	"errors"
	"testing"
)

const never = 100

var errRadio = errors.New("radio error")

// fakeRadio succeeds on the configured attempt of each stage
type fakeRadio struct {
	baudOK, versionOK, euiOK int

	switchedOn bool
	baudCalls  int
	baud       int
	verCalls   int
	euiCalls   int
	eui        uint32
}

func (r *fakeRadio) On() { r.switchedOn = true }

func (r *fakeRadio) ChangeBaudRate(target int) error {
	r.baud = target
	r.baudCalls++
	if r.baudCalls == r.baudOK {
		return nil
	}
	return errRadio
}

func (r *fakeRadio) CheckVersion() (bool, error) {
	r.verCalls++
	return r.verCalls == r.versionOK, nil
}

func (r *fakeRadio) SetDevEUI(id uint32) error {
	r.eui = id
	r.euiCalls++
	if r.euiCalls == r.euiOK {
		return nil
	}
	return errRadio
}

func TestRun_SucceedsOnLastAttempt(t *testing.T) {
	r := &fakeRadio{baudOK: BaudRateAttempts, versionOK: VersionAttempts, euiOK: DevEUIAttempts}

	if err := Run(r, Config{BaudRate: 19200, DeviceID: 12345}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.switchedOn {
		t.Error("radio was not switched on")
	}
	if r.baud != 19200 {
		t.Errorf("expected baud 19200, got %d", r.baud)
	}
	if r.eui != 12345 {
		t.Errorf("expected device id 12345, got %d", r.eui)
	}
}

func TestRun_StageFailures(t *testing.T) {
	tests := []struct {
		name  string
		radio *fakeRadio
		want  error
		calls [3]int // baud, version, eui
	}{
		{
			name:  "baud rate",
			radio: &fakeRadio{baudOK: never, versionOK: 1, euiOK: 1},
			want:  ErrBaudRate,
			calls: [3]int{BaudRateAttempts, 0, 0},
		},
		{
			name:  "version",
			radio: &fakeRadio{baudOK: 1, versionOK: never, euiOK: 1},
			want:  ErrVersion,
			calls: [3]int{1, VersionAttempts, 0},
		},
		{
			name:  "device eui",
			radio: &fakeRadio{baudOK: 2, versionOK: 2, euiOK: never},
			want:  ErrDevEUI,
			calls: [3]int{2, 2, DevEUIAttempts},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Run(tt.radio, Config{BaudRate: 9600, DeviceID: 1})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			got := [3]int{tt.radio.baudCalls, tt.radio.verCalls, tt.radio.euiCalls}
			if got != tt.calls {
				t.Errorf("expected calls %v, got %v", tt.calls, got)
			}
		})
	}
}
