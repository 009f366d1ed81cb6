// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package netif

import "time"

// Pseudo is a controller that accepts everything and transmits nothing.
// It keeps the orchestrator usable on benches without any radio attached.
type Pseudo struct {
	// Sent counts payload bytes handed to Send
	Sent int
}

func (p *Pseudo) On()         {}
func (p *Pseudo) Off()        {}
func (p *Pseudo) RunTask()    {}
func (p *Pseudo) Listen()     {}
func (p *Pseudo) Join() error { return nil }

func (p *Pseudo) CheckAttach() error { return nil }

func (p *Pseudo) ConnStatus(ConnID) (ConnStatus, error) {
	return StatusConnected, nil
}

func (p *Pseudo) Connect(ConnID, string, uint16, ConnType) error { return nil }
func (p *Pseudo) Disconnect(ConnID) error                        { return nil }

func (p *Pseudo) Send(_ ConnID, data []byte) error {
	p.Sent += len(data)
	return nil
}

func (p *Pseudo) Receive(ConnID, []byte, time.Duration) (int, error) {
	return 0, nil
}

func (p *Pseudo) ID() ControllerID { return ControllerPseudo }

func (p *Pseudo) SetParams(string, string) error { return nil }
