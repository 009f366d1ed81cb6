// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package murata

import (
	"github.com/pkg/errors"

	"github.com/Thermoquad/fieldgate/pkg/atcmd"
	"github.com/Thermoquad/fieldgate/pkg/netif"
)

func (c *Controller) set(name string, args ...interface{}) error {
	_, err := c.command(atcmd.CodeOK, name, args...)
	return err
}

// query sends a query and requires an ok-with-params event carrying p
func (c *Controller) query(name string, p atcmd.Param) (atcmd.Event, error) {
	ev, err := c.command(atcmd.CodeOKWithParams, name)
	if err != nil {
		return ev, err
	}
	if ev.Param != p {
		return ev, errors.Wrapf(netif.ErrComms, "%s: response carries the wrong value", name)
	}
	return ev, nil
}

// SetDataFormat selects the payload encoding, 1 for hex
func (c *Controller) SetDataFormat(format uint8) error {
	return c.set("DFORMAT=%d", format)
}

// SetDutyCycle enables or disables duty cycle limiting
func (c *Controller) SetDutyCycle(state uint8) error {
	return c.set("DUTYCYCLE=%d", state)
}

// SetRFPower sets the transmit power mode and index
func (c *Controller) SetRFPower(mode, index uint8) error {
	return c.set("RFPOWER=%d,%d", mode, index)
}

// SetDataRate sets the uplink data rate
func (c *Controller) SetDataRate(dr uint8) error {
	return c.set("DR=%d", dr)
}

// SetActivationMode selects ABP (0) or OTAA (1)
func (c *Controller) SetActivationMode(mode uint8) error {
	return c.set("MODE=%d", mode)
}

// SetAppEUI stores and applies the application EUI (16 hex digits)
func (c *Controller) SetAppEUI(eui string) error {
	c.appEUI = eui
	return c.set("APPEUI=%s", eui)
}

// SetAppKey stores and applies the application key (32 hex digits)
func (c *Controller) SetAppKey(key string) error {
	c.appKey = key
	return c.set("APPKEY=%s", key)
}

// AppEUI returns the last application EUI set
func (c *Controller) AppEUI() string { return c.appEUI }

// AppKey returns the last application key set
func (c *Controller) AppKey() string { return c.appKey }

// SetBand selects the regional band
func (c *Controller) SetBand(band uint8) error {
	return c.set("BAND=%d", band)
}

// Band queries the regional band
func (c *Controller) Band() (uint8, error) {
	ev, err := c.query("BAND?", atcmd.ParamBand)
	return ev.Band, err
}

// SetBaudRate changes the module's UART speed. It takes effect after a
// reboot.
func (c *Controller) SetBaudRate(baud int) error {
	return c.set("UART=%d", baud)
}

// BaudRate queries the module's UART speed
func (c *Controller) BaudRate() (int, error) {
	ev, err := c.query("UART?", atcmd.ParamBaudRate)
	return ev.BaudRate, err
}

// SetDevEUI provisions the device EUI. The 32-bit serial fills the low half
// of the 64-bit EUI.
func (c *Controller) SetDevEUI(serial uint32) error {
	return c.set("DEVEUI=%016X", uint64(serial))
}

// DevEUI queries the device EUI as hex text
func (c *Controller) DevEUI() (string, error) {
	ev, err := c.query("DEVEUI?", atcmd.ParamDevEUI)
	return ev.DevEUI, err
}

// RSSI returns the signal strength magnitude and SNR of the last downlink
func (c *Controller) RSSI() (rssi, snr uint8, err error) {
	ev, err := c.query("RFQ?", atcmd.ParamRF)
	return ev.RSSI, ev.SNR, err
}

// CheckVersion reports whether the module runs the qualified firmware
func (c *Controller) CheckVersion() (bool, error) {
	ev, err := c.command(atcmd.CodeFirmwareVersion, "VER?")
	if err != nil {
		return false, err
	}
	if !ev.VersionOK {
		return false, errors.Wrap(netif.ErrParams, "firmware version mismatch")
	}
	return true, nil
}

// StatusConnection asks the module to check its link and returns the
// status reported by the following connection event
func (c *Controller) StatusConnection() (netif.ConnStatus, error) {
	if _, err := c.command(atcmd.CodeOK, "LNCHECK"); err != nil {
		return netif.StatusUnattached, err
	}
	ev, err := c.WaitSpecific(atcmd.CodeConnEvent, NetworkTimeout, true)
	if err != nil {
		return netif.StatusUnattached, err
	}
	return ev.Conn.Status, nil
}

// Join starts an OTAA join and waits for the network to accept it
func (c *Controller) Join() error {
	if _, err := c.command(atcmd.CodeOK, "JOIN"); err != nil {
		return err
	}
	ev, err := c.WaitSpecific(atcmd.CodeConnEvent, NetworkTimeout, true)
	if err != nil {
		return errors.Wrap(netif.ErrComms, err.Error())
	}
	if ev.Conn.Status != netif.StatusAttached {
		return errors.Wrapf(netif.ErrComms, "join rejected: %s", ev.Conn.Status)
	}
	return nil
}

// Reboot restarts the module and waits for its start-up event
func (c *Controller) Reboot() error {
	if _, err := c.command(atcmd.CodeOK, "REBOOT"); err != nil {
		return err
	}
	ev, err := c.WaitSpecific(atcmd.CodeConnEvent, NetworkTimeout, false)
	if err != nil {
		return errors.Wrap(netif.ErrComms, err.Error())
	}
	if ev.Conn.Status != netif.StatusUnattached {
		return errors.Wrapf(netif.ErrComms, "unexpected status after reboot: %s", ev.Conn.Status)
	}
	return nil
}
