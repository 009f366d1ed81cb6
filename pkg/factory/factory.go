// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package factory runs the one-shot setup of a freshly assembled gateway's
// LoRaWAN module: UART speed, firmware check and device EUI provisioning.
package factory

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Stage failures
var (
	ErrBaudRate = errors.New("factory: baud rate not configured")
	ErrVersion  = errors.New("factory: firmware version not qualified")
	ErrDevEUI   = errors.New("factory: device eui not set")
)

// Attempts per stage
const (
	BaudRateAttempts = 5
	VersionAttempts  = 3
	DevEUIAttempts   = 3
)

// Radio is the part of a LoRaWAN controller the setup needs
type Radio interface {
	On()
	ChangeBaudRate(target int) error
	CheckVersion() (bool, error)
	SetDevEUI(serial uint32) error
}

// Config is what to provision
type Config struct {
	BaudRate int
	DeviceID uint32
}

// Run powers the radio on and runs the stages in order. The first stage
// that exhausts its attempts stops the setup.
func Run(radio Radio, cfg Config) error {
	radio.On()

	if err := changeBaudRate(radio, cfg.BaudRate); err != nil {
		return err
	}
	if err := validateVersion(radio); err != nil {
		return err
	}
	return setDevEUI(radio, cfg.DeviceID)
}

func changeBaudRate(radio Radio, baud int) error {
	logger := log.WithField("baud", baud)
	logger.Info("factory: configuring baud rate")

	var err error
	for i := 0; i < BaudRateAttempts; i++ {
		if err = radio.ChangeBaudRate(baud); err == nil {
			logger.Info("factory: baud rate configured")
			return nil
		}
	}
	logger.WithError(err).Error("factory: baud rate failed")
	return errors.Wrapf(ErrBaudRate, "after %d attempts: %v", BaudRateAttempts, err)
}

func validateVersion(radio Radio) error {
	log.Info("factory: checking firmware version")

	for i := 0; i < VersionAttempts; i++ {
		ok, err := radio.CheckVersion()
		if ok {
			log.Info("factory: firmware version ok")
			return nil
		}
		log.WithError(err).WithField("attempt", i+1).Debug("factory: version check")
	}
	log.Error("factory: firmware version failed")
	return errors.Wrapf(ErrVersion, "after %d attempts", VersionAttempts)
}

func setDevEUI(radio Radio, id uint32) error {
	logger := log.WithField("device_id", id)
	logger.Info("factory: setting device eui")

	var err error
	for i := 0; i < DevEUIAttempts; i++ {
		if err = radio.SetDevEUI(id); err == nil {
			logger.Info("factory: device eui set")
			return nil
		}
	}
	logger.WithError(err).Error("factory: device eui failed")
	return errors.Wrapf(ErrDevEUI, "after %d attempts: %v", DevEUIAttempts, err)
}
