package main

import (
	"errors"
	"fmt"

	"bmu-service/bmu"

	"github.com/warthog618/go-gpiocdev"
)

const gpioConsumer = "bmu-service"

// gpioLine is the subset of *gpiocdev.Line the relays use.
type gpioLine interface {
	SetValue(value int) error
	Value() (int, error)
	Close() error
}

// GPIORelays drives the HV relays through character-device GPIO lines.
// The discharge relay is wired through an active-low disable line.
type GPIORelays struct {
	log       *LeveledLogger
	precharge gpioLine
	discharge gpioLine
	contactor gpioLine
	solar     gpioLine
	detect    gpioLine
}

// NewGPIORelays requests all relay lines on chip. Outputs start in the safe
// state: precharge, contactor and solar open, discharge closed.
func NewGPIORelays(logger *LeveledLogger, chip string, lines GPIOLines) (*GPIORelays, error) {
	r := &GPIORelays{log: logger}

	outputs := []struct {
		name    string
		offset  int
		initial int
		dst     *gpioLine
	}{
		{"precharge", lines.Precharge, 0, &r.precharge},
		{"discharge_disable", lines.DischargeDisable, 0, &r.discharge},
		{"contactor", lines.Contactor, 0, &r.contactor},
		{"solar", lines.Solar, 0, &r.solar},
	}

	for _, o := range outputs {
		l, err := gpiocdev.RequestLine(chip, o.offset,
			gpiocdev.AsOutput(o.initial), gpiocdev.WithConsumer(gpioConsumer))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to request %s line %s:%d: %w", o.name, chip, o.offset, err)
		}
		*o.dst = l
	}

	detect, err := gpiocdev.RequestLine(chip, lines.PrechargeDetect,
		gpiocdev.AsInput, gpiocdev.WithConsumer(gpioConsumer))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to request precharge_detect line %s:%d: %w", chip, lines.PrechargeDetect, err)
	}
	r.detect = detect

	logger.Info("Relay GPIO lines requested on %s", chip)
	return r, nil
}

func (r *GPIORelays) SetPrecharge(closed bool) error {
	return r.set(r.precharge, "precharge", closed)
}

func (r *GPIORelays) SetDischarge(closed bool) error {
	// disable line high opens the discharge path
	return r.set(r.discharge, "discharge_disable", !closed)
}

func (r *GPIORelays) SetContactor(closed bool) error {
	return r.set(r.contactor, "contactor", closed)
}

func (r *GPIORelays) SetSolar(enabled bool) error {
	return r.set(r.solar, "solar", enabled)
}

func (r *GPIORelays) PrechargeDetected() (bool, error) {
	v, err := r.detect.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read precharge_detect: %w", err)
	}
	return v != 0, nil
}

func (r *GPIORelays) set(line gpioLine, name string, high bool) error {
	v := 0
	if high {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("failed to set %s=%d: %w", name, v, err)
	}
	r.log.Debug("GPIO %s=%d", name, v)
	return nil
}

// Close releases every requested line. Released outputs keep their last
// value until the kernel reassigns them.
func (r *GPIORelays) Close() error {
	var errs []error
	for _, l := range []gpioLine{r.precharge, r.discharge, r.contactor, r.solar, r.detect} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ bmu.Relays = (*GPIORelays)(nil)
