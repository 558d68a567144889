package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"bmu-service/bmu"

	"gopkg.in/yaml.v3"
)

// ServiceConfig is the on-disk configuration: the BMU thresholds and
// timings plus the GPIO lines the relays are wired to.
type ServiceConfig struct {
	bmu.Config `yaml:",inline"`
	GPIO       GPIOLines `yaml:"gpio"`
}

// GPIOLines are line offsets on the relay GPIO chip.
type GPIOLines struct {
	Precharge        int `yaml:"precharge"`
	DischargeDisable int `yaml:"discharge_disable"`
	Contactor        int `yaml:"contactor"`
	Solar            int `yaml:"solar"`
	PrechargeDetect  int `yaml:"precharge_detect"`
}

// DefaultServiceConfig matches the pinout of the reference controller board.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Config: bmu.DefaultConfig(),
		GPIO: GPIOLines{
			Precharge:        7,
			DischargeDisable: 8,
			Contactor:        5,
			Solar:            11,
			PrechargeDetect:  15,
		},
	}
}

// LoadConfig decodes path over the defaults. An empty path returns the
// defaults unchanged.
func LoadConfig(path string) (*ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return parseConfig(cfg, data)
}

func parseConfig(cfg *ServiceConfig, data []byte) (*ServiceConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	// An empty document keeps the defaults.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the thresholds and the GPIO assignment.
func (c *ServiceConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}

	lines := []struct {
		name   string
		offset int
	}{
		{"precharge", c.GPIO.Precharge},
		{"discharge_disable", c.GPIO.DischargeDisable},
		{"contactor", c.GPIO.Contactor},
		{"solar", c.GPIO.Solar},
		{"precharge_detect", c.GPIO.PrechargeDetect},
	}
	used := make(map[int]string)
	for _, l := range lines {
		if l.offset < 0 {
			return fmt.Errorf("gpio: %s line must not be negative, got %d", l.name, l.offset)
		}
		if other, ok := used[l.offset]; ok {
			return fmt.Errorf("gpio: %s and %s share line %d", other, l.name, l.offset)
		}
		used[l.offset] = l.name
	}
	return nil
}
