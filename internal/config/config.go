// Package config loads the reader's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Edge source backends.
const (
	BackendGPIOCDev = "gpiocdev"
	BackendPeriph   = "periph"
)

// Config is the daemon configuration. Zero values in the file keep the defaults.
type Config struct {
	GPIO      GPIOConfig    `yaml:"gpio"`
	Decoder   DecoderConfig `yaml:"decoder"`
	Poll      time.Duration `yaml:"poll"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	HTTP      HTTPConfig    `yaml:"http"`
}

// GPIOConfig selects the edge source and the two data lines.
type GPIOConfig struct {
	Backend string `yaml:"backend"`
	Chip    string `yaml:"chip"` // gpiocdev only
	D0      int    `yaml:"d0"`   // line offset (gpiocdev) or pin number (periph)
	D1      int    `yaml:"d1"`
}

// DecoderConfig tunes frame detection.
type DecoderConfig struct {
	MaxBitIntervalUs uint32 `yaml:"max_bit_interval_us"`
}

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// HTTPConfig describes the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Backend: BackendGPIOCDev,
			Chip:    "gpiochip0",
			D0:      17,
			D1:      18,
		},
		Decoder: DecoderConfig{
			MaxBitIntervalUs: 5000,
		},
		Poll:      10 * time.Millisecond,
		Heartbeat: 15 * time.Minute,
		MQTT: MQTTConfig{
			Broker:      "tcp://127.0.0.1:1883",
			ClientID:    "wiegand-reader",
			TopicPrefix: "wiegand",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// The result is not validated; callers apply overrides first.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	return cfg, nil
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.GPIO.Backend {
	case BackendGPIOCDev:
		if c.GPIO.Chip == "" {
			errs = append(errs, errors.New("gpio.chip is required for the gpiocdev backend"))
		}
	case BackendPeriph:
	default:
		errs = append(errs, fmt.Errorf("gpio.backend %q: must be %q or %q", c.GPIO.Backend, BackendGPIOCDev, BackendPeriph))
	}

	if c.GPIO.D0 < 0 || c.GPIO.D1 < 0 {
		errs = append(errs, fmt.Errorf("gpio lines must not be negative (d0=%d d1=%d)", c.GPIO.D0, c.GPIO.D1))
	}
	if c.GPIO.D0 == c.GPIO.D1 {
		errs = append(errs, fmt.Errorf("gpio.d0 and gpio.d1 must differ (both %d)", c.GPIO.D0))
	}
	if c.Decoder.MaxBitIntervalUs == 0 {
		errs = append(errs, errors.New("decoder.max_bit_interval_us must be positive"))
	}
	if c.Poll <= 0 {
		errs = append(errs, fmt.Errorf("poll must be positive, got %v", c.Poll))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, errors.New("mqtt.topic_prefix is required"))
	}

	return errors.Join(errs...)
}

// MaxBitInterval returns the silence threshold as a duration.
func (c *Config) MaxBitInterval() time.Duration {
	return time.Duration(c.Decoder.MaxBitIntervalUs) * time.Microsecond
}
