package config

import (
	"context"
	"errors"

	"tracklog-go/bus"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) (map[string]any, bool) {
	m, ok := embeddedConfigs[device]
	return m, ok
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig resolves the device's embedded config and publishes each
// section as a retained message on config/<section>. Services that start
// later still see it.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("missing device ID in context")
	}

	sections, ok := EmbeddedConfigLookup(device)
	if !ok || len(sections) == 0 {
		return errors.New("no embedded config for device: " + device)
	}

	for k, v := range sections {
		conn.Publish(&bus.Message{
			Topic:    bus.T(configPrefix, k),
			Payload:  v,
			Retained: true,
		})
	}
	return nil
}

// Start publishes the embedded config before returning, so services
// started afterwards find it retained on their first subscribe.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	if err := s.publishConfig(ctx, conn); err != nil {
		println("Error: config service:", err.Error())
	}
}
