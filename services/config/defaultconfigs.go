package config

import "tracklog-go/types"

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Typed defaults per device ID (same value placed in ctx under
// CtxDeviceKey). Payloads are published as-is, so subscribers type-assert
// against the types package rather than parsing.
// -----------------------------------------------------------------------------

var embeddedConfigs = map[string]map[string]any{
	"pico": {
		"tracker": &types.TrackerConfig{
			LogIntervalSecs: 60,
			PollMs:          5000,
			JitterMs:        1000,
			RetryBudget:     5,
		},
		"heartbeat": &types.HeartbeatConfig{
			IntervalSecs: 2,
		},
	},
}
