package types

// ---- Tracker state (retained on tracker/state) ----

type TrackerState struct {
	Mode  string `json:"mode"` // "booting", "idle", "logging", "dumping", "error"
	TS    int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"`
}

// ---- Logger status (retained on tracker/status) ----

type LoggerStatus struct {
	IntervalSecs uint32 `json:"interval_s"`
	On           bool   `json:"on"`
	Records      uint32 `json:"records"`
	PercentFull  uint8  `json:"percent_full"`
}

// ---- Control verbs (tracker/control/<verb>, empty payloads) ----

const (
	VerbStart = "start"
	VerbStop  = "stop"
	VerbErase = "erase"
	VerbDump  = "dump"
)

// ---- Dump output (tracker/points, one per record) ----

type Point struct {
	TS      uint32  `json:"ts"` // unix seconds at the fix
	Fix     uint8   `json:"fix"`
	Lat     float32 `json:"lat"`
	Lon     float32 `json:"lon"`
	HeightM uint16  `json:"height_m"`
}

// Generic replies
type OKReply struct {
	OK bool `json:"ok"`
}
type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ---- Service configuration ----

// TrackerConfig is supplied on topic "config/tracker".
type TrackerConfig struct {
	LogIntervalSecs uint32 `json:"log_interval_s"`
	PollMs          uint32 `json:"poll_ms"`
	JitterMs        uint32 `json:"jitter_ms,omitempty"`
	RetryBudget     int    `json:"retry_budget,omitempty"`
}

// HeartbeatConfig is supplied on topic "config/heartbeat".
type HeartbeatConfig struct {
	IntervalSecs uint32 `json:"interval_s"`
}
