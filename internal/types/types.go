package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound transport events.
const (
	EventConnect           = "connect"
	EventDisconnect        = "disconnect"
	EventRequestScreenshot = "request_screenshot"
	EventPerformAction     = "perform_action"
)

// Outbound transport events.
const (
	EventJoinMachineRoom = "join_machine_room"
	EventScreenshotData  = "screenshot_data"
	EventScreenshotError = "screenshot_error"
)

// PerformAction is the payload of a perform_action event.
type PerformAction struct {
	Command string `json:"command"`
}

// JoinMachineRoom announces the agent to the controller after connecting.
type JoinMachineRoom struct {
	MachineKey string `json:"machineKey"`
	IsMachine  bool   `json:"isMachine"`
}

// ScreenshotData is the outbound frame + metadata payload
type ScreenshotData struct {
	MachineKey string          `json:"machineKey"`
	Screenshot string          `json:"screenshot"`
	Metadata   CaptureMetadata `json:"metadata"`
}

// ScreenshotError replaces ScreenshotData when no frame could be produced.
type ScreenshotError struct {
	MachineKey string    `json:"machineKey"`
	Error      string    `json:"error"`
	Timestamp  Timestamp `json:"timestamp"`
}

// Size is a width/height pair, encoded as a [w, h] JSON array.
type Size struct {
	W, H int
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.W, s.H) }

func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{s.W, s.H})
}

func (s *Size) UnmarshalJSON(b []byte) error {
	var wh [2]int
	if err := json.Unmarshal(b, &wh); err != nil {
		return err
	}
	s.W, s.H = wh[0], wh[1]
	return nil
}

// Timestamp marshals as local time in RFC 3339 with fractional seconds.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// CaptureMetadata describes one encoded screen capture. Resolution is the
// size actually encoded; OriginalResolution the size grabbed from the screen.
type CaptureMetadata struct {
	Timestamp          Timestamp `json:"timestamp"`
	Platform           string    `json:"platform"`
	Resolution         Size      `json:"resolution"`
	OriginalResolution Size      `json:"original_resolution"`
	FileSizeBytes      int       `json:"file_size_bytes"`
	FileSizeKB         float64   `json:"file_size_kb"`
	Format             string    `json:"format"`
}

// ActionResult reports the outcome of one dispatched action.
type ActionResult struct {
	Kind      string `json:"kind"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}
