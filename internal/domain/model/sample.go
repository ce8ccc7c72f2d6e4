// Package model contains domain models passed between layers.
package model

// LapData carries the timing block for the lap currently in progress.
type LapData struct {
	// LapTimeMS is the running lap time in milliseconds.
	LapTimeMS int64 `json:"lapTime"`
	// Sectors holds completed sector times in order, milliseconds.
	Sectors []int64 `json:"sectors"`
	// Valid reports whether the lap still counts (no cuts, no penalties).
	Valid bool `json:"valid"`
}

// TelemetrySample is one pilot's instantaneous state as sent by a producer.
// It lives for the duration of a single relay/reconcile cycle and is treated
// as immutable once decoded.
type TelemetrySample struct {
	SimID     int    `json:"simNum"`
	Event     string `json:"event,omitempty"`
	PilotName string `json:"pilotName"`
	Car       string `json:"car"`
	Track     string `json:"track"`

	CurrentLap LapData `json:"currentLap"`
	Lap        int     `json:"lap"`
	TotalLaps  int     `json:"totalLaps"`

	SpeedKMH float64 `json:"speed"`
	RPM      int     `json:"rpm"`
	MaxRPM   int     `json:"maxRpm"`
	Gear     int     `json:"gear"`
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`

	FuelLevel    float64 `json:"fuelLevel"`
	FuelCapacity float64 `json:"fuelCapacity"`

	Position          int   `json:"position"`
	SessionTimeLeftMS int64 `json:"sessionTimeLeft"`

	// BestLapMS and BestTimeMS are wire synonyms for the personal-best
	// candidate; zero means absent. BestCandidate resolves them.
	BestLapMS  int64 `json:"bestLap,omitempty"`
	BestTimeMS int64 `json:"bestTime,omitempty"`

	// CarData is an open-ended extension bag for simulator-specific fields
	// that are relayed untouched.
	CarData map[string]any `json:"carData,omitempty"`
}

// BestCandidate resolves the bestLap/bestTime synonym pair into a single
// candidate lap time. BestLapMS wins when positive, then BestTimeMS.
// Returns 0 when the sample carries no usable candidate.
func (s *TelemetrySample) BestCandidate() int64 {
	if s.BestLapMS > 0 {
		return s.BestLapMS
	}
	if s.BestTimeMS > 0 {
		return s.BestTimeMS
	}
	return 0
}

// EventOrDefault returns the sample's event name, falling back to def when
// the sample carries none.
func (s *TelemetrySample) EventOrDefault(def string) string {
	if s.Event != "" {
		return s.Event
	}
	return def
}
