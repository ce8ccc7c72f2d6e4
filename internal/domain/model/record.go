package model

import "time"

// DefaultEventName is the sentinel event used for samples that carry no
// event name of their own.
const DefaultEventName = "default"

// BestRecord is the fastest accepted lap for one pilot within one event.
// Records are replaced wholesale on improvement, never merged field by field,
// so car/track/timestamp always describe the lap that set the record.
type BestRecord struct {
	PilotName     string    `json:"pilotName"`
	BestLapTimeMS int64     `json:"bestLapTime"`
	Car           string    `json:"car"`
	Track         string    `json:"track"`
	Timestamp     time.Time `json:"timestamp"`
	SimID         int       `json:"simNum"`
}

// EventTable groups best records by pilot for a named event. It is the unit
// of persistence: one table, one JSON file on disk.
type EventTable struct {
	EventName   string                `json:"eventName"`
	CreatedAt   time.Time             `json:"createdAt"`
	LastUpdated time.Time             `json:"lastUpdated"`
	Pilots      map[string]BestRecord `json:"pilots"`
}

// NewEventTable creates an empty table for name stamped at now.
func NewEventTable(name string, now time.Time) *EventTable {
	return &EventTable{
		EventName:   name,
		CreatedAt:   now,
		LastUpdated: now,
		Pilots:      make(map[string]BestRecord),
	}
}

// SetRecord replaces the pilot's record and refreshes LastUpdated.
// LastUpdated never moves backwards even if now does.
func (t *EventTable) SetRecord(rec BestRecord, now time.Time) {
	if t.Pilots == nil {
		t.Pilots = make(map[string]BestRecord)
	}
	t.Pilots[rec.PilotName] = rec
	if now.After(t.LastUpdated) {
		t.LastUpdated = now
	}
}

// Clone returns a deep copy of the table. The store hands clones to callers
// so cached state is only ever mutated through Put.
func (t *EventTable) Clone() *EventTable {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Pilots = make(map[string]BestRecord, len(t.Pilots))
	for k, v := range t.Pilots {
		cp.Pilots[k] = v
	}
	return &cp
}
