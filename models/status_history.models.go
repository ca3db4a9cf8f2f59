package models

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// StatusEntry is one recorded order status change.
type StatusEntry struct {
	Status    OrderStatus `bson:"status" json:"status"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
	Note      string      `bson:"note,omitempty" json:"note,omitempty"`
}

// StatusLog is the append-only status history of an order. Entries cannot be
// removed or rewritten; the current status is the status of the last entry.
type StatusLog struct {
	entries []StatusEntry
}

// NewStatusLog starts a log with its initial entry.
func NewStatusLog(status OrderStatus, at time.Time, note string) StatusLog {
	return StatusLog{entries: []StatusEntry{{Status: status, Timestamp: at, Note: note}}}
}

// Append records a new entry at the end of the log.
func (l *StatusLog) Append(status OrderStatus, at time.Time, note string) {
	l.entries = append(l.entries, StatusEntry{Status: status, Timestamp: at, Note: note})
}

// Current returns the status of the last entry, or "" for an empty log.
func (l StatusLog) Current() OrderStatus {
	if len(l.entries) == 0 {
		return ""
	}
	return l.entries[len(l.entries)-1].Status
}

// Len returns the number of entries.
func (l StatusLog) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the recorded entries.
func (l StatusLog) Entries() []StatusEntry {
	out := make([]StatusEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l StatusLog) list() []StatusEntry {
	if l.entries == nil {
		return []StatusEntry{}
	}
	return l.entries
}

// MarshalBSONValue stores the log as a plain array.
func (l StatusLog) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(l.list())
}

// UnmarshalBSONValue restores the log from a stored array.
func (l *StatusLog) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var entries []StatusEntry
	if t == bsontype.Null {
		l.entries = nil
		return nil
	}
	if err := (bson.RawValue{Type: t, Value: data}).Unmarshal(&entries); err != nil {
		return err
	}
	l.entries = entries
	return nil
}

// MarshalJSON renders the log as a plain array.
func (l StatusLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.list())
}

// UnmarshalJSON restores the log from a plain array.
func (l *StatusLog) UnmarshalJSON(data []byte) error {
	var entries []StatusEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	l.entries = entries
	return nil
}
