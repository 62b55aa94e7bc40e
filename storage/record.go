package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is a versioned, JSON-encoded value held by a Repository.
type Record struct {
	Data    []byte    `json:"data"`
	Version uint64    `json:"version,omitempty"`
	Updated time.Time `json:"updated"`
}

// Encode marshals v into a new Record carrying the given version.
func Encode(v any, version uint64) (*Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return &Record{Data: data, Version: version, Updated: time.Now().UTC()}, nil
}

// Decode unmarshals the record payload into v.
func (r *Record) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		Data:    append([]byte(nil), r.Data...),
		Version: r.Version,
		Updated: r.Updated,
	}
}
