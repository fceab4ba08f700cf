package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Flag is one entry of the /v1/flags listing: the value of a flag in one
// environment. Rollout, RulesJSON and the audit fields are carried for callers
// that inspect the raw listing; evaluation does not use them. UpdatedAt is the
// ISO 8601 string as sent.
type Flag struct {
	FlagID        string          `json:"flag_id"`
	Key           string          `json:"key,omitempty"`
	EnvironmentID string          `json:"environment_id"`
	Type          string          `json:"type,omitempty"`
	ValueJSON     json.RawMessage `json:"value_json"`
	Rollout       float64         `json:"rollout"`
	RulesJSON     json.RawMessage `json:"rules_json,omitempty"`
	UpdatedAt     string          `json:"updated_at,omitempty"`
	UpdatedBy     string          `json:"updated_by"`
}

// SnapshotKey is the key a flag is stored under: Key, or FlagID when Key is
// absent.
func (f Flag) SnapshotKey() string {
	if f.Key != "" {
		return f.Key
	}
	return f.FlagID
}

// entry is the part of a listed flag a Snapshot is built from. Other fields
// never fail a decode.
type entry struct {
	FlagID    string          `json:"flag_id"`
	Key       string          `json:"key"`
	ValueJSON json.RawMessage `json:"value_json"`
}

func (e entry) snapshotKey() string {
	return Flag{FlagID: e.FlagID, Key: e.Key}.SnapshotKey()
}

// Payload is the body of a 200 response from /v1/flags.
type Payload struct {
	Flags []Flag `json:"flags"`
}

// DecodePayload parses a /v1/flags response body into a Snapshot tagged with
// validator. Any failure is returned as a *PayloadError.
func DecodePayload(data []byte, validator string) (*Snapshot, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &PayloadError{Err: err}
	}
	rawFlags, ok := envelope["flags"]
	if !ok || bytes.Equal(bytes.TrimSpace(rawFlags), []byte("null")) {
		return nil, &PayloadError{Err: errors.New(`missing "flags" field`)}
	}
	var flags []entry
	if err := json.Unmarshal(rawFlags, &flags); err != nil {
		return nil, &PayloadError{Err: err}
	}

	values := make(map[string]Value, len(flags))
	for i, flag := range flags {
		key := flag.snapshotKey()
		if key == "" {
			return nil, &PayloadError{Err: fmt.Errorf("flag %d has neither key nor flag_id", i)}
		}
		value, err := ValueFromJSON(flag.ValueJSON)
		if err != nil {
			return nil, &PayloadError{Err: fmt.Errorf("flag %q: %w", key, err)}
		}
		values[key] = value
	}
	return NewSnapshot(values, validator), nil
}
