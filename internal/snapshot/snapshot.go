// Package snapshot holds the last-observed set of active entities per
// credential and the set-difference diff that turns two observations into
// transition events.
//
// A snapshot's absence (credential never polled) is distinct from an empty
// snapshot (polled, nothing active): the first observation is a baseline and
// must not produce events, while an observed empty set against a non-empty
// previous one ends every previously active entity.
package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"streamwire/internal/providers"
)

// CurrentVersion is the snapshot envelope version written on encode.
const CurrentVersion = 1

// Snapshot is the persisted record of active entity keys for one credential,
// tagged with the provider and capture time. The JSON envelope is versioned;
// unknown fields are ignored on read so the schema can evolve without
// breaking stored blobs.
type Snapshot struct {
	Version    int       `json:"version"`
	Provider   string    `json:"provider"`
	CapturedAt time.Time `json:"captured_at"`
	Keys       []string  `json:"keys"`
}

// legacyEntry is the layout the original schema stored: a bare JSON array of
// objects with a user_name field. Accepted on read for migration.
type legacyEntry struct {
	UserName string `json:"user_name"`
}

// New captures the current entity set as a snapshot. Keys are sorted so
// encodings are deterministic.
func New(provider string, entities []providers.Entity) *Snapshot {
	keys := make([]string, 0, len(entities))
	for _, entity := range entities {
		keys = append(keys, entity.Key)
	}
	sort.Strings(keys)

	return &Snapshot{
		Version:    CurrentVersion,
		Provider:   provider,
		CapturedAt: time.Now().UTC(),
		Keys:       keys,
	}
}

// Encode serializes the snapshot envelope.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a stored snapshot blob. A nil or empty blob decodes to nil,
// meaning the credential has never been polled. Version-0 blobs (the bare
// key-object array of the original schema) are normalised into the current
// envelope.
func Decode(blob []byte) (*Snapshot, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	if blob[0] == '[' {
		var entries []legacyEntry
		if err := json.Unmarshal(blob, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode legacy snapshot: %w", err)
		}
		keys := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.UserName != "" {
				keys = append(keys, entry.UserName)
			}
		}
		sort.Strings(keys)
		return &Snapshot{Version: 0, Keys: keys}, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Diff computes the transitions between a previous snapshot and the current
// observation. Started holds entities present now but not before; Ended holds
// key-only entities present before but not now (their attributes are unknown
// once gone). Entities in both sets produce nothing. Order-independent, and a
// key repeated in the current observation counts once.
//
// Diff must not be called with a nil prev: the first observation is a
// baseline, not a state change, and the caller persists it without diffing.
func Diff(prev *Snapshot, curr []providers.Entity) (started, ended []providers.Entity) {
	previous := make(map[string]struct{}, len(prev.Keys))
	for _, key := range prev.Keys {
		previous[key] = struct{}{}
	}

	current := make(map[string]struct{}, len(curr))
	for _, entity := range curr {
		if _, seen := current[entity.Key]; seen {
			continue
		}
		current[entity.Key] = struct{}{}
		if _, wasActive := previous[entity.Key]; !wasActive {
			started = append(started, entity)
		}
	}

	for _, key := range prev.Keys {
		if _, stillActive := current[key]; !stillActive {
			ended = append(ended, providers.Entity{Key: key})
		}
	}

	return started, ended
}
