// Package likes holds the set of favorited story ids.
package likes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"metaphorspace/internal/store"
)

// Key is the preference key the liked ids live under.
const Key = "likedStories"

// Set is an ordered list of unique story ids. Membership is what matters;
// order is kept only so the persisted array stays stable across toggles.
type Set []int

func (s Set) Contains(id int) bool {
	return slices.Contains(s, id)
}

// Toggle returns a new set with id removed if present, or appended if absent.
// The receiver is never modified.
func (s Set) Toggle(id int) Set {
	if s.Contains(id) {
		out := make(Set, 0, len(s))
		for _, v := range s {
			if v != id {
				out = append(out, v)
			}
		}
		return out
	}
	out := make(Set, len(s), len(s)+1)
	copy(out, s)
	return append(out, id)
}

// IDs returns a copy of the ids in persisted order.
func (s Set) IDs() []int {
	return slices.Clone([]int(s))
}

// Encode renders the set as the JSON array stored under Key.
func (s Set) Encode() ([]byte, error) {
	if s == nil {
		s = Set{}
	}
	return json.Marshal([]int(s))
}

// Decode parses a stored JSON array. Duplicate ids are dropped.
func Decode(data []byte) (Set, error) {
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode liked set: %w", err)
	}
	out := make(Set, 0, len(ids))
	for _, id := range ids {
		if !out.Contains(id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// Load reads the liked set. A missing key yields an empty set.
func Load(ctx context.Context, prefs store.Preferences) (Set, error) {
	data, err := prefs.Get(ctx, Key)
	if errors.Is(err, store.ErrNotFound) {
		return Set{}, nil
	}
	if err != nil {
		return Set{}, fmt.Errorf("load liked set: %w", err)
	}
	return Decode(data)
}

// Save writes the liked set.
func Save(ctx context.Context, prefs store.Preferences, s Set) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	if err := prefs.Set(ctx, Key, data); err != nil {
		return fmt.Errorf("save liked set: %w", err)
	}
	return nil
}
