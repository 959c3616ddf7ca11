package model

import (
	"encoding/json"
	"strconv"
)

// ModuleKind identifies what a monitoring-site module does.
type ModuleKind string

const (
	ModuleKindCamera  ModuleKind = "camera"
	ModuleKindGPS     ModuleKind = "gps"
	ModuleKindWeather ModuleKind = "weather"
	ModuleKindAudio   ModuleKind = "audio"
)

// Module is one monitoring-site module belonging to a herd: a camera trap, a
// GPS collar feed, a weather station, and so on. It is the domain object the
// Scout application caches under the "herd_modules" collection.
type Module struct {
	ID        int64           `json:"id"`
	HerdID    int64           `json:"herd_id"`
	Name      string          `json:"name"`
	Kind      ModuleKind      `json:"kind"`
	Enabled   bool            `json:"enabled"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	UpdatedAt int64           `json:"updated_at,omitempty"` // ms since epoch
}

// CacheKey returns the module's stable record key. A zero ID yields an empty
// key, which the cache treats as a malformed record and drops on read.
func (m Module) CacheKey() string {
	if m.ID == 0 {
		return ""
	}
	return strconv.FormatInt(m.ID, 10)
}

// SortLabel returns the human-readable field cached reads are ordered by.
func (m Module) SortLabel() string {
	return m.Name
}
