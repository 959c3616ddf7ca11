package model

import "time"

// RecordEnvelope wraps one cached domain object as it sits in the record
// table. Payload is the JSON-encoded domain object; the envelope carries the
// bookkeeping the cache needs to judge validity without decoding it.
type RecordEnvelope struct {
	DomainID      string `json:"domain_id"`
	Collection    string `json:"collection"`
	Payload       []byte `json:"payload"`
	WrittenAt     int64  `json:"written_at"` // ms since epoch
	SchemaVersion int    `json:"schema_version"`
}

// CollectionMetadata is the singleton bookkeeping row for one cached
// collection. WrittenAt is the timestamp of the last full collection write.
type CollectionMetadata struct {
	Name          string `json:"name"`
	WrittenAt     int64  `json:"written_at"` // ms since epoch
	TTLMillis     int64  `json:"ttl_ms"`
	FormatVersion string `json:"format_version"`
	SchemaVersion int    `json:"schema_version"`
	ETag          string `json:"etag,omitempty"`
	LastModified  string `json:"last_modified,omitempty"`
}

// Age returns the wall-clock age of the collection at the given instant.
func (m CollectionMetadata) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-m.WrittenAt) * time.Millisecond
}

// Stale reports whether the collection has outlived its TTL at the given
// instant. A zero or negative TTL makes every read stale.
func (m CollectionMetadata) Stale(now time.Time) bool {
	return m.Age(now) > time.Duration(m.TTLMillis)*time.Millisecond
}

// CacheStats is a point-in-time snapshot of one collection combined with the
// process-lifetime hit/miss counters.
type CacheStats struct {
	Size        int       `json:"size"`
	LastUpdated time.Time `json:"last_updated"`
	IsStale     bool      `json:"is_stale"`
	HitRate     float64   `json:"hit_rate"`
	TotalHits   int64     `json:"total_hits"`
	TotalMisses int64     `json:"total_misses"`
}

// HealthReport collects the outcome of the cache health probes. Issues holds
// one human-readable string per failed probe; an empty list means healthy.
type HealthReport struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues"`
}

// Decision is the verdict of a refresh-policy evaluation.
type Decision struct {
	Refresh bool   `json:"refresh"`
	Reason  string `json:"reason"`
}
