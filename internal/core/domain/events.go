package domain

import "time"

// AssetEventType identifies what happened to an asset source.
type AssetEventType string

const (
	// AssetEventChanged is emitted when a template source is written or replaced.
	AssetEventChanged AssetEventType = "changed"
	// AssetEventRemoved is emitted when a template source disappears.
	AssetEventRemoved AssetEventType = "removed"
)

// AssetEvent notifies debug clients that a compiled asset will differ on the
// next request.
type AssetEvent struct {
	Type      AssetEventType `json:"type"`
	Asset     string         `json:"asset"`
	Route     string         `json:"route"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}
