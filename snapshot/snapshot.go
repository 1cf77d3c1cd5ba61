// Package snapshot defines the versioned JSON artifact produced by a run,
// along with its schema validation, content hashing, and the diff-then-write
// commit step.
package snapshot

import "encoding/json"

// SpecVersion is the structural version of the artifact. It changes only for
// breaking changes; new optional fields never bump it.
const SpecVersion = 1

// GeneratorVersion is the semver of the code that produced a snapshot. It is
// overridden at build time with -ldflags.
var GeneratorVersion = "1.0.0"

// UnknownAuthor is the sentinel stored when an item names no author.
const UnknownAuthor = "unknown"

// Snapshot is the complete artifact of one run.
type Snapshot struct {
	SpecVersion      int               `json:"specVersion"`
	GeneratorVersion string            `json:"generatorVersion"`
	GeneratedAt      string            `json:"generatedAt"`
	Metrics          Metrics           `json:"metrics"`
	Sources          []SourceEntry     `json:"sources"`
	Items            []ArticleMeta     `json:"items"`
	Alerts           []json.RawMessage `json:"alerts"`
	Meta             Meta              `json:"meta"`
}

// Metrics are the aggregate statistics of a run.
type Metrics struct {
	ItemCount        int     `json:"itemCount"`
	AvgConfidence    float64 `json:"avgConfidence"`
	MinConfidence    float64 `json:"minConfidence"`
	SourcesSucceeded int     `json:"sourcesSucceeded"`
	SourcesFailed    int     `json:"sourcesFailed"`
	DiscoveredCount  int     `json:"discoveredCount"`
	MalformedCount   int     `json:"malformedCount"`
	DuplicateCount   int     `json:"duplicateCount"`
	FieldCoverage    float64 `json:"fieldCoverage"`
	RunDurationMs    int64   `json:"runDurationMs"`
}

// SourceEntry reports how one target fared during the run.
type SourceEntry struct {
	ID        string   `json:"id"`
	FetchedAt string   `json:"fetchedAt"`
	ItemCount int      `json:"itemCount"`
	Errors    []string `json:"errors"`
	Degraded  bool     `json:"degraded"`
}

// Source attributes an article to an adapter and feed.
type Source struct {
	AdapterID string `json:"adapterId"`
	FeedID    string `json:"feedId"`
}

// ArticleMeta is the canonical, client-facing article record.
type ArticleMeta struct {
	ID             string   `json:"id"`
	URL            string   `json:"url"`
	CanonicalURL   string   `json:"canonicalUrl"`
	Source         Source   `json:"source"`
	Title          string   `json:"title"`
	Subtitle       *string  `json:"subtitle,omitempty"`
	Author         string   `json:"author"`
	PublishedAt    string   `json:"publishedAt"`
	Tags           []string `json:"tags"`
	Excerpt        *string  `json:"excerpt,omitempty"`
	Image          *string  `json:"image"`
	ReadingTimeMin *int     `json:"readingTimeMin,omitempty"`
	Confidence     float64  `json:"confidence"`
	Hash           string   `json:"hash"`
	Meta           Meta     `json:"meta"`
}

// Meta is the open namespace reserved for future fields.
type Meta struct {
	Extensions map[string]any `json:"extensions"`
}

// NewMeta returns a Meta with an empty, non-nil extensions map.
func NewMeta() Meta {
	return Meta{Extensions: map[string]any{}}
}
