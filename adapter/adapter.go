// Package adapter defines the contract between the pipeline and content
// sources, along with the concrete adapters. An adapter turns configuration
// into fetch targets and a fetched target into raw extracted items.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pevans/feedsnap/failure"
	"github.com/pevans/feedsnap/run"
)

// Target is one fetchable unit produced by an adapter.
type Target struct {
	ID        string // <adapterId>:<feedId>
	AdapterID string
	FeedID    string
	Kind      string
	URL       string
}

// Source attributes an item to the adapter and feed it came from.
type Source struct {
	AdapterID string `json:"adapterId"`
	FeedID    string `json:"feedId"`
}

// ExtractedItem is an adapter-local record prior to normalization. Only URL is
// guaranteed to be set.
type ExtractedItem struct {
	Source         Source
	URL            string
	Title          string
	Subtitle       string
	Author         string
	PublishedAt    string // RFC 3339 when the feed date parsed, else the raw value
	Tags           []string
	ExcerptSource  string // markup-bearing content fragment
	Image          string
	ReadingTimeMin int
	Metadata       map[string]any
}

// Result is the outcome of fetching and extracting one target. A degraded
// result may still carry partial items.
type Result struct {
	Target    Target
	FetchedAt time.Time
	Items     []ExtractedItem
	Errors    []string
	Degraded  bool
}

// Adapter is implemented by each content-source family.
//
// FetchAndExtract must not panic or fail for network or parse problems; those
// are reported as a degraded Result. A panic is treated as a programming
// error and aborts the run.
type Adapter interface {
	ID() string
	ListTargets(rs *run.Scope) ([]Target, error)
	FetchAndExtract(ctx context.Context, rs *run.Scope, target Target) Result
}

// Degrade marks the result degraded and records a coded error.
func (r *Result) Degrade(code failure.Code, err error) {
	r.Degraded = true
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", code, err))
}

// SortItems orders items by raw URL so merge order never depends on feed or
// network order.
func (r *Result) SortItems() {
	sort.SliceStable(r.Items, func(i, j int) bool {
		return r.Items[i].URL < r.Items[j].URL
	})
}

// Registry is the ordered list of adapters consulted on every run.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry holding the given adapters in order.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry holds the built-in adapters.
func DefaultRegistry() *Registry {
	return &Registry{adapters: []Adapter{NewMedium(), NewRSS()}}
}

// Register appends an adapter. Adapter ids must be unique.
func (r *Registry) Register(a Adapter) error {
	for _, existing := range r.adapters {
		if existing.ID() == a.ID() {
			return fmt.Errorf("adapter %q already registered", a.ID())
		}
	}
	r.adapters = append(r.adapters, a)
	return nil
}

// Adapters returns the registered adapters in registration order.
func (r *Registry) Adapters() []Adapter {
	out := make([]Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

func newTarget(adapterID, kind, feedID, url string) Target {
	return Target{
		ID:        adapterID + ":" + feedID,
		AdapterID: adapterID,
		FeedID:    feedID,
		Kind:      kind,
		URL:       url,
	}
}
