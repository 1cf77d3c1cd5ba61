// Package normalize turns adapter-extracted items into canonical article
// records: URL canonicalization, id and hash derivation, field cleanup,
// excerpts and confidence scoring.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pevans/feedsnap/adapter"
	"github.com/pevans/feedsnap/failure"
	"github.com/pevans/feedsnap/snapshot"
)

// Confidence scoring.
const (
	BaseConfidence       = 0.85
	UnknownAuthorPenalty = 0.10
	NoExcerptPenalty     = 0.05
	ConfidenceFloor      = 0.50
)

// Item rejection reasons. Each is reported as ITEM_MALFORMED.
var (
	ErrMissingTitle       = errors.New("title is missing")
	ErrTitleTooLong       = errors.New("title exceeds 500 characters")
	ErrMissingPublishedAt = errors.New("publishedAt is missing")
	ErrInvalidPublishedAt = errors.New("publishedAt is not a valid instant")
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Rejection records an item dropped during normalization.
type Rejection struct {
	Item adapter.ExtractedItem
	Err  error
}

// Outcome is the result of normalizing one run's merged items.
type Outcome struct {
	Items      []snapshot.ArticleMeta // sorted by id
	Rejected   []Rejection
	Duplicates int
}

// Normalizer converts extracted items into articles.
type Normalizer struct {
	excerptMax int
}

// New creates a normalizer that truncates excerpts to excerptMax characters.
func New(excerptMax int) *Normalizer {
	return &Normalizer{excerptMax: excerptMax}
}

// Normalize converts items in merge order. Malformed items are rejected; when
// two items share an id, the first one wins. The admitted articles are sorted
// by id.
func (n *Normalizer) Normalize(items []adapter.ExtractedItem) Outcome {
	out := Outcome{Items: []snapshot.ArticleMeta{}}
	seen := make(map[string]bool, len(items))

	for _, item := range items {
		article, err := n.Item(item)
		if err != nil {
			out.Rejected = append(out.Rejected, Rejection{Item: item, Err: err})
			continue
		}
		if seen[article.ID] {
			out.Duplicates++
			continue
		}
		seen[article.ID] = true
		out.Items = append(out.Items, article)
	}

	sort.Slice(out.Items, func(i, j int) bool {
		return out.Items[i].ID < out.Items[j].ID
	})

	return out
}

// Item normalizes one extracted item. Rejections are ITEM_MALFORMED errors.
func (n *Normalizer) Item(x adapter.ExtractedItem) (snapshot.ArticleMeta, error) {
	malformed := func(err error) (snapshot.ArticleMeta, error) {
		return snapshot.ArticleMeta{}, failure.New(failure.ItemMalformed, fmt.Errorf("%s: %w", x.URL, err))
	}

	canonical, err := CanonicalURL(x.URL)
	if err != nil {
		return malformed(err)
	}

	title := collapse(x.Title)
	switch {
	case title == "":
		return malformed(ErrMissingTitle)
	case utf8.RuneCountInString(title) > snapshot.MaxTitleLength:
		return malformed(ErrTitleTooLong)
	}

	publishedAt, err := ParseTime(x.PublishedAt)
	if err != nil {
		return malformed(err)
	}

	author := collapse(x.Author)
	authorUnknown := author == ""
	if authorUnknown {
		author = snapshot.UnknownAuthor
	}

	article := snapshot.ArticleMeta{
		ID:           snapshot.DeriveID(canonical),
		URL:          strings.TrimSpace(x.URL),
		CanonicalURL: canonical,
		Source: snapshot.Source{
			AdapterID: x.Source.AdapterID,
			FeedID:    x.Source.FeedID,
		},
		Title:       title,
		Subtitle:    optional(collapse(x.Subtitle)),
		Author:      author,
		PublishedAt: publishedAt.Format(time.RFC3339),
		Tags:        Tags(x.Tags),
		Image:       httpsImage(x.Image),
		Meta:        snapshot.NewMeta(),
	}

	if text := PlainText(x.ExcerptSource); text != "" {
		excerpt := Truncate(text, n.excerptMax)
		article.Excerpt = &excerpt
	}
	if x.ReadingTimeMin > 0 {
		minutes := x.ReadingTimeMin
		article.ReadingTimeMin = &minutes
	}

	article.Confidence = Confidence(authorUnknown, article.Excerpt != nil)
	article.Hash = snapshot.ContentHash(article)

	return article, nil
}

// Confidence scores an item's completeness, rounded to two decimals.
func Confidence(authorUnknown, hasExcerpt bool) float64 {
	score := BaseConfidence
	if authorUnknown {
		score -= UnknownAuthorPenalty
	}
	if !hasExcerpt {
		score -= NoExcerptPenalty
	}
	score = math.Round(score*100) / 100
	return math.Max(score, ConfidenceFloor)
}

// Tags lowercases, deduplicates and sorts tags. Tags longer than 50
// characters are dropped and at most 15 are kept.
func Tags(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	tags := []string{}
	for _, tag := range raw {
		tag = strings.ToLower(collapse(tag))
		if tag == "" || utf8.RuneCountInString(tag) > snapshot.MaxTagLength || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	if len(tags) > snapshot.MaxTags {
		tags = tags[:snapshot.MaxTags]
	}
	return tags
}

// ParseTime parses a feed timestamp in any of the common feed layouts and
// returns it in UTC at second precision.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrMissingPublishedAt
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPublishedAt, raw)
}

func httpsImage(raw string) *string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil
	}
	s := u.String()
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
