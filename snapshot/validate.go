package snapshot

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Masterminds/semver/v3"

	"github.com/pevans/feedsnap/failure"
)

// Limits enforced on every admitted article.
const (
	MaxTitleLength = 500
	MaxTags        = 15
	MaxTagLength   = 50
	MinConfidence  = 0.50
	MaxConfidence  = 1.0
)

// Schema validation errors.
var (
	ErrSpecVersion      = errors.New("unsupported specVersion")
	ErrGeneratorVersion = errors.New("generatorVersion is not a semantic version")
	ErrGeneratedAt      = errors.New("generatedAt is not an RFC 3339 UTC timestamp")
	ErrItemOrder        = errors.New("items are not sorted by id")
	ErrDuplicateID      = errors.New("duplicate item id")
	ErrIDMismatch       = errors.New("item id does not match its canonical URL")
	ErrHashMismatch     = errors.New("item hash does not match its content")
	ErrConfidence       = errors.New("item confidence out of range")
	ErrTitle            = errors.New("item title must be 1-500 characters")
	ErrAuthor           = errors.New("item author is required")
	ErrPublishedAt      = errors.New("item publishedAt is not an RFC 3339 UTC timestamp")
	ErrTags             = errors.New("item tags violate limits")
	ErrExcerpt          = errors.New("item excerpt exceeds maximum length")
	ErrImage            = errors.New("item image must be an absolute https URL")
	ErrReadingTime      = errors.New("item readingTimeMin must be at least 1")
	ErrAlerts           = errors.New("alerts must be an empty list")
	ErrNilCollection    = errors.New("sources, items and tags must not be null")
)

// Validate checks a candidate snapshot against the artifact schema. Every
// violation is reported; the returned error is a VALIDATION_FAIL.
func Validate(s *Snapshot, excerptMax int) error {
	var errs []error

	if s.SpecVersion != SpecVersion {
		errs = append(errs, fmt.Errorf("%w: %d", ErrSpecVersion, s.SpecVersion))
	}
	if _, err := semver.StrictNewVersion(s.GeneratorVersion); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrGeneratorVersion, s.GeneratorVersion))
	}
	if !isUTCTimestamp(s.GeneratedAt) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrGeneratedAt, s.GeneratedAt))
	}
	if s.Sources == nil || s.Items == nil {
		errs = append(errs, ErrNilCollection)
	}
	if s.Alerts == nil || len(s.Alerts) != 0 {
		errs = append(errs, ErrAlerts)
	}

	for i, item := range s.Items {
		if i > 0 {
			prev := s.Items[i-1].ID
			if prev == item.ID {
				errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateID, item.ID))
			} else if prev > item.ID {
				errs = append(errs, fmt.Errorf("%w: %s before %s", ErrItemOrder, prev, item.ID))
			}
		}
		errs = append(errs, validateItem(item, excerptMax)...)
	}

	if err := errors.Join(errs...); err != nil {
		return failure.New(failure.ValidationFail, err)
	}
	return nil
}

func validateItem(a ArticleMeta, excerptMax int) []error {
	var errs []error
	wrap := func(err error) {
		errs = append(errs, fmt.Errorf("%w: item %s", err, a.ID))
	}

	if DeriveID(a.CanonicalURL) != a.ID {
		wrap(ErrIDMismatch)
	}
	if ContentHash(a) != a.Hash {
		wrap(ErrHashMismatch)
	}
	if a.Confidence < MinConfidence || a.Confidence > MaxConfidence {
		wrap(ErrConfidence)
	}
	if n := utf8.RuneCountInString(a.Title); n < 1 || n > MaxTitleLength {
		wrap(ErrTitle)
	}
	if a.Author == "" {
		wrap(ErrAuthor)
	}
	if !isUTCTimestamp(a.PublishedAt) {
		wrap(ErrPublishedAt)
	}
	if a.Tags == nil {
		wrap(ErrNilCollection)
	} else if !validTags(a.Tags) {
		wrap(ErrTags)
	}
	if a.Excerpt != nil && utf8.RuneCountInString(*a.Excerpt) > excerptMax {
		wrap(ErrExcerpt)
	}
	if a.Image != nil {
		u, err := url.Parse(*a.Image)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			wrap(ErrImage)
		}
	}
	if a.ReadingTimeMin != nil && *a.ReadingTimeMin < 1 {
		wrap(ErrReadingTime)
	}

	return errs
}

func validTags(tags []string) bool {
	if len(tags) > MaxTags {
		return false
	}
	for i, tag := range tags {
		if tag == "" || tag != strings.ToLower(tag) || utf8.RuneCountInString(tag) > MaxTagLength {
			return false
		}
		if i > 0 && tags[i-1] >= tag {
			return false
		}
	}
	return true
}

func isUTCTimestamp(s string) bool {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return false
	}
	_, offset := t.Zone()
	return offset == 0 && s[len(s)-1] == 'Z'
}
