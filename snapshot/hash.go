package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	// HashAlgorithm prefixes every stored content hash.
	HashAlgorithm = "sha256"

	// IDLength is the number of hex characters kept from the URL digest.
	IDLength = 32

	hashDelimiter = "\x1f"
)

// DeriveID returns the item id for a canonical URL: the first IDLength hex
// characters of its SHA-256 digest.
func DeriveID(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// ContentHash fingerprints the substantive fields of an article. It changes
// if and only if one of those fields changes.
func ContentHash(a ArticleMeta) string {
	readingTime := ""
	if a.ReadingTimeMin != nil {
		readingTime = strconv.Itoa(*a.ReadingTimeMin)
	}

	fields := []string{
		a.CanonicalURL,
		a.Title,
		a.Author,
		a.PublishedAt,
		deref(a.Excerpt),
		deref(a.Image),
		readingTime,
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, hashDelimiter)))
	return HashAlgorithm + ":" + hex.EncodeToString(sum[:])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
