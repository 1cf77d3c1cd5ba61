package normalize

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/feedsnap/adapter"
	"github.com/pevans/feedsnap/failure"
	"github.com/pevans/feedsnap/snapshot"
)

func newItem(url, title string) adapter.ExtractedItem {
	return adapter.ExtractedItem{
		Source:        adapter.Source{AdapterID: "rss", FeedID: "blog"},
		URL:           url,
		Title:         title,
		Author:        "Ada Park",
		PublishedAt:   "2026-10-06T14:03:11Z",
		Tags:          []string{"Go"},
		ExcerptSource: "<p>Hello <b>world</b>.</p>",
	}
}

// TestCanonicalURL verifies tracking parameters and fragments are removed
func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://Example.COM/post/", "https://example.com/post"},
		{"HTTPS://example.com/post#comments", "https://example.com/post"},
		{"https://example.com/post/?utm_source=rss&utm_medium=feed", "https://example.com/post"},
		{"https://example.com/post?b=2&fbclid=x&a=1&gclid=y", "https://example.com/post?a=1&b=2"},
		{"https://example.com/post?mc_cid=1&mc_eid=2&ref=home", "https://example.com/post?ref=home"},
		{"https://example.com/a//", "https://example.com/a/"},
		{"http://example.com/", "http://example.com"},
		{"  https://example.com/x  ", "https://example.com/x"},
		{"https://example.com/x%2Fy/", "https://example.com/x%2Fy"},
		{"https://example.com/post?tag=b&tag=a&utm_id=1", "https://example.com/post?tag=b&tag=a"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := CanonicalURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestCanonicalURL_Distinct verifies URLs that address different resources
// keep different canonical forms
func TestCanonicalURL_Distinct(t *testing.T) {
	pairs := [][2]string{
		{"https://example.com/post?a=1&a=0", "https://example.com/post?a=0&a=1"},
		{"https://example.com/x%2Fy/", "https://example.com/x/y/"},
	}

	for _, pair := range pairs {
		a, err := CanonicalURL(pair[0])
		require.NoError(t, err)
		b, err := CanonicalURL(pair[1])
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	}
}

// TestCanonicalURL_Invalid verifies non-web URLs are rejected
func TestCanonicalURL_Invalid(t *testing.T) {
	for _, raw := range []string{"", "/relative/path", "ftp://example.com/file", "mailto:a@example.com", "https://"} {
		_, err := CanonicalURL(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

// TestPlainText verifies markup and embedded code are stripped
func TestPlainText(t *testing.T) {
	html := `<div><h2>Title</h2><p>First&nbsp;line</p><script>alert("x")</script>` +
		`<style>p { color: red }</style><p>Second   line<br>third</p></div>`

	assert.Equal(t, "Title First line Second line third", PlainText(html))
	assert.Equal(t, "", PlainText("   "))
	assert.Equal(t, "plain words", PlainText("plain\n\twords"))
}

// TestTruncate verifies word-boundary truncation with an ellipsis
func TestTruncate(t *testing.T) {
	words := strings.Fields(strings.Repeat("lorem ipsum dolor sit amet consectetur ", 10))
	text := strings.Join(words, " ")
	text = text[:250]
	require.Equal(t, 250, utf8.RuneCountInString(text))

	got := Truncate(text, 200)

	assert.LessOrEqual(t, utf8.RuneCountInString(got), 200)
	assert.True(t, strings.HasSuffix(got, Ellipsis))
	head := strings.TrimSuffix(got, Ellipsis)
	assert.True(t, strings.HasPrefix(text, head))
	next := text[len(head)]
	assert.Equal(t, byte(' '), next, "cut must fall on a word boundary")
	assert.Greater(t, utf8.RuneCountInString(got), 180, "cut should be the last boundary")
}

// TestTruncate_Edges verifies short text and oversized words
func TestTruncate_Edges(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 200))
	assert.Equal(t, "exactly", Truncate("exactly", 7))

	got := Truncate(strings.Repeat("x", 30), 10)
	assert.Equal(t, strings.Repeat("x", 9)+Ellipsis, got)

	assert.Equal(t, "one two"+Ellipsis, Truncate("one two, three", 12))
}

// TestConfidence verifies the scoring formula
func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.85, Confidence(false, true))
	assert.Equal(t, 0.75, Confidence(true, true))
	assert.Equal(t, 0.80, Confidence(false, false))
	assert.Equal(t, 0.70, Confidence(true, false))
}

// TestTags verifies cleanup and limits
func TestTags(t *testing.T) {
	raw := []string{"Go", "go", " Postgres ", "", strings.Repeat("x", 51), "API"}
	assert.Equal(t, []string{"api", "go", "postgres"}, Tags(raw))
	assert.Equal(t, []string{}, Tags(nil))

	many := make([]string, 20)
	for i := range many {
		many[i] = fmt.Sprintf("tag%02d", 19-i)
	}
	got := Tags(many)
	require.Len(t, got, 15)
	assert.Equal(t, "tag00", got[0])
	assert.Equal(t, "tag14", got[14])
}

// TestParseTime verifies common feed date layouts
func TestParseTime(t *testing.T) {
	tests := map[string]string{
		"2026-10-06T14:03:11Z":            "2026-10-06T14:03:11Z",
		"2026-10-06T16:03:11.5+02:00":     "2026-10-06T14:03:11Z",
		"Tue, 06 Oct 2026 14:03:11 +0000": "2026-10-06T14:03:11Z",
		"Tue, 6 Oct 2026 14:03:11 GMT":    "2026-10-06T14:03:11Z",
		"2026-10-06":                      "2026-10-06T00:00:00Z",
	}
	for raw, want := range tests {
		got, err := ParseTime(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got.Format("2006-01-02T15:04:05Z07:00"), raw)
	}

	_, err := ParseTime("")
	assert.ErrorIs(t, err, ErrMissingPublishedAt)
	_, err = ParseTime("last tuesday")
	assert.ErrorIs(t, err, ErrInvalidPublishedAt)
}

// TestItem verifies a complete item normalizes to a consistent article
func TestItem(t *testing.T) {
	x := newItem("https://Example.com/post/?utm_source=rss", "  Hello  world ")
	x.Image = "https://example.com/cover.png"
	x.ReadingTimeMin = 3
	x.Subtitle = "A subtitle"

	a, err := New(200).Item(x)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/post", a.CanonicalURL)
	assert.Equal(t, "https://Example.com/post/?utm_source=rss", a.URL)
	assert.Equal(t, snapshot.DeriveID("https://example.com/post"), a.ID)
	assert.Equal(t, snapshot.Source{AdapterID: "rss", FeedID: "blog"}, a.Source)
	assert.Equal(t, "Hello world", a.Title)
	assert.Equal(t, "A subtitle", *a.Subtitle)
	assert.Equal(t, "Ada Park", a.Author)
	assert.Equal(t, "2026-10-06T14:03:11Z", a.PublishedAt)
	assert.Equal(t, []string{"go"}, a.Tags)
	assert.Equal(t, "Hello world.", *a.Excerpt)
	assert.Equal(t, "https://example.com/cover.png", *a.Image)
	assert.Equal(t, 3, *a.ReadingTimeMin)
	assert.Equal(t, 0.85, a.Confidence)
	assert.Equal(t, snapshot.ContentHash(a), a.Hash)
	assert.NotNil(t, a.Meta.Extensions)
}

// TestItem_Defaults verifies the unknown-author and no-excerpt path
func TestItem_Defaults(t *testing.T) {
	x := newItem("https://example.com/bare", "Bare")
	x.Author = ""
	x.ExcerptSource = "<script>only()</script>"
	x.Image = "http://example.com/insecure.png"

	a, err := New(200).Item(x)
	require.NoError(t, err)

	assert.Equal(t, snapshot.UnknownAuthor, a.Author)
	assert.Nil(t, a.Excerpt)
	assert.Nil(t, a.Image)
	assert.Nil(t, a.ReadingTimeMin)
	assert.Nil(t, a.Subtitle)
	assert.Equal(t, 0.70, a.Confidence)
}

// TestItem_Malformed verifies rejected items carry ITEM_MALFORMED
func TestItem_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*adapter.ExtractedItem)
		want   error
	}{
		{"bad url", func(x *adapter.ExtractedItem) { x.URL = "not a url" }, ErrInvalidURL},
		{"no title", func(x *adapter.ExtractedItem) { x.Title = "   " }, ErrMissingTitle},
		{"long title", func(x *adapter.ExtractedItem) { x.Title = strings.Repeat("t", 501) }, ErrTitleTooLong},
		{"no date", func(x *adapter.ExtractedItem) { x.PublishedAt = "" }, ErrMissingPublishedAt},
		{"bad date", func(x *adapter.ExtractedItem) { x.PublishedAt = "soon" }, ErrInvalidPublishedAt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := newItem("https://example.com/p", "Title")
			tt.mutate(&x)

			_, err := New(200).Item(x)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, failure.ItemMalformed, failure.CodeOf(err))
		})
	}
}

// TestNormalize verifies ordering, deduplication and rejection
func TestNormalize(t *testing.T) {
	items := []adapter.ExtractedItem{
		newItem("https://example.com/c", "C"),
		newItem("https://example.com/a", "A"),
		newItem("https://example.com/a?utm_campaign=x", "A again"),
		newItem("https://example.com/b", ""),
		newItem("https://example.com/d#top", "D"),
	}

	out := New(200).Normalize(items)

	require.Len(t, out.Items, 3)
	for i := 1; i < len(out.Items); i++ {
		assert.Less(t, out.Items[i-1].ID, out.Items[i].ID)
	}
	assert.Equal(t, 1, out.Duplicates)
	require.Len(t, out.Rejected, 1)
	assert.Equal(t, "https://example.com/b", out.Rejected[0].Item.URL)

	for _, a := range out.Items {
		if a.CanonicalURL == "https://example.com/a" {
			assert.Equal(t, "A", a.Title, "first occurrence wins")
		}
	}
}

// TestNormalize_OrderIndependent verifies output does not depend on input order
func TestNormalize_OrderIndependent(t *testing.T) {
	forward := []adapter.ExtractedItem{
		newItem("https://example.com/1", "One"),
		newItem("https://example.com/2", "Two"),
		newItem("https://example.com/3", "Three"),
	}
	reversed := []adapter.ExtractedItem{forward[2], forward[1], forward[0]}

	n := New(200)
	assert.Equal(t, n.Normalize(forward).Items, n.Normalize(reversed).Items)
	assert.Equal(t, []snapshot.ArticleMeta{}, n.Normalize(nil).Items)
}
