package adapter

import (
	"context"
	"math"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/pevans/feedsnap/logging"
	"github.com/pevans/feedsnap/run"
)

// MediumID is the adapter id of the Medium adapter.
const MediumID = "medium"

// mediumWordsPerMinute matches Medium's own reading-time estimate.
const mediumWordsPerMinute = 265

// Medium reads feeds from the Medium publishing platform. Feed hosts must be
// on the Medium allowlist; item content comes from content:encoded, with the
// platform footer and tracking pixel removed.
type Medium struct {
	hosts []string
}

// NewMedium creates the Medium adapter with the default host allowlist.
func NewMedium() *Medium {
	return &Medium{hosts: []string{"medium.com"}}
}

func (m *Medium) ID() string { return MediumID }

// ListTargets returns one target per configured Medium feed whose host is on
// the allowlist. Others are logged and skipped.
func (m *Medium) ListTargets(rs *run.Scope) ([]Target, error) {
	feeds := rs.Config.Medium.Feeds
	targets := make([]Target, 0, len(feeds))

	for _, feed := range feeds {
		u, err := url.Parse(feed.URL)
		if err != nil || !m.allowedHost(u.Hostname()) {
			rs.Logger.Warn("feed host not on Medium allowlist, skipping",
				logging.AdapterID(MediumID),
				logging.Data(map[string]any{"feedId": feed.ID, "url": feed.URL}))
			continue
		}
		targets = append(targets, newTarget(MediumID, "medium-feed", feed.ID, feed.URL))
	}

	return targets, nil
}

func (m *Medium) allowedHost(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range m.hosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// FetchAndExtract fetches a Medium feed and extracts its posts.
func (m *Medium) FetchAndExtract(ctx context.Context, rs *run.Scope, target Target) Result {
	return fetchFeed(ctx, rs, target, mediumItem)
}

func mediumItem(item *gofeed.Item, base *url.URL) (ExtractedItem, bool) {
	link := stripMediumSource(itemLink(item, base))
	if link == "" {
		return ExtractedItem{}, false
	}

	extracted := ExtractedItem{
		URL:         link,
		Title:       item.Title,
		Subtitle:    itemSubtitle(item),
		Author:      itemAuthor(item),
		PublishedAt: itemPublished(item),
		Tags:        item.Categories,
		Metadata:    itemMetadata(item),
	}

	content := item.Content
	if strings.TrimSpace(content) == "" {
		content = item.Description
	}
	if strings.TrimSpace(content) == "" {
		return extracted, true
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		extracted.ExcerptSource = content
		return extracted, true
	}

	// "<title> was originally published in <publication> on Medium"
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if strings.Contains(s.Text(), "originally published in") {
			s.Remove()
		}
	})
	doc.Find(`img[src*="/_/stat"]`).Remove()

	if html, err := doc.Find("body").Html(); err == nil {
		extracted.ExcerptSource = html
	} else {
		extracted.ExcerptSource = content
	}
	extracted.Image = firstImage(doc, base)

	if words := len(strings.Fields(doc.Text())); words > 0 {
		extracted.ReadingTimeMin = int(math.Ceil(float64(words) / mediumWordsPerMinute))
	}

	return extracted, true
}

// stripMediumSource removes the source query parameter Medium appends to
// every link in its feeds.
func stripMediumSource(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	q := u.Query()
	if !q.Has("source") {
		return link
	}
	q.Del("source")
	u.RawQuery = q.Encode()
	return u.String()
}
