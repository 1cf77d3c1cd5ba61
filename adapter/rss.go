package adapter

import (
	"context"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/pevans/feedsnap/run"
)

// RSSID is the adapter id of the generic syndication-feed adapter.
const RSSID = "rss"

// RSS reads any RSS or Atom feed. It applies no platform heuristics.
type RSS struct{}

// NewRSS creates the generic feed adapter.
func NewRSS() *RSS {
	return &RSS{}
}

func (r *RSS) ID() string { return RSSID }

// ListTargets returns one target per configured feed.
func (r *RSS) ListTargets(rs *run.Scope) ([]Target, error) {
	feeds := rs.Config.RSS.Feeds
	targets := make([]Target, 0, len(feeds))
	for _, feed := range feeds {
		targets = append(targets, newTarget(RSSID, "rss-feed", feed.ID, feed.URL))
	}
	return targets, nil
}

// FetchAndExtract fetches an RSS or Atom feed and extracts its items.
func (r *RSS) FetchAndExtract(ctx context.Context, rs *run.Scope, target Target) Result {
	return fetchFeed(ctx, rs, target, rssItem)
}

func rssItem(item *gofeed.Item, base *url.URL) (ExtractedItem, bool) {
	link := itemLink(item, base)
	if link == "" {
		return ExtractedItem{}, false
	}

	excerptSource := item.Description
	if strings.TrimSpace(excerptSource) == "" {
		excerptSource = item.Content
	}

	return ExtractedItem{
		URL:           link,
		Title:         item.Title,
		Subtitle:      itemSubtitle(item),
		Author:        itemAuthor(item),
		PublishedAt:   itemPublished(item),
		Tags:          item.Categories,
		ExcerptSource: excerptSource,
		Image:         rssImage(item, base),
		Metadata:      itemMetadata(item),
	}, true
}

// rssImage looks at the item image, image enclosures and Media RSS
// thumbnails, in that order.
func rssImage(item *gofeed.Item, base *url.URL) string {
	if item.Image != nil {
		if src := resolve(item.Image.URL, base); src != "" {
			return src
		}
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			if src := resolve(enc.URL, base); src != "" {
				return src
			}
		}
	}
	if media, ok := item.Extensions["media"]; ok {
		for _, name := range []string{"thumbnail", "content"} {
			for _, e := range media[name] {
				if name == "content" && e.Attrs["medium"] != "image" {
					continue
				}
				if src := resolve(e.Attrs["url"], base); src != "" {
					return src
				}
			}
		}
	}
	return ""
}
