package adapter

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap/zapcore"

	"github.com/pevans/feedsnap/failure"
	"github.com/pevans/feedsnap/fetch"
	"github.com/pevans/feedsnap/logging"
	"github.com/pevans/feedsnap/run"
)

// ErrNoUsableItems is reported when a feed parses but yields nothing with a
// link.
var ErrNoUsableItems = errors.New("feed contains no usable items")

// itemMapper turns one parsed feed item into an ExtractedItem. base is the
// URL relative links are resolved against. It returns false when the item has
// nothing usable.
type itemMapper func(item *gofeed.Item, base *url.URL) (ExtractedItem, bool)

// fetchFeed is the fetch/parse/extract flow shared by the feed-based
// adapters. Every ordinary failure degrades the result instead of returning
// an error.
func fetchFeed(ctx context.Context, rs *run.Scope, target Target, mapItem itemMapper) Result {
	log := rs.Logger.With(logging.AdapterID(target.AdapterID), logging.TargetID(target.ID))
	res := Result{Target: target, FetchedAt: rs.Clock.Now()}

	body, err := rs.Fetcher.Fetch(ctx, fetch.Request{
		AdapterID: target.AdapterID,
		FeedID:    target.FeedID,
		URL:       target.URL,
	})
	if err != nil {
		res.Degrade(failure.FeedFetchFailed, err)
		log.Event(zapcore.WarnLevel, failure.FeedFetchFailed, "feed fetch failed", logging.Err(err))
		return res
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		res.Degrade(failure.FeedParseError, err)
		log.Event(zapcore.WarnLevel, failure.FeedParseError, "feed parse failed", logging.Err(err))
		return res
	}

	base := feedBase(feed, target.URL)
	skipped := 0
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		extracted, ok := mapItem(item, base)
		if !ok {
			skipped++
			continue
		}
		extracted.Source = Source{AdapterID: target.AdapterID, FeedID: target.FeedID}
		res.Items = append(res.Items, extracted)
	}

	if len(res.Items) == 0 {
		res.Degrade(failure.NoItems, ErrNoUsableItems)
		log.Event(zapcore.WarnLevel, failure.NoItems, "feed yielded no usable items",
			logging.Data(map[string]any{"entries": len(feed.Items)}))
		return res
	}

	res.SortItems()
	log.Info("feed extracted", logging.Data(map[string]any{
		"entries": len(feed.Items),
		"items":   len(res.Items),
		"skipped": skipped,
	}))

	return res
}

func feedBase(feed *gofeed.Feed, targetURL string) *url.URL {
	for _, candidate := range []string{feed.Link, targetURL} {
		if u, err := url.Parse(candidate); err == nil && u.IsAbs() {
			return u
		}
	}
	return nil
}

// itemLink returns the item's absolute link, falling back to a URL-shaped
// GUID.
func itemLink(item *gofeed.Item, base *url.URL) string {
	candidates := []string{item.Link}
	candidates = append(candidates, item.Links...)
	candidates = append(candidates, item.GUID)

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		u, err := url.Parse(c)
		if err != nil {
			continue
		}
		if !u.IsAbs() && base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme == "http" || u.Scheme == "https" {
			return u.String()
		}
	}
	return ""
}

// itemAuthor joins the distinct author names of an item, checking the
// author element, the authors list and the Dublin Core creator extension.
func itemAuthor(item *gofeed.Item) string {
	authors := make([]string, 0)
	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		authors = append(authors, strings.TrimSpace(item.Author.Name))
	}
	for _, author := range item.Authors {
		if author == nil {
			continue
		}
		name := strings.TrimSpace(author.Name)
		if name != "" && !contains(authors, name) {
			authors = append(authors, name)
		}
	}
	if item.DublinCoreExt != nil {
		for _, creator := range item.DublinCoreExt.Creator {
			creator = strings.TrimSpace(creator)
			if creator != "" && !contains(authors, creator) {
				authors = append(authors, creator)
			}
		}
	}
	return strings.Join(authors, ", ")
}

// itemPublished prefers the parsed published date, then the parsed updated
// date, then whichever raw value is present for the normalizer to try.
func itemPublished(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC().Format(time.RFC3339)
	case strings.TrimSpace(item.Published) != "":
		return strings.TrimSpace(item.Published)
	default:
		return strings.TrimSpace(item.Updated)
	}
}

// itemSubtitle returns the iTunes subtitle, the only subtitle either feed
// format carries.
func itemSubtitle(item *gofeed.Item) string {
	if item.ITunesExt == nil {
		return ""
	}
	return strings.TrimSpace(item.ITunesExt.Subtitle)
}

func itemMetadata(item *gofeed.Item) map[string]any {
	meta := map[string]any{}
	if item.GUID != "" {
		meta["guid"] = item.GUID
	}
	return meta
}

// firstImage returns the src of the first <img> in an HTML fragment that is
// not a tracking pixel.
func firstImage(doc *goquery.Document, base *url.URL) string {
	var src string
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if w, _ := s.Attr("width"); w == "1" {
			return true
		}
		raw, _ := s.Attr("src")
		if resolved := resolve(raw, base); resolved != "" {
			src = resolved
			return false
		}
		return true
	})
	return src
}

func resolve(raw string, base *url.URL) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || raw == "" {
		return ""
	}
	if !u.IsAbs() && base != nil {
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return ""
	}
	return u.String()
}

// contains checks if a string slice contains a specific string
func contains(slice []string, str string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, str) {
			return true
		}
	}
	return false
}
