// Package fetcher handles RSS feed downloading and parsing into entries.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"newsbot/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses RSS feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
	policy  *bluemonday.Policy
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
		policy:  bluemonday.StrictPolicy(),
	}
}

// Fetch downloads the feed at url and returns its entries in feed order.
// The Source field of the returned entries is left empty.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]model.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "NewsBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := make([]model.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, f.entry(item))
	}
	return entries, nil
}

func (f *Fetcher) entry(item *gofeed.Item) model.Entry {
	summary := item.Description
	if summary == "" {
		summary = item.Content
	}
	e := model.Entry{
		Title:   strings.TrimSpace(f.plainText(item.Title)),
		Summary: strings.TrimSpace(f.plainText(summary)),
	}
	e.Link = EntryLink(item)
	return e
}

// plainText strips markup and decodes the entities the sanitizer leaves behind.
func (f *Fetcher) plainText(s string) string {
	if s == "" {
		return ""
	}
	return html.UnescapeString(f.policy.Sanitize(s))
}

// EntryLink returns the identifier used to deduplicate an item: its link,
// falling back to the GUID and then to a SHA-256 hash of title+description.
func EntryLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return guid
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Description))
	return fmt.Sprintf("sha256:%x", h[:16])
}
