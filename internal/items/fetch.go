// Package items tracks product pages the buying group is interested in.
package items

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	maxPageBytes = 2 << 20
	maxNameChars = 120
)

// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid item url")

// Page is a fetched product page.
type Page struct {
	URL      string
	Markdown string
	Name     string
	Store    string
}

// Fetcher downloads product pages and converts them to markdown.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with a 30 second timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// ParseURL validates raw and returns it with the store name derived from its host.
func ParseURL(raw string) (*url.URL, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, storeName(u), nil
}

func storeName(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Fetch downloads raw and extracts the product name: the first markdown
// heading, else the first line of text, else the store host.
func (f *Fetcher) Fetch(ctx context.Context, raw string) (*Page, error) {
	u, store, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Cascada/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}

	name := productName(md)
	if name == "" {
		name = store
	}
	return &Page{URL: u.String(), Markdown: md, Name: name, Store: store}, nil
}

// productName picks the first heading of md, falling back to its first
// non-empty line.
func productName(md string) string {
	var first string
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			return clip(strings.TrimSpace(strings.TrimLeft(line, "#")))
		}
		if first == "" {
			first = line
		}
	}
	return clip(first)
}

func clip(s string) string {
	r := []rune(s)
	if len(r) > maxNameChars {
		return string(r[:maxNameChars])
	}
	return s
}
