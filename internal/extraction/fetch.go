package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	MaxListingChars   = 24000
	maxListingBytes   = 4 << 20
	defaultUserAgent  = "propquant/1.0 (+listing underwriting)"
	defaultFetchLimit = 20 * time.Second
)

// ListingPage is the text an extractor needs from a listing URL.
type ListingPage struct {
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	OpenGraph   map[string]string `json:"open_graph,omitempty"`
	JSONLD      []string          `json:"json_ld,omitempty"`
	Text        string            `json:"text"`
	FetchedAt   time.Time         `json:"fetched_at"`
}

type ListingFetcher struct {
	Client    *http.Client
	UserAgent string
	Now       func() time.Time
}

func NewListingFetcher() *ListingFetcher {
	return &ListingFetcher{
		Client:    &http.Client{Timeout: defaultFetchLimit, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		UserAgent: defaultUserAgent,
		Now:       time.Now,
	}
}

func (f *ListingFetcher) Fetch(ctx context.Context, rawURL string) (ListingPage, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ListingPage{}, fmt.Errorf("listing url must be absolute http(s): %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ListingPage{}, err
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return ListingPage{}, fmt.Errorf("fetch listing: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ListingPage{}, fmt.Errorf("fetch listing: status %d", resp.StatusCode)
	}

	page, err := ParseListing(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return ListingPage{}, err
	}
	page.URL = u.String()
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	page.FetchedAt = now().UTC()
	return page, nil
}

// ParseListing extracts title, meta description, OpenGraph tags, JSON-LD
// blocks and visible text from an HTML document.
func ParseListing(r io.Reader) (ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return ListingPage{}, fmt.Errorf("parse listing html: %w", err)
	}
	page := ListingPage{
		Title:     collapse(doc.Find("title").First().Text()),
		OpenGraph: map[string]string{},
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		page.Description = collapse(desc)
	}
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if content = collapse(content); content != "" {
			page.OpenGraph[strings.TrimPrefix(prop, "og:")] = content
		}
	})
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw != "" && json.Valid([]byte(raw)) {
			page.JSONLD = append(page.JSONLD, raw)
		}
	})

	doc.Find("script, style, noscript, svg, iframe, nav, footer").Remove()
	page.Text = truncate(collapse(doc.Find("body").Text()), MaxListingChars)
	if page.Title == "" && page.Text == "" && len(page.JSONLD) == 0 {
		return ListingPage{}, errors.New("listing page has no readable content")
	}
	return page, nil
}

// Prompt renders the page as the evidence block of an extraction prompt.
func (p ListingPage) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SOURCE URL: %s\n", p.URL)
	if p.Title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n", p.Title)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "DESCRIPTION: %s\n", p.Description)
	}
	for _, k := range []string{"title", "description", "price:amount", "price:currency", "locality", "region", "country-name"} {
		if v, ok := p.OpenGraph[k]; ok {
			fmt.Fprintf(&b, "OG %s: %s\n", k, v)
		}
	}
	for _, block := range p.JSONLD {
		fmt.Fprintf(&b, "JSON-LD: %s\n", truncate(block, 4000))
	}
	fmt.Fprintf(&b, "\nPAGE TEXT:\n%s\n", p.Text)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
