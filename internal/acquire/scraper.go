// Package acquire discovers exam papers on listing pages, downloads the new
// ones and records them in the document store.
package acquire

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultSearchURLs are listing templates. {subject} and {topic} are
// replaced with query-escaped values.
var DefaultSearchURLs = []string{
	"https://example-academic-site.com/search?q={subject}+{topic}+exam",
	"https://papers.example.com/search?subject={subject}&topic={topic}",
}

const DefaultMaxPerListing = 5

// ErrUnavailable means no listing could be fetched at all.
var ErrUnavailable = errors.New("acquisition source unavailable")

// Listing is one discovered document. The payload is downloaded on demand.
type Listing struct {
	Fingerprint string
	URL         string
	Title       string
}

// Source yields the documents available for a subject and topic.
type Source interface {
	FetchListing(ctx context.Context, subject, topic string) ([]Listing, error)
}

// Scraper is a Source that reads PDF links from search result pages.
type Scraper struct {
	client        *Client
	searchURLs    []string
	maxPerListing int
	logger        *slog.Logger
}

func NewScraper(client *Client, searchURLs []string, maxPerListing int, logger *slog.Logger) *Scraper {
	if len(searchURLs) == 0 {
		searchURLs = DefaultSearchURLs
	}
	if maxPerListing <= 0 {
		maxPerListing = DefaultMaxPerListing
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		client:        client,
		searchURLs:    searchURLs,
		maxPerListing: maxPerListing,
		logger:        logger,
	}
}

// FetchListing queries every search page. Pages that fail are logged and
// skipped; ErrUnavailable is returned only when all of them fail.
func (s *Scraper) FetchListing(ctx context.Context, subject, topic string) ([]Listing, error) {
	var (
		out  []Listing
		errs []error
		seen = map[string]bool{}
	)
	for _, tmpl := range s.searchURLs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		u := SearchURL(tmpl, subject, topic)
		s.logger.Info("searching", "url", u)

		resp, err := s.client.GetListing(ctx, u)
		if err != nil {
			s.logger.Warn("listing failed", "url", u, "error", err)
			errs = append(errs, err)
			continue
		}
		links, err := ParseListing(resp.Body, resp.URL, subject, topic, s.maxPerListing)
		if err != nil {
			s.logger.Warn("listing unparseable", "url", u, "error", err)
			errs = append(errs, err)
			continue
		}
		for _, l := range links {
			if seen[l.Fingerprint] {
				continue
			}
			seen[l.Fingerprint] = true
			out = append(out, l)
		}
	}
	if len(errs) == len(s.searchURLs) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
	}
	return out, nil
}

// SearchURL fills a listing template.
func SearchURL(tmpl, subject, topic string) string {
	r := strings.NewReplacer(
		"{subject}", url.QueryEscape(subject),
		"{topic}", url.QueryEscape(topic),
	)
	return r.Replace(tmpl)
}

// ParseListing extracts PDF links from an HTML page. A link qualifies when
// its href looks like a PDF and both subject and topic appear in the link
// text or href. At most limit links are returned, resolved against base.
func ParseListing(page []byte, base, subject, topic string, limit int) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	if limit <= 0 {
		limit = DefaultMaxPerListing
	}
	subject = strings.ToLower(subject)
	topic = strings.ToLower(topic)

	var links []Listing
	seen := map[string]bool{}
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		lowerHref := strings.ToLower(href)
		if href == "" || !strings.Contains(lowerHref, "pdf") {
			return true
		}
		text := strings.TrimSpace(sel.Text())
		lowerText := strings.ToLower(text)
		mentions := func(s string) bool {
			return strings.Contains(lowerText, s) || strings.Contains(lowerHref, s)
		}
		if !mentions(subject) || !mentions(topic) {
			return true
		}

		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := baseURL.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return true
		}
		canonical := Canonical(abs)
		fp := Fingerprint(canonical)
		if seen[fp] {
			return true
		}
		seen[fp] = true

		title := strings.Join(strings.Fields(text), " ")
		if title == "" {
			title = strings.TrimSuffix(path.Base(abs.Path), path.Ext(abs.Path))
		}
		links = append(links, Listing{Fingerprint: fp, URL: abs.String(), Title: title})
		return len(links) < limit
	})
	return links, nil
}

// Canonical normalizes a URL for identity: lowercase scheme and host, no
// fragment, no default port.
func Canonical(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if (c.Scheme == "http" && c.Port() == "80") || (c.Scheme == "https" && c.Port() == "443") {
		c.Host = c.Hostname()
	}
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// Fingerprint is the stable identity of a canonical URL.
func Fingerprint(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
