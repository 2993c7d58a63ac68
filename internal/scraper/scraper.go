// Package scraper crawls patent listing pages and yields their documents for corpus seeding.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/mfenderov/patent-novelty/internal/events"
)

// Config holds scraper configuration.
type Config struct {
	Delay       time.Duration
	MaxDepth    int
	FollowLinks bool
	LinkPattern string // only links matching this pattern are followed; empty follows every same-host link
	UserAgent   string
	Timeout     time.Duration
	MaxPages    int // 0 means unlimited
}

// Page is a single fetched document.
type Page struct {
	URL         string
	Filename    string
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// Scraper fetches web pages and returns their content.
type Scraper struct {
	config      Config
	linkPattern *regexp.Regexp
}

// New creates a new Scraper with the given configuration.
func New(config Config) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "patent-novelty/1.0"
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = 1
	}

	s := &Scraper{config: config}
	if config.LinkPattern != "" {
		re, err := regexp.Compile(config.LinkPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid link pattern: %w", err)
		}
		s.linkPattern = re
	}
	return s, nil
}

// Scrape fetches the given URL and optionally follows links.
// The context can be used to cancel the scraping operation.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]Page, error) {
	var pages []Page
	err := s.crawl(ctx, startURL, func(p Page) bool {
		pages = append(pages, p)
		return true
	})
	return pages, err
}

// Stream crawls startURL and sends each page to out as a DocumentFetchedEvent.
// It returns the number of pages sent. The channel is not closed.
func (s *Scraper) Stream(ctx context.Context, startURL string, out chan<- events.DocumentFetchedEvent) (int, error) {
	sent := 0
	err := s.crawl(ctx, startURL, func(p Page) bool {
		select {
		case out <- events.DocumentFetchedEvent{
			Source:      p.URL,
			Filename:    p.Filename,
			ContentType: p.ContentType,
			Data:        p.Body,
			FetchedAt:   p.FetchedAt,
		}:
			sent++
			return true
		case <-ctx.Done():
			return false
		}
	})
	return sent, err
}

func (s *Scraper) crawl(ctx context.Context, startURL string, emit func(Page) bool) error {
	var (
		mu        sync.Mutex
		count     int
		cancelled bool
		stopped   bool
	)

	slog.Debug("starting scrape", "url", startURL, "max_depth", s.config.MaxDepth)

	parsedURL, err := url.Parse(startURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("failed to parse URL: %q is not absolute", startURL)
	}

	c := colly.NewCollector(
		colly.MaxDepth(s.config.MaxDepth),
		colly.UserAgent(s.config.UserAgent),
	)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       s.config.Delay,
		Parallelism: 1,
	})
	c.SetRequestTimeout(s.config.Timeout)

	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			slog.Debug("scrape cancelled", "url", r.URL.String())
			cancelled = true
			r.Abort()
			return
		}
		if stopped {
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode >= 400 {
			slog.Debug("skipping page with error status", "url", r.Request.URL.String(), "status", r.StatusCode)
			return
		}

		mu.Lock()
		if stopped {
			mu.Unlock()
			return
		}
		count++
		if s.config.MaxPages > 0 && count >= s.config.MaxPages {
			stopped = true
		}
		mu.Unlock()

		pageURL := r.Request.URL.String()
		page := Page{
			URL:         pageURL,
			Filename:    PageFilename(pageURL),
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
			FetchedAt:   time.Now().UTC(),
		}
		slog.Debug("scraped page", "url", pageURL, "content_type", page.ContentType, "size", len(page.Body))

		if !emit(page) {
			mu.Lock()
			stopped = true
			mu.Unlock()
		}
	})

	if s.config.FollowLinks {
		c.OnHTML("a[href]", func(e *colly.HTMLElement) {
			absoluteURL := e.Request.AbsoluteURL(e.Attr("href"))
			linkURL, err := url.Parse(absoluteURL)
			if err != nil || linkURL.Host != parsedURL.Host {
				return
			}
			if s.linkPattern != nil && !s.linkPattern.MatchString(absoluteURL) {
				return
			}
			e.Request.Visit(absoluteURL)
		})
	}

	if err := c.Visit(startURL); err != nil {
		slog.Debug("visit error (continuing)", "url", startURL, "error", err)
	}
	c.Wait()

	if cancelled || ctx.Err() != nil {
		slog.Info("scrape cancelled by context", "pages_scraped", count)
		return ctx.Err()
	}

	slog.Debug("scrape complete", "url", startURL, "pages", count)
	return nil
}

// PageFilename derives a document filename from a page URL: the last path
// segment, or the host for the site root. Names without an extension get ".html".
func PageFilename(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "page.html"
	}
	name := path.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "." || name == "/" || name == "" {
		host := u.Hostname()
		if host == "" {
			host = "page"
		}
		return host + ".html"
	}
	if path.Ext(name) == "" {
		name += ".html"
	}
	return name
}
