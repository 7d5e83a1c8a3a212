package agents

import (
	"bytes"
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/dealflow/casefile"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/internal/httpclient"
)

// ErrSiteUnreachable is returned when no page of a website could be fetched.
var ErrSiteUnreachable = errors.New("website unreachable or blocked")

const maxPageText = 3000

// Page is the readable content of one fetched web page.
type Page struct {
	Path         string   `json:"path"`
	URL          string   `json:"url"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Headings     []string `json:"headings,omitempty"`
	Text         string   `json:"text,omitempty"`
	Links        int      `json:"links"`
	Technologies []string `json:"technologies,omitempty"`
}

// technologies maps a product to lowercase markers found in page source.
var technologies = map[string][]string{
	"React":            {"react", "__next"},
	"Vue":              {"vue.js", "__vue"},
	"Cloudflare":       {"cloudflare", "cf-ray"},
	"AWS":              {"amazonaws", "cloudfront"},
	"Vercel":           {"vercel"},
	"Google Analytics": {"google-analytics", "googletagmanager", "gtag("},
	"Segment":          {"segment.com/analytics"},
	"HubSpot":          {"hubspot", "hs-scripts"},
	"Intercom":         {"intercom"},
	"Stripe":           {"js.stripe.com"},
}

// Crawler fetches pages from a company website.
type Crawler struct {
	client      *httpclient.SaferClient
	concurrency int
}

// NewCrawler creates a crawler that fetches up to concurrency pages at once.
func NewCrawler(client *httpclient.SaferClient, concurrency int) *Crawler {
	if client == nil {
		client = httpclient.New(httpclient.Options{})
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Crawler{client: client, concurrency: concurrency}
}

// Fetch retrieves and parses one page.
func (c *Crawler) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	body, _, err := c.client.GetBody(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	page := ParsePage(body)
	page.URL = pageURL
	if u, err := url.Parse(pageURL); err == nil {
		page.Path = u.Path
	}
	if page.Path == "" {
		page.Path = "/"
	}
	return page, nil
}

// Crawl fetches paths relative to base. Pages that fail are left out.
func (c *Crawler) Crawl(ctx context.Context, base string, paths []string) map[string]*Page {
	base = strings.TrimRight(casefile.NormalizeURL(base), "/")
	pages := make(map[string]*Page, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, path := range paths {
		g.Go(func() error {
			page, err := c.Fetch(gctx, base+path)
			if err != nil {
				return nil
			}
			page.Path = path
			mu.Lock()
			pages[path] = page
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

// ParsePage extracts title, meta description, headings, visible text and
// recognisable technologies from an HTML document.
func ParsePage(body []byte) *Page {
	page := &Page{}
	z := html.NewTokenizer(bytes.NewReader(body))
	var text strings.Builder
	var skip int
	var current string

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			page.Text = collapse(text.String(), maxPageText)
			page.Technologies = detectTechnologies(body)
			return page
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			switch tag {
			case "script", "style", "noscript", "svg":
				if tt == html.StartTagToken {
					skip++
				}
			case "a":
				page.Links++
			case "meta":
				if hasAttr {
					if desc, ok := metaDescription(z); ok && page.Description == "" {
						page.Description = desc
					}
				}
			}
			current = tag
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript", "svg":
				if skip > 0 {
					skip--
				}
			}
			current = ""
		case html.TextToken:
			if skip > 0 {
				continue
			}
			s := strings.TrimSpace(string(z.Text()))
			if s == "" {
				continue
			}
			switch current {
			case "title":
				if page.Title == "" {
					page.Title = s
				}
				continue
			case "h1", "h2", "h3":
				if len(page.Headings) < 20 {
					page.Headings = append(page.Headings, s)
				}
			}
			text.WriteString(s)
			text.WriteByte(' ')
		}
	}
}

func metaDescription(z *html.Tokenizer) (string, bool) {
	var name, content string
	for {
		key, val, more := z.TagAttr()
		switch strings.ToLower(string(key)) {
		case "name", "property":
			name = strings.ToLower(string(val))
		case "content":
			content = string(val)
		}
		if !more {
			break
		}
	}
	if name == "description" || name == "og:description" {
		return strings.TrimSpace(content), true
	}
	return "", false
}

func detectTechnologies(body []byte) []string {
	lower := strings.ToLower(string(body))
	var found []string
	for tech, markers := range technologies {
		for _, m := range markers {
			if strings.Contains(lower, m) {
				found = append(found, tech)
				break
			}
		}
	}
	sort.Strings(found)
	return found
}

func collapse(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// WebsiteEnricher reads the company homepage.
type WebsiteEnricher struct {
	crawler *Crawler
}

// NewWebsiteEnricher creates the "website" source.
func NewWebsiteEnricher(crawler *Crawler) *WebsiteEnricher {
	return &WebsiteEnricher{crawler: crawler}
}

func (w *WebsiteEnricher) Name() string { return "website" }

// Enrich implements deal.Enricher.
func (w *WebsiteEnricher) Enrich(ctx context.Context, d *casefile.Dossier) (casefile.Finding, error) {
	page, err := w.crawler.Fetch(ctx, d.Website)
	if err != nil {
		return nil, errors.Wrapf(err, "could not fetch %s", d.Website)
	}
	return casefile.Finding{
		"url":          d.Website,
		"title":        page.Title,
		"description":  page.Description,
		"headings":     page.Headings,
		"text_excerpt": page.Text,
		"links":        page.Links,
		"technologies": page.Technologies,
	}, nil
}

// pageDigest renders crawled pages for a prompt, in path order.
func pageDigest(pages map[string]*Page, perPage int) string {
	paths := make([]string, 0, len(pages))
	for p := range pages {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		page := pages[p]
		text := page.Text
		if len(text) > perPage {
			text = text[:perPage]
		}
		b.WriteString("PAGE " + p + " (" + page.URL + ")\n")
		if page.Title != "" {
			b.WriteString("Title: " + page.Title + "\n")
		}
		if page.Description != "" {
			b.WriteString("Description: " + page.Description + "\n")
		}
		b.WriteString(text + "\n\n")
	}
	return b.String()
}

func pageTechnologies(pages map[string]*Page) []string {
	seen := map[string]bool{}
	var out []string
	for _, page := range pages {
		for _, t := range page.Technologies {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}
