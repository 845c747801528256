package duckduckgo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/w-h-a/docqa/websearch"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
)

const (
	defaultBaseURL   = "https://html.duckduckgo.com/html/"
	defaultUserAgent = "Mozilla/5.0 (compatible; docqa/1.0)"
)

type duckDuckGoSearcher struct {
	options websearch.Options
	client  *http.Client
}

func (s *duckDuckGoSearcher) Search(ctx context.Context, query string, max int) ([]websearch.Result, error) {
	if max <= 0 {
		max = websearch.DefaultMaxResults
	}

	form := url.Values{"q": {query}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.options.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.options.UserAgent)

	rsp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, rsp.Body)
		return nil, fmt.Errorf("duckduckgo returned %s", rsp.Status)
	}

	doc, err := html.Parse(rsp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo page: %w", err)
	}

	return parseResults(doc, max), nil
}

func parseResults(doc *html.Node, max int) []websearch.Result {
	var results []websearch.Result

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= max {
			return
		}

		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") && !hasClass(n, "result--ad") {
			if r, ok := parseResult(n); ok {
				results = append(results, r)
			}
			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return results
}

func parseResult(n *html.Node) (websearch.Result, bool) {
	var r websearch.Result

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a") && len(r.Title) == 0:
				r.Title = text(n)
				r.URL = unwrap(attr(n, "href"))
				return
			case hasClass(n, "result__snippet") && len(r.Snippet) == 0:
				r.Snippet = text(n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)

	return r, len(r.Title) > 0 && len(r.URL) > 0
}

// unwrap resolves the duckduckgo redirect link to its target.
func unwrap(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}

	u, err := url.Parse(href)
	if err != nil {
		return href
	}

	if target := u.Query().Get("uddg"); len(target) > 0 {
		return target
	}

	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attr(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)

	return strings.Join(strings.Fields(b.String()), " ")
}

func NewSearcher(opts ...websearch.Option) websearch.Searcher {
	options := websearch.NewOptions(opts...)

	if len(options.BaseURL) == 0 {
		options.BaseURL = defaultBaseURL
	}

	if len(options.UserAgent) == 0 {
		options.UserAgent = defaultUserAgent
	}

	s := &duckDuckGoSearcher{
		options: options,
	}

	if options.HTTPClient != nil {
		s.client = options.HTTPClient
	} else {
		s.client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   options.Timeout,
		}
	}

	return s
}
