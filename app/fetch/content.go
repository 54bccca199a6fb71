package fetch

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/lysyi3m/event-comb/app/textutil"
	"github.com/lysyi3m/event-comb/app/urlnorm"
)

// MainContent returns the readable text of the page's main content.
func MainContent(html []byte, pageURL string) (string, error) {
	if len(html) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	base, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(html), base)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully",
		"title", article.Title,
		"content_length", len(text))

	return text, nil
}

// PlainText renders the visible text of a document, one block per line.
func PlainText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	if body.Length() == 0 {
		body = doc.Selection.Clone()
	}
	body.Find("script, style, noscript, template, svg").Remove()
	body.Find("br").ReplaceWithHtml("\n")
	body.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, article, section, time, dt, dd").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(body.Text(), "\n") {
		if line = textutil.Squash(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// Link is an outbound anchor with its visible text.
type Link struct {
	URL  string
	Text string
}

// ExtractLinks returns the normalized, de-duplicated anchors of doc.
func ExtractLinks(doc *goquery.Document, pageURL string) []Link {
	base := pageURL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		base = urlnorm.MustNormalize(href, pageURL)
	}

	seen := make(map[string]struct{})
	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if rel, ok := s.Attr("rel"); ok && strings.Contains(strings.ToLower(rel), "nofollow") {
			return
		}
		normalized, err := urlnorm.Normalize(href, base)
		if err != nil {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, Link{URL: normalized, Text: textutil.Squash(s.Text())})
	})
	return links
}

func linkURLs(links []Link) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.URL)
	}
	return out
}
