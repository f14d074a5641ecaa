package imagery

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var metaImageSelectors = []string{
	`meta[property="og:image"]`,
	`meta[property="og:image:url"]`,
	`meta[name="twitter:image"]`,
}

// locateImage prefers declared social-preview metadata, then the first
// embedded image whose path does not look like a logo or an icon.
func locateImage(doc *goquery.Document) string {
	for _, selector := range metaImageSelectors {
		if content := strings.TrimSpace(doc.Find(selector).First().AttrOr("content", "")); content != "" {
			return content
		}
	}

	var found string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") || decorative(src) {
			return true
		}
		found = src
		return false
	})
	return found
}

func decorative(src string) bool {
	path := src
	if u, err := url.Parse(src); err == nil {
		path = u.Path
	}
	path = strings.ToLower(path)
	return strings.Contains(path, "logo") || strings.Contains(path, "icon")
}

// resolveReference makes ref absolute against base.
func resolveReference(base, ref string) (string, error) {
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	if refURL.IsAbs() {
		return checkScheme(refURL)
	}

	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return "", fmt.Errorf("cannot resolve %q without an absolute base", ref)
	}
	return checkScheme(baseURL.ResolveReference(refURL))
}

func checkScheme(u *url.URL) (string, error) {
	switch u.Scheme {
	case "http", "https":
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported image scheme %q", u.Scheme)
	}
}
