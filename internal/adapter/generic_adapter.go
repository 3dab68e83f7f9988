package adapter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 画像へのリンクとみなすパスの拡張子
var imageLinkPattern = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp)$`)

// GenericAdapter は、一般的なHTMLページの <img> と画像へのリンクを抽出します。
type GenericAdapter struct{}

// NewGenericAdapter は、GenericAdapterの新しいインスタンスを返します。
func NewGenericAdapter() PageAdapter {
	return &GenericAdapter{}
}

// ExtractImageURLs は、img要素の src / data-src / srcset(先頭の候補) と、
// 画像拡張子を持つ a要素の href を抽出します。
// <base href> があればそれを基準URLとし、http/https 以外のURLは除外します。
func (a *GenericAdapter) ExtractImageURLs(htmlBody []byte, contentType string, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("ページURLの解析に失敗しました (url=%s): %w", pageURL, err)
	}

	doc, err := NewDocumentFromBytes(htmlBody, contentType)
	if err != nil {
		return nil, fmt.Errorf("HTMLの解析に失敗しました (url=%s, size=%d bytes): %w", pageURL, len(htmlBody), err)
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if baseHref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(baseHref)
		}
	}

	var found []string
	seen := make(map[string]bool)
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "data:") {
			return
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		s := abs.String()
		if seen[s] {
			return
		}
		seen[s] = true
		found = append(found, s)
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src)
		}
		if src, ok := s.Attr("data-src"); ok {
			add(src)
		}
		if srcset, ok := s.Attr("srcset"); ok {
			add(firstSrcsetCandidate(srcset))
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if imageLinkPattern.MatchString(ref.Path) {
			add(href)
		}
	})

	return found, nil
}

// firstSrcsetCandidate は "a.png 1x, b.png 2x" のような srcset の先頭URLを返します。
func firstSrcsetCandidate(srcset string) string {
	first := strings.TrimSpace(strings.SplitN(srcset, ",", 2)[0])
	if i := strings.IndexAny(first, " \t\n"); i >= 0 {
		first = first[:i]
	}
	return first
}
