package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TextPreview renders an HTML body as collapsed plain text, cut to at most
// max runes. Plain text input passes through the same normalization.
func TextPreview(html string, max int) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	text := html
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find("script, style, head, meta, link").Remove()
		text = doc.Text()
	}

	text = strings.Join(strings.Fields(text), " ")
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// Anchors returns the href of every link in an HTML body, in document order.
func Anchors(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}
