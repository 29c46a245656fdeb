package sources

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

func parseDoc(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// firstText returns the trimmed text of the first node matching
// selector, or "" when nothing matches.
func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// firstAttr returns the named attribute of the first node matching
// selector, or "" when nothing matches or the attribute is absent.
func firstAttr(doc *goquery.Document, selector, attr string) string {
	v, _ := doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}

// ownText collects only the element's direct text nodes, so a
// container never repeats the text of its children.
func ownText(sel *goquery.Selection) string {
	var parts []string
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) != "#text" {
			return
		}
		if t := strings.TrimSpace(c.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

// titleCase upper-cases the first letter of each space-separated word,
// for turning URL slugs into readable titles.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// flatText joins every descendant text node with newlines, keeping
// the block structure goquery's Text() flattens away.
func flatText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
				return
			}
			walk(c)
		})
	}
	walk(sel)
	return strings.Join(parts, "\n")
}
