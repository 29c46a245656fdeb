package fetch

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// jsWallMarkers are phrases JS-only shells and bot walls leave in the
// served body.
var jsWallMarkers = []string{
	"javascript is not available",
	"enable javascript",
	"javascript is disabled",
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// NeedsJS reports whether extracted text looks like a page that
// refuses to render without JavaScript.
func NeedsJS(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range jsWallMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Readable strips chrome elements from an HTML document and returns
// its title and main text, one block per line.
func Readable(html string) (title, body string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, nav, header, footer, aside, form").Remove()

	container := doc.Find("main").First()
	if container.Length() == 0 {
		container = doc.Find("article").First()
	}
	if container.Length() == 0 {
		container = doc.Find(`div[role="main"]`).First()
	}
	if container.Length() == 0 {
		container = doc.Find("body").First()
	}

	var parts []string
	collectText(container, &parts)
	body = blankRuns.ReplaceAllString(strings.Join(parts, "\n"), "\n\n")
	return title, strings.TrimSpace(body), nil
}

func collectText(s *goquery.Selection, out *[]string) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			if t := strings.TrimSpace(c.Text()); t != "" {
				*out = append(*out, t)
			}
			return
		}
		collectText(c, out)
	})
}
