package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// extractHTML parses the document and returns the visible text of the body,
// with script/style content removed and block elements separated by line
// breaks.
func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening html: %w", err)
	}
	defer f.Close()

	node, err := html.Parse(f)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	doc := goquery.NewDocumentFromNode(node)
	doc.Find("script, style, noscript, head").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, body *goquery.Selection) {
		// Keep block boundaries as paragraph breaks so the splitter can
		// prefer them. Selection.Text alone collapses everything.
		body.Find("p, h1, h2, h3, h4, h5, h6, li, td, pre, blockquote").Each(func(_ int, el *goquery.Selection) {
			text := strings.TrimSpace(el.Text())
			if text == "" {
				return
			}
			sb.WriteString(text)
			sb.WriteString("\n\n")
		})
		if sb.Len() == 0 {
			sb.WriteString(strings.TrimSpace(body.Text()))
		}
	})

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text")
	}
	return text, nil
}
