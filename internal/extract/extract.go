// Package extract turns raw HTML into plain article text through an ordered
// chain of strategies with graceful degradation. Extraction is pure: no
// network I/O, deterministic for identical input, and malformed HTML never
// raises past this boundary.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/somonox/findata-crawler/internal/metrics"
)

// MinChars is the minimum usable text length; anything shorter counts as a
// failed extraction.
const MinChars = 200

// Extractor is the plain-text extraction contract consumed by the crawl
// scheduler. ok is false when every strategy produced content below the
// minimum-length threshold.
type Extractor interface {
	Extract(htmlSrc []byte, sourceURL string) (text string, ok bool)
}

// Chain tries article-container extraction first, then a block-walk of the
// whole document, then a last-ditch full tag strip.
type Chain struct {
	minChars int
	stripper *bluemonday.Policy
}

// NewChain builds the default three-tier chain.
func NewChain() *Chain {
	return &Chain{
		minChars: MinChars,
		stripper: bluemonday.StrictPolicy(),
	}
}

type tier struct {
	name string
	fn   func(c *Chain, src []byte) string
}

var tiers = []tier{
	{"article", (*Chain).extractArticle},
	{"blocks", (*Chain).extractBlocks},
	{"strip", (*Chain).extractStripped},
}

// Extract runs the chain and returns the first tier result meeting the
// length threshold.
func (c *Chain) Extract(htmlSrc []byte, _ string) (string, bool) {
	for _, t := range tiers {
		text := Normalize(t.fn(c, htmlSrc))
		if len(text) >= c.minChars {
			metrics.ExtractionsTotal.WithLabelValues(t.name).Inc()
			return text, true
		}
	}
	metrics.ExtractionFailures.Inc()
	return "", false
}

// articleSelectors name containers that usually hold the main story,
// in preference order.
var articleSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	"#content",
	".article-body",
	".story-body",
}

var boilerplateSelector = "script, style, noscript, template, iframe, svg, nav, header, footer, aside, form"

// extractArticle pulls text from the first recognized article container.
func (c *Chain) extractArticle(src []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(src))
	if err != nil {
		return ""
	}
	doc.Find(boilerplateSelector).Remove()

	for _, sel := range articleSelectors {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		var blocks []string
		container.Find("h1, h2, h3, h4, h5, h6, p, li, blockquote").Each(func(_ int, s *goquery.Selection) {
			if t := strings.TrimSpace(s.Text()); t != "" {
				blocks = append(blocks, t)
			}
		})
		if len(blocks) == 0 {
			// Container with bare text nodes only.
			if t := strings.TrimSpace(container.Text()); t != "" {
				return t
			}
			continue
		}
		return strings.Join(blocks, "\n\n")
	}
	return ""
}

// extractBlocks walks the whole DOM collecting paragraph-shaped blocks,
// skipping boilerplate elements.
func (c *Chain) extractBlocks(src []byte) string {
	root, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return ""
	}
	var blocks []string
	collectBlocks(root, &blocks)
	return strings.Join(blocks, "\n\n")
}

var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"iframe": true, "svg": true, "math": true,
	"nav": true, "header": true, "footer": true, "aside": true, "form": true,
}

var blockElements = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "li": true, "blockquote": true, "td": true, "pre": true,
}

func collectBlocks(n *html.Node, blocks *[]string) {
	if n.Type == html.ElementNode {
		if skipElements[n.Data] {
			return
		}
		if blockElements[n.Data] {
			if text := nodeText(n); text != "" {
				*blocks = append(*blocks, text)
			}
			return
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectBlocks(child, blocks)
	}
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// extractStripped removes every tag and keeps whatever text remains.
func (c *Chain) extractStripped(src []byte) string {
	return c.stripper.Sanitize(string(src))
}

// Title returns the trimmed <title> text, or "" when absent. Best-effort:
// malformed documents yield "".
func Title(src []byte) string {
	root, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return ""
	}
	return Normalize(findTitle(root))
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil {
			return n.FirstChild.Data
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}
