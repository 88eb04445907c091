package headless

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Detector decides whether a fetched body is an empty JS app shell that
// needs a headless render pass.
type Detector struct {
	minHTMLBytes int
	selectors    []string
	keywords     [][]byte
}

// NewDetector constructs a Detector with the configured thresholds.
func NewDetector(minBytes int, selectors, keywords []string) *Detector {
	lowerKeywords := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowerKeywords = append(lowerKeywords, bytes.ToLower([]byte(kw)))
	}
	return &Detector{
		minHTMLBytes: minBytes,
		selectors:    selectors,
		keywords:     lowerKeywords,
	}
}

// NeedsJS inspects the body for signals that indicate JS rendering is
// required.
func (d *Detector) NeedsJS(body []byte) bool {
	if d == nil {
		return false
	}
	switch {
	case d.bodyBelowThreshold(body):
		return true
	case d.containsKeywords(body):
		return true
	default:
		return d.missingSelectors(body)
	}
}

func (d *Detector) bodyBelowThreshold(body []byte) bool {
	return d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes
}

func (d *Detector) containsKeywords(body []byte) bool {
	if len(body) == 0 || len(d.keywords) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}

func (d *Detector) missingSelectors(body []byte) bool {
	if len(d.selectors) == 0 || len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	for _, sel := range d.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() == 0 {
			return true
		}
	}
	return false
}
