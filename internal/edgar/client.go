// Package edgar retrieves 13F-HR holdings from SEC EDGAR: the per-CIK
// submissions feed, the filing index pages, and the information-table XML
// documents they point at.
package edgar

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/somonox/findata-crawler/internal/fetch"
)

const (
	// DefaultBaseURL serves archive pages and filing documents.
	DefaultBaseURL = "https://www.sec.gov"
	// DefaultDataBaseURL serves the JSON submissions API.
	DefaultDataBaseURL = "https://data.sec.gov"

	form13F = "13F-HR"
)

// Config controls Client behavior. UserAgent is required by SEC etiquette:
// an identifying string with contact info, sent on every request.
type Config struct {
	BaseURL     string
	DataBaseURL string
	UserAgent   string
}

// Client walks EDGAR through the resilient fetch layer, so every request is
// cached, revalidated, and retried.
type Client struct {
	fetcher fetch.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// NewClient builds a Client.
func NewClient(fetcher fetch.Fetcher, cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DataBaseURL == "" {
		cfg.DataBaseURL = DefaultDataBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{fetcher: fetcher, cfg: cfg, logger: logger}
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	if c.cfg.UserAgent != "" {
		h.Set("User-Agent", c.cfg.UserAgent)
	}
	return h
}

func (c *Client) getBody(ctx context.Context, url string) ([]byte, error) {
	res := c.fetcher.Get(ctx, url, c.headers())
	if !res.OK() {
		if res.Err != nil {
			return nil, fmt.Errorf("get %s: %w", url, res.Err)
		}
		return nil, fmt.Errorf("get %s: http status %d", url, res.StatusCode)
	}
	return res.Body, nil
}

// Submissions is the subset of the per-CIK submissions feed we consume.
type Submissions struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent RecentFilings `json:"recent"`
	} `json:"filings"`
}

// RecentFilings is column-oriented: index i across the slices describes one
// filing.
type RecentFilings struct {
	Form            []string `json:"form"`
	AccessionNumber []string `json:"accessionNumber"`
	ReportDate      []string `json:"reportDate"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// Submissions fetches the filing history for a zero-padded 10-digit CIK.
func (c *Client) Submissions(ctx context.Context, cik string) (Submissions, error) {
	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.cfg.DataBaseURL, cik)
	body, err := c.getBody(ctx, url)
	if err != nil {
		return Submissions{}, err
	}
	var subs Submissions
	if err := json.Unmarshal(body, &subs); err != nil {
		return Submissions{}, fmt.Errorf("decode submissions for CIK %s: %w", cik, err)
	}
	return subs, nil
}

// FilingIndexURLs returns the archive index URL of every 13F-HR filing in
// the submissions feed, newest first as EDGAR lists them.
func (c *Client) FilingIndexURLs(ctx context.Context, cik string) ([]string, error) {
	subs, err := c.Submissions(ctx, cik)
	if err != nil {
		return nil, err
	}
	recent := subs.Filings.Recent

	unpadded, err := unpadCIK(cik)
	if err != nil {
		return nil, err
	}

	var urls []string
	for i, form := range recent.Form {
		if form != form13F || i >= len(recent.AccessionNumber) {
			continue
		}
		accession := strings.ReplaceAll(recent.AccessionNumber[i], "-", "")
		urls = append(urls, fmt.Sprintf("%s/Archives/edgar/data/%s/%s", c.cfg.BaseURL, unpadded, accession))
	}
	c.logger.Debug("13f filings located", zap.String("cik", cik), zap.Int("count", len(urls)))
	return urls, nil
}

// InfoTableURL scans a filing index page for the first XML document link,
// which is the information table for 13F filings.
func (c *Client) InfoTableURL(ctx context.Context, indexURL string) (string, error) {
	body, err := c.getBody(ctx, indexURL)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse index %s: %w", indexURL, err)
	}

	var found string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.HasSuffix(href, ".xml") {
			found = href
			return false
		}
		return true
	})
	if found == "" {
		return "", fmt.Errorf("no xml document in index %s", indexURL)
	}
	if strings.HasPrefix(found, "http") {
		return found, nil
	}
	return c.cfg.BaseURL + found, nil
}

// infoTableDoc mirrors the 13F information-table XML. Tags match local
// element names, so namespace prefixes do not matter.
type infoTableDoc struct {
	XMLName xml.Name       `xml:"informationTable"`
	Rows    []infoTableRow `xml:"infoTable"`
}

type infoTableRow struct {
	NameOfIssuer         string `xml:"nameOfIssuer"`
	TitleOfClass         string `xml:"titleOfClass"`
	CUSIP                string `xml:"cusip"`
	Value                string `xml:"value"`
	SharesOrPrincipal    string `xml:"shrsOrPrnAmt>sshPrnamt"`
	SharesType           string `xml:"shrsOrPrnAmt>sshPrnamtType"`
	InvestmentDiscretion string `xml:"investmentDiscretion"`
	OtherManager         string `xml:"otherManager"`
	VotingSole           string `xml:"votingAuthority>Sole"`
	VotingShared         string `xml:"votingAuthority>Shared"`
	VotingNone           string `xml:"votingAuthority>None"`
}

// InfoTable fetches and parses one information-table document.
func (c *Client) InfoTable(ctx context.Context, xmlURL string) ([]Holding, error) {
	body, err := c.getBody(ctx, xmlURL)
	if err != nil {
		return nil, err
	}
	var doc infoTableDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode info table %s: %w", xmlURL, err)
	}
	holdings := make([]Holding, 0, len(doc.Rows))
	for _, row := range doc.Rows {
		holdings = append(holdings, holdingFromRow(row))
	}
	return holdings, nil
}

// Holdings fetches every 13F-HR information table for a CIK, newest first,
// one slice per filing.
func (c *Client) Holdings(ctx context.Context, cik string) ([][]Holding, error) {
	indexURLs, err := c.FilingIndexURLs(ctx, cik)
	if err != nil {
		return nil, err
	}
	filings := make([][]Holding, 0, len(indexURLs))
	for _, indexURL := range indexURLs {
		xmlURL, err := c.InfoTableURL(ctx, indexURL)
		if err != nil {
			return nil, err
		}
		holdings, err := c.InfoTable(ctx, xmlURL)
		if err != nil {
			return nil, err
		}
		filings = append(filings, holdings)
	}
	return filings, nil
}

func unpadCIK(cik string) (string, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(cik), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid CIK %q: %w", cik, err)
	}
	return strconv.FormatInt(n, 10), nil
}
