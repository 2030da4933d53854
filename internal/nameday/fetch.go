package nameday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"nameday/internal/httpclient"
)

// Wikipedia source of the calendar.
const (
	DefaultAPIURL    = "https://sv.wikipedia.org/w/api.php"
	DefaultPageTitle = "Lista_över_namnsdagar_i_Sverige_i_datumordning"
	DefaultUserAgent = "swedish-nameday-api/1.0 (https://example.com)"
)

// ErrNoData reports that the source page yielded no dates.
var ErrNoData = errors.New("no name days found in source page")

var monthNumbers = map[string]int{
	"januari":   1,
	"februari":  2,
	"mars":      3,
	"april":     4,
	"maj":       5,
	"juni":      6,
	"juli":      7,
	"augusti":   8,
	"september": 9,
	"oktober":   10,
	"november":  11,
	"december":  12,
}

// Dates whose cell holds only holiday text.
var emptyDates = map[string]struct{}{
	"01-01": {}, "02-02": {}, "02-29": {}, "03-25": {}, "06-24": {}, "11-01": {}, "12-25": {},
}

// Dates whose names carry parenthetical remarks.
var remarkDates = map[string]struct{}{
	"04-30": {}, "05-01": {}, "12-24": {}, "12-26": {}, "12-28": {},
}

var parenthetical = regexp.MustCompile(`\s*\([^)]*\)`)

// Fetcher downloads the rendered calendar page through the MediaWiki parse API.
type Fetcher struct {
	client *http.Client
	apiURL string
	page   string
}

// NewFetcher creates a fetcher. Empty apiURL or page select the Swedish
// Wikipedia defaults.
func NewFetcher(client *http.Client, apiURL, page string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if page == "" {
		page = DefaultPageTitle
	}
	return &Fetcher{client: client, apiURL: apiURL, page: page}
}

// FetchHTML returns the rendered HTML of the calendar page.
func (f *Fetcher) FetchHTML(ctx context.Context) (string, error) {
	query := url.Values{
		"action": {"parse"},
		"page":   {f.page},
		"prop":   {"text"},
		"format": {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.apiURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	data, err := httpclient.Do(f.client, req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", f.page, err)
	}

	var payload struct {
		Parse struct {
			Text struct {
				HTML string `json:"*"`
			} `json:"text"`
		} `json:"parse"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode parse response: %w", err)
	}
	if payload.Parse.Text.HTML == "" {
		return "", fmt.Errorf("fetch %s: empty page text", f.page)
	}
	return payload.Parse.Text.HTML, nil
}

// Fetch downloads and parses the calendar.
func (f *Fetcher) Fetch(ctx context.Context) (Calendar, error) {
	html, err := f.FetchHTML(ctx)
	if err != nil {
		return nil, err
	}
	cal, err := ParseTables(html)
	if err != nil {
		return nil, err
	}
	if len(cal) == 0 {
		return nil, ErrNoData
	}
	return cal, nil
}

// ParseTables extracts the calendar from every wikitable on the page. Each
// body row holds "<day> <month>" followed by the names, separated by commas
// or " och ".
func ParseTables(html string) (Calendar, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	cal := Calendar{}
	doc.Find("table.wikitable").Each(func(_ int, table *goquery.Selection) {
		table.Find("tr").Each(func(i int, row *goquery.Selection) {
			if i == 0 {
				return // header
			}
			cells := row.Find("td, th")
			if cells.Length() < 2 {
				return
			}
			key, ok := parseDateCell(cellText(cells.Eq(0)))
			if !ok {
				return
			}
			cal[key] = namesFor(key, cellText(cells.Eq(1)))
		})
	})
	return cal, nil
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func parseDateCell(text string) (string, bool) {
	parts := strings.Fields(strings.ToLower(text))
	if len(parts) != 2 {
		return "", false
	}
	month, ok := monthNumbers[parts[1]]
	if !ok {
		return "", false
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", false
	}
	return DateKey(month, day), true
}

func namesFor(key, text string) []string {
	if _, ok := emptyDates[key]; ok {
		return []string{}
	}
	_, stripRemarks := remarkDates[key]

	names := []string{}
	for _, n := range strings.Split(strings.ReplaceAll(text, " och ", ","), ",") {
		if stripRemarks {
			n = parenthetical.ReplaceAllString(n, "")
		}
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
