// Package sheets fetches lead data from publicly shared Google Sheets. The
// portal lets recruiters paste a sheet link instead of exporting a file; we
// extract the spreadsheet ID from whatever link shape they pasted and pull
// the CSV export endpoint.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

var (
	// ErrInvalidSheetURL is returned when no spreadsheet ID can be
	// extracted from the supplied link.
	ErrInvalidSheetURL = errors.New("could not extract a spreadsheet ID from the URL")

	// ErrSheetNotAccessible is returned on a non-success response from the
	// export endpoint, typically a sheet that is not shared publicly.
	ErrSheetNotAccessible = errors.New("spreadsheet is not accessible; make sure it is shared publicly")
)

// sheetIDPattern matches both regular edit links (/spreadsheets/d/{id}) and
// published links (/spreadsheets/d/e/{id}).
var sheetIDPattern = regexp.MustCompile(`/spreadsheets/d/(e/)?([a-zA-Z0-9_-]+)`)

// maxSheetBytes caps how much CSV we will buffer from a remote sheet.
const maxSheetBytes = 50 * 1024 * 1024

// Fetcher downloads the CSV export of a shared spreadsheet. The GET is
// idempotent and happens before any parsing or writes, so transient retries
// here are safe and do not violate the pipeline's no-retry commit rule.
type Fetcher struct {
	client  *retryablehttp.Client
	// BaseURL is overridable for tests and regional mirrors.
	BaseURL string
}

// NewFetcher builds a Fetcher with quiet retry behavior.
func NewFetcher() *Fetcher {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = 3
	retryClient.HTTPClient.Timeout = 60 * time.Second
	return &Fetcher{
		client:  retryClient,
		BaseURL: "https://docs.google.com",
	}
}

// ExtractID pulls the spreadsheet ID out of a user-supplied link. The second
// return reports whether the link was a published (/d/e/) URL, which uses a
// different export path.
func ExtractID(rawURL string) (string, bool, error) {
	m := sheetIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false, fmt.Errorf("%w: %q", ErrInvalidSheetURL, rawURL)
	}
	return m[2], m[1] != "", nil
}

// FetchCSV downloads the first sheet of the spreadsheet as CSV.
func (f *Fetcher) FetchCSV(ctx context.Context, rawURL string) ([]byte, error) {
	id, published, err := ExtractID(rawURL)
	if err != nil {
		return nil, err
	}

	exportURL := fmt.Sprintf("%s/spreadsheets/d/%s/export?format=csv", f.BaseURL, id)
	if published {
		exportURL = fmt.Sprintf("%s/spreadsheets/d/e/%s/pub?output=csv", f.BaseURL, id)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching spreadsheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w (HTTP %d)", ErrSheetNotAccessible, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSheetBytes))
	if err != nil {
		return nil, fmt.Errorf("reading spreadsheet body: %w", err)
	}
	return data, nil
}
