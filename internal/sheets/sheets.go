// Package sheets reads hackathon listings from Google Sheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/diamondburned/arikawa/v3/utils/json"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"libdb.so/hackathon-bot/internal/hackathon"
)

// DefaultRange is the A1 range read from the first sheet. Row 1 is the
// header.
const DefaultRange = "A2:I"

// DefaultFetchTimeout bounds a single spreadsheet fetch.
const DefaultFetchTimeout = 20 * time.Second

var (
	// ErrEmptyID is returned when no spreadsheet ID is given.
	ErrEmptyID = errors.New("spreadsheet ID is empty")
	// ErrNoAccess means the spreadsheet does not exist or is not shared with
	// the bot's service account. Retrying will not help.
	ErrNoAccess = errors.New("spreadsheet not found or not shared with the bot")
	// ErrUnavailable means the fetch failed for a reason that may go away on
	// its own: rate limiting, server errors, timeouts.
	ErrUnavailable = errors.New("spreadsheet temporarily unavailable")
)

// FetchError is returned by Fetch. It always matches either ErrNoAccess or
// ErrUnavailable through errors.Is, as well as the underlying cause.
type FetchError struct {
	SpreadsheetID string
	Kind          error
	Err           error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch spreadsheet %q: %v: %v", e.SpreadsheetID, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Fetcher fetches the current listing of a spreadsheet.
type Fetcher interface {
	Fetch(ctx context.Context, spreadsheetID string) ([]hackathon.Hackathon, error)
}

// Reader is a Fetcher backed by the Sheets API.
type Reader struct {
	srv       *sheetsv4.Service
	readRange string
	timeout   time.Duration
}

var _ Fetcher = (*Reader)(nil)

// ReaderOpts configures a Reader. Zero values use the defaults.
type ReaderOpts struct {
	Range   string
	Timeout time.Duration
}

// New creates a Reader authenticated with the service account credentials
// file at credentialsPath.
func New(ctx context.Context, credentialsPath string, opts ReaderOpts) (*Reader, error) {
	if _, err := os.Stat(credentialsPath); err != nil {
		return nil, fmt.Errorf("service account credentials: %w", err)
	}
	return NewWithOptions(ctx, opts,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(sheetsv4.SpreadsheetsReadonlyScope),
	)
}

// ServiceAccountEmail returns the client_email of a service account
// credentials file, or "" if it cannot be read.
func ServiceAccountEmail(credentialsPath string) string {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return ""
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(b, &creds); err != nil {
		return ""
	}
	return creds.ClientEmail
}

// NewWithOptions creates a Reader using the given client options as-is.
func NewWithOptions(ctx context.Context, opts ReaderOpts, clientOpts ...option.ClientOption) (*Reader, error) {
	srv, err := sheetsv4.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	r := &Reader{
		srv:       srv,
		readRange: opts.Range,
		timeout:   opts.Timeout,
	}
	if r.readRange == "" {
		r.readRange = DefaultRange
	}
	if r.timeout <= 0 {
		r.timeout = DefaultFetchTimeout
	}
	return r, nil
}

// Fetch reads and parses every hackathon row of the spreadsheet. Rows
// without a name are skipped.
func (r *Reader) Fetch(ctx context.Context, spreadsheetID string) ([]hackathon.Hackathon, error) {
	if spreadsheetID == "" {
		return nil, ErrEmptyID
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.srv.Spreadsheets.Values.
		Get(spreadsheetID, r.readRange).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, &FetchError{
			SpreadsheetID: spreadsheetID,
			Kind:          classify(err),
			Err:           err,
		}
	}

	return hackathon.ParseRows(resp.Values), nil
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return ErrNoAccess
		case http.StatusBadRequest:
			// The API answers 400 for malformed spreadsheet IDs.
			return ErrNoAccess
		}
	}
	return ErrUnavailable
}
