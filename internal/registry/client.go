package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clinicore/imagingest/internal/logging"
)

// ErrRegistryUnavailable is returned when the registry cannot be reached or
// answers with a server error. It is retryable.
var ErrRegistryUnavailable = errors.New("patient registry unavailable")

// DefaultLookupTimeout bounds one registry round trip.
const DefaultLookupTimeout = 10 * time.Second

// Searcher is the read-only lookup surface the matcher needs.
type Searcher interface {
	SearchPatients(ctx context.Context, q Query) ([]Patient, error)
}

// Client is an HTTP client for the clinic's patient registry API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *logging.Logger
}

// NewClient builds a registry client. token is sent as a bearer credential.
func NewClient(baseURL, token string, timeout time.Duration, log *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// searchResponse is the registry's list envelope.
type searchResponse struct {
	Patients []Patient `json:"patients"`
	Total    int       `json:"total"`
}

// SearchPatients queries the registry. Partial queries are allowed; empty
// fields are not sent. Transport failures and server errors wrap
// ErrRegistryUnavailable.
func (c *Client) SearchPatients(ctx context.Context, q Query) ([]Patient, error) {
	params := url.Values{}
	if q.MRN != "" {
		params.Set("mrn", q.MRN)
	}
	if q.Name != "" {
		params.Set("name", q.Name)
	}
	if q.BirthDate != "" {
		params.Set("birth_date", q.BirthDate)
	}

	endpoint := c.baseURL + "/api/v1/patients"
	if enc := params.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("registry lookup failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("registry lookup rejected", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d: %s", ErrRegistryUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRegistryUnavailable, err)
	}

	c.log.Debug("registry lookup", "mrn", q.MRN, "results", len(sr.Patients))
	return sr.Patients, nil
}
