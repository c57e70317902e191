// Package archive is an HTTP client for the remote image archive (an
// Orthanc-style PACS REST API). The archive is the system of record for
// uploaded studies; the pipeline only stores instances and reads study
// statistics, it never deletes.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clinicore/imagingest/internal/logging"
)

// DefaultUploadTimeout bounds one instance upload round trip.
const DefaultUploadTimeout = 60 * time.Second

// TransmissionError reports a failed instance upload: either a transport
// failure (Cause set) or an archive rejection (Status and Body set).
type TransmissionError struct {
	Status int
	Body   string
	Cause  error
}

// Error implements the error interface.
func (e *TransmissionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("archive transmission failed: %v", e.Cause)
	}
	return fmt.Sprintf("archive rejected instance: status %d: %s", e.Status, e.Body)
}

// Unwrap returns the transport cause, if any.
func (e *TransmissionError) Unwrap() error { return e.Cause }

// StoreOptions carries optional EHR-side linkage passed through with an
// upload. Absent identifiers are valid (ad hoc upload).
type StoreOptions struct {
	PatientID string // EHR patient identifier
	OrderID   string // originating clinical order, if known
}

// StoreResult identifies the stored instance inside the archive.
type StoreResult struct {
	InstanceID string `json:"ID"`
	SeriesID   string `json:"ParentSeries"`
	StudyID    string `json:"ParentStudy"`
	Status     string `json:"Status"`
}

// StudyStatistics summarizes one archived study.
type StudyStatistics struct {
	CountSeries    int   `json:"CountSeries"`
	CountInstances int   `json:"CountInstances"`
	DiskSizeMB     int64 `json:"DiskSizeMB,string"`
}

// SystemInfo is the archive's identity, used for health checks.
type SystemInfo struct {
	Name    string `json:"Name"`
	Version string `json:"Version"`
}

// Store is the archive surface the upload orchestrator depends on.
type Store interface {
	StoreInstance(ctx context.Context, payload []byte, opts StoreOptions) (StoreResult, error)
}

// Client talks to the archive's REST API with basic auth.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      *logging.Logger
}

// NewClient builds an archive client.
func NewClient(baseURL, username, password string, timeout time.Duration, log *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

// StoreInstance uploads one DICOM payload to the archive and returns the
// remote identifiers. Linkage identifiers travel as request headers for
// downstream association.
func (c *Client) StoreInstance(ctx context.Context, payload []byte, opts StoreOptions) (StoreResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/instances", bytes.NewReader(payload))
	if err != nil {
		return StoreResult{}, fmt.Errorf("build store request: %w", err)
	}
	req.Header.Set("Content-Type", "application/dicom")
	if opts.PatientID != "" {
		req.Header.Set("X-Clinicore-Patient", opts.PatientID)
	}
	if opts.OrderID != "" {
		req.Header.Set("X-Clinicore-Order", opts.OrderID)
	}
	c.auth(req)

	c.log.Debug("storing instance", "bytes", len(payload))
	resp, err := c.http.Do(req)
	if err != nil {
		return StoreResult{}, &TransmissionError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return StoreResult{}, &TransmissionError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result StoreResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return StoreResult{}, &TransmissionError{Cause: fmt.Errorf("decode store response: %w", err)}
	}
	if result.StudyID == "" {
		return StoreResult{}, &TransmissionError{Cause: fmt.Errorf("archive response missing parent study id")}
	}

	c.log.Info("instance stored", "instance", result.InstanceID, "study", result.StudyID)
	return result, nil
}

// GetStudyStatistics reads series/instance counts for an archived study.
func (c *Client) GetStudyStatistics(ctx context.Context, studyID string) (StudyStatistics, error) {
	var stats StudyStatistics
	err := c.getJSON(ctx, "/studies/"+studyID+"/statistics", &stats)
	return stats, err
}

// Health verifies archive connectivity and returns its identity.
func (c *Client) Health(ctx context.Context) (SystemInfo, error) {
	var info SystemInfo
	err := c.getJSON(ctx, "/system", &info)
	return info, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("archive request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("archive request %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) auth(req *http.Request) {
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}
