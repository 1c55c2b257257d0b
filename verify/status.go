// Package verify checks a running worker against the configuration it was
// launched with, through its status interface and by capturing its stream.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/html2ndi/ndi-acceptor/metrics"
	"github.com/html2ndi/ndi-acceptor/types"
)

const (
	CheckStatus = "status"

	DefaultStatusTimeout = 5 * time.Second
	maxStatusBodyBytes   = 1 << 20
)

// WorkerStatus is the worker's /status document. The four configuration
// fields are pointers so a missing field can be told apart from a zero value.
type WorkerStatus struct {
	Width       *int  `json:"width"`
	Height      *int  `json:"height"`
	FPS         *int  `json:"fps"`
	Progressive *bool `json:"progressive"`

	URL            string  `json:"url,omitempty"`
	ActualFPS      float64 `json:"actual_fps,omitempty"`
	NDIName        string  `json:"ndi_name,omitempty"`
	NDIConnections int     `json:"ndi_connections,omitempty"`
	Running        bool    `json:"running,omitempty"`
}

// ParseStatus decodes a status document and checks the required fields are present.
func ParseStatus(data []byte) (*WorkerStatus, error) {
	var s WorkerStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	var missing []string
	if s.Width == nil {
		missing = append(missing, "width")
	}
	if s.Height == nil {
		missing = append(missing, "height")
	}
	if s.FPS == nil {
		missing = append(missing, "fps")
	}
	if s.Progressive == nil {
		missing = append(missing, "progressive")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("status is missing fields: %s", strings.Join(missing, ", "))
	}
	return &s, nil
}

// CompareStatus compares every configuration field independently and lists
// each one that differs.
func CompareStatus(expected types.TestCase, s *WorkerStatus) types.Outcome {
	o := types.NewOutcome(CheckStatus)
	if s == nil {
		o.Fail(errors.New("no status"))
		return o
	}
	if *s.Width != expected.Width {
		o.Mismatch("width", expected.Width, *s.Width)
	}
	if *s.Height != expected.Height {
		o.Mismatch("height", expected.Height, *s.Height)
	}
	if *s.FPS != expected.FPS {
		o.Mismatch("fps", expected.FPS, *s.FPS)
	}
	if *s.Progressive != expected.Progressive {
		o.Mismatch("progressive", expected.Progressive, *s.Progressive)
	}
	return o
}

// StatusVerifier queries a worker's status interface.
type StatusVerifier struct {
	log    log.Logger
	client *http.Client
}

// NewStatusVerifier creates a status verifier. A nil client gets a default
// one with DefaultStatusTimeout.
func NewStatusVerifier(logger log.Logger, client *http.Client) *StatusVerifier {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultStatusTimeout}
	}
	return &StatusVerifier{log: logger, client: client}
}

// Fetch retrieves and decodes the status document at url.
func (v *StatusVerifier) Fetch(ctx context.Context, url string) (*WorkerStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query status: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status query returned %d", resp.StatusCode)
	}
	return ParseStatus(body)
}

// Verify fetches the status at url and compares it with expected. Transport
// and decode problems become a failed outcome rather than an error.
func (v *StatusVerifier) Verify(ctx context.Context, url string, expected types.TestCase) types.Outcome {
	s, err := v.Fetch(ctx, url)
	if err != nil {
		o := types.NewOutcome(CheckStatus)
		o.Fail(err)
		metrics.RecordVerification(o)
		return o
	}
	v.log.Info("Worker status",
		"width", *s.Width,
		"height", *s.Height,
		"fps", *s.FPS,
		"progressive", *s.Progressive,
		"actual_fps", s.ActualFPS,
		"ndi_name", s.NDIName,
		"ndi_connections", s.NDIConnections,
		"running", s.Running)

	o := CompareStatus(expected, s)
	metrics.RecordVerification(o)
	return o
}
