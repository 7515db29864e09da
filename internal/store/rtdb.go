package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
)

// RTDBStore implements domain.RecordStore against the Firebase Realtime
// Database REST API. GET /<path>.json reads everything under a path;
// PATCH /<path>.json applies a multi-location update, where slash-delimited
// body keys address nested leaves without touching their siblings.
type RTDBStore struct {
	baseURL   string
	authToken string
	client    *http.Client
}

// NewRTDBStore creates an RTDB-backed record store. A missing base URL is a
// configuration error and fails here, before any read is attempted.
func NewRTDBStore(cfg domain.StoreConfig) (*RTDBStore, error) {
	if cfg.RTDBBaseURL == "" {
		return nil, fmt.Errorf("%w: RTDB base URL is required (set CIC_RTDB_URL)", ErrInvalidInput)
	}

	timeout := cfg.RTDBTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &RTDBStore{
		baseURL:   strings.TrimRight(cfg.RTDBBaseURL, "/"),
		authToken: cfg.RTDBAuthToken,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// GetAll returns every record under path keyed by record ID.
// RTDB returns a JSON null for an absent path; that reads as an empty map.
func (s *RTDBStore) GetAll(ctx context.Context, path string) (map[string]any, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(path), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rtdb get failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rtdb read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rtdb get %s: status %d: %s", path, resp.StatusCode, truncateBody(body))
	}

	var raw map[string]any
	if string(bytes.TrimSpace(body)) == "null" {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("rtdb get %s: unexpected payload: %w", path, err)
	}
	return raw, nil
}

// Update applies a multi-location patch under path in one call.
func (s *RTDBStore) Update(ctx context.Context, path string, patch map[string]any) error {
	if path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	if len(patch) == 0 {
		return nil
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, s.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("rtdb patch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rtdb patch %s: status %d: %s", path, resp.StatusCode, truncateBody(body))
	}
	return nil
}

// Ping issues a shallow read against the database root.
func (s *RTDBStore) Ping(ctx context.Context) error {
	u := s.baseURL + "/.json?shallow=true"
	if s.authToken != "" {
		u += "&auth=" + url.QueryEscape(s.authToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rtdb ping: status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op; the HTTP client has no persistent handle to release.
func (s *RTDBStore) Close() error {
	return nil
}

func (s *RTDBStore) endpoint(path string) string {
	u := s.baseURL + "/" + strings.Trim(path, "/") + ".json"
	if s.authToken != "" {
		u += "?auth=" + url.QueryEscape(s.authToken)
	}
	return u
}

func truncateBody(b []byte) string {
	const max = 256
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
