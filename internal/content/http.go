package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"brickvault/internal/platform/config"
	"brickvault/pkg/platform/sentinel"
)

// maxMetadataBytes bounds a metadata document; anything larger is malformed.
const maxMetadataBytes = 1 << 20

// HTTPResolver fetches metadata over HTTP. ipfs:// URIs are rewritten through
// the configured gateway; http(s) URIs are fetched directly.
type HTTPResolver struct {
	client     *http.Client
	gatewayURL string
	publishURL string
}

func NewHTTPResolver(cfg config.ContentConfig) *HTTPResolver {
	return &HTTPResolver{
		client:     &http.Client{Timeout: cfg.Timeout},
		gatewayURL: strings.TrimSuffix(cfg.GatewayURL, "/") + "/",
		publishURL: cfg.PublishURL,
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, uri string) (*Metadata, error) {
	target, err := r.fetchURL(uri)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("metadata %s: %w", uri, sentinel.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: status %d: %w", uri, resp.StatusCode, sentinel.ErrUnavailable)
	}

	var meta Metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", uri, err)
	}
	return &meta, nil
}

// Publish uploads a metadata document to the pinning endpoint and returns the
// content URI the ledger should store.
func (r *HTTPResolver) Publish(ctx context.Context, meta *Metadata) (string, error) {
	if r.publishURL == "" {
		return "", fmt.Errorf("content publishing not configured: %w", sentinel.ErrUnavailable)
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.publishURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish metadata: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("publish metadata: status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var result struct {
		URI string `json:"uri"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&result); err != nil {
		return "", fmt.Errorf("decode publish response: %w", err)
	}
	if result.URI == "" {
		return "", fmt.Errorf("publish response carried no uri")
	}
	return result.URI, nil
}

func (r *HTTPResolver) fetchURL(uri string) (string, error) {
	switch {
	case strings.HasPrefix(uri, "ipfs://"):
		return r.gatewayURL + strings.TrimPrefix(uri, "ipfs://"), nil
	case strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "http://"):
		return uri, nil
	case uri == "":
		return "", fmt.Errorf("empty token uri: %w", sentinel.ErrNotFound)
	default:
		return "", fmt.Errorf("unsupported token uri scheme %q", uri)
	}
}
