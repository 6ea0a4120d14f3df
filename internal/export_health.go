package internal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lychee-technology/survey"
)

// ExportEndpointHealthCheck sends a HEAD request to a custom export endpoint
// (MinIO, RustFS). It returns nil when exports are disabled or the endpoint is
// the AWS default, which needs signed requests to answer meaningfully.
// Auth errors are reported since they still prove the endpoint is reachable.
func ExportEndpointHealthCheck(ctx context.Context, cfg survey.ExportConfig, timeout time.Duration) error {
	if cfg.Bucket == "" || cfg.Endpoint == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, cfg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("export endpoint health request: %w", err)
	}
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return fmt.Errorf("export endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("export endpoint reachable but returned auth error: %d", resp.StatusCode)
	default:
		return fmt.Errorf("export endpoint returned unexpected status: %d", resp.StatusCode)
	}
}
