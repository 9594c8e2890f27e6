package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/finance-core/internal/infra/resilience"

	"go.uber.org/zap"
)

// ============================================================
// HTTP helpers for GET, upsert POST and DELETE
// ============================================================

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// doRequest executes a read. A 204 yields a nil body. A 404 means the table or
// route is missing and is returned as an error, never as an empty result.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, nil)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, resilience.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if err := c.checkStatus(method, path, resp.StatusCode, body); err != nil {
		return nil, err
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return body, nil
}

// doUpsert inserts the row or replaces it on primary key conflict.
func (c *Client) doUpsert(ctx context.Context, table string, data row) error {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return resilience.Permanent(err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, table, bytes.NewReader(jsonBody))
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: POST request failed",
			zap.String("table", table),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	body, _ := readBody(resp)
	if err := c.checkStatus(http.MethodPost, table, resp.StatusCode, body); err != nil {
		return err
	}

	c.logger.Debug("supabase: POST OK", zap.String("table", table), zap.Int("status", resp.StatusCode))
	return nil
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: DELETE request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	body, _ := readBody(resp)
	if err := c.checkStatus(http.MethodDelete, path, resp.StatusCode, body); err != nil {
		return err
	}

	c.logger.Debug("supabase: DELETE OK", zap.String("path", path))
	return nil
}

// checkStatus turns a non-2xx response into an error. Client errors other
// than timeouts and rate limits are permanent.
func (c *Client) checkStatus(method, path string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	c.logger.Warn("supabase: non-2xx response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.String("body", string(body)),
	)
	err := fmt.Errorf("supabase %s returned status %d: %s", method, status, string(body))
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return resilience.Permanent(err)
	}
	return err
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
