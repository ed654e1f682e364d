package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

// HTTPClient reads artifacts over HTTP(S).
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient wraps client; nil uses http.DefaultClient.
func NewHTTPClient(client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{client: client}
}

// Open requests u from byte offset. A server that answers a range request
// with the full body yields an Object with Offset 0.
func (c *HTTPClient) Open(ctx context.Context, u *url.URL, offset int64) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	slog.Info("http_download_start", "url", u.Redacted(), "offset", offset)
	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("http_get_failed", "url", u.Redacted(), "error", err)
		return nil, errors.Wrap(err, "failed to get artifact")
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		obj := &Object{Body: resp.Body, Offset: offset, Size: -1}
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			obj.Size = total
		}
		return obj, nil
	case resp.StatusCode == http.StatusOK:
		if offset > 0 {
			slog.Warn("http_range_ignored", "url", u.Redacted(), "offset", offset)
		}
		return &Object{Body: resp.Body, Offset: 0, Size: resp.ContentLength}, nil
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// The partial file already holds the whole object.
		total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range"))
		if ok && total == offset {
			resp.Body.Close()
			return &Object{Body: http.NoBody, Offset: offset, Size: total}, nil
		}
	}

	resp.Body.Close()
	slog.Error("http_get_failed", "url", u.Redacted(), "status", resp.StatusCode)
	return nil, fmt.Errorf("GET %s: %s", u.Redacted(), resp.Status)
}
