// Package storage opens remote artifacts for reading, resuming from a byte
// offset where the backend allows it. http, https and s3 URLs are supported.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// Object is an open remote object.
type Object struct {
	Body io.ReadCloser
	// Offset is the position of Body's first byte in the object. It is 0 when
	// the backend ignored a range request.
	Offset int64
	// Size is the total object size, -1 when unknown.
	Size int64
}

// Opener opens objects.
type Opener interface {
	Open(ctx context.Context, u *url.URL, offset int64) (*Object, error)
}

// Router dispatches on the URL scheme.
type Router struct {
	HTTP Opener
	S3   Opener
}

// Open opens u with the backend for its scheme.
func (r *Router) Open(ctx context.Context, u *url.URL, offset int64) (*Object, error) {
	switch u.Scheme {
	case "http", "https":
		if r.HTTP != nil {
			return r.HTTP.Open(ctx, u, offset)
		}
	case "s3":
		if r.S3 != nil {
			return r.S3.Open(ctx, u, offset)
		}
	}
	return nil, fmt.Errorf("no storage backend for %q", u.Scheme)
}

// ReadAll opens rawURL from the start and reads it completely.
func ReadAll(ctx context.Context, o Opener, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	obj, err := o.Open(ctx, u, 0)
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()
	return io.ReadAll(obj.Body)
}

// parseContentRangeTotal reads the total from "bytes 100-199/200".
func parseContentRangeTotal(v string) (int64, bool) {
	_, total, ok := strings.Cut(v, "/")
	if !ok || total == "*" {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
