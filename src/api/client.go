// Package api is the transport layer for the expense backend. Client is
// a plain request/response primitive: it knows how to build and execute
// one HTTP call and nothing about credentials, retries or 401 handling.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

var (
	// ErrUnreachable indicates a transport-level failure (no HTTP status).
	ErrUnreachable = errors.New("backend unreachable")
	// ErrMalformedResponse indicates a 2xx response whose body could not
	// be decoded into the expected shape.
	ErrMalformedResponse = errors.New("malformed response body")
)

// ServerError is a non-2xx HTTP status from the backend.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned status %d", e.Status)
}

// FilePart describes a multipart file upload (field name "file").
type FilePart struct {
	Filename    string
	ContentType string
	Content     []byte
}

// RequestSpec describes one logical call against the backend.
type RequestSpec struct {
	Method string
	Path   string
	Body   any       // JSON-encoded when non-nil and File is nil
	File   *FilePart // multipart upload when non-nil
}

// Response is the raw outcome of an executed request.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// Client executes requests against a base URL. It has no retry or auth
// logic of its own.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Do builds and executes a single request, injecting bearer as the
// Authorization header when non-empty. Transport failures are wrapped
// in ErrUnreachable; HTTP statuses are returned as-is for the caller
// to interpret.
func (c *Client) Do(ctx context.Context, spec RequestSpec, bearer string) (*Response, error) {
	var body io.Reader
	contentType := ""

	switch {
	case spec.File != nil:
		buf := &bytes.Buffer{}
		writer := multipart.NewWriter(buf)
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, spec.File.Filename))
		ct := spec.File.ContentType
		if ct == "" {
			ct = "text/csv"
		}
		header.Set("Content-Type", ct)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
		if _, err := part.Write(spec.File.Content); err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
		body = buf
		contentType = writer.FormDataContentType()

	case spec.Body != nil:
		encoded, err := json.Marshal(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, c.baseURL+spec.Path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", spec.Method, spec.Path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnreachable, spec.Method, spec.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s %s: %v", ErrUnreachable, spec.Method, spec.Path, err)
	}

	return &Response{Status: resp.StatusCode, Body: data}, nil
}

// DecodeJSON decodes a response body into v. An empty body is accepted
// and leaves v at its zero value; the backend answers some list calls
// with no content.
func DecodeJSON(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
