package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// Request describes one REST call.
type Request struct {
	Route  Route
	Query  url.Values
	Body   any    // JSON encoded when non-nil
	Files  []File // Sent as multipart/form-data with Body as payload_json
	Reason string // X-Audit-Log-Reason
	Header http.Header
}

// File is an attachment uploaded with a request.
type File struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// Response is a successful REST response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	NoContent  bool // 204 or an empty body; Body must not be decoded
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if r.NoContent {
		return ErrNoContent
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Do sends a request. It fails fast with a RateLimitError, without any
// network call, when the route's bucket or the global limit is exhausted.
// Every response updates the rate-limit table. Nothing is retried.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	key := r.Route.BucketKey()
	if err := c.limits.Acquire(key); err != nil {
		c.logger.Debug("request blocked by rate limit",
			"route", key,
			"error", err,
		)
		return nil, err
	}

	resp, body, err := c.roundTrip(ctx, r)
	if err != nil {
		c.limits.Release(key, nil)
		return nil, err
	}

	info := parseRateLimitHeaders(resp.Header)
	var limitMessage string
	if resp.StatusCode == http.StatusTooManyRequests {
		limitMessage = info.applyLimited(body)
	}
	c.limits.Release(key, &info)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		rlErr := &RateLimitError{
			Global:     info.Global,
			RetryAfter: info.RetryAfter,
			Message:    limitMessage,
		}
		if !info.Global {
			rlErr.Bucket = key
		}
		c.logger.Warn("rate limited by server",
			"route", key,
			"bucket_id", info.BucketID,
			"global", info.Global,
			"retry_after", info.RetryAfter,
		)
		return nil, rlErr

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, newAPIError(resp.StatusCode, body)

	case resp.StatusCode == http.StatusNoContent || len(body) == 0:
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, NoContent: true}, nil
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// DoJSON sends a request and decodes the response into out. out may be nil
// when the caller does not need the body.
func (c *Client) DoJSON(ctx context.Context, r Request, out any) error {
	resp, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

func (c *Client) roundTrip(ctx context.Context, r Request) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("request complete",
		"route", r.Route.String(),
		"status", resp.StatusCode,
		"remaining", resp.Header.Get(headerRemaining),
	)
	return resp, body, nil
}

func (c *Client) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	fullURL := c.baseURL + r.Route.Path()
	if len(r.Query) > 0 {
		fullURL += "?" + r.Query.Encode()
	}

	body, contentType, err := encodeBody(r)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, r.Route.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.auth != nil {
		req.Header.Set("Authorization", c.auth.AuthorizationHeader())
	}
	if r.Reason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.PathEscape(r.Reason))
	}

	return req, nil
}

// encodeBody returns the request body and its content type.
func encodeBody(r Request) (io.Reader, string, error) {
	if len(r.Files) > 0 {
		return encodeMultipart(r)
	}
	if r.Body == nil {
		return nil, "", nil
	}

	data, err := json.Marshal(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("marshal body: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(r Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, "", fmt.Errorf("marshal payload_json: %w", err)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="payload_json"`)
		h.Set("Content-Type", "application/json")
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create payload part: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("write payload part: %w", err)
		}
	}

	for i, f := range r.Files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[%d]"; filename="%s"`, i, quoteEscaper.Replace(f.Name)))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create file part %d: %w", i, err)
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, "", fmt.Errorf("write file %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// errorBody is the JSON error shape of non-2xx responses.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    http.StatusText(status),
		Body:       body,
	}

	var eb errorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil {
		apiErr.Code = eb.Code
		if eb.Message != "" {
			apiErr.Message = eb.Message
		}
	}
	return apiErr
}
