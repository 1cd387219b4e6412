// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package upload

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/visisec/edge-sdk/errors"
	"github.com/visisec/edge-sdk/internal/log"
	"github.com/visisec/edge-sdk/retry"
	"golang.org/x/crypto/sha3"
)

type (
	// Kind is the media category of an upload.
	Kind string

	// Client uploads recorded media to the session server.
	Client struct {
		base   *url.URL
		http   *http.Client
		policy retry.Policy
		log    log.Logger
	}

	// Health is the server's health check response.
	Health struct {
		Status  string `json:"status"`
		Service string `json:"service,omitempty"`
		Version string `json:"version,omitempty"`
	}

	// MeetingSummary is the server's generated summary of a meeting.
	MeetingSummary struct {
		MeetingID string  `json:"meeting_id"`
		Summary   Summary `json:"summary"`
	}

	// Summary holds the generated content of a meeting summary.
	Summary struct {
		Title            string       `json:"title"`
		ExecutiveSummary string       `json:"executive_summary"`
		KeyPoints        []string     `json:"key_points"`
		ActionItems      []ActionItem `json:"action_items"`
	}

	// ActionItem is a follow-up task raised in a meeting. Timestamp is the
	// offset into the recording in seconds.
	ActionItem struct {
		Task      string  `json:"task"`
		Assignee  string  `json:"assignee,omitempty"`
		DueDate   string  `json:"due_date,omitempty"`
		Timestamp float64 `json:"timestamp,omitempty"`
	}

	uploadResponse struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
		Status   string `json:"status"`
		Message  string `json:"message"`
	}
)

const (
	Audio Kind = "audio"
	Video Kind = "video"
)

// DigestHeader carries the hex SHA3-256 digest of the uploaded content.
const DigestHeader = "X-Content-SHA3-256"

// Upload defaults.
const (
	DefaultMaxAttempts = 3
	DefaultMinInterval = 250 * time.Millisecond
	DefaultTimeout     = 30 * time.Second
)

// NewClient creates an upload client against the server's base URL.
func NewClient(baseURL string, opt ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, &errors.Error{
			Message:       "invalid upload base URL",
			Kind:          errors.ConfigurationInvalid,
			NestedError:   err,
			PropertyName:  "BaseURL",
			PropertyValue: baseURL,
		}
	}

	var opts Options
	opts.Apply(opt)

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.RetryPolicy == nil {
		opts.RetryPolicy = &retry.ExponentialBackoff{
			MaxAttempts: DefaultMaxAttempts,
			MinInterval: DefaultMinInterval,
			Logger:      opts.Logger,
		}
	}

	return &Client{
		base:   base,
		http:   opts.HTTPClient,
		policy: opts.RetryPolicy,
		log:    log.Wrap(opts.Logger),
	}, nil
}

// Upload sends a named blob as a multipart form file and returns the
// server-assigned resource identifier. Server errors and network failures are
// retried; rejected uploads are not.
func (c *Client) Upload(
	ctx context.Context,
	kind Kind,
	name string,
	contentType string,
	data []byte,
) (string, error) {
	if kind != Audio && kind != Video {
		return "", &errors.Error{
			Message:       "unknown upload kind",
			Kind:          errors.ArgumentInvalid,
			PropertyName:  "kind",
			PropertyValue: string(kind),
		}
	}
	if !strings.HasPrefix(contentType, string(kind)+"/") {
		return "", &errors.Error{
			Message:       fmt.Sprintf("content type must be %s/*", kind),
			Kind:          errors.ArgumentInvalid,
			PropertyName:  "contentType",
			PropertyValue: contentType,
		}
	}

	body, boundary, err := form(name, contentType, data)
	if err != nil {
		return "", err
	}
	digest := sha3.Sum256(data)
	target := c.base.JoinPath("api", "v1", "upload", string(kind)).String()

	var res uploadResponse
	err = c.policy.Start(ctx, "upload", func(
		ctx context.Context,
		_ uint64,
	) (bool, error) {
		req, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			target,
			bytes.NewReader(body),
		)
		if err != nil {
			return false, err
		}
		req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
		req.Header.Set(DigestHeader, hex.EncodeToString(digest[:]))

		return c.do("upload", req, &res)
	})
	if err != nil {
		c.log.Err(ctx, err)
		return "", err
	}

	id := res.ID
	if id == "" {
		id = res.Filename
	}
	if id == "" {
		return "", &errors.Error{
			Message:      "upload response has no identifier",
			Kind:         errors.PayloadInvalid,
			PropertyName: "id",
		}
	}

	c.log.Log(ctx, slog.LevelInfo, "upload complete",
		slog.String("kind", string(kind)),
		slog.String("id", id),
		slog.Int("bytes", len(data)),
	)
	return id, nil
}

// Health queries the server's health endpoint once.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.base.JoinPath("/").String(),
		nil,
	)
	if err != nil {
		return nil, err
	}

	var res Health
	if _, err := c.do("health", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// MeetingSummary fetches the generated summary of a finished meeting. Server
// errors and network failures are retried.
func (c *Client) MeetingSummary(
	ctx context.Context,
	meetingID string,
) (*MeetingSummary, error) {
	if meetingID == "" {
		return nil, &errors.Error{
			Message:      "meeting ID is required",
			Kind:         errors.ArgumentInvalid,
			PropertyName: "meetingID",
		}
	}
	target := c.base.JoinPath("api", "v1", "meetings", meetingID, "summary")

	var res MeetingSummary
	err := c.policy.Start(ctx, "summary", func(
		ctx context.Context,
		_ uint64,
	) (bool, error) {
		req, err := http.NewRequestWithContext(
			ctx,
			http.MethodGet,
			target.String(),
			nil,
		)
		if err != nil {
			return false, err
		}
		return c.do("summary", req, &res)
	})
	if err != nil {
		c.log.Err(ctx, err)
		return nil, err
	}
	return &res, nil
}

// Execute a request and decode its JSON response, reporting whether a
// failure is worth retrying.
func (c *Client) do(op string, req *http.Request, v any) (bool, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return false, errors.Context(req.Context(), op)
		}
		return true, &errors.Error{
			Message:     op + " request failed",
			Kind:        errors.TransportError,
			NestedError: err,
			Operation:   op,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, &errors.Error{
			Message:     "cannot read " + op + " response",
			Kind:        errors.TransportError,
			NestedError: err,
			Operation:   op,
		}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return true, &errors.Error{
			Message:       op + " server error: " + resp.Status,
			Kind:          errors.TransportError,
			Operation:     op,
			PropertyName:  "status",
			PropertyValue: resp.StatusCode,
		}
	case resp.StatusCode >= http.StatusBadRequest:
		return false, &errors.Error{
			Message:       op + " rejected: " + detail(data, resp.Status),
			Kind:          errors.ArgumentInvalid,
			Operation:     op,
			PropertyName:  "status",
			PropertyValue: resp.StatusCode,
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, &errors.Error{
			Message:     "cannot decode " + op + " response",
			Kind:        errors.PayloadInvalid,
			NestedError: err,
			Operation:   op,
		}
	}
	return false, nil
}

// Build the multipart body once so every attempt sends identical bytes.
func form(name, contentType string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(
		`form-data; name="file"; filename=%q`,
		name,
	))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err == nil {
		_, err = part.Write(data)
	}
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		return nil, "", &errors.Error{
			Message:     "cannot build upload form",
			Kind:        errors.PayloadInvalid,
			NestedError: err,
		}
	}
	return buf.Bytes(), w.Boundary(), nil
}

// Use the "detail" message from an error body if present.
func detail(body []byte, fallback string) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return fallback
}
