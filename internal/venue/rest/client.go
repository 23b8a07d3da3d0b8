// Package rest is the HTTP transport shared by the centralized venue adapters.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-client/internal/core"

	"go.uber.org/zap"
)

type Client struct {
	venue   string
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(venue, baseURL string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, core.Configf("%s base url is required", venue)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, core.Configf("%s base url: %v", venue, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		venue:   venue,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}, nil
}

// Host is the lower-cased host part of the base url, as signed by Huobi style
// venues.
func (c *Client) Host() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

type Request struct {
	Method string
	Path   string
	Query  url.Values
	// RawQuery is sent verbatim in place of Query. Signed venues use it so
	// the wire encoding is exactly the one they hashed.
	RawQuery string
	// Form is sent url-encoded; JSON is sent as a JSON body. At most one is set.
	Form   url.Values
	JSON   any
	Header http.Header
}

// Do sends req and decodes a 2xx reply into out. Transport failures wrap
// core.ErrNetwork; other statuses return a core.VenueError carrying the body.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	target := c.baseURL + req.Path
	switch {
	case req.RawQuery != "":
		target += "?" + req.RawQuery
	case len(req.Query) > 0:
		target += "?" + req.Query.Encode()
	}
	var body io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		payload, err := json.Marshal(req.JSON)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", core.ErrNetwork, c.venue, req.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		venueErr := core.VenueError{
			Venue:   c.venue,
			Code:    strconv.Itoa(resp.StatusCode),
			Message: http.StatusText(resp.StatusCode),
			Payload: strings.TrimSpace(string(payload)),
		}
		c.log.Debug("venue request failed", zap.String("venue", c.venue), zap.String("path", req.Path), zap.Int("status", resp.StatusCode))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return errors.Join(core.ErrNetwork, venueErr)
		}
		return venueErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.Shapef("%s %s: %v", c.venue, req.Path, err)
	}
	return nil
}
