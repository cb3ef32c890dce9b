// Package mirror is a minimal client for the Mirror API timeline,
// subscriptions and locations collections.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"cartoglass/internal/metrics"
	"cartoglass/internal/model"
)

const DefaultBaseURL = "https://www.googleapis.com/mirror/v1/"

type Client interface {
	InsertTimelineItem(ctx context.Context, item *model.TimelineItem) (*model.TimelineItem, error)
	InsertSubscription(ctx context.Context, sub *model.Subscription) (*model.Subscription, error)
	GetLocation(ctx context.Context, id string) (*model.Location, error)
}

// Factory builds a Client bound to a user's authorized HTTP client.
type Factory func(hc *http.Client) Client

type Options struct {
	// HttpClient must already attach the user's OAuth token.
	HttpClient *http.Client
	BaseURL    string
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mirror api: unexpected status %d: %s", e.Status, e.Body)
}

func New(options *Options) (Client, error) {
	base, err := parseBase(options.BaseURL)
	if err != nil {
		return nil, err
	}
	hc := http.DefaultClient
	if options.HttpClient != nil {
		hc = options.HttpClient
	}
	return &client{hc: hc, base: base}, nil
}

// NewFactory validates baseURL once and returns a Factory for it.
func NewFactory(baseURL string) (Factory, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	return func(hc *http.Client) Client {
		if hc == nil {
			hc = http.DefaultClient
		}
		return &client{hc: hc, base: base}
	}, nil
}

func parseBase(raw string) (*url.URL, error) {
	if raw == "" {
		raw = DefaultBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", raw)
	}
	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	return u, nil
}

type client struct {
	hc   *http.Client
	base *url.URL
}

func (c *client) InsertTimelineItem(ctx context.Context, item *model.TimelineItem) (*model.TimelineItem, error) {
	out := &model.TimelineItem{}
	if err := c.do(ctx, "timeline.insert", http.MethodPost, "timeline", item, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) InsertSubscription(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	out := &model.Subscription{}
	if err := c.do(ctx, "subscriptions.insert", http.MethodPost, "subscriptions", sub, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) GetLocation(ctx context.Context, id string) (*model.Location, error) {
	if id == "" {
		return nil, errors.New("location id required")
	}
	out := &model.Location{}
	if err := c.do(ctx, "locations.get", http.MethodGet, "locations/"+id, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.MirrorCalls.WithLabelValues(op, result).Inc()
		metrics.MirrorLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(b)
	}

	u := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s", op)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "reading response")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return errors.WithStack(&APIError{Status: res.StatusCode, Body: string(b)})
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.Wrap(err, "parsing response")
	}
	return nil
}
