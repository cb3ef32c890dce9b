// Package cartodb writes device locations through the CartoDB SQL API.
package cartodb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cartoglass/internal/metrics"
	"cartoglass/internal/model"
)

// Client issues SQL statements as GET requests to the SQL API endpoint.
type Client struct {
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

func New(endpoint, apiKey string) *Client {
	return &Client{Endpoint: endpoint, APIKey: apiKey, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// Result is the raw SQL API response. Non-2xx statuses are not errors.
type Result struct {
	Status int
	Body   string
}

// Insert runs q and returns the response status and body.
func (c *Client) Insert(ctx context.Context, q string) (Result, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return Result{}, fmt.Errorf("cartodb endpoint: %w", err)
	}
	params := u.Query()
	params.Set("api_key", c.APIKey)
	params.Set("q", q)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, err
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		metrics.CartoDBWrites.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("cartodb request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	metrics.CartoDBWrites.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		return Result{Status: resp.StatusCode}, fmt.Errorf("cartodb response: %w", err)
	}
	return Result{Status: resp.StatusCode, Body: string(b)}, nil
}

// InsertQuery renders the row insert for a location into table. Single
// quotes are removed from the free-text fields so they cannot end the
// SQL string literals.
func InsertQuery(table string, loc *model.Location, userID string) string {
	accuracy := "NULL"
	if loc.Accuracy != nil {
		accuracy = formatFloat(*loc.Accuracy)
	}
	return fmt.Sprintf("INSERT INTO %s (the_geom, accuracy, address, displayname, user_id) "+
		"VALUES (ST_GeomFromText('POINT(%s %s)', 4326), %s, '%s', '%s', '%s');",
		table,
		formatFloat(loc.Longitude), formatFloat(loc.Latitude),
		accuracy,
		Sanitize(loc.Address), Sanitize(loc.DisplayName), Sanitize(userID))
}

// Sanitize strips single quotes.
func Sanitize(s string) string { return strings.ReplaceAll(s, "'", "") }

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
