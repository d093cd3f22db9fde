// Package postgrest implements store.Store against a Supabase/PostgREST
// endpoint over HTTP.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/sarpras-dashboard/sarpras-sync/store"
	"github.com/sarpras-dashboard/sarpras-sync/value"
)

// DefaultTimeout is the per-request timeout.
const DefaultTimeout = 30 * time.Second

// Client talks to the PostgREST API mounted at <baseURL>/rest/v1.
//
// Reads are retried on transport errors and 5xx responses; writes are not,
// since a retried insert may land twice.
type Client struct {
	read   *resty.Client
	write  *resty.Client
	logger *zap.Logger
}

var _ store.Store = (*Client)(nil)

// Option configures a Client.
type Option func(*options)

type options struct {
	timeout    time.Duration
	retries    int
	logger     *zap.Logger
	httpClient *http.Client
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetries sets the retry count for reads.
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New creates a client for the project at baseURL authenticated with key.
// The key is sent both as the apikey header and as a bearer token.
func New(baseURL, key string, opts ...Option) *Client {
	o := options{timeout: DefaultTimeout, retries: 2, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	endpoint := strings.TrimSuffix(baseURL, "/") + "/rest/v1"
	newClient := func() *resty.Client {
		var c *resty.Client
		if o.httpClient != nil {
			c = resty.NewWithClient(o.httpClient)
		} else {
			c = resty.New()
		}
		return c.
			SetBaseURL(endpoint).
			SetTimeout(o.timeout).
			SetHeader("apikey", key).
			SetAuthToken(key).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
	}

	read := newClient().
		SetRetryCount(o.retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
		})

	return &Client{read: read, write: newClient(), logger: o.logger}
}

// Select implements store.Store.
func (c *Client) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	params := filterParams(q.Filters)
	sel := "*"
	if len(q.Columns) > 0 {
		sel = strings.Join(q.Columns, ",")
	}
	params.Set("select", sel)
	if len(q.Order) > 0 {
		order := make([]string, len(q.Order))
		for i, col := range q.Order {
			order[i] = col + ".asc"
		}
		params.Set("order", strings.Join(order, ","))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	resp, err := c.read.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get("/" + table)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	if err := checkResponse(resp, "select", table); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	var rows []store.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding %s rows: %w", table, err)
	}
	return rows, nil
}

// Insert implements store.Store.
func (c *Client) Insert(ctx context.Context, table string, rows []store.Row) error {
	if len(rows) == 0 {
		return nil
	}
	resp, err := c.write.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(rows).
		Post("/" + table)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return checkResponse(resp, "insert", table)
}

// Upsert implements store.Store.
func (c *Client) Upsert(ctx context.Context, table string, rows []store.Row, onConflict string) error {
	if len(rows) == 0 {
		return nil
	}
	resp, err := c.write.R().
		SetContext(ctx).
		SetQueryParam("on_conflict", onConflict).
		SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
		SetBody(rows).
		Post("/" + table)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return checkResponse(resp, "upsert", table)
}

// Update implements store.Store.
func (c *Client) Update(ctx context.Context, table string, patch store.Row, filters ...store.Filter) error {
	if len(filters) == 0 {
		return &store.Error{Op: "update", Table: table, Message: "refusing unfiltered update"}
	}
	resp, err := c.write.R().
		SetContext(ctx).
		SetQueryParamsFromValues(filterParams(filters)).
		SetHeader("Prefer", "return=minimal").
		SetBody(patch).
		Patch("/" + table)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return checkResponse(resp, "update", table)
}

// Delete implements store.Store. The count comes from the Content-Range
// header; -1 is returned when the server omits it.
func (c *Client) Delete(ctx context.Context, table string, filters ...store.Filter) (int, error) {
	if len(filters) == 0 {
		return 0, &store.Error{Op: "delete", Table: table, Message: "refusing unfiltered delete"}
	}
	resp, err := c.write.R().
		SetContext(ctx).
		SetQueryParamsFromValues(filterParams(filters)).
		SetHeader("Prefer", "return=minimal,count=exact").
		Delete("/" + table)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	if err := checkResponse(resp, "delete", table); err != nil {
		return 0, err
	}
	return contentRangeTotal(resp.Header().Get("Content-Range")), nil
}

func filterParams(filters []store.Filter) url.Values {
	params := url.Values{}
	for _, f := range filters {
		switch f.Op {
		case store.OpIn:
			params.Add(f.Column, "in.("+formatList(f.Values)+")")
		default:
			var v any
			if len(f.Values) > 0 {
				v = f.Values[0]
			}
			params.Add(f.Column, "eq."+value.Text(v))
		}
	}
	return params
}

// formatList renders values for an in.(...) filter, quoting any value
// containing PostgREST reserved characters.
func formatList(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		s := value.Text(v)
		if strings.ContainsAny(s, `,()":\ `) {
			s = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
		}
		parts[i] = s
	}
	return strings.Join(parts, ",")
}

// apiError is the PostgREST error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func checkResponse(resp *resty.Response, op, table string) error {
	if resp.IsSuccess() {
		return nil
	}
	msg := strings.TrimSpace(string(resp.Body()))
	var body apiError
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
		msg = body.Message
		if body.Code != "" {
			msg = body.Code + ": " + msg
		}
		if body.Details != "" {
			msg += " (" + body.Details + ")"
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &store.Error{Op: op, Table: table, Status: resp.StatusCode(), Message: msg}
}

// contentRangeTotal parses "0-24/3573" or "*/3" into the total count.
func contentRangeTotal(h string) int {
	i := strings.LastIndexByte(h, '/')
	if i < 0 {
		return -1
	}
	n, err := strconv.Atoi(h[i+1:])
	if err != nil {
		return -1
	}
	return n
}
