package snapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/imroc/req/v3"
	"github.com/openmined/appsync/internal/version"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const (
	DefaultRequestsPerSecond = 20
	HeaderRequestID          = "X-Request-Id"

	tableEndpoint       = "/api/now/table/{table}"
	tableRecordEndpoint = "/api/now/table/{table}/{id}"
	rateLimitKey        = "instance"
	rateLimitMinWait    = 25 * time.Millisecond
)

// Client talks to the table API of a remote instance
type Client struct {
	client  *req.Client
	limiter *limiter.Limiter
	baseURL string
}

var _ Store = (*Client)(nil)

// New creates a new table API client
func New(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}

	c := &Client{
		baseURL: cfg.BaseURL(),
		limiter: limiter.New(memory.NewStore(), limiter.Rate{Period: time.Second, Limit: rps}),
	}

	c.client = req.C().
		SetBaseURL(c.baseURL).
		SetCommonBasicAuth(cfg.User, cfg.Password).
		SetCommonHeader("Accept", "application/json").
		SetUserAgent(version.UserAgent()).
		SetTimeout(60 * time.Second).
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(time.Second).
		SetCommonRetryCondition(func(resp *req.Response, err error) bool {
			return err != nil || (resp.Response != nil && resp.StatusCode == http.StatusTooManyRequests)
		}).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal).
		OnBeforeRequest(c.beforeRequest)

	return c, nil
}

// BaseURL returns the instance URL requests are sent to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections
func (c *Client) Close() {
	c.client.GetTransport().CloseIdleConnections()
}

// beforeRequest tags the request and blocks until the request ceiling allows it
func (c *Client) beforeRequest(_ *req.Client, r *req.Request) error {
	r.SetHeader(HeaderRequestID, uuid.NewString())
	return c.wait(r.Context())
}

func (c *Client) wait(ctx context.Context) error {
	for {
		lctx, err := c.limiter.Get(ctx, rateLimitKey)
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		if !lctx.Reached {
			return nil
		}

		delay := time.Until(time.Unix(lctx.Reset, 0))
		if delay < rateLimitMinWait {
			delay = rateLimitMinWait
		}
		slog.Debug("snapi rate limited", "wait", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

type tableResult struct {
	Result []map[string]any `json:"result"`
}

type recordResult struct {
	Result map[string]any `json:"result"`
}

func (c *Client) Query(ctx context.Context, table string, filter Filter, fields ...string) ([]Row, error) {
	var out tableResult
	r := c.client.R().
		SetContext(ctx).
		SetPathParam("table", table).
		SetQueryParam("sysparm_display_value", "all").
		SetQueryParam("sysparm_exclude_reference_link", "true").
		SetSuccessResult(&out)

	if q := filter.Encode(); q != "" {
		r.SetQueryParam("sysparm_query", q)
	}
	if len(fields) > 0 {
		r.SetQueryParam("sysparm_fields", joinFields(fields))
	}

	resp, err := r.Get(tableEndpoint)
	if err := handleAPIError(resp, err, "query "+table); err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(out.Result))
	for _, raw := range out.Result {
		rows = append(rows, flattenRow(raw))
	}
	return rows, nil
}

func (c *Client) Update(ctx context.Context, table, id string, fields map[string]string) (*Response, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetPathParams(map[string]string{"table": table, "id": id}).
		SetBody(fields).
		Patch(tableRecordEndpoint)
	if err != nil {
		return nil, fmt.Errorf("http request error: update %s/%s %w", table, id, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("update %s/%s %w", table, id, newAPIError(resp.StatusCode, resp.String()))
	}

	return &Response{Status: resp.StatusCode, Body: resp.Bytes()}, nil
}

func (c *Client) Create(ctx context.Context, table string, fields map[string]string) (Row, error) {
	var out recordResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetPathParam("table", table).
		SetQueryParam("sysparm_display_value", "all").
		SetQueryParam("sysparm_exclude_reference_link", "true").
		SetBody(fields).
		SetSuccessResult(&out).
		Post(tableEndpoint)
	if err := handleAPIError(resp, err, "create "+table); err != nil {
		return nil, err
	}
	return flattenRow(out.Result), nil
}

func (c *Client) Upsert(ctx context.Context, table string, filter Filter, fields map[string]string) error {
	rows, err := c.Query(ctx, table, filter, "sys_id")
	if err != nil {
		return err
	}

	if len(rows) > 0 {
		resp, err := c.Update(ctx, table, rows[0]["sys_id"], fields)
		if err != nil {
			return err
		}
		if !resp.OK() {
			return fmt.Errorf("upsert %s %w", table, newAPIError(resp.Status, string(resp.Body)))
		}
		return nil
	}

	// create from the filter's equality clauses plus the given fields
	record := make(map[string]string, len(filter)+len(fields))
	for _, cond := range filter {
		if cond.Op == OpEq {
			record[cond.Field] = cond.Values[0]
		}
	}
	for k, v := range fields {
		record[k] = v
	}
	_, err = c.Create(ctx, table, record)
	return err
}

// flattenRow converts a decoded result object into a Row. With sysparm_display_value=all
// every field is an object with value and display_value.
func flattenRow(raw map[string]any) Row {
	row := make(Row, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			row[k] = ""
		case string:
			row[k] = val
		case map[string]any:
			row[k] = stringify(val["value"])
			if d, ok := val["display_value"]; ok {
				row[k+displaySuffix] = stringify(d)
			}
		default:
			row[k] = stringify(val)
		}
	}
	return row
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func joinFields(fields []string) string {
	seen := make(map[string]struct{}, len(fields))
	out := make([]byte, 0, 16*len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, f...)
	}
	return string(out)
}
