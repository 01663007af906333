package records

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/asad/mediabridge/internal/apperr"
	"github.com/asad/mediabridge/internal/logging"
	"github.com/asad/mediabridge/internal/metrics"
)

// NotionVersion is the API version every request pins.
const NotionVersion = "2022-06-28"

// Page is one record as returned by the record store.
type Page struct {
	ID             string              `json:"id"`
	CreatedTime    string              `json:"created_time"`
	LastEditedTime string              `json:"last_edited_time"`
	URL            string              `json:"url"`
	Properties     map[string]Property `json:"properties"`
}

// QueryResult is one page of a database query.
type QueryResult struct {
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// Query selects records from the database. An empty Status queries all.
type Query struct {
	Status   string
	PageSize int
}

// RecordStore is the metadata side of the bridge.
type RecordStore interface {
	Query(ctx context.Context, q Query) (*QueryResult, error)
	Create(ctx context.Context, properties map[string]any) (*Page, error)
	Update(ctx context.Context, pageID string, properties map[string]any) (*Page, error)
	Retrieve(ctx context.Context, pageID string) (*Page, error)
}

// NotionOptions configures the Notion record store.
type NotionOptions struct {
	APIURL     string
	Token      string
	DatabaseID string
}

// NotionClient is a RecordStore backed by one Notion database.
type NotionClient struct {
	client *resty.Client
	opts   NotionOptions
	logger logging.Logger
}

// NewNotionClient creates a client for the configured database.
func NewNotionClient(opts NotionOptions, client *resty.Client, logger logging.Logger) *NotionClient {
	opts.APIURL = strings.TrimRight(opts.APIURL, "/")
	return &NotionClient{
		client: client,
		opts:   opts,
		logger: logger.With(logging.String("backend", "notion")),
	}
}

type queryRequest struct {
	Filter   any `json:"filter,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

type statusFilter struct {
	Property string `json:"property"`
	Status   struct {
		Equals string `json:"equals"`
	} `json:"status"`
}

// Query runs a database query, optionally filtered on the status property.
func (c *NotionClient) Query(ctx context.Context, q Query) (*QueryResult, error) {
	body := queryRequest{PageSize: q.PageSize}
	failure := "Failed to fetch from Notion API"
	if q.Status != "" {
		f := statusFilter{Property: PropStatus}
		f.Status.Equals = q.Status
		body.Filter = f
		failure = fmt.Sprintf("Failed to fetch %s records from Notion API", q.Status)
	}

	var out QueryResult
	path := "/v1/databases/" + url.PathEscape(c.opts.DatabaseID) + "/query"
	if err := c.call(ctx, http.MethodPost, path, "query", body, &out, failure); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create adds a record to the database.
func (c *NotionClient) Create(ctx context.Context, properties map[string]any) (*Page, error) {
	body := map[string]any{
		"parent":     map[string]string{"database_id": c.opts.DatabaseID},
		"properties": properties,
	}
	var page Page
	if err := c.call(ctx, http.MethodPost, "/v1/pages", "create_page", body, &page, "Failed to create record in Notion"); err != nil {
		return nil, err
	}
	return &page, nil
}

// Update patches the given properties of one record.
func (c *NotionClient) Update(ctx context.Context, pageID string, properties map[string]any) (*Page, error) {
	body := map[string]any{"properties": properties}
	var page Page
	if err := c.call(ctx, http.MethodPatch, "/v1/pages/"+url.PathEscape(pageID), "update_page", body, &page, "Failed to update Notion page"); err != nil {
		return nil, err
	}
	return &page, nil
}

// Retrieve reads one record by its handle.
func (c *NotionClient) Retrieve(ctx context.Context, pageID string) (*Page, error) {
	var page Page
	if err := c.call(ctx, http.MethodGet, "/v1/pages/"+url.PathEscape(pageID), "retrieve_page", nil, &page, "Failed to retrieve Notion page"); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *NotionClient) call(ctx context.Context, method, path, operation string, in, out any, failure string) error {
	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.opts.Token).
		SetHeader("Notion-Version", NotionVersion).
		SetHeader("Accept", "application/json").
		ForceContentType("application/json").
		SetResult(out)
	if in != nil {
		req.SetBody(in)
	}

	start := time.Now()
	resp, err := req.Execute(method, c.opts.APIURL+path)
	if resp == nil || resp.RawResponse == nil {
		metrics.RecordUpstream("notion", operation, "transport_error", time.Since(start).Seconds())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Upstream(failure, http.StatusBadGateway, fmt.Sprint(err))
	}
	metrics.RecordUpstream("notion", operation, fmt.Sprint(resp.StatusCode()), time.Since(start).Seconds())

	if resp.IsError() {
		c.logger.Warn("notion call failed",
			logging.String("operation", operation),
			logging.Int("status", resp.StatusCode()),
		)
		return apperr.Upstream(failure, resp.StatusCode(), resp.String())
	}
	if err != nil {
		return apperr.Internal(fmt.Sprintf("failed to decode %s response", operation), err)
	}
	return nil
}

var _ RecordStore = (*NotionClient)(nil)
