package records

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/asad/mediabridge/internal/apperr"
	"github.com/asad/mediabridge/internal/logging"
	"github.com/asad/mediabridge/internal/metrics"
)

// Sub-write outcomes reported by writes.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

const defaultPageSize = 100

// Summary is the short form of a record returned by status listings.
type Summary struct {
	PageID         string `json:"page_id"`
	FormulaID      string `json:"formula_id"`
	Username       string `json:"username"`
	Caption        string `json:"caption"`
	CreatedTime    string `json:"created_time"`
	LastEditedTime string `json:"last_edited_time"`
	URL            string `json:"url"`
}

// StatusList is the result of ListByStatus.
type StatusList struct {
	Filter        string    `json:"filter"`
	TotalFiltered int       `json:"total_filtered"`
	FilteredIDs   []string  `json:"filtered_ids"`
	Records       []Summary `json:"records"`
}

// Item is a record with every property projected.
type Item struct {
	ID             string         `json:"id"`
	CreatedTime    string         `json:"created_time"`
	LastEditedTime string         `json:"last_edited_time"`
	URL            string         `json:"url"`
	Properties     map[string]any `json:"properties"`
}

// List is the result of ListAll.
type List struct {
	Total      int     `json:"total"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
	Items      []Item  `json:"items"`
}

// Metadata is the record-store half of a full record.
type Metadata struct {
	FormulaID      string  `json:"formula_id"`
	PageID         string  `json:"page_id"`
	Username       string  `json:"username"`
	Caption        string  `json:"caption"`
	Status         string  `json:"status"`
	Endpoint       string  `json:"endpoint"`
	OutputURL      *string `json:"output_url"`
	CreatedTime    string  `json:"created_time"`
	LastEditedTime string  `json:"last_edited_time"`
	URL            string  `json:"url"`
}

// Payload is the payload-store half of a full record. JSONParsed is nil
// when nothing is stored and falls back to the raw text when it does not
// parse.
type Payload struct {
	JSONRaw    string `json:"json_raw"`
	JSONParsed any    `json:"json_parsed"`
}

// FullRecord joins a record's metadata with its payload.
type FullRecord struct {
	Metadata Metadata `json:"metadata"`
	Payload  Payload  `json:"payload"`
}

// WriteResult reports a successful create or update.
type WriteResult struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	ID           string         `json:"id"`
	FormulaID    string         `json:"formula_id,omitempty"`
	URL          string         `json:"url,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
	RecordStore  string         `json:"record_store"`
	PayloadStore string         `json:"payload_store"`
}

// Bridge joins the record store and the payload store behind one set of
// record operations. Neither store knows about the other; writes touching
// both are issued independently with no rollback.
type Bridge struct {
	records  RecordStore
	payloads PayloadStore
	pageSize int
	logger   logging.Logger
}

// NewBridge joins a record store and a payload store. pageSize bounds every
// record-store query.
func NewBridge(records RecordStore, payloads PayloadStore, pageSize int, logger logging.Logger) *Bridge {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Bridge{
		records:  records,
		payloads: payloads,
		pageSize: pageSize,
		logger:   logger,
	}
}

// ListByStatus returns summaries of the records whose status matches. The
// status is normalized first, so "draft" finds "Draft".
func (b *Bridge) ListByStatus(ctx context.Context, status string) (*StatusList, error) {
	status = NormalizeStatus(status)
	res, err := b.records.Query(ctx, Query{Status: status, PageSize: b.pageSize})
	if err != nil {
		return nil, err
	}

	out := &StatusList{
		Filter:      PropStatus + " = " + status,
		FilteredIDs: make([]string, 0, len(res.Results)),
		Records:     make([]Summary, 0, len(res.Results)),
	}
	for _, page := range res.Results {
		id, _ := recordIDOf(page)
		out.FilteredIDs = append(out.FilteredIDs, id)
		out.Records = append(out.Records, Summary{
			PageID:         page.ID,
			FormulaID:      id,
			Username:       textOf(page.Properties[PropUsername]),
			Caption:        textOf(page.Properties[PropCaption]),
			CreatedTime:    page.CreatedTime,
			LastEditedTime: page.LastEditedTime,
			URL:            page.URL,
		})
	}
	out.TotalFiltered = len(out.Records)
	return out, nil
}

// ListAll returns one page of records with every property projected.
func (b *Bridge) ListAll(ctx context.Context) (*List, error) {
	res, err := b.records.Query(ctx, Query{PageSize: b.pageSize})
	if err != nil {
		return nil, err
	}

	out := &List{
		HasMore:    res.HasMore,
		NextCursor: res.NextCursor,
		Items:      make([]Item, 0, len(res.Results)),
	}
	for _, page := range res.Results {
		props, err := ProjectProperties(page.Properties)
		if err != nil {
			return nil, apperr.Internal("Failed to read record properties", err).With("page_id", page.ID)
		}
		out.Items = append(out.Items, Item{
			ID:             page.ID,
			CreatedTime:    page.CreatedTime,
			LastEditedTime: page.LastEditedTime,
			URL:            page.URL,
			Properties:     props,
		})
	}
	out.Total = len(out.Items)
	return out, nil
}

// GetFullRecord resolves recordID to its record and joins the stored
// payload. A record without a payload is returned with an empty payload.
func (b *Bridge) GetFullRecord(ctx context.Context, recordID string) (*FullRecord, error) {
	page, err := b.resolve(ctx, recordID)
	if err != nil {
		return nil, err
	}

	raw, found, err := b.payloads.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}

	props := page.Properties
	meta := Metadata{
		FormulaID:      recordID,
		PageID:         page.ID,
		Username:       textOf(props[PropUsername]),
		Caption:        textOf(props[PropCaption]),
		Status:         textOf(props[PropStatus]),
		Endpoint:       textOf(props[PropEndpoint]),
		CreatedTime:    page.CreatedTime,
		LastEditedTime: page.LastEditedTime,
		URL:            page.URL,
	}
	if meta.Status == "" {
		meta.Status = "unknown"
	}
	if meta.Endpoint == "" {
		meta.Endpoint = defaultEndpoint
	}
	if p, ok := props[PropOutputURL]; ok && p.URL != nil {
		meta.OutputURL = p.URL
	}

	payload := Payload{}
	if found {
		payload.JSONRaw = raw
		payload.JSONParsed = parsePayload(raw)
	}
	return &FullRecord{Metadata: meta, Payload: payload}, nil
}

// CreateRecord creates a record from the metadata fields, then stores the
// json value under the new record's identifier when it has one.
func (b *Bridge) CreateRecord(ctx context.Context, f *Fields) (*WriteResult, error) {
	props := f.Properties(true)
	if len(props) == 0 && !f.HasPayload() {
		return nil, apperr.BadRequest("At least one of username, caption, status, output_url or json is required")
	}

	page, err := b.records.Create(ctx, props)
	if err != nil {
		metrics.RecordSubWrite("record", OutcomeFailed)
		return nil, withOutcomes(err, OutcomeFailed, OutcomeSkipped)
	}
	metrics.RecordSubWrite("record", OutcomeOK)

	result := b.writeResult("Record created successfully", page)
	result.RecordStore = OutcomeOK
	result.PayloadStore = OutcomeSkipped

	if f.HasPayload() {
		recordID, ok := recordIDOf(*page)
		if !ok {
			b.logger.Warn("created record has no id yet; json payload not stored",
				logging.String("page_id", page.ID),
			)
			metrics.RecordSubWrite(b.payloads.Name(), OutcomeSkipped)
			return result, nil
		}
		result.FormulaID = recordID
		if err := b.putPayload(ctx, recordID, f.Payload()); err != nil {
			return nil, withOutcomes(err, OutcomeOK, OutcomeFailed).
				With("id", page.ID).
				With("url", page.URL)
		}
		result.PayloadStore = OutcomeOK
	}
	return result, nil
}

// UpdateByHandle updates the record with the given page handle. A json
// value needs the record's identifier, so the record is read first.
func (b *Bridge) UpdateByHandle(ctx context.Context, pageID string, f *Fields) (*WriteResult, error) {
	if !f.HasMetadata() && !f.HasPayload() {
		return nil, apperr.BadRequest("No fields to update")
	}

	var (
		current  *Page
		recordID string
	)
	if f.HasPayload() {
		page, err := b.records.Retrieve(ctx, pageID)
		if err != nil {
			return nil, err
		}
		id, ok := recordIDOf(*page)
		if !ok {
			return nil, apperr.BadRequest("Record %s has no %s value; cannot store json", pageID, PropID)
		}
		current, recordID = page, id
	}

	updated, rec, pay, err := b.writeBoth(ctx, pageID, recordID, f)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = current
	}
	result := b.writeResult("Page updated successfully", updated)
	result.ID = pageID
	result.FormulaID = recordID
	result.RecordStore, result.PayloadStore = rec, pay
	return result, nil
}

// UpdateByRecordID resolves recordID to its record, then writes metadata
// and payload independently.
func (b *Bridge) UpdateByRecordID(ctx context.Context, recordID string, f *Fields) (*WriteResult, error) {
	if !f.HasMetadata() && !f.HasPayload() {
		return nil, apperr.BadRequest("No fields to update")
	}

	page, err := b.resolve(ctx, recordID)
	if err != nil {
		return nil, err
	}

	updated, rec, pay, err := b.writeBoth(ctx, page.ID, recordID, f)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		updated = page
	}
	result := b.writeResult("Record updated successfully", updated)
	result.FormulaID = recordID
	result.RecordStore, result.PayloadStore = rec, pay
	return result, nil
}

// writeBoth issues the record-store and payload-store writes concurrently.
// Each write runs to completion on its own; a failure of one never cancels
// or undoes the other.
func (b *Bridge) writeBoth(ctx context.Context, pageID, recordID string, f *Fields) (*Page, string, string, error) {
	var (
		g       errgroup.Group
		updated *Page
		rec     = OutcomeSkipped
		pay     = OutcomeSkipped
	)
	if f.HasMetadata() {
		g.Go(func() error {
			page, err := b.records.Update(ctx, pageID, f.Properties(false))
			if err != nil {
				rec = OutcomeFailed
				return err
			}
			updated, rec = page, OutcomeOK
			return nil
		})
	}
	if f.HasPayload() {
		g.Go(func() error {
			if err := b.putPayload(ctx, recordID, f.Payload()); err != nil {
				pay = OutcomeFailed
				return err
			}
			pay = OutcomeOK
			return nil
		})
	}
	err := g.Wait()

	if f.HasMetadata() {
		metrics.RecordSubWrite("record", rec)
	}
	if err != nil {
		if rec == OutcomeOK || pay == OutcomeOK {
			b.logger.Warn("partial update",
				logging.String("page_id", pageID),
				logging.String("record_store", rec),
				logging.String("payload_store", pay),
				logging.ErrorField(err),
			)
		}
		return nil, rec, pay, withOutcomes(err, rec, pay)
	}
	return updated, rec, pay, nil
}

// putPayload writes one payload and records its outcome.
func (b *Bridge) putPayload(ctx context.Context, recordID, value string) error {
	if err := b.payloads.Put(ctx, recordID, value); err != nil {
		metrics.RecordSubWrite(b.payloads.Name(), OutcomeFailed)
		if !apperr.Is(err, apperr.KindUpstream) && ctx.Err() == nil {
			return apperr.Internal("Failed to write payload", err)
		}
		return err
	}
	metrics.RecordSubWrite(b.payloads.Name(), OutcomeOK)
	return nil
}

// resolve finds the record whose identifier equals recordID by scanning one
// query page. Nothing is cached between calls.
func (b *Bridge) resolve(ctx context.Context, recordID string) (*Page, error) {
	res, err := b.records.Query(ctx, Query{PageSize: b.pageSize})
	if err != nil {
		return nil, err
	}

	available := make([]string, 0, len(res.Results))
	for i := range res.Results {
		id, ok := recordIDOf(res.Results[i])
		if ok && id == recordID {
			return &res.Results[i], nil
		}
		if !ok {
			id = "unknown"
		}
		available = append(available, id)
	}
	return nil, apperr.NotFound("Record with formula ID %s not found", recordID).
		With("available_ids", available)
}

func (b *Bridge) writeResult(message string, page *Page) *WriteResult {
	result := &WriteResult{Success: true, Message: message}
	if page == nil {
		return result
	}
	result.ID = page.ID
	result.URL = page.URL
	props, err := ProjectProperties(page.Properties)
	if err != nil {
		b.logger.Warn("could not project written record", logging.String("page_id", page.ID), logging.ErrorField(err))
		return result
	}
	result.Properties = props
	return result
}

// withOutcomes attaches the per-store outcomes to a failed write.
func withOutcomes(err error, record, payload string) *apperr.Error {
	return apperr.From(err).
		With("success", false).
		With("record_store", record).
		With("payload_store", payload)
}

// recordIDOf reads the identifier property of a record.
func recordIDOf(page Page) (string, bool) {
	p, ok := page.Properties[PropID]
	if !ok {
		return "", false
	}
	return identifierOf(p)
}

// parsePayload decodes stored text, falling back to the text itself.
func parsePayload(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
