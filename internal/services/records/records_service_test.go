package records

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/asad/mediabridge/internal/httpx"
	"github.com/asad/mediabridge/internal/logging"
)

// fakeNotion is an in-memory stand-in for one Notion database.
type fakeNotion struct {
	mu          sync.Mutex
	pages       []*Page
	nextID      int
	lastFilter  string
	updateCalls int
	failUpdate  bool
}

type textInput struct {
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
}

type propertyInput struct {
	Title    *[]textInput    `json:"title"`
	RichText *[]textInput    `json:"rich_text"`
	Status   *SelectOption   `json:"status"`
	URL      json.RawMessage `json:"url"`
}

func (f *fakeNotion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Notion-Version") != NotionVersion || r.Header.Get("Authorization") != "Bearer secret" {
		http.Error(w, `{"object":"error","code":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/databases/db1/query":
		var body struct {
			Filter *statusFilter `json:"filter"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		results := []Page{}
		for _, p := range f.pages {
			if body.Filter != nil {
				f.lastFilter = body.Filter.Status.Equals
				if textOf(p.Properties[PropStatus]) != body.Filter.Status.Equals {
					continue
				}
			}
			results = append(results, *p)
		}
		writeFake(w, http.StatusOK, QueryResult{Results: results})

	case r.Method == http.MethodPost && r.URL.Path == "/v1/pages":
		var body struct {
			Parent     map[string]string        `json:"parent"`
			Properties map[string]propertyInput `json:"properties"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Parent["database_id"] != "db1" {
			http.Error(w, `{"code":"validation_error"}`, http.StatusBadRequest)
			return
		}
		f.nextID++
		page := f.add(fmt.Sprintf("page-%d", f.nextID), formulaID(fmt.Sprint(100+f.nextID)))
		f.apply(page, body.Properties)
		writeFake(w, http.StatusOK, page)

	case strings.HasPrefix(r.URL.Path, "/v1/pages/"):
		page := f.find(strings.TrimPrefix(r.URL.Path, "/v1/pages/"))
		if page == nil {
			http.Error(w, `{"code":"object_not_found"}`, http.StatusNotFound)
			return
		}
		if r.Method == http.MethodPatch {
			f.updateCalls++
			if f.failUpdate {
				http.Error(w, `{"code":"internal_server_error"}`, http.StatusInternalServerError)
				return
			}
			var body struct {
				Properties map[string]propertyInput `json:"properties"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			f.apply(page, body.Properties)
		}
		writeFake(w, http.StatusOK, page)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeNotion) add(id string, idProp Property) *Page {
	page := &Page{
		ID:             id,
		CreatedTime:    "2024-01-01T00:00:00.000Z",
		LastEditedTime: "2024-01-01T00:00:00.000Z",
		URL:            "https://www.notion.so/" + id,
		Properties:     map[string]Property{PropID: idProp},
	}
	f.pages = append(f.pages, page)
	return page
}

func (f *fakeNotion) find(id string) *Page {
	for _, p := range f.pages {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (f *fakeNotion) apply(page *Page, props map[string]propertyInput) {
	for name, in := range props {
		var p Property
		switch {
		case in.Title != nil:
			p = Property{Type: TypeTitle, Title: richText(*in.Title)}
		case in.RichText != nil:
			p = Property{Type: TypeRichText, RichText: richText(*in.RichText)}
		case in.Status != nil:
			p = Property{Type: TypeStatus, Status: in.Status}
		case in.URL != nil:
			p = Property{Type: TypeURL}
			json.Unmarshal(in.URL, &p.URL)
		}
		page.Properties[name] = p
	}
}

func richText(in []textInput) []RichText {
	out := make([]RichText, 0, len(in))
	for _, t := range in {
		out = append(out, RichText{PlainText: t.Text.Content})
	}
	return out
}

func writeFake(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func formulaID(id string) Property {
	return Property{Type: TypeFormula, Formula: &FormulaValue{Type: "string", String: &id}}
}

func numberID(n float64) Property {
	return Property{Type: TypeNumber, Number: &n}
}

func titleProp(s string) Property {
	return Property{Type: TypeTitle, Title: []RichText{{PlainText: s}}}
}

func statusProp(s string) Property {
	return Property{Type: TypeStatus, Status: &SelectOption{Name: s}}
}

type testEnv struct {
	notion *fakeNotion
	redis  *miniredis.Miniredis
	router http.Handler
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()

	notion := &fakeNotion{}
	page := notion.add("page-42", formulaID("42"))
	page.Properties[PropUsername] = titleProp("alice")
	page.Properties[PropStatus] = statusProp("Draft")
	page.Properties[PropCaption] = Property{Type: TypeRichText, RichText: []RichText{{PlainText: "first cut"}}}

	other := notion.add("page-7", numberID(7))
	other.Properties[PropStatus] = statusProp("Done")

	server := httptest.NewServer(notion)
	t.Cleanup(server.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	logger := logging.NewNop()
	records := NewNotionClient(NotionOptions{
		APIURL:     server.URL,
		Token:      "secret",
		DatabaseID: "db1",
	}, httpx.NewRESTClient(server.Client(), logger), logger)
	bridge := NewBridge(records, NewRedisPayloadStore(client, "payload:"), 100, logger)

	return &testEnv{
		notion: notion,
		redis:  mr,
		router: httpx.NewServiceRouter(NewRecordsService(bridge, logger), logger),
	}
}

func (e *testEnv) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, decoded
}

func TestRecordsService_ListByStatus(t *testing.T) {
	env := setupTestService(t)

	w, body := env.do(t, http.MethodGet, "/?filter=dRAFT", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if env.notion.lastFilter != "Draft" {
		t.Errorf("expected normalized filter Draft, got %q", env.notion.lastFilter)
	}
	if body["total_filtered"] != float64(1) {
		t.Errorf("expected 1 match, got %v", body["total_filtered"])
	}
	ids := body["filtered_ids"].([]any)
	if len(ids) != 1 || ids[0] != "42" {
		t.Errorf("unexpected filtered ids %v", ids)
	}
	rec := body["records"].([]any)[0].(map[string]any)
	if rec["username"] != "alice" || rec["page_id"] != "page-42" {
		t.Errorf("unexpected summary %v", rec)
	}
}

func TestRecordsService_ListByStatusEmpty(t *testing.T) {
	env := setupTestService(t)

	w, body := env.do(t, http.MethodGet, "/?filter=archived", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if body["total_filtered"] != float64(0) {
		t.Errorf("expected no matches, got %v", body["total_filtered"])
	}
}

func TestRecordsService_ListAll(t *testing.T) {
	env := setupTestService(t)

	w, body := env.do(t, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if body["total"] != float64(2) || body["has_more"] != false {
		t.Errorf("unexpected listing %v", body)
	}
	props := body["items"].([]any)[0].(map[string]any)["properties"].(map[string]any)
	if props[PropStatus] != "Draft" || props[PropID] != "42" || props[PropUsername] != "alice" {
		t.Errorf("unexpected projected properties %v", props)
	}
}

func TestRecordsService_GetFullRecord(t *testing.T) {
	env := setupTestService(t)
	env.redis.Set("payload:42", `{"scenes":[1,2]}`)

	w, body := env.do(t, http.MethodGet, "/?json_id=42", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	meta := body["metadata"].(map[string]any)
	if meta["status"] != "Draft" || meta["page_id"] != "page-42" || meta["endpoint"] != "master" {
		t.Errorf("unexpected metadata %v", meta)
	}
	payload := body["payload"].(map[string]any)
	if payload["json_raw"] != `{"scenes":[1,2]}` {
		t.Errorf("unexpected raw payload %v", payload["json_raw"])
	}
	parsed := payload["json_parsed"].(map[string]any)
	if len(parsed["scenes"].([]any)) != 2 {
		t.Errorf("unexpected parsed payload %v", parsed)
	}
}

func TestRecordsService_GetFullRecordNumberID(t *testing.T) {
	env := setupTestService(t)

	w, body := env.do(t, http.MethodGet, "/?json_id=7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if body["metadata"].(map[string]any)["page_id"] != "page-7" {
		t.Errorf("expected page-7, got %v", body["metadata"])
	}
	payload := body["payload"].(map[string]any)
	if payload["json_raw"] != "" || payload["json_parsed"] != nil {
		t.Errorf("expected empty payload, got %v", payload)
	}
}

func TestRecordsService_GetFullRecordNotFound(t *testing.T) {
	env := setupTestService(t)

	w, body := env.do(t, http.MethodGet, "/?json_id=999", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	ids := body["available_ids"].([]any)
	if len(ids) != 2 || ids[0] != "42" || ids[1] != "7" {
		t.Errorf("unexpected available ids %v", ids)
	}
}

func TestRecordsService_PatchPayloadOnlyKeepsMetadata(t *testing.T) {
	env := setupTestService(t)

	w, body := env.do(t, http.MethodPatch, "/?formula_id=42", `{"json":{"a":1}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if body["record_store"] != OutcomeSkipped || body["payload_store"] != OutcomeOK {
		t.Errorf("unexpected outcomes %v", body)
	}
	if env.notion.updateCalls != 0 {
		t.Errorf("expected no record-store update, got %d", env.notion.updateCalls)
	}
	if got, _ := env.redis.Get("payload:42"); got != `{"a":1}` {
		t.Errorf("unexpected stored payload %q", got)
	}

	_, full := env.do(t, http.MethodGet, "/?json_id=42", "")
	if full["metadata"].(map[string]any)["status"] != "Draft" {
		t.Errorf("expected status to stay Draft, got %v", full["metadata"])
	}
	if full["payload"].(map[string]any)["json_parsed"].(map[string]any)["a"] != float64(1) {
		t.Errorf("unexpected payload %v", full["payload"])
	}
}

func TestRecordsService_PatchStringPayload(t *testing.T) {
	env := setupTestService(t)

	w, _ := env.do(t, http.MethodPatch, "/?formula_id=42", `{"json":"not json at all"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got, _ := env.redis.Get("payload:42"); got != "not json at all" {
		t.Errorf("unexpected stored payload %q", got)
	}

	_, full := env.do(t, http.MethodGet, "/?json_id=42", "")
	if full["payload"].(map[string]any)["json_parsed"] != "not json at all" {
		t.Errorf("expected raw text fallback, got %v", full["payload"])
	}
}

func TestRecordsService_PatchBothStores(t *testing.T) {
	env := setupTestService(t)

	w, body := env.do(t, http.MethodPatch, "/?formula_id=42", `{"status":"published","json":[1]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if body["record_store"] != OutcomeOK || body["payload_store"] != OutcomeOK {
		t.Errorf("unexpected outcomes %v", body)
	}
	if body["properties"].(map[string]any)[PropStatus] != "published" {
		t.Errorf("expected status stored as sent, got %v", body["properties"])
	}
	if got, _ := env.redis.Get("payload:42"); got != "[1]" {
		t.Errorf("unexpected stored payload %q", got)
	}
}

func TestRecordsService_PatchKeepsStatusSpelling(t *testing.T) {
	env := setupTestService(t)

	w, _ := env.do(t, http.MethodPatch, "/?formula_id=42", `{"status":"In Review"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if got := textOf(env.notion.find("page-42").Properties[PropStatus]); got != "In Review" {
		t.Errorf("expected status In Review, got %q", got)
	}
}

func TestRecordsService_PatchRecordStoreFailure(t *testing.T) {
	env := setupTestService(t)
	env.notion.failUpdate = true

	w, body := env.do(t, http.MethodPatch, "/?formula_id=42", `{"status":"done","json":{"v":2}}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d: %s", http.StatusInternalServerError, w.Code, w.Body.String())
	}
	if body["success"] != false || body["record_store"] != OutcomeFailed || body["payload_store"] != OutcomeOK {
		t.Errorf("unexpected failure body %v", body)
	}
	// The payload write is not rolled back.
	if got, _ := env.redis.Get("payload:42"); got != `{"v":2}` {
		t.Errorf("expected payload to be stored, got %q", got)
	}
}

func TestRecordsService_PatchPayloadStoreFailure(t *testing.T) {
	env := setupTestService(t)
	env.redis.Close()

	w, body := env.do(t, http.MethodPatch, "/?formula_id=42", `{"caption":"new","json":{"v":3}}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d: %s", http.StatusBadGateway, w.Code, w.Body.String())
	}
	if body["record_store"] != OutcomeOK || body["payload_store"] != OutcomeFailed {
		t.Errorf("unexpected failure body %v", body)
	}
	if got := textOf(env.notion.find("page-42").Properties[PropCaption]); got != "new" {
		t.Errorf("expected caption update to land, got %q", got)
	}
}

func TestRecordsService_PatchByHandle(t *testing.T) {
	env := setupTestService(t)

	w, body := env.do(t, http.MethodPatch, "/?id=page-42", `{"json":{"k":"v"},"output_url":"https://cdn.example.com/out.mp4"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if body["id"] != "page-42" || body["formula_id"] != "42" {
		t.Errorf("unexpected result %v", body)
	}
	if got, _ := env.redis.Get("payload:42"); got != `{"k":"v"}` {
		t.Errorf("unexpected stored payload %q", got)
	}
	out := env.notion.find("page-42").Properties[PropOutputURL]
	if out.URL == nil || *out.URL != "https://cdn.example.com/out.mp4" {
		t.Errorf("unexpected output url %+v", out)
	}
}

func TestRecordsService_PatchUnknownRecord(t *testing.T) {
	env := setupTestService(t)

	w, body := env.do(t, http.MethodPatch, "/?formula_id=nope", `{"status":"draft"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if _, ok := body["available_ids"]; !ok {
		t.Errorf("expected available_ids in %v", body)
	}
}

func TestRecordsService_PatchBadRequests(t *testing.T) {
	env := setupTestService(t)

	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"missing selector", "/", `{"status":"draft"}`},
		{"empty body", "/?formula_id=42", ""},
		{"invalid json", "/?formula_id=42", `{"status":`},
		{"no fields", "/?formula_id=42", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := env.do(t, http.MethodPatch, tt.target, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			if body["error"] == "" {
				t.Errorf("expected error message, got %v", body)
			}
		})
	}
}

func TestRecordsService_Create(t *testing.T) {
	env := setupTestService(t)

	w, body := env.do(t, http.MethodPost, "/", `{"username":"bob","caption":"","status":"draft","json":{"scenes":[]}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	if body["success"] != true || body["id"] != "page-1" || body["formula_id"] != "101" {
		t.Errorf("unexpected create result %v", body)
	}
	page := env.notion.find("page-1")
	if textOf(page.Properties[PropUsername]) != "bob" || textOf(page.Properties[PropStatus]) != "draft" {
		t.Errorf("unexpected created page %+v", page.Properties)
	}
	if _, ok := page.Properties[PropCaption]; ok {
		t.Errorf("empty caption should not be written")
	}
	if got, _ := env.redis.Get("payload:101"); got != `{"scenes":[]}` {
		t.Errorf("unexpected stored payload %q", got)
	}
}

func TestRecordsService_CreateRejectsEmptyBody(t *testing.T) {
	env := setupTestService(t)

	w, _ := env.do(t, http.MethodPost, "/", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestRecordsService_MethodNotAllowed(t *testing.T) {
	env := setupTestService(t)

	w, body := env.do(t, http.MethodDelete, "/", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
	if !strings.HasPrefix(body["error"].(string), "Method not allowed") {
		t.Errorf("unexpected error %v", body["error"])
	}
}

func TestRecordsService_Preflight(t *testing.T) {
	env := setupTestService(t)

	w, _ := env.do(t, http.MethodOptions, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PATCH, OPTIONS" {
		t.Errorf("unexpected allowed methods %q", got)
	}
}
