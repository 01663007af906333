package records

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestProject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"title", `{"type":"title","title":[{"plain_text":"a"},{"plain_text":"b"}]}`, "ab"},
		{"empty rich text", `{"type":"rich_text","rich_text":[]}`, ""},
		{"number", `{"type":"number","number":4.5}`, 4.5},
		{"null number", `{"type":"number","number":null}`, nil},
		{"select", `{"type":"select","select":{"name":"Video"}}`, "Video"},
		{"empty select", `{"type":"select","select":null}`, nil},
		{"multi select", `{"type":"multi_select","multi_select":[{"name":"a"},{"name":"b"}]}`, []string{"a", "b"}},
		{"status", `{"type":"status","status":{"name":"Draft"}}`, "Draft"},
		{"date", `{"type":"date","date":{"start":"2024-05-01","end":null}}`, "2024-05-01"},
		{"checkbox", `{"type":"checkbox","checkbox":true}`, true},
		{"url", `{"type":"url","url":"https://example.com"}`, "https://example.com"},
		{"email", `{"type":"email","email":null}`, nil},
		{"phone", `{"type":"phone_number","phone_number":"+1 555"}`, "+1 555"},
		{"formula string", `{"type":"formula","formula":{"type":"string","string":"42"}}`, "42"},
		{"formula number", `{"type":"formula","formula":{"type":"number","number":42}}`, float64(42)},
		{"formula boolean", `{"type":"formula","formula":{"type":"boolean","boolean":false}}`, false},
		{"rollup array", `{"type":"rollup","rollup":{"type":"array","array":[{"type":"number","number":1}]}}`, []any{float64(1)}},
		{"created time", `{"type":"created_time","created_time":"2024-01-01T00:00:00.000Z"}`, "2024-01-01T00:00:00.000Z"},
		{"unique id", `{"type":"unique_id","unique_id":{"prefix":"REC","number":9}}`, "REC-9"},
		{"unique id without prefix", `{"type":"unique_id","unique_id":{"prefix":null,"number":9}}`, "9"},
		{"people", `{"type":"people","people":[{"id":"u1","name":"Ann"},{"id":"u2"}]}`, []string{"Ann", "u2"}},
		{"files", `{"type":"files","files":[{"name":"a.mp4","external":{"url":"https://x/a.mp4"}}]}`, []string{"https://x/a.mp4"}},
		{"relation", `{"type":"relation","relation":[{"id":"p1"}]}`, []string{"p1"}},
		{"created by", `{"type":"created_by","created_by":{"id":"u1","name":"Ann"}}`, "Ann"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Property
			if err := json.Unmarshal([]byte(tt.raw), &p); err != nil {
				t.Fatalf("failed to decode property: %v", err)
			}
			got, err := Project(p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Project() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestProject_UnknownKind(t *testing.T) {
	_, err := Project(Property{Type: "button"})
	if err == nil || !strings.Contains(err.Error(), "button") {
		t.Fatalf("expected error naming the kind, got %v", err)
	}

	_, err = ProjectProperties(map[string]Property{"Go": {Type: "button"}})
	if err == nil || !strings.Contains(err.Error(), `"Go"`) {
		t.Fatalf("expected error naming the property, got %v", err)
	}
}

func TestIdentifierOf(t *testing.T) {
	s := "42"
	n := 42.0
	var u int64 = 7
	tests := []struct {
		name   string
		prop   Property
		want   string
		wantOK bool
	}{
		{"formula string", Property{Type: TypeFormula, Formula: &FormulaValue{Type: "string", String: &s}}, "42", true},
		{"formula number", Property{Type: TypeFormula, Formula: &FormulaValue{Type: "number", Number: &n}}, "42", true},
		{"number", Property{Type: TypeNumber, Number: &n}, "42", true},
		{"unique id", Property{Type: TypeUniqueID, UniqueID: &UniqueIDValue{Number: &u}}, "7", true},
		{"empty formula", Property{Type: TypeFormula, Formula: &FormulaValue{Type: "string"}}, "", false},
		{"checkbox", Property{Type: TypeCheckbox}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := identifierOf(tt.prop)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("identifierOf() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]string{
		"draft":        "Draft",
		"DRAFT":        "Draft",
		"Draft":        "Draft",
		" in PROGRESS": "In progress",
		"":             "",
	}
	for in, want := range tests {
		if got := NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFields_Payload(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"json":{"a": 1, "b": [1, 2]}}`, `{"a":1,"b":[1,2]}`},
		{`{"json":"{\"a\":1}"}`, `{"a":1}`},
		{`{"json":"plain"}`, "plain"},
		{`{"json":7}`, "7"},
	}
	for _, tt := range tests {
		f, err := decodeFields(strings.NewReader(tt.body))
		if err != nil {
			t.Fatalf("decodeFields(%s): %v", tt.body, err)
		}
		if got := f.Payload(); got != tt.want {
			t.Errorf("Payload() for %s = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestFields_Properties(t *testing.T) {
	f, err := decodeFields(strings.NewReader(`{"username":"","status":"done","output_url":""}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	create := f.Properties(true)
	if _, ok := create[PropUsername]; ok {
		t.Errorf("empty username should be skipped on create")
	}
	if _, ok := create[PropOutputURL]; ok {
		t.Errorf("empty output url should be skipped on create")
	}

	update := f.Properties(false)
	out, ok := update[PropOutputURL].(map[string]any)
	if !ok || out["url"] != nil {
		t.Errorf("expected empty output url to clear the property, got %v", update[PropOutputURL])
	}
	status := update[PropStatus].(map[string]any)["status"].(map[string]string)
	if status["name"] != "done" {
		t.Errorf("expected status sent unchanged, got %v", status)
	}
}
