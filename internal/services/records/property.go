package records

import (
	"fmt"
	"strconv"
	"strings"
)

// PropertyType is the tag of a record-store property value.
type PropertyType string

// Property kinds the projection understands.
const (
	TypeTitle          PropertyType = "title"
	TypeRichText       PropertyType = "rich_text"
	TypeNumber         PropertyType = "number"
	TypeSelect         PropertyType = "select"
	TypeMultiSelect    PropertyType = "multi_select"
	TypeStatus         PropertyType = "status"
	TypeDate           PropertyType = "date"
	TypeCheckbox       PropertyType = "checkbox"
	TypeURL            PropertyType = "url"
	TypeEmail          PropertyType = "email"
	TypePhoneNumber    PropertyType = "phone_number"
	TypeFormula        PropertyType = "formula"
	TypeRollup         PropertyType = "rollup"
	TypeCreatedTime    PropertyType = "created_time"
	TypeLastEditedTime PropertyType = "last_edited_time"
	TypeUniqueID       PropertyType = "unique_id"
	TypePeople         PropertyType = "people"
	TypeFiles          PropertyType = "files"
	TypeRelation       PropertyType = "relation"
	TypeCreatedBy      PropertyType = "created_by"
	TypeLastEditedBy   PropertyType = "last_edited_by"
)

// Property is one tagged property value as returned by the record store.
// Only the field matching Type is populated.
type Property struct {
	ID   string       `json:"id"`
	Type PropertyType `json:"type"`

	Title          []RichText     `json:"title"`
	RichText       []RichText     `json:"rich_text"`
	Number         *float64       `json:"number"`
	Select         *SelectOption  `json:"select"`
	MultiSelect    []SelectOption `json:"multi_select"`
	Status         *SelectOption  `json:"status"`
	Date           *DateValue     `json:"date"`
	Checkbox       *bool          `json:"checkbox"`
	URL            *string        `json:"url"`
	Email          *string        `json:"email"`
	PhoneNumber    *string        `json:"phone_number"`
	Formula        *FormulaValue  `json:"formula"`
	Rollup         *RollupValue   `json:"rollup"`
	CreatedTime    string         `json:"created_time"`
	LastEditedTime string         `json:"last_edited_time"`
	UniqueID       *UniqueIDValue `json:"unique_id"`
	People         []User         `json:"people"`
	Files          []FileRef      `json:"files"`
	Relation       []PageRef      `json:"relation"`
	CreatedBy      *User          `json:"created_by"`
	LastEditedBy   *User          `json:"last_edited_by"`
}

// RichText is one run of formatted text; only the plain text is kept.
type RichText struct {
	PlainText string `json:"plain_text"`
}

// SelectOption is a select, multi-select or status choice.
type SelectOption struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// DateValue is a date or date range in ISO 8601.
type DateValue struct {
	Start string  `json:"start"`
	End   *string `json:"end"`
}

// FormulaValue is a computed value tagged by its result type.
type FormulaValue struct {
	Type    string     `json:"type"`
	String  *string    `json:"string"`
	Number  *float64   `json:"number"`
	Boolean *bool      `json:"boolean"`
	Date    *DateValue `json:"date"`
}

// RollupValue aggregates a relation as a number, a date or an array.
type RollupValue struct {
	Type   string     `json:"type"`
	Number *float64   `json:"number"`
	Date   *DateValue `json:"date"`
	Array  []Property `json:"array"`
}

// UniqueIDValue is an auto-increment id with an optional prefix.
type UniqueIDValue struct {
	Prefix *string `json:"prefix"`
	Number *int64  `json:"number"`
}

// User is a workspace member.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FileRef is an attached file, either hosted or external.
type FileRef struct {
	Name     string    `json:"name"`
	File     *FileLink `json:"file"`
	External *FileLink `json:"external"`
}

// FileLink is the URL of a FileRef.
type FileLink struct {
	URL string `json:"url"`
}

// PageRef points at a related record.
type PageRef struct {
	ID string `json:"id"`
}

// Project converts a property into a plain JSON value. Unknown property
// kinds are an error rather than passed through.
func Project(p Property) (any, error) {
	switch p.Type {
	case TypeTitle:
		return plainText(p.Title), nil
	case TypeRichText:
		return plainText(p.RichText), nil
	case TypeNumber:
		return floatOrNil(p.Number), nil
	case TypeSelect:
		return optionName(p.Select), nil
	case TypeMultiSelect:
		names := make([]string, 0, len(p.MultiSelect))
		for _, o := range p.MultiSelect {
			names = append(names, o.Name)
		}
		return names, nil
	case TypeStatus:
		return optionName(p.Status), nil
	case TypeDate:
		return dateStart(p.Date), nil
	case TypeCheckbox:
		return p.Checkbox != nil && *p.Checkbox, nil
	case TypeURL:
		return stringOrNil(p.URL), nil
	case TypeEmail:
		return stringOrNil(p.Email), nil
	case TypePhoneNumber:
		return stringOrNil(p.PhoneNumber), nil
	case TypeFormula:
		return projectFormula(p.Formula)
	case TypeRollup:
		return projectRollup(p.Rollup)
	case TypeCreatedTime:
		return p.CreatedTime, nil
	case TypeLastEditedTime:
		return p.LastEditedTime, nil
	case TypeUniqueID:
		if id, ok := uniqueIDString(p.UniqueID); ok {
			return id, nil
		}
		return nil, nil
	case TypePeople:
		return userNames(p.People), nil
	case TypeFiles:
		urls := make([]string, 0, len(p.Files))
		for _, f := range p.Files {
			switch {
			case f.File != nil:
				urls = append(urls, f.File.URL)
			case f.External != nil:
				urls = append(urls, f.External.URL)
			default:
				urls = append(urls, f.Name)
			}
		}
		return urls, nil
	case TypeRelation:
		ids := make([]string, 0, len(p.Relation))
		for _, r := range p.Relation {
			ids = append(ids, r.ID)
		}
		return ids, nil
	case TypeCreatedBy:
		return userName(p.CreatedBy), nil
	case TypeLastEditedBy:
		return userName(p.LastEditedBy), nil
	default:
		return nil, fmt.Errorf("unsupported property type %q", p.Type)
	}
}

// ProjectProperties projects every property of a record, keyed by name.
func ProjectProperties(props map[string]Property) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for name, p := range props {
		v, err := Project(p)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func projectFormula(f *FormulaValue) (any, error) {
	if f == nil {
		return nil, nil
	}
	switch f.Type {
	case "string":
		return stringOrNil(f.String), nil
	case "number":
		return floatOrNil(f.Number), nil
	case "boolean":
		return f.Boolean != nil && *f.Boolean, nil
	case "date":
		return dateStart(f.Date), nil
	default:
		return nil, fmt.Errorf("unsupported formula type %q", f.Type)
	}
}

func projectRollup(r *RollupValue) (any, error) {
	if r == nil {
		return nil, nil
	}
	switch r.Type {
	case "number":
		return floatOrNil(r.Number), nil
	case "date":
		return dateStart(r.Date), nil
	case "array":
		items := make([]any, 0, len(r.Array))
		for _, p := range r.Array {
			v, err := Project(p)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported rollup type %q", r.Type)
	}
}

// textOf reads the text of a title, rich_text, select or status property.
func textOf(p Property) string {
	switch p.Type {
	case TypeTitle:
		return plainText(p.Title)
	case TypeRichText:
		return plainText(p.RichText)
	case TypeSelect:
		if p.Select != nil {
			return p.Select.Name
		}
	case TypeStatus:
		if p.Status != nil {
			return p.Status.Name
		}
	case TypeURL:
		if p.URL != nil {
			return *p.URL
		}
	}
	return ""
}

// identifierOf reads a record identifier stored as a formula (string or
// number), a plain number, a unique id or text.
func identifierOf(p Property) (string, bool) {
	switch p.Type {
	case TypeFormula:
		if p.Formula == nil {
			return "", false
		}
		if p.Formula.String != nil && *p.Formula.String != "" {
			return *p.Formula.String, true
		}
		if p.Formula.Number != nil {
			return formatNumber(*p.Formula.Number), true
		}
	case TypeNumber:
		if p.Number != nil {
			return formatNumber(*p.Number), true
		}
	case TypeUniqueID:
		return uniqueIDString(p.UniqueID)
	case TypeTitle, TypeRichText:
		if s := textOf(p); s != "" {
			return s, true
		}
	}
	return "", false
}

func plainText(parts []RichText) string {
	var b strings.Builder
	for _, t := range parts {
		b.WriteString(t.PlainText)
	}
	return b.String()
}

func optionName(o *SelectOption) any {
	if o == nil {
		return nil
	}
	return o.Name
}

func dateStart(d *DateValue) any {
	if d == nil {
		return nil
	}
	return d.Start
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func uniqueIDString(u *UniqueIDValue) (string, bool) {
	if u == nil || u.Number == nil {
		return "", false
	}
	n := strconv.FormatInt(*u.Number, 10)
	if u.Prefix != nil && *u.Prefix != "" {
		return *u.Prefix + "-" + n, true
	}
	return n, true
}

func userNames(users []User) []string {
	names := make([]string, 0, len(users))
	for i := range users {
		names = append(names, userName(&users[i]).(string))
	}
	return names
}

func userName(u *User) any {
	if u == nil {
		return nil
	}
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
