package eventapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ObjectKind identifies the kind of object a ChangeMap describes.
type ObjectKind int

const (
	KindUser        ObjectKind = 1
	KindEmote       ObjectKind = 2
	KindEmoteSet    ObjectKind = 3
	KindRole        ObjectKind = 4
	KindEntitlement ObjectKind = 5
	KindBan         ObjectKind = 6
	KindMessage     ObjectKind = 7
	KindReport      ObjectKind = 8
	KindPresence    ObjectKind = 9
	KindCosmetic    ObjectKind = 10
)

var objectKindNames = map[ObjectKind]string{
	KindUser:        "user",
	KindEmote:       "emote",
	KindEmoteSet:    "emote_set",
	KindRole:        "role",
	KindEntitlement: "entitlement",
	KindBan:         "ban",
	KindMessage:     "message",
	KindReport:      "report",
	KindPresence:    "presence",
	KindCosmetic:    "cosmetic",
}

func (k ObjectKind) String() string {
	if name, ok := objectKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ChangeMap describes a mutation of a remote object.
type ChangeMap struct {
	ID         string        `json:"id"`
	Kind       ObjectKind    `json:"kind"`
	Contextual bool          `json:"contextual,omitempty"`
	Actor      User          `json:"actor"`
	Added      []ChangeField `json:"added,omitempty"`
	Updated    []ChangeField `json:"updated,omitempty"`
	Removed    []ChangeField `json:"removed,omitempty"`
	Pushed     []ChangeField `json:"pushed,omitempty"`
	Pulled     []ChangeField `json:"pulled,omitempty"`
}

func (m ChangeMap) String() string {
	return fmt.Sprintf("<ChangeMap id=%s kind=%s actor=%s added=%d updated=%d removed=%d pushed=%d pulled=%d>",
		m.ID, m.Kind, m.Actor.Username, len(m.Added), len(m.Updated), len(m.Removed), len(m.Pushed), len(m.Pulled))
}

// ChangeField is one changed field. When Nested is set, Value holds the
// changes of the nested object as Fields.
type ChangeField struct {
	Key      string      `json:"key"`
	Index    *int        `json:"index,omitempty"`
	Nested   bool        `json:"nested,omitempty"`
	OldValue ChangeValue `json:"old_value"`
	Value    ChangeValue `json:"value"`
}

func (f ChangeField) String() string {
	index := "nil"
	if f.Index != nil {
		index = fmt.Sprint(*f.Index)
	}
	return fmt.Sprintf("<ChangeField key=%s index=%s nested=%t value=%s old_value=%s>",
		f.Key, index, f.Nested, f.Value, f.OldValue)
}

// ChangeValueKind tags the shape held by a ChangeValue.
type ChangeValueKind uint8

const (
	// ChangeValueNone is an absent or null value.
	ChangeValueNone ChangeValueKind = iota
	// ChangeValueScalar is any non-array JSON value, usually an object.
	ChangeValueScalar
	// ChangeValueFields is a list of nested changes.
	ChangeValueFields
)

func (k ChangeValueKind) String() string {
	switch k {
	case ChangeValueScalar:
		return "scalar"
	case ChangeValueFields:
		return "fields"
	default:
		return "none"
	}
}

// ChangeValue is either a scalar JSON value or a list of nested ChangeFields.
// Only the member matching Kind is set.
type ChangeValue struct {
	Kind   ChangeValueKind
	Scalar json.RawMessage
	Fields []ChangeField
}

// ScalarValue wraps raw JSON as a scalar ChangeValue.
func ScalarValue(raw json.RawMessage) ChangeValue {
	return ChangeValue{Kind: ChangeValueScalar, Scalar: raw}
}

// FieldsValue wraps nested changes as a ChangeValue.
func FieldsValue(fields ...ChangeField) ChangeValue {
	if fields == nil {
		fields = []ChangeField{}
	}
	return ChangeValue{Kind: ChangeValueFields, Fields: fields}
}

// IsZero reports whether the value is absent.
func (v ChangeValue) IsZero() bool {
	return v.Kind == ChangeValueNone
}

// Object decodes a scalar JSON object.
func (v ChangeValue) Object() (map[string]any, error) {
	if v.Kind != ChangeValueScalar {
		return nil, fmt.Errorf("eventapi: change value is %s, not scalar", v.Kind)
	}
	var out map[string]any
	if err := json.Unmarshal(v.Scalar, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeScalar unmarshals a scalar value into dst, e.g. an emote struct.
func (v ChangeValue) DecodeScalar(dst any) error {
	if v.Kind != ChangeValueScalar {
		return fmt.Errorf("eventapi: change value is %s, not scalar", v.Kind)
	}
	return json.Unmarshal(v.Scalar, dst)
}

// UnmarshalJSON implements the json.Unmarshaler interface for ChangeValue
func (v *ChangeValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*v = ChangeValue{}
	case data[0] == '[':
		var fields []ChangeField
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("change value list: %w", err)
		}
		*v = FieldsValue(fields...)
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		*v = ScalarValue(raw)
	}
	return nil
}

// MarshalJSON implements the json.Marshaler interface for ChangeValue
func (v ChangeValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ChangeValueScalar:
		if len(v.Scalar) == 0 {
			return []byte("null"), nil
		}
		return v.Scalar, nil
	case ChangeValueFields:
		if v.Fields == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Fields)
	default:
		return []byte("null"), nil
	}
}

func (v ChangeValue) String() string {
	switch v.Kind {
	case ChangeValueScalar:
		return string(v.Scalar)
	case ChangeValueFields:
		return fmt.Sprintf("%v", v.Fields)
	default:
		return "null"
	}
}
