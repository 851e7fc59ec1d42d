package field

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// encodedValue is the persisted form of a Value: the kind tag plus content.
type encodedValue struct {
	Kind  Kind            `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalValue encodes v as {"kind":...,"value":...}. A nil Value encodes as
// the JSON literal null.
//
// Content is stored as submitted: text and enum bytes are not NFC normalized
// and JSON keeps its key order and number literals (only whitespace is
// dropped). Normalization applies to Equal and to event digests.
func MarshalValue(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	content, err := marshalContent(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s value: %w", v.Kind(), err)
	}
	kind, err := marshalRawString(string(v.Kind()))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	buf.Write(kind)
	buf.WriteString(`,"value":`)
	buf.Write(content)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalContent(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Text:
		return marshalRawString(string(val))
	case Enum:
		return marshalRawString(string(val))
	case JSON:
		var buf bytes.Buffer
		if err := json.Compact(&buf, val); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return MarshalCanonical(v)
	}
}

// UnmarshalValue decodes the output of MarshalValue.
func UnmarshalValue(data []byte) (Value, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var enc encodedValue
	if err := json.Unmarshal(trimmed, &enc); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}

	switch enc.Kind {
	case KindText:
		var s string
		if err := json.Unmarshal(enc.Value, &s); err != nil {
			return nil, fmt.Errorf("unmarshal text value: %w", err)
		}
		return Text(s), nil
	case KindEnum:
		var s string
		if err := json.Unmarshal(enc.Value, &s); err != nil {
			return nil, fmt.Errorf("unmarshal enum value: %w", err)
		}
		return Enum(s), nil
	case KindNumber:
		var f float64
		if err := json.Unmarshal(enc.Value, &f); err != nil {
			return nil, fmt.Errorf("unmarshal number value: %w", err)
		}
		return Number(f), nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(enc.Value, &b); err != nil {
			return nil, fmt.Errorf("unmarshal boolean value: %w", err)
		}
		return Bool(b), nil
	case KindDate:
		var s string
		if err := json.Unmarshal(enc.Value, &s); err != nil {
			return nil, fmt.Errorf("unmarshal date value: %w", err)
		}
		return ParseDate(s)
	case KindJSON:
		return JSON(append([]byte(nil), enc.Value...)), nil
	default:
		return nil, fmt.Errorf("unmarshal value: unknown kind %q", enc.Kind)
	}
}
