package field

import (
	"bytes"
	"encoding/json"

	"golang.org/x/text/unicode/norm"
)

// Equal reports whether a and b carry the same kind and the same content.
// Text and enum values compare after NFC normalization; JSON values compare
// by canonical encoding, so key order and whitespace are irrelevant.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch av := a.(type) {
	case Text:
		return norm.NFC.String(string(av)) == norm.NFC.String(string(b.(Text)))
	case Enum:
		return norm.NFC.String(string(av)) == norm.NFC.String(string(b.(Enum)))
	case Number:
		return av == b.(Number)
	case Bool:
		return av == b.(Bool)
	case Date:
		return av == b.(Date)
	case JSON:
		return jsonEqual(av, b.(JSON))
	}
	return false
}

func jsonEqual(a, b JSON) bool {
	ca, errA := canonicalJSON(a)
	cb, errB := canonicalJSON(b)
	if errA != nil || errB != nil {
		return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
	}
	return bytes.Equal(ca, cb)
}

func canonicalJSON(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return MarshalCanonical(v)
}
