package ir

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for hashing.
//
// Accepted values: string, bool, int, int64, []int, []string, []any and
// map[string]any (recursively). Floats and nil are rejected; callers
// convert them first (see unitValue).
//
// Differences from json.Marshal:
//   - object keys sorted by UTF-16 code units
//   - no HTML escaping, U+2028/U+2029 left literal
//   - strings NFC normalized
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return writeCanonicalString(buf, val)
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case []int:
		buf.WriteByte('[')
		for i, n := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Itoa(n))
		}
		buf.WriteByte(']')
	case []string:
		buf.WriteByte('[')
		for i, s := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, s); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		buf.WriteByte('{')
		for i, k := range sortedKeys(val) {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// writeCanonicalString writes s NFC normalized, escaping only control
// characters, backslash and quote.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// number of backslashes is literal text and stays.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && string(data[i+1:i+5]) == "u202" &&
			(data[i+5] == '8' || data[i+5] == '9') {
			slashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				slashes++
			}
			if slashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

// sortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// unitValue is the canonical form of a unit. The velocity factor is
// rendered as its shortest decimal string since floats are not allowed.
func unitValue(u Unit) map[string]any {
	p := u.Params
	params := map[string]any{}
	if len(p.Values) > 0 {
		params["values"] = p.Values
	}
	if p.Ranged {
		params["lower"] = p.Lower
		params["upper"] = p.Upper
	}
	if p.Amount != 0 {
		params["amount"] = p.Amount
	}
	if p.Mode != 0 {
		params["mode"] = int(p.Mode)
		params["factor"] = strconv.FormatFloat(p.Factor, 'g', -1, 64)
	}
	if len(p.Types) > 0 {
		types := make([]string, len(p.Types))
		for i, t := range p.Types {
			types[i] = string(t)
		}
		params["types"] = types
	}
	if len(p.Data) > 0 {
		params["data"] = hex.EncodeToString(p.Data)
	}
	if p.Handler != "" {
		params["handler"] = p.Handler
	}
	return map[string]any{
		"kind":    string(u.Kind),
		"negated": u.Negated,
		"params":  params,
	}
}

// patchValue is the canonical form of a compiled patch.
func patchValue(p *Patch) map[string]any {
	modules := make([]any, len(p.Modules))
	for i, m := range p.Modules {
		next := m.Next
		if next == nil {
			next = []int{}
		}
		mod := map[string]any{
			"id":   m.ID,
			"kind": string(m.Kind),
			"next": next,
		}
		if m.Unit != nil {
			mod["unit"] = unitValue(*m.Unit)
		}
		modules[i] = mod
	}
	return map[string]any{
		"input":   p.Input,
		"output":  p.Output,
		"modules": modules,
	}
}

// EventValue is the canonical form of an event, used in golden traces.
func EventValue(e Event) map[string]any {
	v := map[string]any{
		"port":    e.Port,
		"channel": e.Channel,
		"type":    string(e.Type),
		"data1":   e.Data1,
		"data2":   e.Data2,
	}
	if len(e.SysEx) > 0 {
		v["sysex"] = hex.EncodeToString(e.SysEx)
	}
	return v
}
