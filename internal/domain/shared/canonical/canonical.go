// Package canonical produces a byte-stable encoding of payloads for hashing.
//
// The encoding is JSON-shaped: object keys are sorted, arrays keep their
// order, decimals are rendered as fixed-point strings and timestamps as
// RFC 3339 in UTC. It is only ever used as hash input.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TimeLayout is the layout used for every timestamp in hashed payloads
const TimeLayout = time.RFC3339Nano

// FormatTime renders t the way Encode does
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Encode returns the canonical encoding of v
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fingerprint returns the lowercase hex SHA-256 of Encode(v)
func Fingerprint(v any) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// MustFingerprint is Fingerprint for payloads built from known-good values
func MustFingerprint(v any) string {
	h, err := Fingerprint(v)
	if err != nil {
		panic(err)
	}
	return h
}

// Decode parses JSON bytes into the generic shape Encode accepts, keeping
// numbers as json.Number so round trips through storage hash identically.
func Decode(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("canonical: decode payload: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		writeString(buf, x)
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case decimal.Decimal:
		writeString(buf, x.String())
	case *decimal.Decimal:
		if x == nil {
			buf.WriteString("null")
			return nil
		}
		writeString(buf, x.String())
	case decimal.NullDecimal:
		if !x.Valid {
			buf.WriteString("null")
			return nil
		}
		writeString(buf, x.Decimal.String())
	case time.Time:
		writeString(buf, FormatTime(x))
	case *time.Time:
		if x == nil {
			buf.WriteString("null")
			return nil
		}
		writeString(buf, FormatTime(*x))
	case uuid.UUID:
		writeString(buf, x.String())
	case *uuid.UUID:
		if x == nil {
			buf.WriteString("null")
			return nil
		}
		writeString(buf, x.String())
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return fmt.Errorf("canonical: invalid number %q: %w", x, err)
		}
		buf.WriteString(d.String())
	case int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(x, 10))
	case float32:
		return encodeFloat(buf, float64(x))
	case float64:
		return encodeFloat(buf, x)
	case map[string]any:
		return encodeMap(buf, x)
	case map[string]string:
		m := make(map[string]any, len(x))
		for k, s := range x {
			m[k] = s
		}
		return encodeMap(buf, m)
	case []any:
		return encodeSlice(buf, x)
	case []string:
		items := make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
		return encodeSlice(buf, items)
	case []map[string]any:
		items := make([]any, len(x))
		for i, m := range x {
			items[i] = m
		}
		return encodeSlice(buf, items)
	case fmt.Stringer:
		if isNilPointer(x) {
			buf.WriteString("null")
			return nil
		}
		writeString(buf, x.String())
	default:
		// Structs and other shapes go through their JSON form.
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Errorf("canonical: marshal %T: %w", x, err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return fmt.Errorf("canonical: decode %T: %w", x, err)
		}
		return encode(buf, generic)
	}
	return nil
}

func encodeMap(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k)
		buf.WriteByte(':')
		if err := encode(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeSlice(buf *bytes.Buffer, items []any) error {
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonical: unsupported float value %v", f)
	}
	buf.WriteString(decimal.NewFromFloat(f).String())
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	// json.Marshal on a string cannot fail.
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
