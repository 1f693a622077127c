package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// FillPrimaryKey returns a copy of row with a generated ULID string
// filled into def's primary column, if that column is string-typed and
// the caller left it out (or set it empty) — mirroring how the
// `db_insert` action never requires spec authors to invent their own
// row identifiers. Columns of any other primary type, or rows that
// already supply a value, pass through untouched.
func FillPrimaryKey(def TableDef, row map[string]any) map[string]any {
	out := make(map[string]any, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	for _, col := range def.Columns {
		if !col.Primary || col.Type != ColString {
			continue
		}
		if s, ok := out[col.Name].(string); ok && s != "" {
			continue
		}
		out[col.Name] = ulid.Make().String()
	}
	return out
}

// EncodeColumn converts a spec-supplied value into the form an SQL
// backend should bind for a column of type ct. Timestamps are
// normalized to RFC3339 text (sorts correctly, round-trips exactly);
// json columns are marshaled; booleans pass through as Go bool since
// database/sql's default conversion handles bool<->integer for both
// sqlite and postgres drivers used here.
func EncodeColumn(ct ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch ct {
	case ColString:
		return ToGoString(v), nil
	case ColNumber:
		return ToGoFloat(v), nil
	case ColBoolean:
		return ToGoBool(v), nil
	case ColJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode json column: %w", err)
		}
		return string(b), nil
	case ColTimestamp:
		t, err := ToGoTime(v)
		if err != nil {
			return nil, err
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	default:
		return nil, fmt.Errorf("unknown column type %q", ct)
	}
}

// DecodeColumn converts a raw scanned SQL value back into the plain
// any the expression evaluator and action executor expect.
func DecodeColumn(ct ColumnType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch ct {
	case ColString:
		return ToGoString(raw), nil
	case ColNumber:
		return ToGoFloat(raw), nil
	case ColBoolean:
		return ToGoBool(raw), nil
	case ColJSON:
		s := ToGoString(raw)
		if s == "" {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("decode json column: %w", err)
		}
		return out, nil
	case ColTimestamp:
		t, err := ToGoTime(raw)
		if err != nil {
			return nil, err
		}
		return float64(t.Unix()), nil
	default:
		return nil, fmt.Errorf("unknown column type %q", ct)
	}
}

func ToGoString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func ToGoFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case []byte:
		var f float64
		fmt.Sscanf(string(x), "%g", &f)
		return f
	case string:
		var f float64
		fmt.Sscanf(x, "%g", &f)
		return f
	default:
		return 0
	}
}

func ToGoBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case []byte:
		return string(x) == "1" || string(x) == "true"
	case string:
		return x == "1" || x == "true"
	default:
		return false
	}
}

func ToGoTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case float64:
		return time.Unix(int64(x), 0).UTC(), nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case []byte:
		return parseTimeString(string(x))
	case string:
		return parseTimeString(x)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to a timestamp", v)
	}
}

func parseTimeString(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a timestamp", s)
}
