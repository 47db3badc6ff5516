package writer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"onboard-backend/internal/schema"
	"onboard-backend/internal/token"
)

type statement struct {
	SQL    string
	Params []any
}

type paramBuilder struct {
	params []any
	n      int
}

func (p *paramBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return "$" + strconv.Itoa(p.n)
}

// Columns the writer manages itself; candidate-supplied values for these are
// never copied through (countryid goes through ResolveTenant instead).
func isServerManaged(name string) bool {
	switch name {
	case "id", "countryid", "createdby", "updatedby", "createdate", "updatedate":
		return true
	}
	return false
}

// lowerKeys indexes candidate-record values by lower-cased key so column
// matching is case-insensitive.
func lowerKeys(record map[string]any) map[string]any {
	m := make(map[string]any, len(record))
	for k, v := range record {
		m[strings.ToLower(k)] = v
	}
	return m
}

// checkUnknown enforces the unknown-field policy against lowered candidate
// keys. Under IgnoreUnknown it is a no-op.
func checkUnknown(table *schema.Table, candidate map[string]any, policy UnknownFieldPolicy) error {
	if policy != RejectUnknown {
		return nil
	}
	for k := range candidate {
		if !table.HasColumn(k) {
			return fmt.Errorf("unknown field %q for table %s", k, table.Name)
		}
	}
	return nil
}

func buildInsert(table *schema.Table, record map[string]any, tok token.Payload, now time.Time, policy UnknownFieldPolicy) (statement, error) {
	candidate := lowerKeys(record)
	if err := checkUnknown(table, candidate, policy); err != nil {
		return statement{}, err
	}
	pb := &paramBuilder{}

	var cols []string
	var placeholders []string
	add := func(name string, v any) {
		cols = append(cols, name)
		placeholders = append(placeholders, pb.Add(v))
	}

	for _, col := range table.Columns {
		if isServerManaged(col.Name) {
			continue
		}
		v, ok := candidate[col.Name]
		if !ok {
			continue // left to storage default / NULL
		}
		coerced, err := CoerceValue(col, v)
		if err != nil {
			return statement{}, err
		}
		add(col.Name, coerced)
	}

	var candidateTenant int64
	if v, ok := candidate["countryid"]; ok {
		t, err := toInt64(v)
		if err != nil {
			return statement{}, fmt.Errorf("column countryid: %w", err)
		}
		candidateTenant = t
	}

	add("countryid", ResolveTenant(tok.CountryID, candidateTenant))
	add("createdby", tok.UserID)
	add("updatedby", tok.UserID)
	add("createdate", now)
	add("updatedate", now)

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		table.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return statement{SQL: sql, Params: pb.params}, nil
}

func buildUpdate(table *schema.Table, fields map[string]any, tok token.Payload, now time.Time, policy UnknownFieldPolicy) (statement, error) {
	candidate := lowerKeys(fields)
	if err := checkUnknown(table, candidate, policy); err != nil {
		return statement{}, err
	}

	idVal, ok := candidate["id"]
	if !ok {
		return statement{}, fmt.Errorf("update %s: id is required", table.Name)
	}
	id, err := toInt64(idVal)
	if err != nil {
		return statement{}, fmt.Errorf("update %s: %w", table.Name, err)
	}

	pb := &paramBuilder{}
	var sets []string

	for _, col := range table.Columns {
		if isServerManaged(col.Name) {
			continue
		}
		v, ok := candidate[col.Name]
		if !ok {
			continue
		}
		coerced, err := CoerceValue(col, v)
		if err != nil {
			return statement{}, err
		}
		sets = append(sets, col.Name+" = "+pb.Add(coerced))
	}

	// Always refreshed, even when the patch carries nothing but the id.
	sets = append(sets, "updatedby = "+pb.Add(tok.UserID))
	sets = append(sets, "updatedate = "+pb.Add(now))

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		table.Name, strings.Join(sets, ", "), pb.Add(id))
	return statement{SQL: sql, Params: pb.params}, nil
}

// CoerceValue converts a candidate value (typically straight out of a JSON
// request body) into the Go type matching the declared column type. Exported
// so read paths that pre-check values (duplicate detection) bind the same
// representation the write path stores.
func CoerceValue(col schema.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case schema.Text:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil
	case schema.Int, schema.Int8:
		n, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return n, nil
	case schema.Bool:
		return toBool(col.Name, v)
	case schema.Date, schema.Timestamp:
		return toTime(col.Name, v)
	default:
		return v, nil
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		if n == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}

func toBool(name string, v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return nil, fmt.Errorf("column %s: not a boolean: %q", name, b)
		}
		return parsed, nil
	case float64:
		return b != 0, nil
	case int64:
		return b != 0, nil
	default:
		return nil, fmt.Errorf("column %s: not a boolean: %T", name, v)
	}
}

func toTime(name string, v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return nil, fmt.Errorf("column %s: not a timestamp: %q", name, t)
	default:
		return nil, fmt.Errorf("column %s: not a timestamp: %T", name, v)
	}
}
