package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ColumnType identifies the declared type of a column. The names follow
// wide-column-store convention; each maps onto one DynamoDB attribute
// shape.
type ColumnType string

const (
	TypeUUID      ColumnType = "uuid"
	TypeText      ColumnType = "text"
	TypeVarchar   ColumnType = "varchar"
	TypeASCII     ColumnType = "ascii"
	TypeInt       ColumnType = "int"
	TypeBigInt    ColumnType = "bigint"
	TypeFloat     ColumnType = "float"
	TypeDouble    ColumnType = "double"
	TypeTimestamp ColumnType = "timestamp"
)

// numeric reports whether the column is stored as an N attribute.
func (t ColumnType) numeric() bool {
	switch t {
	case TypeInt, TypeBigInt, TypeFloat, TypeDouble:
		return true
	}
	return false
}

// Schema maps column names to their declared types. Columns not present in
// the schema are dropped during encoding.
type Schema map[string]ColumnType

// Table describes one DynamoDB table: its name, column types and key layout.
// SortKey is empty for tables keyed by partition key alone.
type Table struct {
	Name         string
	Schema       Schema
	PartitionKey string
	SortKey      string
}

// Key builds the primary key for this table from an equality predicate.
// Returns ErrMissingKey if the predicate does not cover every key column.
func (t Table) Key(pred map[string]any) (PK, error) {
	key := PK{}
	cols := []string{t.PartitionKey}
	if t.SortKey != "" {
		cols = append(cols, t.SortKey)
	}
	for _, col := range cols {
		val, ok := pred[col]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingKey, t.Name, col)
		}
		av, err := EncodeValue(val, t.Schema[col])
		if err != nil {
			return nil, err
		}
		key[col] = av
	}
	return key, nil
}

// isKeyColumn reports whether col is part of the table key.
func (t Table) isKeyColumn(col string) bool {
	return col == t.PartitionKey || (t.SortKey != "" && col == t.SortKey)
}

// EncodeValue coerces a Go value to the DynamoDB attribute shape declared
// for its column. This is the single point of value coercion: string-shaped
// columns become S attributes, numeric columns become N attributes.
// Timestamps are stored as RFC 3339 UTC strings.
func EncodeValue(val any, colType ColumnType) (types.AttributeValue, error) {
	if val == nil {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}

	if colType.numeric() {
		s, err := encodeNumber(val, colType)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: s}, nil
	}

	switch colType {
	case TypeUUID, TypeText, TypeVarchar, TypeASCII:
		switch v := val.(type) {
		case string:
			return &types.AttributeValueMemberS{Value: v}, nil
		case fmt.Stringer:
			return &types.AttributeValueMemberS{Value: v.String()}, nil
		}
		return nil, fmt.Errorf("plume: cannot encode %T as %s", val, colType)
	case TypeTimestamp:
		switch v := val.(type) {
		case time.Time:
			return &types.AttributeValueMemberS{Value: v.UTC().Format(time.RFC3339)}, nil
		case string:
			return &types.AttributeValueMemberS{Value: v}, nil
		}
		return nil, fmt.Errorf("plume: cannot encode %T as timestamp", val)
	}
	return nil, fmt.Errorf("plume: unknown column type %q", colType)
}

// encodeNumber normalizes a value into DynamoDB's decimal string form.
func encodeNumber(val any, colType ColumnType) (string, error) {
	switch v := val.(type) {
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case string:
		// Recipient ids travel as strings through the feed API; validate
		// rather than trusting the caller.
		if colType == TypeFloat || colType == TypeDouble {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return "", fmt.Errorf("plume: %q is not a valid %s", v, colType)
			}
			return v, nil
		}
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return "", fmt.Errorf("plume: %q is not a valid %s", v, colType)
		}
		return v, nil
	}
	return "", fmt.Errorf("plume: cannot encode %T as %s", val, colType)
}

// Encode coerces a column-value map through the schema, dropping columns the
// schema does not declare.
func (s Schema) Encode(vals map[string]any) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(vals))
	for col, val := range vals {
		colType, ok := s[col]
		if !ok {
			continue
		}
		av, err := EncodeValue(val, colType)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		item[col] = av
	}
	return item, nil
}

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// Row is one retrieved item with typed column access.
type Row map[string]types.AttributeValue

// String returns the S value of a column, or "" when absent or non-string.
func (r Row) String(col string) string {
	if v, ok := r[col].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// Number returns the raw N value of a column, or "" when absent.
func (r Row) Number(col string) string {
	if v, ok := r[col].(*types.AttributeValueMemberN); ok {
		return v.Value
	}
	return ""
}

// Value returns a column as a string regardless of attribute shape. Feed
// recipient ids may be stored as either S or N depending on the kind.
func (r Row) Value(col string) string {
	if s := r.String(col); s != "" {
		return s
	}
	return r.Number(col)
}

// Time parses a timestamp column. The zero time is returned for absent or
// malformed values.
func (r Row) Time(col string) time.Time {
	v := r.String(col)
	if v == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return ts
}
