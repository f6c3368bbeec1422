package store

import (
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Statement is a deferred write: a Put or a Delete queued for batch
// submission. Statements are value objects; the same logical statement
// produced twice in one pass deduplicates to a single request.
type Statement struct {
	table  string
	put    map[string]types.AttributeValue // nil for deletes
	delKey PK
}

// NewPutStatement defers inserting a row.
func NewPutStatement(table Table, vals map[string]any) (Statement, error) {
	item, err := table.Schema.Encode(vals)
	if err != nil {
		return Statement{}, err
	}
	return Statement{table: table.Name, put: item}, nil
}

// NewDeleteStatement defers deleting a row. The predicate must cover the
// table key.
func NewDeleteStatement(table Table, pred map[string]any) (Statement, error) {
	key, err := table.Key(pred)
	if err != nil {
		return Statement{}, err
	}
	return Statement{table: table.Name, delKey: key}, nil
}

// writeRequest converts the statement to its BatchWriteItem form.
func (s Statement) writeRequest() types.WriteRequest {
	if s.put != nil {
		return types.WriteRequest{PutRequest: &types.PutRequest{Item: s.put}}
	}
	return types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: s.delKey}}
}

// fingerprint is a canonical string form used for set-semantics dedup.
func (s Statement) fingerprint() string {
	var b strings.Builder
	b.WriteString(s.table)
	if s.put != nil {
		b.WriteString("|put|")
		writeAttrs(&b, s.put)
	} else {
		b.WriteString("|del|")
		writeAttrs(&b, s.delKey)
	}
	return b.String()
}

func writeAttrs(b *strings.Builder, attrs map[string]types.AttributeValue) {
	cols := make([]string, 0, len(attrs))
	for col := range attrs {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		b.WriteString(col)
		b.WriteByte('=')
		switch v := attrs[col].(type) {
		case *types.AttributeValueMemberS:
			b.WriteString("s:" + v.Value)
		case *types.AttributeValueMemberN:
			b.WriteString("n:" + v.Value)
		case *types.AttributeValueMemberNULL:
			b.WriteString("null")
		}
		b.WriteByte(';')
	}
}

// dedupStatements drops duplicates while preserving first-seen order.
func dedupStatements(stmts []Statement) []Statement {
	seen := make(map[string]struct{}, len(stmts))
	out := stmts[:0:0]
	for _, s := range stmts {
		fp := s.fingerprint()
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, s)
	}
	return out
}
