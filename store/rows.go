package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Rows is a lazy paginator over a Query or Scan. It mirrors the shape of the
// SDK paginators: HasMorePages reports whether another request would return
// rows, NextPage executes one request.
type Rows struct {
	client *dynamodb.Client

	// Exactly one of query/scan is set.
	query *dynamodb.QueryInput
	scan  *dynamodb.ScanInput

	startKey PK
	lastKey  PK
	done     bool
}

// HasMorePages reports whether NextPage would issue another request.
func (r *Rows) HasMorePages() bool {
	return !r.done
}

// NextPage executes one paged request and returns its rows. An empty slice
// with a nil error means the page matched nothing; HasMorePages tells the
// caller whether the result set is exhausted.
func (r *Rows) NextPage(ctx context.Context) ([]Row, error) {
	if r.done {
		return nil, nil
	}

	var (
		items   []map[string]types.AttributeValue
		lastKey map[string]types.AttributeValue
		err     error
	)
	if r.query != nil {
		r.query.ExclusiveStartKey = r.startKey
		var out *dynamodb.QueryOutput
		out, err = r.client.Query(ctx, r.query)
		if out != nil {
			items, lastKey = out.Items, out.LastEvaluatedKey
		}
	} else {
		r.scan.ExclusiveStartKey = r.startKey
		var out *dynamodb.ScanOutput
		out, err = r.client.Scan(ctx, r.scan)
		if out != nil {
			items, lastKey = out.Items, out.LastEvaluatedKey
		}
	}
	if err != nil {
		return nil, err
	}

	r.lastKey = lastKey
	r.startKey = lastKey
	r.done = len(lastKey) == 0

	rows := make([]Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, Row(item))
	}
	return rows, nil
}

// All drains every remaining page.
func (r *Rows) All(ctx context.Context) ([]Row, error) {
	var all []Row
	for r.HasMorePages() {
		page, err := r.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
	return all, nil
}

// First returns the first matching row, or ErrNotFound. Pages are consumed
// until a row appears; with a filter expression a page may be empty even
// though later pages match.
func (r *Rows) First(ctx context.Context) (Row, error) {
	for r.HasMorePages() {
		page, err := r.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if len(page) > 0 {
			return page[0], nil
		}
	}
	return nil, ErrNotFound
}

// PageToken returns the continuation token after the most recent page, or
// nil once the result set is exhausted. The token is opaque to callers and
// round-trips through GetOptions.PageToken.
func (r *Rows) PageToken() []byte {
	if r.done || len(r.lastKey) == 0 {
		return nil
	}
	token, err := marshalPageToken(r.lastKey)
	if err != nil {
		return nil
	}
	return token
}

// tokenAttr is the serialized form of one key attribute. Table keys are
// always S or N members.
type tokenAttr struct {
	S *string `json:"s,omitempty"`
	N *string `json:"n,omitempty"`
}

// marshalPageToken serializes a LastEvaluatedKey.
func marshalPageToken(key PK) ([]byte, error) {
	out := make(map[string]tokenAttr, len(key))
	for col, av := range key {
		switch v := av.(type) {
		case *types.AttributeValueMemberS:
			out[col] = tokenAttr{S: &v.Value}
		case *types.AttributeValueMemberN:
			out[col] = tokenAttr{N: &v.Value}
		default:
			return nil, fmt.Errorf("plume: unsupported key attribute %T", av)
		}
	}
	return json.Marshal(out)
}

// unmarshalPageToken rebuilds an ExclusiveStartKey from a token.
func unmarshalPageToken(token []byte) (PK, error) {
	var in map[string]tokenAttr
	if err := json.Unmarshal(token, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPageToken, err)
	}
	key := make(PK, len(in))
	for col, attr := range in {
		switch {
		case attr.S != nil:
			key[col] = &types.AttributeValueMemberS{Value: *attr.S}
		case attr.N != nil:
			key[col] = &types.AttributeValueMemberN{Value: *attr.N}
		default:
			return nil, ErrBadPageToken
		}
	}
	return key, nil
}
