package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// batchLimit is the BatchWriteItem request size limit.
const batchLimit = 25

// batchAttempts bounds resubmission of unprocessed batch items.
const batchAttempts = 3

// Store executes schema-driven operations against DynamoDB.
type Store struct {
	client *dynamodb.Client
}

// New creates a new Store around an explicitly constructed client. The
// client's lifecycle belongs to the caller.
func New(client *dynamodb.Client) *Store {
	return &Store{client: client}
}

// GetOptions configures a Get.
type GetOptions struct {
	// Filtering permits an unindexed table scan when the predicate does not
	// cover the partition key. Off by default: an accidental full scan on a
	// feed table is an operational incident, not a convenience.
	Filtering bool

	// PageSize caps rows per page (0 = store default).
	PageSize int32

	// Descending reverses the sort-key order of a Query. Ignored for
	// filtered scans, which have no ordering to reverse.
	Descending bool

	// PageToken resumes a previous paged read (from Rows.PageToken).
	PageToken []byte
}

// Get reads rows matching an equality-conjunction predicate. The predicate
// must cover the table's partition key unless opts.Filtering is set, in
// which case a filtered Scan is issued instead.
func (s *Store) Get(table Table, pred map[string]any, opts GetOptions) (*Rows, error) {
	rows := &Rows{client: s.client}

	if len(opts.PageToken) > 0 {
		startKey, err := unmarshalPageToken(opts.PageToken)
		if err != nil {
			return nil, err
		}
		rows.startKey = startKey
	}

	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	_, hasPK := pred[table.PartitionKey]
	if hasPK && !opts.Filtering {
		input := &dynamodb.QueryInput{TableName: aws.String(table.Name)}

		var keyClauses, filterClauses []string
		for i, col := range sortedColumns(pred) {
			av, err := EncodeValue(pred[col], table.Schema[col])
			if err != nil {
				return nil, err
			}
			nameKey := fmt.Sprintf("#c%d", i)
			valueKey := fmt.Sprintf(":v%d", i)
			names[nameKey] = col
			values[valueKey] = av
			clause := fmt.Sprintf("%s = %s", nameKey, valueKey)
			if table.isKeyColumn(col) {
				keyClauses = append(keyClauses, clause)
			} else {
				filterClauses = append(filterClauses, clause)
			}
		}

		input.KeyConditionExpression = aws.String(joinClauses(keyClauses))
		if len(filterClauses) > 0 {
			input.FilterExpression = aws.String(joinClauses(filterClauses))
		}
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
		if opts.PageSize > 0 {
			input.Limit = aws.Int32(opts.PageSize)
		}
		if opts.Descending {
			input.ScanIndexForward = aws.Bool(false)
		}
		rows.query = input
		return rows, nil
	}

	if !opts.Filtering {
		return nil, fmt.Errorf("%w: %s.%s", ErrMissingKey, table.Name, table.PartitionKey)
	}

	input := &dynamodb.ScanInput{TableName: aws.String(table.Name)}
	var clauses []string
	for i, col := range sortedColumns(pred) {
		av, err := EncodeValue(pred[col], table.Schema[col])
		if err != nil {
			return nil, err
		}
		nameKey := fmt.Sprintf("#c%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		names[nameKey] = col
		values[valueKey] = av
		clauses = append(clauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}
	if len(clauses) > 0 {
		input.FilterExpression = aws.String(joinClauses(clauses))
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}
	if opts.PageSize > 0 {
		input.Limit = aws.Int32(opts.PageSize)
	}
	rows.scan = input
	return rows, nil
}

// Put writes one row, coercing values through the table schema.
func (s *Store) Put(ctx context.Context, table Table, vals map[string]any) error {
	item, err := table.Schema.Encode(vals)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table.Name),
		Item:      item,
	})
	return err
}

// Delete removes one row. The predicate must cover the table key.
func (s *Store) Delete(ctx context.Context, table Table, pred map[string]any) error {
	key, err := table.Key(pred)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table.Name),
		Key:       key,
	})
	return err
}

// Update sets non-key columns on one row. The predicate must cover the
// table key.
func (s *Store) Update(ctx context.Context, table Table, pred, vals map[string]any) error {
	key, err := table.Key(pred)
	if err != nil {
		return err
	}

	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var setClauses []string
	i := 0
	for _, col := range sortedColumns(vals) {
		if table.isKeyColumn(col) {
			continue
		}
		colType, ok := table.Schema[col]
		if !ok {
			continue
		}
		av, err := EncodeValue(vals[col], colType)
		if err != nil {
			return err
		}
		nameKey := fmt.Sprintf("#c%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		names[nameKey] = col
		values[valueKey] = av
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
		i++
	}
	if len(setClauses) == 0 {
		return nil
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table.Name),
		Key:                       key,
		UpdateExpression:          aws.String("SET " + joinList(setClauses)),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

// Batch submits deferred statements as grouped BatchWriteItem requests.
// Statements are deduplicated first, then chunked to the request limit.
// Atomicity is per submission only; order across tables is not guaranteed.
func (s *Store) Batch(ctx context.Context, stmts []Statement) error {
	stmts = dedupStatements(stmts)
	if len(stmts) == 0 {
		return nil
	}

	for start := 0; start < len(stmts); start += batchLimit {
		end := start + batchLimit
		if end > len(stmts) {
			end = len(stmts)
		}

		requests := map[string][]types.WriteRequest{}
		for _, stmt := range stmts[start:end] {
			requests[stmt.table] = append(requests[stmt.table], stmt.writeRequest())
		}

		if err := s.submitBatch(ctx, requests); err != nil {
			return err
		}
	}
	return nil
}

// submitBatch issues one BatchWriteItem, resubmitting unprocessed items a
// bounded number of times before giving up.
func (s *Store) submitBatch(ctx context.Context, requests map[string][]types.WriteRequest) error {
	for attempt := 0; attempt < batchAttempts; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: requests,
		})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		requests = out.UnprocessedItems
	}
	return ErrBatchUnprocessed
}

// sortedColumns returns map keys in a stable order so built expressions are
// deterministic.
func sortedColumns(m map[string]any) []string {
	cols := make([]string, 0, len(m))
	for col := range m {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// joinClauses joins condition clauses with AND.
func joinClauses(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	result := clauses[0]
	for _, c := range clauses[1:] {
		result += " AND " + c
	}
	return result
}

// joinList joins SET clauses with commas.
func joinList(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	result := clauses[0]
	for _, c := range clauses[1:] {
		result += ", " + c
	}
	return result
}
