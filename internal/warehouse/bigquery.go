package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/rpattn/sheetingest/internal/domain"
)

// BigQuery appends batches to tables of one dataset with load jobs. A load job
// commits all of its rows or none.
type BigQuery struct {
	client   *bigquery.Client
	project  string
	dataset  string
	location string
}

// NewBigQuery connects to project and targets dataset. location applies to
// a dataset the warehouse has to create.
func NewBigQuery(ctx context.Context, project, dataset, location string, opts ...option.ClientOption) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	return &BigQuery{client: client, project: project, dataset: dataset, location: location}, nil
}

// EnsureTables creates the dataset and any missing table.
func (b *BigQuery) EnsureTables(ctx context.Context, tables []Table) error {
	ds := b.client.Dataset(b.dataset)
	if _, err := ds.Metadata(ctx); err != nil {
		if !isStatus(err, http.StatusNotFound) {
			return classifyBigQueryError(fmt.Errorf("failed to read dataset %s: %w", b.dataset, err))
		}
		err = ds.Create(ctx, &bigquery.DatasetMetadata{Location: b.location})
		if err != nil && !isStatus(err, http.StatusConflict) {
			return classifyBigQueryError(fmt.Errorf("failed to create dataset %s: %w", b.dataset, err))
		}
	}

	for _, table := range tables {
		t := ds.Table(table.Name)
		_, err := t.Metadata(ctx)
		switch {
		case err == nil:
			continue
		case !isStatus(err, http.StatusNotFound):
			return classifyBigQueryError(fmt.Errorf("failed to read table %s: %w", table.Name, err))
		}

		err = t.Create(ctx, &bigquery.TableMetadata{Schema: bigQuerySchema(table)})
		if err != nil && !isStatus(err, http.StatusConflict) {
			return classifyBigQueryError(fmt.Errorf("failed to create table %s: %w", table.Name, err))
		}
	}
	return nil
}

// Append runs one load job for batch unless its key is already stored. A
// replace batch loads with WRITE_TRUNCATE; an empty one truncates the table.
func (b *BigQuery) Append(ctx context.Context, batch Batch) (bool, error) {
	if batch.Key != "" {
		count, err := b.count(ctx, batch.Table.Name, batch.Key)
		if err != nil {
			return false, err
		}
		if count > 0 {
			return false, nil
		}
	}
	if batch.Replace && batch.Len() == 0 {
		return b.truncate(ctx, batch.Table.Name)
	}

	payload, err := encodeNDJSON(batch)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	source := bigquery.NewReaderSource(bytes.NewReader(payload))
	source.SourceFormat = bigquery.JSON
	source.Schema = bigQuerySchema(batch.Table)

	loader := b.client.Dataset(b.dataset).Table(batch.Table.Name).LoaderFrom(source)
	loader.WriteDisposition = writeDisposition(batch)
	loader.CreateDisposition = bigquery.CreateNever

	job, err := loader.Run(ctx)
	if err != nil {
		return false, classifyBigQueryError(fmt.Errorf("failed to start load job for %s: %w", batch.Table.Name, err))
	}
	if err := b.wait(ctx, job, batch.Table.Name); err != nil {
		return false, err
	}
	return true, nil
}

func writeDisposition(batch Batch) bigquery.TableWriteDisposition {
	if batch.Replace {
		return bigquery.WriteTruncate
	}
	return bigquery.WriteAppend
}

// truncate empties table and reports whether it held any rows.
func (b *BigQuery) truncate(ctx context.Context, table string) (bool, error) {
	count, err := b.count(ctx, table, "")
	if err != nil || count == 0 {
		return false, err
	}

	q := b.client.Query(fmt.Sprintf("TRUNCATE TABLE `%s`", b.tableID(table)))
	q.Location = b.location
	job, err := q.Run(ctx)
	if err != nil {
		return false, classifyBigQueryError(fmt.Errorf("failed to start truncate of %s: %w", table, err))
	}
	if err := b.wait(ctx, job, table); err != nil {
		return false, err
	}
	return true, nil
}

func (b *BigQuery) wait(ctx context.Context, job *bigquery.Job, table string) error {
	status, err := job.Wait(ctx)
	if err != nil {
		return classifyBigQueryError(fmt.Errorf("failed to wait for job %s: %w", job.ID(), err))
	}
	if err := status.Err(); err != nil {
		return classifyBigQueryError(fmt.Errorf("job %s for %s failed: %w", job.ID(), table, err))
	}
	return nil
}

// count returns the rows of table carrying batch key, or all rows when key
// is empty.
func (b *BigQuery) count(ctx context.Context, table, key string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(1) FROM `%s`", b.tableID(table))
	var params []bigquery.QueryParameter
	if key != "" {
		query += " WHERE batch_key = @key"
		params = []bigquery.QueryParameter{{Name: "key", Value: key}}
	}
	q := b.client.Query(query)
	q.Location = b.location
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return 0, classifyBigQueryError(fmt.Errorf("failed to count rows of %s: %w", table, err))
	}
	var row []bigquery.Value
	if err := it.Next(&row); err != nil {
		if errors.Is(err, iterator.Done) {
			return 0, nil
		}
		return 0, classifyBigQueryError(fmt.Errorf("failed to read row count of %s: %w", table, err))
	}
	count, _ := row[0].(int64)
	return count, nil
}

// PrimaryKeys reads the distinct primary keys of kind's raw table. A table
// that does not exist yet has no keys.
func (b *BigQuery) PrimaryKeys(ctx context.Context, kind domain.Kind) ([]int64, error) {
	pk := kind.PrimaryKey()
	q := b.client.Query(fmt.Sprintf("SELECT DISTINCT %s FROM `%s` ORDER BY %s", pk, b.tableID(kind.RawTable()), pk))
	q.Location = b.location

	it, err := q.Read(ctx)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return []int64{}, nil
		}
		return nil, classifyBigQueryError(fmt.Errorf("failed to read keys of %s: %w", kind.RawTable(), err))
	}

	keys := []int64{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyBigQueryError(fmt.Errorf("failed to read key row of %s: %w", kind.RawTable(), err))
		}
		if id, ok := row[0].(int64); ok {
			keys = append(keys, id)
		}
	}
	return keys, nil
}

// Close releases the client.
func (b *BigQuery) Close() error {
	return b.client.Close()
}

func (b *BigQuery) tableID(table string) string {
	return fmt.Sprintf("%s.%s.%s", b.project, b.dataset, table)
}

func bigQuerySchema(table Table) bigquery.Schema {
	schema := make(bigquery.Schema, 0, len(table.Columns))
	for _, column := range table.Columns {
		schema = append(schema, &bigquery.FieldSchema{
			Name:     column.Name,
			Type:     bigQueryType(column.Type),
			Required: column.Required,
		})
	}
	return schema
}

func bigQueryType(t domain.FieldType) bigquery.FieldType {
	switch t {
	case domain.FieldTypeInteger:
		return bigquery.IntegerFieldType
	case domain.FieldTypeFloat:
		return bigquery.FloatFieldType
	case domain.FieldTypeBoolean:
		return bigquery.BooleanFieldType
	case domain.FieldTypeDate:
		return bigquery.DateFieldType
	case domain.FieldTypeTimestamp:
		return bigquery.TimestampFieldType
	default:
		return bigquery.StringFieldType
	}
}

// encodeNDJSON renders batch as newline delimited JSON, the load job format.
func encodeNDJSON(batch Batch) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, row := range batch.Rows {
		if len(row) != len(batch.Table.Columns) {
			return nil, fmt.Errorf("%s row %d has %d values, want %d",
				batch.Table.Name, i, len(row), len(batch.Table.Columns))
		}
		object := make(map[string]any, len(row))
		for j, column := range batch.Table.Columns {
			if value := jsonValue(column.Type, row[j]); value != nil {
				object[column.Name] = value
			}
		}
		if err := enc.Encode(object); err != nil {
			return nil, fmt.Errorf("encode %s row %d: %w", batch.Table.Name, i, err)
		}
	}
	return buf.Bytes(), nil
}

func jsonValue(t domain.FieldType, value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case *int64:
		if v == nil {
			return nil
		}
		return *v
	case *int:
		if v == nil {
			return nil
		}
		return *v
	case time.Time:
		if t == domain.FieldTypeDate {
			return v.UTC().Format("2006-01-02")
		}
		return v.UTC().Format(time.RFC3339Nano)
	case string:
		if v == "" && t != domain.FieldTypeString {
			return nil
		}
		return v
	default:
		return v
	}
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func hasReason(apiErr *googleapi.Error, reason string) bool {
	for _, e := range apiErr.Errors {
		if e.Reason == reason {
			return true
		}
	}
	return false
}

// classifyBigQueryError wraps failures that retries cannot fix in
// ErrPermanent. Quota errors and server errors stay transient.
func classifyBigQueryError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusForbidden && (hasReason(apiErr, "quotaExceeded") || hasReason(apiErr, "rateLimitExceeded")):
			return err
		case apiErr.Code == http.StatusBadRequest,
			apiErr.Code == http.StatusForbidden,
			apiErr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrPermanent, err)
		}
		return err
	}

	var jobErr *bigquery.Error
	if errors.As(err, &jobErr) {
		switch jobErr.Reason {
		case "invalid", "invalidQuery", "notFound", "accessDenied":
			return fmt.Errorf("%w: %w", ErrPermanent, err)
		}
	}
	return err
}
