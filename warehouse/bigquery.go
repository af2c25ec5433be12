package warehouse

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

// BigQueryTable implements TableClient against a BigQuery table.
//
// The inserter runs with IgnoreUnknownValues so rows carrying fields the
// table schema does not (yet) know are accepted and the unknown fields are
// dropped by the sink, not by the engine.
type BigQueryTable struct {
	table    *bigquery.Table
	inserter *bigquery.Inserter
}

// NewBigQueryTable creates a table client for project.dataset.table using
// the given BigQuery client.
func NewBigQueryTable(client *bigquery.Client, dataset, table string) *BigQueryTable {
	t := client.Dataset(dataset).Table(table)
	ins := t.Inserter()
	ins.IgnoreUnknownValues = true
	return &BigQueryTable{table: t, inserter: ins}
}

// Metadata implements TableClient.
func (b *BigQueryTable) Metadata(ctx context.Context) (*TableMetadata, error) {
	meta, err := b.table.Metadata(ctx)
	if err != nil {
		if statusCode(err) == 404 {
			return nil, ErrTableNotFound
		}
		return nil, err
	}
	return &TableMetadata{Columns: fromSchema(meta.Schema), ETag: meta.ETag}, nil
}

// Create implements TableClient.
func (b *BigQueryTable) Create(ctx context.Context, spec *TableSpec) error {
	meta := &bigquery.TableMetadata{
		Schema: toSchema(spec.Columns),
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: spec.PartitionField,
		},
		RequirePartitionFilter: spec.RequirePartitionFilter,
	}
	if len(spec.ClusterFields) > 0 {
		meta.Clustering = &bigquery.Clustering{Fields: spec.ClusterFields}
	}
	if err := b.table.Create(ctx, meta); err != nil {
		if statusCode(err) == 409 {
			return ErrTableExists
		}
		return err
	}
	return nil
}

// Update implements TableClient. The etag from the preceding Metadata
// fetch conditions the patch; a concurrent schema writer invalidates it
// and surfaces here as ErrPreconditionFailed.
func (b *BigQueryTable) Update(ctx context.Context, columns []Column, etag string) error {
	_, err := b.table.Update(ctx, bigquery.TableMetadataToUpdate{Schema: toSchema(columns)}, etag)
	if err != nil {
		if statusCode(err) == 412 {
			return ErrPreconditionFailed
		}
		return err
	}
	return nil
}

// Insert implements TableClient. The event_id field, when present, is used
// as the best-effort streaming dedup key.
func (b *BigQueryTable) Insert(ctx context.Context, row map[string]any) error {
	saver := rowSaver{row: row}
	if id, ok := row["event_id"].(string); ok {
		saver.insertID = id
	}
	if err := b.inserter.Put(ctx, saver); err != nil {
		return fmt.Errorf("bigquery insert: %w", err)
	}
	return nil
}

type rowSaver struct {
	row      map[string]any
	insertID string
}

func (r rowSaver) Save() (map[string]bigquery.Value, string, error) {
	out := make(map[string]bigquery.Value, len(r.row))
	for k, v := range r.row {
		out[k] = v
	}
	return out, r.insertID, nil
}

var columnToField = map[ColumnType]bigquery.FieldType{
	TypeString:    bigquery.StringFieldType,
	TypeInt64:     bigquery.IntegerFieldType,
	TypeNumeric:   bigquery.NumericFieldType,
	TypeBool:      bigquery.BooleanFieldType,
	TypeTimestamp: bigquery.TimestampFieldType,
}

var fieldToColumn = map[bigquery.FieldType]ColumnType{
	bigquery.StringFieldType:    TypeString,
	bigquery.IntegerFieldType:   TypeInt64,
	bigquery.NumericFieldType:   TypeNumeric,
	bigquery.BooleanFieldType:   TypeBool,
	bigquery.TimestampFieldType: TypeTimestamp,
}

func toSchema(columns []Column) bigquery.Schema {
	schema := make(bigquery.Schema, 0, len(columns))
	for _, col := range columns {
		ft, ok := columnToField[col.Type]
		if !ok {
			ft = bigquery.StringFieldType
		}
		// Never required: evolution only works with nullable columns.
		schema = append(schema, &bigquery.FieldSchema{Name: col.Name, Type: ft})
	}
	return schema
}

func fromSchema(schema bigquery.Schema) []Column {
	cols := make([]Column, 0, len(schema))
	for _, field := range schema {
		ct, ok := fieldToColumn[field.Type]
		if !ok {
			ct = ColumnType(field.Type)
		}
		cols = append(cols, Column{Name: field.Name, Type: ct})
	}
	return cols
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
