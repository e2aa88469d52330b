// Package export dumps the fact table to Parquet for offline analysis.
package export

import (
	"context"
	"os"
	"time"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"

	"github.com/pondera-ai/pondera/pkg/errors"
	"github.com/pondera-ai/pondera/pkg/facts"
)

// Schema returns the columnar layout of the fact archive, one row per fact.
func Schema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "subject", Type: arrow.BinaryTypes.String},
		{Name: "relation", Type: arrow.BinaryTypes.String},
		{Name: "object", Type: arrow.BinaryTypes.String},
		{Name: "confidence", Type: arrow.PrimitiveTypes.Float64},
		{Name: "tier", Type: arrow.BinaryTypes.String},
		{Name: "disputed", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "node_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "source_count", Type: arrow.PrimitiveTypes.Int64},
		{Name: "created_at", Type: arrow.BinaryTypes.String},
		{Name: "updated_at", Type: arrow.BinaryTypes.String},
	}, nil)
}

// WriteParquet writes every fact in the store to a Parquet file at path.
func WriteParquet(ctx context.Context, store facts.Store, path string) error {
	all, err := store.All(ctx)
	if err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to read facts for export")
	}

	schema := Schema()
	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	for _, f := range all {
		builder.Field(0).(*array.StringBuilder).Append(f.ID)
		builder.Field(1).(*array.StringBuilder).Append(f.Subject)
		builder.Field(2).(*array.StringBuilder).Append(f.Relation)
		builder.Field(3).(*array.StringBuilder).Append(f.Object)
		builder.Field(4).(*array.Float64Builder).Append(f.Confidence)
		builder.Field(5).(*array.StringBuilder).Append(f.Tier.String())
		builder.Field(6).(*array.BooleanBuilder).Append(f.Disputed)
		builder.Field(7).(*array.Int64Builder).Append(int64(f.Provenance.NodeID))
		builder.Field(8).(*array.Int64Builder).Append(int64(f.SourceCount()))
		builder.Field(9).(*array.StringBuilder).Append(f.CreatedAt.Format(time.RFC3339Nano))
		builder.Field(10).(*array.StringBuilder).Append(f.UpdatedAt.Format(time.RFC3339Nano))
	}

	record := builder.NewRecord()
	defer record.Release()

	table := array.NewTableFromRecords(schema, []arrow.Record{record})
	defer table.Release()

	out, err := os.Create(path)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreFailure, "failed to create export file"),
			errors.Fields{"path": path},
		)
	}
	defer out.Close()

	rows := int64(len(all))
	if rows == 0 {
		rows = 1 // WriteTable requires a positive chunk size
	}

	if err := pqarrow.WriteTable(table, out, rows,
		parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()); err != nil {
		return errors.Wrap(err, errors.StoreFailure, "failed to write parquet table")
	}
	return nil
}
