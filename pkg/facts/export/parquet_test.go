package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet/file"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pondera-ai/pondera/pkg/facts"
)

func TestWriteParquetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := facts.NewMemoryStore(facts.DefaultPromotionPolicy())

	subjects := []string{"solar capacity", "wind power", "grid storage"}
	for i, subject := range subjects {
		f, err := facts.NewFact(subject, "grows by", "20% annually", 0.6, facts.Provenance{
			NodeID:    i,
			Method:    "llm-extraction",
			Source:    "s1",
			Timestamp: time.Now(),
		})
		require.NoError(t, err)
		_, err = store.Insert(ctx, f)
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "facts.parquet")
	require.NoError(t, WriteParquet(ctx, store, path))

	reader, err := file.OpenParquetFile(path, false)
	require.NoError(t, err)
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)

	table, err := arrowReader.ReadTable(ctx)
	require.NoError(t, err)
	defer table.Release()

	assert.Equal(t, int64(3), table.NumRows())
	assert.Equal(t, int64(11), table.NumCols())

	schema, err := arrowReader.Schema()
	require.NoError(t, err)
	subjectIdx := schema.FieldIndices("subject")
	require.Len(t, subjectIdx, 1)

	col := table.Column(subjectIdx[0]).Data().Chunk(0).(*array.String)
	read := make(map[string]bool)
	for i := 0; i < col.Len(); i++ {
		read[col.Value(i)] = true
	}
	for _, subject := range subjects {
		assert.True(t, read[subject], "subject %q missing from export", subject)
	}
}

func TestWriteParquetEmptyStore(t *testing.T) {
	ctx := context.Background()
	store := facts.NewMemoryStore(facts.DefaultPromotionPolicy())

	path := filepath.Join(t.TempDir(), "empty.parquet")
	require.NoError(t, WriteParquet(ctx, store, path))

	reader, err := file.OpenParquetFile(path, false)
	require.NoError(t, err)
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)

	table, err := arrowReader.ReadTable(ctx)
	require.NoError(t, err)
	defer table.Release()

	assert.Equal(t, int64(0), table.NumRows())
}
