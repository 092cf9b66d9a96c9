package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCensusTable(t *testing.T) {
	input := `[["JWMNP","SEX","ST","PUMA"],
["20","1","06","03701"],
["0","2","06","03701"]]`

	tbl, err := ReadCensusTable(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"JWMNP", "SEX", "ST", "PUMA"}, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, 2, tbl.Index("ST"))
	assert.Equal(t, -1, tbl.Index("JWTR"))
	assert.Equal(t, "03701", tbl.Rows[0][3])
}

func TestReadCensusTable_Empty(t *testing.T) {
	_, err := ReadCensusTable(context.Background(), strings.NewReader("[]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestReadCensusTable_NotAnArray(t *testing.T) {
	_, err := ReadCensusTable(context.Background(), strings.NewReader(`{"error":"unknown variable"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestDecodeJSONArray_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, errs := DecodeJSONArray[[]string](ctx, strings.NewReader(`[["a"],["b"]]`))
	for range out {
	}
	assert.Error(t, <-errs)
}
