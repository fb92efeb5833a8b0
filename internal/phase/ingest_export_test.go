package phase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trevorwieland/rentl/internal/model"
	"github.com/trevorwieland/rentl/internal/phase"
	"github.com/trevorwieland/rentl/internal/ports"
	"github.com/trevorwieland/rentl/internal/rentlerr"
)

func TestIngest_RejectsDuplicateLineIDs(t *testing.T) {
	adapter := &fakeIngestAdapter{lines: []model.SourceLine{
		{LineID: "a_1", Text: "one"},
		{LineID: "a_1", Text: "dup"},
	}}

	_, err := phase.Ingest(context.Background(), adapter, "in.csv", "csv", nil)
	require.Error(t, err)
	var rerr *rentlerr.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rentlerr.CodeValidation, rerr.Code)
}

func TestIngest_CountsLinesAndScenes(t *testing.T) {
	adapter := &fakeIngestAdapter{lines: []model.SourceLine{
		{LineID: "a_1", SceneID: "scene_1", Text: "one"},
		{LineID: "a_2", SceneID: "scene_1", Text: "two"},
		{LineID: "a_3", SceneID: "scene_2", Text: "three"},
	}}

	result, err := phase.Ingest(context.Background(), adapter, "in.csv", "csv", nil)
	require.NoError(t, err)
	assert.Len(t, result.Lines, 3)
	assert.Equal(t, 3, result.Summary["source_lines_count"])
	assert.Equal(t, 2, result.Summary["scene_count"])
	assert.Equal(t, 0, result.Summary["empty_lines_skipped"])
}

func TestIngest_SkipsEmptyLines(t *testing.T) {
	adapter := &fakeIngestAdapter{lines: []model.SourceLine{
		{LineID: "a_1", SceneID: "scene_1", Text: "one"},
		{LineID: "a_2", SceneID: "scene_1", Text: "   "},
		{LineID: "a_3", SceneID: "scene_2", Text: ""},
	}}

	result, err := phase.Ingest(context.Background(), adapter, "in.csv", "csv", nil)
	require.NoError(t, err)
	assert.Len(t, result.Lines, 1)
	assert.Equal(t, 1, result.Summary["source_lines_count"])
	assert.Equal(t, 1, result.Summary["scene_count"])
	assert.Equal(t, 2, result.Summary["empty_lines_skipped"])
}

func TestIngest_WrapsAdapterError(t *testing.T) {
	adapter := &fakeIngestAdapter{err: errBoom}

	_, err := phase.Ingest(context.Background(), adapter, "in.csv", "csv", nil)
	require.Error(t, err)
	var rerr *rentlerr.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rentlerr.CodeIngest, rerr.Code)
}

func TestExport_ReportsRecordCounts(t *testing.T) {
	adapter := &fakeExportAdapter{summary: ports.ExportSummary{RecordsWritten: 5, UntranslatedRecords: 1}}

	result, err := phase.Export(context.Background(), adapter, "out.csv", "csv", nil, nil, "fr", "warn")
	require.NoError(t, err)
	assert.Equal(t, 5, result.Summary["records_exported"])
	assert.Equal(t, 1, result.Summary["untranslated_records"])
}

func TestExport_WrapsAdapterError(t *testing.T) {
	adapter := &fakeExportAdapter{err: errBoom}

	_, err := phase.Export(context.Background(), adapter, "out.csv", "csv", nil, nil, "fr", "error")
	require.Error(t, err)
	var rerr *rentlerr.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rentlerr.CodeExport, rerr.Code)
}
