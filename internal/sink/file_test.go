package sink

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	s := NewCSVSink(&CSVConfig{FilePath: path, IncludeHeader: true})

	ctx := context.Background()
	require.NoError(t, s.Init(ctx, RunInfo{RunID: "r"}))
	require.NoError(t, s.Write(ctx, sampleRows()))
	require.NoError(t, s.Close(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Number,Length of Collatz Sequence\n7,16\n1,0\n27,111\n", string(data))
}

func TestCSVSink_RankAndDelimiter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	s, err := NewCSVFactory()(map[string]any{
		"file_path":    path,
		"delimiter":    ";",
		"include_rank": true,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Init(ctx, RunInfo{}))
	require.NoError(t, s.Write(ctx, sampleRows()))
	require.NoError(t, s.Close(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Number;Length of Collatz Sequence;Rank", lines[0])
	assert.Equal(t, "7;16;2", lines[1])
}

func TestCSVSink_NoRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	s := NewCSVSink(&CSVConfig{FilePath: path, IncludeHeader: true})

	ctx := context.Background()
	require.NoError(t, s.Init(ctx, RunInfo{}))
	require.NoError(t, s.Write(ctx, nil))
	require.NoError(t, s.Close(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Number,Length of Collatz Sequence\n", string(data))
}

func TestCSVSink_DoubleInit(t *testing.T) {
	s := NewCSVSink(&CSVConfig{FilePath: filepath.Join(t.TempDir(), "x.csv")})
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, RunInfo{}))
	assert.Error(t, s.Init(ctx, RunInfo{}))
	require.NoError(t, s.Close(ctx))
}

func TestJSONSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	s, err := NewJSONFactory()(map[string]any{"file_path": path, "pretty": false})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Init(ctx, RunInfo{RunID: "run-1", Processes: 4}))
	require.NoError(t, s.Write(ctx, sampleRows()[:2]))
	require.NoError(t, s.Write(ctx, sampleRows()[2:]))
	require.NoError(t, s.Close(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc JSONDocument
	require.NoError(t, sonic.Unmarshal(data, &doc))
	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, 4, doc.Processes)
	assert.Equal(t, 3, doc.Count)
	assert.Equal(t, sampleRows(), doc.Results)
}

func TestJSONSink_EmptyResultsIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	s := NewJSONSink(&JSONConfig{FilePath: path})

	ctx := context.Background()
	require.NoError(t, s.Init(ctx, RunInfo{RunID: "r"}))
	require.NoError(t, s.Close(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"results":[]`)
}
