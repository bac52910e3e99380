package fsatomic

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "value.json")

	in := sample{Name: "alpha", Count: 3}
	require.NoError(t, WriteJSON(path, in))

	var out sample
	require.NoError(t, ReadJSON(path, &out))
	require.Equal(t, in, out)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not survive a successful write")
}

func TestWriteJSONOverwriteNeverPartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "value.json")

	require.NoError(t, WriteJSON(path, sample{Name: "first", Count: 1}))
	require.NoError(t, WriteJSON(path, sample{Name: "second", Count: 2}))

	var out sample
	require.NoError(t, ReadJSON(path, &out))
	require.Equal(t, sample{Name: "second", Count: 2}, out)
}

func TestAppendLineCreatesAndAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")

	require.NoError(t, AppendLine(path, sample{Name: "one", Count: 1}))
	require.NoError(t, AppendLine(path, sample{Name: "two", Count: 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\"name\":\"one\",\"count\":1}\n{\"name\":\"two\",\"count\":2}\n", string(data))
}

func TestWriteJSONLWritesOneRecordPerLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")

	records := []interface{}{
		sample{Name: "a", Count: 1},
		sample{Name: "b", Count: 2},
	}
	require.NoError(t, WriteJSONL(path, records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\"name\":\"a\",\"count\":1}\n{\"name\":\"b\",\"count\":2}\n", string(data))
}
