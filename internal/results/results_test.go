package results

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcules/predict-server/internal/table"
)

type memPointers struct {
	mu   sync.Mutex
	data map[string]string
}

func (p *memPointers) SetResult(_ context.Context, username, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		p.data = map[string]string{}
	}
	p.data[username] = name
	return nil
}

func (p *memPointers) GetResult(_ context.Context, username string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.data[username]
	return name, ok, nil
}

func TestSaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	tbl := table.Table{Columns: []string{"ID", "y"}, Rows: [][]string{{"1", "5"}}}
	require.NoError(t, fs.Save("out.csv", tbl))

	rc, err := fs.Open("out.csv")
	require.NoError(t, err)
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "ID,y\n1,5\n", string(raw))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpenMissing(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Open("nope.csv")
	assert.ErrorIs(t, err, ErrStorageMissing)
}

func TestOpenIgnoresPathTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Open("../../etc/passwd")
	assert.ErrorIs(t, err, ErrStorageMissing)
}

func TestResolveNeverPredicted(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = Resolve(context.Background(), &memPointers{}, fs, "alice")
	assert.ErrorIs(t, err, ErrNeverPredicted)
}

func TestResolveStorageMissing(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	ptrs := &memPointers{}
	tbl := table.Table{Columns: []string{"y"}, Rows: [][]string{{"1"}}}
	require.NoError(t, fs.Save("out.csv", tbl))
	require.NoError(t, ptrs.SetResult(context.Background(), "alice", "out.csv"))

	// Deleting the file out-of-band must yield the storage-missing cause,
	// not a generic error.
	require.NoError(t, os.Remove(filepath.Join(dir, "out.csv")))

	_, _, err = Resolve(context.Background(), ptrs, fs, "alice")
	assert.ErrorIs(t, err, ErrStorageMissing)
}

func TestResolveHappyPath(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ptrs := &memPointers{}
	tbl := table.Table{Columns: []string{"y"}, Rows: [][]string{{"1"}}}
	require.NoError(t, fs.Save("first.csv", tbl))
	require.NoError(t, fs.Save("second.csv", tbl))
	require.NoError(t, ptrs.SetResult(context.Background(), "alice", "first.csv"))
	require.NoError(t, ptrs.SetResult(context.Background(), "alice", "second.csv"))

	name, rc, err := Resolve(context.Background(), ptrs, fs, "alice")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "second.csv", name, "last write wins")
}
