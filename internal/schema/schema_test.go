package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWithFeatureNames(t *testing.T) {
	dir := t.TempDir()
	targets := writeFile(t, dir, "target_cols.json", `["y1","y2"]`)
	features := writeFile(t, dir, "feature_cols.json", `["x1","x2","x3"]`)

	reg, err := Load(targets, features, 3)
	require.NoError(t, err)

	names, ok := reg.Features()
	require.True(t, ok)
	assert.Equal(t, []string{"x1", "x2", "x3"}, names)

	n, ok := reg.FeatureCount()
	require.True(t, ok)
	assert.Equal(t, 3, n)

	assert.Equal(t, []string{"y1", "y2"}, reg.Targets())
}

func TestLoadDegradedMode(t *testing.T) {
	dir := t.TempDir()
	targets := writeFile(t, dir, "target_cols.json", `["y"]`)

	reg, err := Load(targets, filepath.Join(dir, "feature_cols.json"), 4)
	require.NoError(t, err)

	_, ok := reg.Features()
	assert.False(t, ok)

	n, ok := reg.FeatureCount()
	require.True(t, ok)
	assert.Equal(t, 4, n)
}

func TestLoadNoSchemaAtAll(t *testing.T) {
	dir := t.TempDir()
	targets := writeFile(t, dir, "target_cols.json", `["y"]`)

	reg, err := Load(targets, filepath.Join(dir, "feature_cols.json"), 0)
	require.NoError(t, err)

	_, ok := reg.Features()
	assert.False(t, ok)
	_, ok = reg.FeatureCount()
	assert.False(t, ok)
}

func TestLoadMissingTargetsIsFatal(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "target_cols.json"), "", 2)
	assert.Error(t, err)
}

func TestLoadEmptyTargetsIsFatal(t *testing.T) {
	dir := t.TempDir()
	targets := writeFile(t, dir, "target_cols.json", `[]`)
	_, err := Load(targets, "", 2)
	assert.Error(t, err)
}

func TestLoadCorruptFeatureListIsFatal(t *testing.T) {
	dir := t.TempDir()
	targets := writeFile(t, dir, "target_cols.json", `["y"]`)
	features := writeFile(t, dir, "feature_cols.json", `{not json`)

	_, err := Load(targets, features, 2)
	assert.Error(t, err)
}
