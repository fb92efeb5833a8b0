package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile_DecodesKnownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeTOML(t, dir, `
untranslated_policy = "warn"

[languages]
source = "en"
targets = ["fr", "de"]

[phases]
enabled = ["ingest", "translate", "export"]

[agents.translate]
chunk_size = 20
max_chunk_retries = 5
`)

	cfg, _, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "en", cfg.Languages.Source)
	assert.Equal(t, []string{"fr", "de"}, cfg.Languages.Targets)
	assert.Equal(t, []string{"ingest", "translate", "export"}, cfg.Phases.Enabled)
	assert.Equal(t, UntranslatedWarn, cfg.UntranslatedPolicy)
	assert.Equal(t, 20, cfg.Agents["translate"].ChunkSize)
	assert.Equal(t, 5, cfg.Agents["translate"].MaxChunkRetries)
}

func TestLoadFromFile_MissingFileReturnsError(t *testing.T) {
	_, _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidate_ReportsUnknownTopLevelKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeTOML(t, dir, `
untranslated_policy = "allow"
totally_unknown_key = true
`)

	_, md, err := LoadFromFile(path)
	require.NoError(t, err)

	unknown := Validate(md)
	require.Len(t, unknown, 1)
	assert.Equal(t, "totally_unknown_key", unknown[0])
}

func TestFindConfigFile_WalksUpToParent(t *testing.T) {
	root := t.TempDir()
	writeTOML(t, root, `untranslated_policy = "allow"`)

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ConfigFileName), found)
}

func TestFindConfigFile_ReturnsEmptyWhenNotFound(t *testing.T) {
	found, err := FindConfigFile(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, found)
}
