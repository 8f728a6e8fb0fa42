package file

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/strata/internal/core/ports/driven"
)

func TestConfigStore_ImplementsInterface(t *testing.T) {
	var _ driven.ConfigStore = (*ConfigStore)(nil)
}

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_DefaultDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot determine home directory")
	}

	store, err := NewConfigStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".strata", "config.toml"), store.Path())
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("llm.model", "llama3.2"))
	require.NoError(t, store.Set("index.dimensions", 384))
	require.NoError(t, store.Set("dispatch.threshold", 0.35))
	require.NoError(t, store.Set("routing.force_vision", true))

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", store.GetString("llm.model"), "llama3.2"},
		{"string wrong type", store.GetString("index.dimensions"), ""},
		{"int", store.GetInt("index.dimensions"), 384},
		{"int wrong type", store.GetInt("llm.model"), 0},
		{"float", store.GetFloat("dispatch.threshold"), 0.35},
		{"float from int", store.GetFloat("index.dimensions"), 384.0},
		{"float missing", store.GetFloat("missing"), 0.0},
		{"bool", store.GetBool("routing.force_vision"), true},
		{"bool wrong type", store.GetBool("llm.model"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestConfigStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()

	store1, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store1.Set("embedding.provider", "ollama"))
	require.NoError(t, store1.Set("chunking.max_chars", 1200))
	require.NoError(t, store1.Set("dispatch.synthesize", true))
	require.NoError(t, store1.Set("dispatch.keyword_boost", 0.2))

	store2, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "ollama", store2.GetString("embedding.provider"))
	assert.Equal(t, 1200, store2.GetInt("chunking.max_chars"))
	assert.True(t, store2.GetBool("dispatch.synthesize"))
	assert.InDelta(t, 0.2, store2.GetFloat("dispatch.keyword_boost"), 1e-9)
}

func TestConfigStore_LoadNestedTables(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
[index]
dimensions = 768
metric = "l2"

[dispatch]
threshold = 0.5
agents = ["vision_geologist", "data_analyst"]
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 768, store.GetInt("index.dimensions"))
	assert.Equal(t, "l2", store.GetString("index.metric"))
	assert.InDelta(t, 0.5, store.GetFloat("dispatch.threshold"), 1e-9)
	assert.Equal(t, []string{"vision_geologist", "data_analyst"}, store.GetStringSlice("dispatch.agents"))
	assert.Equal(t, []string{"dispatch.agents", "dispatch.threshold", "index.dimensions", "index.metric"}, store.Keys())
}

func TestConfigStore_EmptyOrCommentOnlyFile(t *testing.T) {
	for _, content := range []string{"", "# Just a comment\n\n"} {
		tmpDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

		store, err := NewConfigStore(tmpDir)
		require.NoError(t, err)

		_, ok := store.Get("any_key")
		assert.False(t, ok)
		assert.Empty(t, store.Keys())
	}
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("test", "value"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			key := "key" + string(rune('0'+id))
			_ = store.Set(key, id)
			_ = store.GetInt(key)
			_ = store.GetFloat(key)
			_ = store.Keys()
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
	assert.Len(t, store.Keys(), 10)
}

func TestNewConfigStore_MkdirAllError(t *testing.T) {
	store, err := NewConfigStore("/dev/null/cannot/create/dirs")

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNewConfigStore_LoadCorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("this is not valid TOML {{{[["), 0600))

	store, err := NewConfigStore(tmpDir)

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestConfigStore_Save_WriteFileError(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("test", "value"))

	// A directory in place of the file makes the write fail.
	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, os.Mkdir(store.Path(), 0700))

	assert.Error(t, store.Set("another", "value"))
}

func TestConfigStore_SetWithUnmarshallableValue(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("llm.provider", "ollama"))

	assert.Error(t, store.Set("channel", make(chan int)))
	_, ok := store.Get("channel")
	assert.False(t, ok, "a failed write is rolled back")

	reopened, err := NewConfigStore(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Equal(t, []string{"llm.provider"}, reopened.Keys())
}

func TestConfigStore_WritesTables(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("dispatch.threshold", 0.4))
	require.NoError(t, store.Set("dispatch.max_agents", 2))
	require.NoError(t, store.Set("embedding.provider", "openai"))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	content := string(raw)
	assert.True(t, strings.HasPrefix(content, "# strata configuration."))
	assert.Contains(t, content, "[dispatch]")
	assert.Contains(t, content, "[embedding]")
	assert.NotContains(t, content, "'dispatch.threshold'")

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestConfigStore_ConflictingKeys(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("index.metric", "cosine"))

	assert.Error(t, store.Set("index", "flat"))
	assert.Equal(t, "cosine", store.GetString("index.metric"))
	_, ok := store.Get("index")
	assert.False(t, ok)
}

func TestNest(t *testing.T) {
	tables, err := nest(map[string]any{"a.b.c": 1, "a.d": "x", "top": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a":   map[string]any{"b": map[string]any{"c": 1}, "d": "x"},
		"top": true,
	}, tables)

	_, err = nest(map[string]any{"a": 1, "a.b": 2})
	assert.Error(t, err)
}
