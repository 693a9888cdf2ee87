package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.AddConfigPath(t.TempDir())
	v.SetConfigName("metaphor")

	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "https://metaphorspace.com/wp-json/wp/v2/posts", c.Source.URL)
	assert.Equal(t, 10, c.Source.PerPage)
	assert.Equal(t, 500, c.Chat.MaxContext)
	assert.True(t, c.Theme.Dark)
	assert.Equal(t, "gemini-pro", c.Gemini.Model)
	assert.Equal(t, 3, c.Worker.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, c.Worker.Backoff)
	assert.Equal(t, 24*time.Hour, c.Cache.TTL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("METAPHOR_GEMINI_API_KEY", "secret")
	t.Setenv("METAPHOR_THEME_DARK", "false")
	t.Setenv("METAPHOR_SOURCE_PER_PAGE", "25")

	v := New()
	v.AddConfigPath(t.TempDir())

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "secret", c.Gemini.APIKey)
	assert.False(t, c.Theme.Dark)
	assert.Equal(t, 25, c.Source.PerPage)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "server:\n  addr: \":9999\"\nchat:\n  apology: \"sorry\"\n  connection_error: \"offline\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metaphor.yaml"), []byte(yaml), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigName("metaphor")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":9999", c.Server.Addr)
	assert.Equal(t, "sorry", c.Chat.Apology)
	assert.Equal(t, "offline", c.Chat.ConnectionError)
}

func TestLoad_RejectsBadPageSize(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("source.per_page", 0)

	_, err := Load(v)
	assert.Error(t, err)
}
