package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
discord:
  guild_id: "111"
reconcile:
  schedule: ""
tasks:
  upload_timeout: 2m
categories:
  - name: Calpe
    category_id: "1354752551136006175"
    role_id: "1354813657544134839"
    admin_role_id: "900"
  - name: Málaga
    role_id: "1354813912335388865"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("file values merge over defaults", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "token")
		cfg, err := Load(writeConfig(t, sampleConfig))
		require.NoError(t, err)

		assert.Equal(t, "token", cfg.Discord.Token)
		assert.Equal(t, "111", cfg.Discord.GuildID)
		assert.Equal(t, 2*time.Minute, cfg.Tasks.UploadTimeout)
		assert.Equal(t, "", cfg.Reconcile.Schedule)
		assert.Equal(t, "registro-tareas", cfg.Channels.Registry)
		assert.Equal(t, 4, cfg.Reconcile.Concurrency)
		require.Len(t, cfg.Categories, 2)
		assert.Equal(t, "900", cfg.Categories[0].AdminRoleID)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "token")
		t.Setenv("GUILD_ID", "222")
		t.Setenv("UPLOAD_TIMEOUT", "30s")
		t.Setenv("DB_URL", "file:tasks.db")
		cfg, err := Load(writeConfig(t, sampleConfig))
		require.NoError(t, err)

		assert.Equal(t, "222", cfg.Discord.GuildID)
		assert.Equal(t, 30*time.Second, cfg.Tasks.UploadTimeout)
		assert.Equal(t, "file:tasks.db", cfg.Database.URL)
	})

	t.Run("missing token fails validation", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "")
		_, err := Load(writeConfig(t, sampleConfig))
		assert.Error(t, err)
	})

	t.Run("invalid upload timeout", func(t *testing.T) {
		t.Setenv("DISCORD_TOKEN", "token")
		t.Setenv("UPLOAD_TIMEOUT", "soon")
		_, err := Load(writeConfig(t, sampleConfig))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Discord.Token = "token"
		cfg.Categories = []Category{
			{Name: "Calpe", RoleID: "1"},
			{Name: "Granada", RoleID: "2"},
		}
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("duplicate role ids", func(t *testing.T) {
		cfg := valid()
		cfg.Categories[1].RoleID = "1"
		assert.Error(t, cfg.Validate())
	})

	t.Run("category without role", func(t *testing.T) {
		cfg := valid()
		cfg.Categories[0].RoleID = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("no categories", func(t *testing.T) {
		cfg := valid()
		cfg.Categories = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero timeout", func(t *testing.T) {
		cfg := valid()
		cfg.Tasks.UploadTimeout = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestLookups(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Categories = []Category{
		{Name: "Calpe", CategoryID: "10", RoleID: "1", AdminRoleID: "100"},
		{Name: "Málaga", RoleID: "2"},
	}

	cat, ok := cfg.CategoryByChannelID("10")
	require.True(t, ok)
	assert.Equal(t, "Calpe", cat.Name)

	_, ok = cfg.CategoryByChannelID("")
	assert.False(t, ok)

	cat, ok = cfg.CategoryByName("malaga")
	require.True(t, ok)
	assert.Equal(t, "2", cat.RoleID)
}
