package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/sophiahq/sophia/internal/config"
)

func TestInitConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: "+dir+"\n"), 0o600))

	cfgFile = path
	t.Cleanup(func() {
		cfgFile = ""
		cfg = config.Config{}
		viper.Reset()
	})

	t.Setenv("DB_PATH", filepath.Join(dir, "content.db"))
	t.Setenv("BASE_URL", "https://sophia.example.com")
	t.Setenv("BOT_TOKEN", "hunter2")
	t.Setenv("FACEBOOK_ACCESS_TOKEN", "fb-token")
	t.Setenv("INSTAGRAM_ACCESS_TOKEN", "ig-token")
	t.Setenv("SSE_MAX_SUBSCRIBERS", "4")
	t.Setenv("EVENT_BUFFER_SIZE", "64")
	t.Setenv("DISPATCH_TIMEOUT_SECONDS", "10")
	t.Setenv("STALE_THRESHOLD_HOURS", "2")

	initConfig()

	require.Equal(t, filepath.Join(dir, "content.db"), cfg.ContentDBPath())
	require.Equal(t, "https://sophia.example.com", cfg.PublicBaseURL())
	require.Equal(t, "hunter2", cfg.Bot.Token)
	require.Equal(t, "fb-token", cfg.Platforms.Facebook.AccessToken)
	require.Equal(t, "ig-token", cfg.Platforms.Instagram.AccessToken)
	require.Equal(t, 4, cfg.Events.MaxSubscribers)
	require.Equal(t, 64, cfg.Events.BufferSize)
	require.Equal(t, 10*time.Second, cfg.DispatchTimeout())
	require.Equal(t, 2*time.Hour, cfg.StaleThreshold())
}

func TestInitConfig_FileStillWinsWithoutEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "data_dir: " + dir + "\nscheduler:\n  stale_threshold_hours: 8\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfgFile = path
	t.Cleanup(func() {
		cfgFile = ""
		cfg = config.Config{}
		viper.Reset()
	})

	initConfig()

	require.Equal(t, 8*time.Hour, cfg.StaleThreshold())
	require.Equal(t, filepath.Join(dir, "sophia.db"), cfg.ContentDBPath())
}
