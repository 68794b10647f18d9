package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChuLiYu/beaver-chat/internal/static"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644), "Failed to write %s", name)
	return path
}

func staticDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, page := range static.RequiredPages {
		writeFile(t, dir, page, "<h1>"+page+"</h1>")
	}
	return dir
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "beaver-chat", cmd.Use, "Root command should be 'beaver-chat'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	commands := cmd.Commands()
	assert.Len(t, commands, 2, "Should have 2 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Use] = true
	}
	assert.True(t, commandNames["serve"], "Should have 'serve' command")
	assert.True(t, commandNames["config"], "Should have 'config' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue, "Default config path should be configs/default.yaml")
}

func TestBuildServeCommand(t *testing.T) {
	cmd := buildServeCommand()

	assert.Equal(t, "serve", cmd.Use, "Command should be 'serve'")
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")

	defaults := map[string]string{
		"host":         "0.0.0.0",
		"port":         "7878",
		"threads":      "4",
		"static":       "./static",
		"metrics-port": "0",
		"health-port":  "0",
	}
	for name, def := range defaults {
		flag := cmd.Flags().Lookup(name)
		if assert.NotNil(t, flag, "Should have --%s flag", name) {
			assert.Equal(t, def, flag.DefValue, "--%s default", name)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 7878, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Server.Threads)
	assert.Equal(t, "./static", cfg.Server.StaticDir)
	assert.Equal(t, 0.0, cfg.Chat.MessageRate, "Rate limiting should be off by default")
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Health.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "test_config.yaml", `
server:
  host: 127.0.0.1
  port: 8080
  threads: 8
  static_dir: ./web
chat:
  message_rate: 2.5
  message_burst: 10
metrics:
  enabled: true
  port: 9100
health:
  enabled: true
  port: 50052
log:
  level: debug
`)

	cfg, err := loadConfig(configPath, true)
	require.NoError(t, err, "loadConfig should not return an error")

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Server.Threads)
	assert.Equal(t, "./web", cfg.Server.StaticDir)
	assert.Equal(t, 2.5, cfg.Chat.MessageRate)
	assert.Equal(t, 10, cfg.Chat.MessageBurst)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.True(t, cfg.Health.Enabled)
	assert.Equal(t, 50052, cfg.Health.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_PartialConfigKeepsDefaults(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "partial.yaml", `
server:
  threads: 2
`)

	cfg, err := loadConfig(configPath, true)
	require.NoError(t, err, "Partial config should parse successfully")
	assert.Equal(t, 2, cfg.Server.Threads, "Threads should be set")
	assert.Equal(t, 7878, cfg.Server.Port, "Unset fields should keep defaults")
	assert.Equal(t, "./static", cfg.Server.StaticDir)
}

func TestLoadConfig_MissingDefaultFile(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml", false)

	require.NoError(t, err, "A missing file at the default path falls back to defaults")
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml", true)

	assert.Error(t, err, "loadConfig should return an error for a named file that does not exist")
	assert.Nil(t, cfg, "Config should be nil on error")
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "invalid.yaml", `
server:
  threads: "not a number"
  invalid yaml structure
    broken indentation
`)

	cfg, err := loadConfig(configPath, true)

	assert.Error(t, err, "loadConfig should return an error for invalid YAML")
	assert.Nil(t, cfg, "Config should be nil on parse error")
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "empty.yaml", "")

	cfg, err := loadConfig(configPath, true)
	assert.NoError(t, err, "Empty YAML file should parse without error")
	assert.Equal(t, DefaultConfig(), cfg, "Empty config should keep defaults")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threads", func(c *Config) { c.Server.Threads = 0 }},
		{"negative port", func(c *Config) { c.Server.Port = -1 }},
		{"metrics port too large", func(c *Config) { c.Metrics.Port = 70000 }},
		{"negative rate", func(c *Config) { c.Chat.MessageRate = -1 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "warn", "error"} {
		_, err := parseLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := parseLevel("loud")
	assert.Error(t, err)
}

func TestConfigCommandPrintsYAML(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "c.yaml", "server:\n  port: 9999\n")

	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "-c", configPath})
	require.NoError(t, cmd.Execute())

	printed := DefaultConfig()
	require.NoError(t, yaml.Unmarshal(out.Bytes(), printed))
	assert.Equal(t, 9999, printed.Server.Port)
	assert.Equal(t, 4, printed.Server.Threads)
}

func TestConfigCommandMissingExplicitFile(t *testing.T) {
	cmd := BuildCLI()
	cmd.SetArgs([]string{"config", "--config", "/nonexistent/config.yaml"})

	err := cmd.Execute()
	assert.Error(t, err)
}

func TestServeFlagsOverrideConfig(t *testing.T) {
	cmd := buildServeCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--port", "8081", "--threads", "2", "--metrics-port", "9200"}))

	cfg := DefaultConfig()
	cfg.Server.Host = "10.0.0.1"
	applyServeFlags(cmd, cfg, serveFlags{port: 8081, threads: 2, metricsPort: 9200, host: "ignored"})

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Server.Threads)
	assert.Equal(t, "10.0.0.1", cfg.Server.Host, "Unset flags must not override config")
	assert.True(t, cfg.Metrics.Enabled, "--metrics-port enables metrics")
	assert.Equal(t, 9200, cfg.Metrics.Port)
	assert.False(t, cfg.Health.Enabled)
}

func TestServeMissingStaticDir(t *testing.T) {
	cmd := BuildCLI()
	cmd.SetArgs([]string{"serve", "--static", filepath.Join(t.TempDir(), "missing"), "--port", "0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "static")
}

func TestServeMissingRequiredPage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, static.LoginPage, "login")

	cmd := BuildCLI()
	cmd.SetArgs([]string{"serve", "--static", dir, "--port", "0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, static.ErrMissingFile)
}

func TestServeInvalidThreads(t *testing.T) {
	cmd := BuildCLI()
	cmd.SetArgs([]string{"serve", "--threads", "0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestRunServeStopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.StaticDir = staticDir(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 0
	cfg.Health.Enabled = true
	cfg.Health.Port = 0

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after the context was cancelled")
	}
}
