package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yolodet/internal/config"
)

// isolate runs the test in an empty directory with no user configuration.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Chdir(dir)
	return dir
}

// resetFlags restores every flag to its default so state does not leak between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	globalConfig = nil
	t.Cleanup(func() {
		globalConfig = nil
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "yolodet", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommandHelp(t *testing.T) {
	isolate(t)
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "YOLO object detection")
	assert.Contains(t, out, "Available Commands:")
}

func TestRootCommandSubcommands(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "annotate", "config", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	isolate(t)
	_, err := execute(t, "--no-such-flag")
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		want    slog.Level
	}{
		{"debug", false, slog.LevelDebug},
		{"info", false, slog.LevelInfo},
		{"warn", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"", false, slog.LevelInfo},
		{"error", true, slog.LevelDebug},
	}
	for _, tt := range tests {
		cfg := config.DefaultConfig()
		cfg.LogLevel = tt.level
		cfg.Verbose = tt.verbose
		assert.Equal(t, tt.want, parseLogLevel(&cfg), "level=%q verbose=%v", tt.level, tt.verbose)
	}
}

func TestPreRunRejectsInvalidConfig(t *testing.T) {
	isolate(t)
	_, err := execute(t, "--log-level", "loud", "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestPreRunMissingConfigFile(t *testing.T) {
	isolate(t)
	_, err := execute(t, "--config", "missing.yaml", "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "yolodet dev")
}
