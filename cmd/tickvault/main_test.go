package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickvault/tickvault/internal/store"
)

func newTestEngine(t *testing.T) *store.Engine {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	engine := store.NewEngine(store.Options{Logger: logger.WithField("component", "store")})
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestNewRootCmd_Metadata(t *testing.T) {
	cmd := newRootCmd()

	assert.Equal(t, "tickvault", cmd.Use)
	assert.Contains(t, cmd.Short, "Market Data")
	assert.Contains(t, cmd.Version, version)
	assert.Contains(t, cmd.Version, "commit")
}

func TestNewRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()

	stringFlags := map[string]string{
		"config":        "",
		"data-dir":      "",
		"log-level":     "info",
		"log-format":    "text",
		"target-url":    "",
		"status-listen": "127.0.0.1:8077",
	}

	for name, expected := range stringFlags {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, "flag %q should exist", name)
		assert.Equal(t, "string", flag.Value.Type(), "flag %q should be string type", name)
		assert.Equal(t, expected, flag.DefValue, "flag %q default", name)
	}

	headless := cmd.PersistentFlags().Lookup("headless")
	require.NotNil(t, headless)
	assert.Equal(t, "bool", headless.Value.Type())
	assert.Equal(t, "true", headless.DefValue)
}

func TestNewRootCmd_FlagParsing(t *testing.T) {
	getString := func(t *testing.T, cmd *cobra.Command, name string) string {
		t.Helper()
		v, err := cmd.PersistentFlags().GetString(name)
		require.NoError(t, err)
		return v
	}

	tests := []struct {
		name     string
		args     []string
		validate func(t *testing.T, cmd *cobra.Command)
	}{
		{
			name: "long flags",
			args: []string{"--config=/path/to/config", "--data-dir=/data", "--target-url=https://example.com/chart"},
			validate: func(t *testing.T, cmd *cobra.Command) {
				assert.Equal(t, "/path/to/config", getString(t, cmd, "config"))
				assert.Equal(t, "/data", getString(t, cmd, "data-dir"))
				assert.Equal(t, "https://example.com/chart", getString(t, cmd, "target-url"))
			},
		},
		{
			name: "short flags",
			args: []string{"-c", "/short/config", "-d", "/short/data"},
			validate: func(t *testing.T, cmd *cobra.Command) {
				assert.Equal(t, "/short/config", getString(t, cmd, "config"))
				assert.Equal(t, "/short/data", getString(t, cmd, "data-dir"))
			},
		},
		{
			name: "bool flag",
			args: []string{"--headless=false", "--status-listen=127.0.0.1:9000"},
			validate: func(t *testing.T, cmd *cobra.Command) {
				headless, err := cmd.PersistentFlags().GetBool("headless")
				require.NoError(t, err)
				assert.False(t, headless)
				assert.Equal(t, "127.0.0.1:9000", getString(t, cmd, "status-listen"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))
			tt.validate(t, cmd)
		})
	}
}

func TestNewRootCmd_HasCompactSubcommand(t *testing.T) {
	cmd := newRootCmd()

	var found bool
	for _, sub := range cmd.Commands() {
		if strings.HasPrefix(sub.Use, "compact") {
			found = true
		}
	}
	assert.True(t, found, "root command should register the compact subcommand")
}

func TestCompactCmd_RequiresArgs(t *testing.T) {
	cmd := newCompactCmd()
	err := cmd.Args(cmd, nil)
	assert.Error(t, err)
}

func TestCompactJournals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotes.jsonl")
	content := "{\"symbol\":\"BTCUSDT\",\"bid\":100}\n" +
		"{\"symbol\":\"ETHUSDT\",\"bid\":10}\n" +
		"{\"symbol\":\"BTCUSDT\",\"bid\":101}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	var buf bytes.Buffer
	err := compactJournals(newTestEngine(t), []string{path}, &buf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"PATH", "SCANNED", "KEPT", "REMOVED"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{path, "3", "2", "1"}, strings.Fields(lines[1]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	expected := "{\"symbol\":\"ETHUSDT\",\"bid\":10}\n{\"symbol\":\"BTCUSDT\",\"bid\":101}\n"
	assert.Equal(t, expected, string(data))
}

func TestCompactJournals_MissingFileIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.jsonl")

	var buf bytes.Buffer
	err := compactJournals(newTestEngine(t), []string{path}, &buf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{path, "0", "0", "0"}, strings.Fields(lines[1]))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "compacting a missing journal should not create it")
}

func TestCompactJournals_StopsOnFirstFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.jsonl")
	require.NoError(t, os.WriteFile(good, []byte("{\"symbol\":\"A\",\"bid\":1}\n{\"symbol\":\"A\",\"bid\":2}\n"), 0644))

	var buf bytes.Buffer
	// A directory is unreadable as a journal regardless of privileges.
	err := compactJournals(newTestEngine(t), []string{dir, good}, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), dir)

	data, readErr := os.ReadFile(good)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "\"bid\":1", "later journals should stay untouched after a failure")
}

func TestCompactCommand_Execute(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotes.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"symbol\":\"A\",\"bid\":1}\n{\"symbol\":\"A\",\"bid\":2}\n"), 0644))

	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"compact", "--log-level=error", path})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"symbol\":\"A\",\"bid\":2}\n", string(data))
}
