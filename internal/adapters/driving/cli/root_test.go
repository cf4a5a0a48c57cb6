package cli

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ingest", "search", "ask", "list", "show", "delete", "serve", "mcp", "watch", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestLoadApp_WithoutBootstrap(t *testing.T) {
	useApp(t, nil)
	old := bootstrap
	bootstrap = nil
	defer func() { bootstrap = old }()

	_, err := execute(t, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application not configured")
}

func TestLoadApp_BootstrapsOnceWithConfigPath(t *testing.T) {
	useApp(t, nil)
	calls := 0
	var gotPath string
	old := bootstrap
	bootstrap = func(_ context.Context, path string) (*App, func(), error) {
		calls++
		gotPath = path
		return &App{Ingestion: &mockIngestionService{}}, func() {}, nil
	}
	defer func() { bootstrap = old }()

	_, err := execute(t, "--config", "/tmp/custom.toml", "list")
	require.NoError(t, err)

	_, err = loadApp(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "/tmp/custom.toml", gotPath)
}

func TestExecute_RunsCleanup(t *testing.T) {
	app, appErr, appCleanup = nil, nil, nil
	appOnce = sync.Once{}
	defer func() {
		app, appErr, appCleanup = nil, nil, nil
		appOnce = sync.Once{}
		rootCmd.SetArgs(nil)
		resetFlags()
	}()

	cleaned := false
	rootCmd.SetArgs([]string{"list"})
	err := Execute(context.Background(), Options{
		Version: "1.2.3",
		Bootstrap: func(context.Context, string) (*App, func(), error) {
			return &App{Ingestion: &mockIngestionService{}}, func() { cleaned = true }, nil
		},
	})

	require.NoError(t, err)
	assert.True(t, cleaned)
	assert.Equal(t, "1.2.3", version)
	version = "dev"
}

func TestServiceNotConfigured(t *testing.T) {
	useApp(t, &App{})

	_, err := execute(t, "search", "leave")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query service not configured")

	_, err = execute(t, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingestion service not configured")
}
