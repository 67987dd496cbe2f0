package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ycrawler/internal/config"
)

type fakeRunner struct {
	runErr error
	ran    bool
	closed bool
}

func (f *fakeRunner) Run(context.Context) error {
	f.ran = true
	return f.runErr
}

func (f *fakeRunner) Close() { f.closed = true }

func withFakeApp(t *testing.T, runner *fakeRunner) *config.Config {
	t.Helper()
	var captured config.Config
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (Runner, error) {
		captured = cfg
		return runner, nil
	}
	t.Cleanup(func() { newApp = orig })
	return &captured
}

func TestRootCommandBindsFlags(t *testing.T) {
	runner := &fakeRunner{}
	cfg := withFakeApp(t, runner)
	out := filepath.Join(t.TempDir(), "out")

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--once",
		"--interval", "250ms",
		"--max-requests", "3",
		"--base-url", "http://localhost:9000",
		"--ledger-policy", "on_success",
		out,
	})
	require.NoError(t, cmd.Execute())

	assert.True(t, runner.ran)
	assert.True(t, runner.closed)
	assert.Equal(t, out, cfg.Storage.OutputDir)
	assert.True(t, cfg.Crawler.Once)
	assert.Equal(t, 250*time.Millisecond, cfg.Crawler.PollInterval)
	assert.Equal(t, 3, cfg.Crawler.MaxRequests)
	assert.Equal(t, "http://localhost:9000", cfg.Crawler.BaseURL)
	assert.Equal(t, "on_success", cfg.Crawler.LedgerPolicy)
}

func TestRootCommandUsesDefaults(t *testing.T) {
	runner := &fakeRunner{}
	cfg := withFakeApp(t, runner)

	cmd := newRootCmd()
	cmd.SetArgs([]string{t.TempDir()})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, 5, cfg.Crawler.MaxRequests)
	assert.Equal(t, 5*time.Second, cfg.Crawler.PollInterval)
	assert.Equal(t, "https://news.ycombinator.com", cfg.Crawler.BaseURL)
	assert.False(t, cfg.Crawler.Once)
}

func TestRootCommandRequiresOutputDir(t *testing.T) {
	withFakeApp(t, &fakeRunner{})

	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}

func TestRootCommandPropagatesRunError(t *testing.T) {
	runner := &fakeRunner{runErr: errors.New("listing down")}
	withFakeApp(t, runner)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--once", t.TempDir()})
	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, runner.closed)
}
