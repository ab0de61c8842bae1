package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/engagement"
	"github.com/blackmichael/social-engage/internal/store"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "engage", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"engage", "amplify", "flush", "monitor", "post", "watch", "status"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	for flag, def := range map[string]string{"format": "text", "log-format": "text", "env-file": ".env"} {
		f := cmd.PersistentFlags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, def, f.DefValue, flag)
	}
}

func TestRunFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := map[string]string{"engage": "48h0m0s", "amplify": "12h0m0s"}
	for name, window := range tests {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, window, sub.Flags().Lookup("window").DefValue, name)
		assert.Equal(t, "-1", sub.Flags().Lookup("target").DefValue, name)
		assert.Equal(t, "both", sub.Flags().Lookup("platform").DefValue, name)
		assert.NotNil(t, sub.Flags().Lookup("dry-run"), name)
		assert.NotNil(t, sub.Flags().Lookup("force"), name)
	}
}

func TestRunFlags_Options(t *testing.T) {
	f := &runFlags{target: 2, platform: "x", dryRun: true, window: time.Hour}
	opts, err := f.options()
	require.NoError(t, err)
	assert.Equal(t, engagement.RunOptions{Target: 2, Platforms: []domain.Platform{domain.PlatformX}, DryRun: true, Window: time.Hour}, opts)

	f.platform = "mastodon"
	_, err = f.options()
	assert.Error(t, err)
}

// isolate points every configuration variable at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, k := range []string{
		"BSKY_HANDLE", "BSKY_APP_PASSWORD", "X_ACCESS_TOKEN", "X_REFRESH_TOKEN",
		"STATE_BACKEND", "DATABASE_URL", "WEBHOOK_URL", "SLACK_WEBHOOK_URL", "TARGETS_FILE",
		"RETENTION", "PENDING_MAX_RETRIES", "PENDING_BACKOFF", "PORT", "HTTP_TIMEOUT", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("STATE_PATH", filepath.Join(dir, "state.json"))
	return dir
}

func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, logs bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(dir, "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	dir := isolate(t)
	st := domain.NewState()
	st.Mark("bsky:1", time.Now(), "", domain.OutcomeDone)
	st.Enqueue(domain.PendingAction{ID: "x:2:reply", Platform: domain.PlatformX, Kind: domain.PendingReply})
	require.NoError(t, store.NewFileStore(filepath.Join(dir, "state.json")).Save(t.Context(), st))

	out, err := execute(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "records: 1")
	assert.Contains(t, out, "pending: 1")
	assert.Contains(t, out, "x:2:reply")

	out, err = execute(t, dir, "--format", "json", "status")
	require.NoError(t, err)
	var rep engagement.StatusReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.Records)
}

func TestEngageWithoutCredentials(t *testing.T) {
	dir := isolate(t)

	_, err := execute(t, dir, "engage")
	require.ErrorIs(t, err, engagement.ErrNoPlatforms)

	_, err = os.Stat(filepath.Join(dir, "state.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestPostRequiresText(t *testing.T) {
	dir := isolate(t)

	_, err := execute(t, dir, "post")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--text")
}

func TestInvalidFormat(t *testing.T) {
	dir := isolate(t)

	_, err := execute(t, dir, "--format", "yaml", "status")
	require.Error(t, err)
}

func TestWatchRequiresBluesky(t *testing.T) {
	dir := isolate(t)

	_, err := execute(t, dir, "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bluesky credentials")
}

func TestMonitorRejectsBadSince(t *testing.T) {
	dir := isolate(t)

	_, err := execute(t, dir, "monitor", "--since", "2w")
	require.Error(t, err)
}
