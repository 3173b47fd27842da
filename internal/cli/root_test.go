package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jokeline/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jokeline.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "jokeline", cmd.Use)

	for _, name := range []string{"serve", "broadcast", "check-config"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	cfgFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, "c", cfgFlag.Shorthand)
}

func TestInvalidFormatRejected(t *testing.T) {
	_, err := execute(t, "check-config", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestWriteScheduleAcrossWeekendAndDST(t *testing.T) {
	cfg := config.Default()
	loc, err := time.LoadLocation("US/Pacific")
	require.NoError(t, err)
	// Friday noon, two days before the spring-forward switch
	from := time.Date(2024, time.March, 8, 12, 0, 0, 0, loc)

	var out bytes.Buffer
	require.NoError(t, writeSchedule(&out, "json", cfg, from, 2))

	var view scheduleView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.Equal(t, "0 18 * * 1-5", view.Spec)
	assert.Equal(t, "US/Pacific", view.Timezone)
	assert.Equal(t, []string{"2024-03-08T18:00:00-08:00", "2024-03-11T18:00:00-07:00"}, view.Next)
}

func TestCheckConfigCommand(t *testing.T) {
	path := writeConfig(t, `{"messaging": {"dry_run": true}, "schedule": {"spec": "@every 2h"}}`)
	out, err := execute(t, "check-config", "--config", path, "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")
	assert.Contains(t, out, `"@every 2h"`)
}

func TestCheckConfigCommandRejectsBadSchedule(t *testing.T) {
	path := writeConfig(t, `{"messaging": {"dry_run": true}, "schedule": {"time_of_day": "6pm"}}`)
	_, err := execute(t, "check-config", "--config", path)
	require.Error(t, err)
}

func TestBroadcastCommandDryRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"R7UfaahVfFd","joke":"My dog used to chase people on a bike a lot.","status":200}`))
	}))
	defer srv.Close()

	path := writeConfig(t, `{
  "logging": {"level": "error"},
  "storage": {"driver": "memory"},
  "messaging": {"dry_run": true},
  "content": {"source_url": "`+srv.URL+`"}
}`)
	out, err := execute(t, "broadcast", "--config", path, "--format", "json")
	require.NoError(t, err)

	var view reportView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "R7UfaahVfFd", view.ContentID)
	assert.Equal(t, 0, view.Sent)
	assert.Empty(t, view.Outcomes)
	assert.NotEmpty(t, view.CycleID)
}
