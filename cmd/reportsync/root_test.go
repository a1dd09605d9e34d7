package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbakir04-create/teachers-report/backend/internal/uuid"
)

const reportJSON = `{
  "teacher_id": "t-42",
  "date": "2026-03-02",
  "lessons": [{"subject": "Math", "class": "5A", "period": 1, "topic": "Fractions"}],
  "notes": "quiz next week"
}`

type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// execute runs the root command against a private data directory.
func execute(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--data-dir", dataDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(reportJSON), 0644))
	return path
}

func decode(t *testing.T, out string) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"serve", "save", "pending", "count", "drain", "dead-letters", "requeue", "migrate", "setting"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"config", "env-file", "data-dir", "format", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, t.TempDir(), "--format", "xml", "count")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestSave_OfflineQueuesLocally(t *testing.T) {
	dataDir := t.TempDir()

	out, err := execute(t, dataDir, "--format", "json", "save", "--file", writeReport(t))
	require.NoError(t, err)

	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	var result struct {
		Outcome string `json:"outcome"`
		ItemID  string `json:"item_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, "saved_locally", result.Outcome)
	assert.NotEmpty(t, result.ItemID)

	out, err = execute(t, dataDir, "count")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))

	out, err = execute(t, dataDir, "pending")
	require.NoError(t, err)
	assert.Contains(t, out, result.ItemID)
	assert.Contains(t, out, "append")
}

func TestSave_MissingFileIsCommandError(t *testing.T) {
	_, err := execute(t, t.TempDir(), "save", "--file", filepath.Join(t.TempDir(), "missing.json"))

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSave_InvalidReportFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"date":"2026-03-02"}`), 0644))

	out, err := execute(t, t.TempDir(), "--format", "json", "save", "--file", path)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestDrain_OfflineIsNoop(t *testing.T) {
	dataDir := t.TempDir()
	_, err := execute(t, dataDir, "save", "--file", writeReport(t))
	require.NoError(t, err)

	out, err := execute(t, dataDir, "drain")
	require.NoError(t, err)
	assert.Contains(t, out, "Offline")

	out, err = execute(t, dataDir, "count")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))
}

func TestDrain_ForceDelivers(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()
	t.Setenv("REPORTS_REMOTE_ENDPOINT", server.URL)

	dataDir := t.TempDir()
	_, err := execute(t, dataDir, "save", "--file", writeReport(t))
	require.NoError(t, err)

	out, err := execute(t, dataDir, "--format", "yaml", "drain", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "status: ok")
	assert.Contains(t, out, "synced: 1")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	out, err = execute(t, dataDir, "count")
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out))
}

func TestDeadLettersAndRequeue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":false,"error":"sheet locked"}`))
	}))
	defer server.Close()
	t.Setenv("REPORTS_REMOTE_ENDPOINT", server.URL)
	t.Setenv("REPORTS_SYNC_MAX_RETRIES", "1")

	dataDir := t.TempDir()
	_, err := execute(t, dataDir, "save", "--file", writeReport(t))
	require.NoError(t, err)
	_, err = execute(t, dataDir, "drain", "--force")
	require.NoError(t, err)

	out, err := execute(t, dataDir, "--format", "json", "dead-letters")
	require.NoError(t, err)
	var items []struct {
		ID        string `json:"id"`
		LastError string `json:"last_error"`
	}
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &items))
	require.Len(t, items, 1)
	assert.Contains(t, items[0].LastError, "sheet locked")

	out, err = execute(t, dataDir, "requeue", items[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Requeued")

	out, err = execute(t, dataDir, "count")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))
}

func TestRequeue_UnknownID(t *testing.T) {
	_, err := execute(t, t.TempDir(), "requeue", uuid.NewTimeOrdered())

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRequeue_MalformedID(t *testing.T) {
	_, err := execute(t, t.TempDir(), "requeue", "does-not-exist")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMigrate_ReportsVersion(t *testing.T) {
	out, err := execute(t, t.TempDir(), "--format", "json", "migrate")
	require.NoError(t, err)

	var status migrateStatus
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &status))
	assert.Greater(t, status.Version, 0)
}

func TestMigrate_Down(t *testing.T) {
	dataDir := t.TempDir()
	_, err := execute(t, dataDir, "migrate")
	require.NoError(t, err)

	out, err := execute(t, dataDir, "--format", "json", "migrate", "--down")
	require.NoError(t, err)

	var status migrateStatus
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &status))
	assert.Equal(t, 0, status.Version)

	_, err = execute(t, dataDir, "migrate", "--down")
	require.Error(t, err, "nothing left to roll back")
}

func TestSetting_SecretRoundTrip(t *testing.T) {
	t.Setenv("REPORTS_SECRETS_PASSPHRASE", "correct horse")
	dataDir := t.TempDir()

	_, err := execute(t, dataDir, "setting", "set", "remote.auth_token", "s3cret", "--secret")
	require.NoError(t, err)

	out, err := execute(t, dataDir, "setting", "get", "remote.auth_token")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", strings.TrimSpace(out))
}

func TestSetting_SecretWithoutPassphraseFails(t *testing.T) {
	_, err := execute(t, t.TempDir(), "setting", "set", "remote.auth_token", "s3cret", "--secret")

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.True(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat("xml"))
}
