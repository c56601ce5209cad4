package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/emlsync/config"
	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
	"github.com/otherjamesbrown/emlsync/pkg/ingest/batch"
	"github.com/otherjamesbrown/emlsync/pkg/logging"
)

func executeProcess(t *testing.T, env *testEnv, args ...string) (string, error) {
	t.Helper()
	cmd := NewProcessCommand(env.deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewProcessCommand(t *testing.T) {
	cmd := NewProcessCommand(nil)

	require.NotNil(t, cmd)
	assert.Equal(t, "process <file.eml|dir>...", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	force := cmd.Flags().Lookup("force")
	require.NotNil(t, force, "process command should have --force flag")
	assert.Equal(t, "f", force.Shorthand)
	assert.Equal(t, "bool", force.Value.Type())

	assert.NotNil(t, cmd.Flags().Lookup("metrics-file"))
	assert.NotNil(t, cmd.Flags().Lookup("output"))
}

func TestProcessCommand_RequiresFiles(t *testing.T) {
	env := newTestEnv(t)
	_, err := executeProcess(t, env)
	assert.Error(t, err)
	assert.Zero(t, env.opened)
}

func TestProcessCommand_ProcessesThenSkips(t *testing.T) {
	env := newTestEnv(t)
	path := writeMessage(t, "renewal.eml", renewalMessage)

	out, err := executeProcess(t, env, path)
	require.NoError(t, err)
	assert.Contains(t, out, "processed")
	assert.Contains(t, out, "contacts=1/2")
	assert.Contains(t, out, "tasks=1")
	assert.Equal(t, []string{"bill@initech.test"}, env.crm.contacts)
	assert.Equal(t, 1, env.book.Len())
	assert.Equal(t, 1, env.oracle.calls)

	writes := env.crm.activities
	out, err = executeProcess(t, env, path)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "<renewal-42@initech.test>")
	assert.Equal(t, writes, env.crm.activities, "a skipped message must not write to the CRM")
	assert.Equal(t, 1, env.oracle.calls)
}

func TestProcessCommand_ForceReprocesses(t *testing.T) {
	env := newTestEnv(t)
	path := writeMessage(t, "renewal.eml", renewalMessage)

	_, err := executeProcess(t, env, path)
	require.NoError(t, err)

	out, err := executeProcess(t, env, "--force", path)
	require.NoError(t, err)
	assert.Contains(t, out, "processed")
	assert.Equal(t, 2, env.oracle.calls)
	assert.Equal(t, 1, env.book.Len())
}

func TestProcessCommand_InvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.CRM.APIKey = ""
	path := writeMessage(t, "renewal.eml", renewalMessage)

	_, err := executeProcess(t, env, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, pferrors.ErrValidation)
	assert.Zero(t, env.opened, "ledger should not be opened with an invalid config")
}

func TestProcessCommand_FailedFileDoesNotStopOthers(t *testing.T) {
	env := newTestEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.eml")
	good := writeMessage(t, "renewal.eml", renewalMessage)

	out, err := executeProcess(t, env, missing, good)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "processed")
	assert.Equal(t, 1, env.book.Len())
}

func TestProcessCommand_Directory(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "renewal.eml"), []byte(renewalMessage), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not mail"), 0600))

	out, err := executeProcess(t, env, dir, filepath.Join(dir, "renewal.eml"))
	require.NoError(t, err)
	assert.Equal(t, 1, env.oracle.calls, "repeated paths run once")
	assert.NotContains(t, out, "readme.txt")
	assert.Equal(t, 1, env.book.Len())
}

func TestProcessCommand_HaltedWhenOnlyInternal(t *testing.T) {
	env := newTestEnv(t)
	path := writeMessage(t, "internal.eml", "Message-ID: <standup@acme.test>\r\n"+
		"From: Pat Ops <ops@acme.test>\r\n"+
		"To: Lee Dev <lee@acme.test>\r\n"+
		"Subject: Standup\r\n\r\nNotes attached.\r\n")

	out, err := executeProcess(t, env, path)
	require.NoError(t, err)
	assert.Contains(t, out, "halted")
	assert.Zero(t, env.crm.activities)
	assert.Zero(t, env.book.Len())
}

func TestProcessCommand_JSONOutputAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	path := writeMessage(t, "renewal.eml", renewalMessage)
	metrics := filepath.Join(t.TempDir(), "emlsync.prom")

	out, err := executeProcess(t, env, "-o", "json", "--metrics-file", metrics, path)
	require.NoError(t, err)

	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, statusProcessed, results[0].Status)
	assert.Equal(t, "<renewal-42@initech.test>", results[0].MessageID)
	assert.Equal(t, 1, results[0].Tasks)
	assert.NotEmpty(t, results[0].RunID)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "emlsync_runs_total")
}

func TestProcessCommand_InvalidOutput(t *testing.T) {
	env := newTestEnv(t)
	path := writeMessage(t, "renewal.eml", renewalMessage)

	_, err := executeProcess(t, env, "-o", "xml", path)
	assert.ErrorIs(t, err, pferrors.ErrValidation)
}

func TestProcessCommand_LogsBatchProgress(t *testing.T) {
	env := newTestEnv(t)
	var logs bytes.Buffer
	env.deps.NewLogger = func(*config.Config) logging.Logger {
		return logging.NewLogger(&logging.Config{Level: logging.LevelDebug, JSONFormat: true, Output: &logs})
	}
	missing := filepath.Join(t.TempDir(), "missing.eml")
	good := writeMessage(t, "renewal.eml", renewalMessage)

	_, err := executeProcess(t, env, good, missing)
	require.Error(t, err)

	out := logs.String()
	assert.Equal(t, 2, strings.Count(out, `"message":"Batch progress"`))
	assert.Contains(t, out, `"done":2`)
	assert.Contains(t, out, `"percent":100`)
	assert.Contains(t, out, `"message":"Batch complete"`)
	assert.Contains(t, out, `"success":false`)
}

func TestProgressLogger(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.NewLogger(&logging.Config{Level: logging.LevelDebug, JSONFormat: true, Output: &logs})

	p := batch.NewProgress(1)
	p.SetOnUpdate(progressLogger(logger))
	p.Start()
	p.SetCurrentFile("a.eml")
	p.Record(batch.StatusProcessed)
	p.Complete(true)

	out := logs.String()
	assert.Equal(t, 1, strings.Count(out, `"message":"Batch progress"`))
	assert.Contains(t, out, `"eta_seconds"`)
	assert.Contains(t, out, `"success":true`)
}

func TestSummarize(t *testing.T) {
	r := summarize("a.eml", nil, assert.AnError)
	assert.Equal(t, statusFailed, r.Status)
	assert.Equal(t, assert.AnError.Error(), r.Error)

	var out bytes.Buffer
	printResult(&out, r)
	assert.Contains(t, out.String(), "a.eml")
}
