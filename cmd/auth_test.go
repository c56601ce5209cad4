package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/emlsync/credentials"
)

func executeAuth(t *testing.T, env *testEnv, args ...string) (string, error) {
	t.Helper()
	cmd := NewAuthCommand(env.deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewAuthCommand(t *testing.T) {
	cmd := NewAuthCommand(nil)

	require.NotNil(t, cmd)
	assert.Equal(t, "auth", cmd.Use)

	setKey, _, err := cmd.Find([]string{"set-key"})
	require.NoError(t, err)
	assert.NotNil(t, setKey.Flags().Lookup("key"))

	_, _, err = cmd.Find([]string{"clear-key"})
	require.NoError(t, err)
}

func TestAuthSetKey_FromFlag(t *testing.T) {
	env := newTestEnv(t)

	out, err := executeAuth(t, env, "set-key", "llm", "--key", "sk-llm-abcdef123")
	require.NoError(t, err)
	assert.Equal(t, "sk-llm-abcdef123", env.keyring.keys[credentials.AccountLLM])
	assert.Contains(t, out, "sk-l********...")
	assert.NotContains(t, out, "sk-llm-abcdef123")
}

func TestAuthSetKey_Prompted(t *testing.T) {
	env := newTestEnv(t)

	_, err := executeAuth(t, env, "set-key")
	require.NoError(t, err)
	assert.Equal(t, "prompted-key-123456", env.keyring.keys[credentials.AccountCRM])
}

func TestAuthSetKey_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	_, err := executeAuth(t, env, "set-key", "smtp", "--key", "x")
	assert.ErrorIs(t, err, credentials.ErrUnknownAccount)
	assert.Empty(t, env.keyring.keys)
}

func TestAuthSetKey_KeyringError(t *testing.T) {
	env := newTestEnv(t)
	env.keyring.err = credentials.ErrKeyringUnavailable

	_, err := executeAuth(t, env, "set-key", "--key", "abc")
	assert.True(t, errors.Is(err, credentials.ErrKeyringUnavailable))
}

func TestAuthClearKey(t *testing.T) {
	env := newTestEnv(t)
	env.keyring.keys[credentials.AccountCRM] = "stored"

	out, err := executeAuth(t, env, "clear-key", "crm")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed crm-api-key")
	assert.Empty(t, env.keyring.keys)

	out, err = executeAuth(t, env, "clear-key")
	require.NoError(t, err)
	assert.Contains(t, out, "No key stored")
}

func TestAuthStatus(t *testing.T) {
	env := newTestEnv(t)
	env.keyring.keys[credentials.AccountCRM] = "crm-secret-value"

	out, err := executeAuth(t, env, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "crm-********...")
	assert.Contains(t, out, "(not set)")
	assert.NotContains(t, out, "crm-secret-value")
}
