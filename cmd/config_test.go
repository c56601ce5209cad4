package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShow_MasksKeys(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.CRM.APIKey = "crm-very-secret"
	env.cfg.LLM.APIKey = "llm-very-secret"

	cmd := NewConfigCommand(env.deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"show"})
	require.NoError(t, cmd.Execute())

	shown := out.String()
	assert.Contains(t, shown, "# config file:")
	assert.Contains(t, shown, "base_url: https://crm.test")
	assert.Contains(t, shown, "crm-********...")
	assert.NotContains(t, shown, "very-secret")
	assert.NotContains(t, shown, "not ready to process")
}

func TestConfigShow_ReportsValidationProblems(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.CRM.BaseURL = ""

	cmd := NewConfigCommand(env.deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"show"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "not ready to process")
}
