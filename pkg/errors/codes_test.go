package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allCodes = []ErrorCode{
	ErrTimeout,
	ErrRateLimit,
	ErrServiceUnavailable,
	ErrContextCancelled,
	ErrUnauthorizedAPI,
	ErrParseError,
	ErrEmptyContent,
	ErrOracleFailed,
	ErrEnrichmentFailed,
	ErrUploadFailed,
	ErrResolutionFailed,
	ErrPublicDomain,
	ErrFollowUpFailed,
	ErrNoParticipants,
	ErrLedgerFailed,
	ErrProcessingError,
}

func TestErrorCodeRegistry_Completeness(t *testing.T) {
	assert.Len(t, ErrorCodeRegistry, len(allCodes))

	for _, code := range allCodes {
		t.Run(string(code), func(t *testing.T) {
			info, ok := ErrorCodeRegistry[code]
			assert.True(t, ok, "ErrorCode %s should be in registry", code)
			assert.Equal(t, code, info.Code, "Registry entry should have matching code")
			assert.NotEmpty(t, info.Description)
			assert.NotEmpty(t, info.SuggestedAction)
			assert.Contains(t, []Severity{SeverityFatal, SeverityDegraded, SeverityHalt}, info.Severity)
		})
	}
}

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want Severity
	}{
		{ErrParseError, SeverityFatal},
		{ErrLedgerFailed, SeverityFatal},
		{ErrNoParticipants, SeverityHalt},
		{ErrOracleFailed, SeverityDegraded},
		{ErrUploadFailed, SeverityDegraded},
		{ErrResolutionFailed, SeverityDegraded},
		{"unknown_code", SeverityDegraded},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityOf(tt.code))
		})
	}
}

func TestIsRetryable_ErrorCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected bool
	}{
		{ErrTimeout, true},
		{ErrRateLimit, true},
		{ErrServiceUnavailable, true},
		{ErrOracleFailed, true},
		{ErrContextCancelled, false},
		{ErrParseError, false},
		{ErrNoParticipants, false},
		{ErrPublicDomain, false},
		{"unknown_code", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.code))
		})
	}
}

func TestGetSuggestedAction(t *testing.T) {
	for code := range ErrorCodeRegistry {
		action := GetSuggestedAction(code)
		assert.True(t, len(action) > 10, "Action for %s should be meaningful (>10 chars)", code)
		assert.NotContains(t, action, "might", "Action for %s should be concrete", code)
	}

	assert.Contains(t, GetSuggestedAction("unknown_code"), "logs")
}

func TestGetDescription(t *testing.T) {
	for code := range ErrorCodeRegistry {
		assert.NotEmpty(t, GetDescription(code), "Code %s should have a description", code)
	}

	assert.Equal(t, "Unknown error", GetDescription("unknown_code"))
}
