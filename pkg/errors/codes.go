package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Severity        Severity
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrTimeout: {
		Code:            ErrTimeout,
		Severity:        SeverityDegraded,
		Retryable:       true,
		Description:     "Remote call exceeded its time limit",
		SuggestedAction: "Raise crm.timeout, llm.timeout or enrichment.timeout in config.yaml",
	},
	ErrRateLimit: {
		Code:            ErrRateLimit,
		Severity:        SeverityDegraded,
		Retryable:       true,
		Description:     "Remote API rate limit exceeded",
		SuggestedAction: "Wait and re-run with --force, or check the provider quota",
	},
	ErrServiceUnavailable: {
		Code:            ErrServiceUnavailable,
		Severity:        SeverityDegraded,
		Retryable:       true,
		Description:     "CRM, model or search service unavailable",
		SuggestedAction: "Check crm.base_url / llm.base_url: emlsync config show",
	},
	ErrContextCancelled: {
		Code:            ErrContextCancelled,
		Severity:        SeverityFatal,
		Retryable:       false,
		Description:     "Run cancelled by user or system",
		SuggestedAction: "Re-run the command; the message was not marked processed",
	},
	ErrUnauthorizedAPI: {
		Code:            ErrUnauthorizedAPI,
		Severity:        SeverityDegraded,
		Retryable:       false,
		Description:     "Remote API rejected the credentials",
		SuggestedAction: "Store a valid key: emlsync auth set-key, or pass --api-key",
	},
	ErrParseError: {
		Code:            ErrParseError,
		Severity:        SeverityFatal,
		Retryable:       false,
		Description:     "Mail file could not be read or parsed",
		SuggestedAction: "Check the file is a complete RFC 5322 message",
	},
	ErrEmptyContent: {
		Code:            ErrEmptyContent,
		Severity:        SeverityDegraded,
		Retryable:       false,
		Description:     "Message has no usable body text",
		SuggestedAction: "No action needed; notes are created without analysis",
	},
	ErrOracleFailed: {
		Code:            ErrOracleFailed,
		Severity:        SeverityDegraded,
		Retryable:       true,
		Description:     "Language model analysis failed or returned invalid JSON",
		SuggestedAction: "Check llm.base_url and llm.model, then re-run with --force",
	},
	ErrEnrichmentFailed: {
		Code:            ErrEnrichmentFailed,
		Severity:        SeverityDegraded,
		Retryable:       true,
		Description:     "Company enrichment lookup failed",
		SuggestedAction: "No action needed; company facts from the message are used as-is",
	},
	ErrUploadFailed: {
		Code:            ErrUploadFailed,
		Severity:        SeverityDegraded,
		Retryable:       true,
		Description:     "Original message upload to the CRM failed",
		SuggestedAction: "Notes were created without the attachment; check crm.upload_timeout",
	},
	ErrResolutionFailed: {
		Code:            ErrResolutionFailed,
		Severity:        SeverityDegraded,
		Retryable:       false,
		Description:     "Participant could not be resolved to a CRM contact",
		SuggestedAction: "Inspect the CRM response in debug logs: emlsync process -v",
	},
	ErrPublicDomain: {
		Code:            ErrPublicDomain,
		Severity:        SeverityDegraded,
		Retryable:       false,
		Description:     "Consumer mailbox domain; no company is created",
		SuggestedAction: "No action needed",
	},
	ErrFollowUpFailed: {
		Code:            ErrFollowUpFailed,
		Severity:        SeverityDegraded,
		Retryable:       false,
		Description:     "Task or deal creation failed",
		SuggestedAction: "Create the follow-up manually or re-run with --force",
	},
	ErrNoParticipants: {
		Code:            ErrNoParticipants,
		Severity:        SeverityHalt,
		Retryable:       false,
		Description:     "No external participant could be resolved",
		SuggestedAction: "Check internal_domains; nothing was written to the CRM",
	},
	ErrLedgerFailed: {
		Code:            ErrLedgerFailed,
		Severity:        SeverityFatal,
		Retryable:       true,
		Description:     "Idempotency ledger could not be read or written",
		SuggestedAction: "Check ledger.driver and ledger.dsn, then run emlsync ledger mark <message-id>",
	},
	ErrProcessingError: {
		Code:            ErrProcessingError,
		Severity:        SeverityDegraded,
		Retryable:       false,
		Description:     "Unclassified processing error",
		SuggestedAction: "Re-run with -v and inspect the logs",
	},
}

// SeverityOf returns the registered severity for code, degraded when unknown.
func SeverityOf(code ErrorCode) Severity {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Severity
	}
	return SeverityDegraded
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Re-run with -v and inspect the logs"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
