package agent

import (
	"errors"
	"strings"
)

// Sentinel errors callers can test with errors.Is to choose an HTTP
// status or exit code.
var (
	// ErrRateLimited means the model provider kept refusing the call
	// for quota reasons after every retry attempt.
	ErrRateLimited = errors.New("model rate limited")

	// ErrAuthFailed means the provider rejected the credentials.
	// Retrying cannot help.
	ErrAuthFailed = errors.New("model authentication failed")

	// ErrAgentFailed covers every other conversation failure.
	ErrAgentFailed = errors.New("agent failed")
)

// rateLimitPatterns are the substrings provider SDKs put in quota
// errors. Matched case-insensitively because Genkit does not expose
// typed errors for these failures.
var rateLimitPatterns = []string{
	"rate limit",
	"quota",
	"429",
	"resource_exhausted",
	"too many requests",
}

// authPatterns mark credential failures that must not be retried.
var authPatterns = []string{
	"401",
	"403",
	"api key",
	"permission_denied",
	"unauthenticated",
	"unauthorized",
}

func isRateLimited(err error) bool {
	return containsAny(err, rateLimitPatterns)
}

func isAuthFailure(err error) bool {
	return containsAny(err, authPatterns)
}

func containsAny(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
