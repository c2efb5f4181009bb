package llm

import "fmt"

// CredentialError indicates no usable API key could be resolved for the
// requested provider. It is surfaced before any upstream call is made.
type CredentialError struct {
	Provider string
}

func (e CredentialError) Error() string {
	return fmt.Sprintf("no credential available for provider %q", e.Provider)
}

// AuthError indicates the upstream provider rejected the API key.
type AuthError struct {
	Provider string
	Message  string
}

func (e AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s authentication failed: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s authentication failed", e.Provider)
}

// RateLimitError indicates the upstream provider returned a quota or
// rate-limit error.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

// UpstreamError is any other non-success response from the provider.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
}

func (e UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s upstream error (status %d): %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s upstream error (status %d)", e.Provider, e.Status)
}

// TransportError indicates the connection to the provider failed before the
// response was fully read: dial failures, resets, and read timeouts.
type TransportError struct {
	Provider string
	Err      error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("%s connection failed: %v", e.Provider, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

// MalformedError indicates the upstream response could not be decoded.
type MalformedError struct {
	Provider string
	Err      error
}

func (e MalformedError) Error() string {
	return fmt.Sprintf("%s returned a malformed response: %v", e.Provider, e.Err)
}

func (e MalformedError) Unwrap() error { return e.Err }

// EmptyCompletionError indicates the provider finished a completion with no
// content. LengthLimited distinguishes the actionable case where the model
// hit its output-token ceiling before producing any text.
type EmptyCompletionError struct {
	Provider   string
	StopReason string
}

// LengthLimited reports whether the empty completion was caused by the
// output-length ceiling.
func (e EmptyCompletionError) LengthLimited() bool {
	return e.StopReason == StopLength
}

func (e EmptyCompletionError) Error() string {
	if e.LengthLimited() {
		return fmt.Sprintf("%s returned no content because the output length limit was reached; try a model with a larger output window", e.Provider)
	}
	return fmt.Sprintf("%s returned an empty completion (stop reason %q)", e.Provider, e.StopReason)
}
