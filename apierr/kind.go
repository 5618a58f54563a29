package apierr

// Kind is the closed taxonomy of failures this client surfaces. Every raw
// transport or HTTP failure maps to exactly one Kind; unmapped cases fall to
// KindUnknown with the original message preserved.
type Kind string

const (
	// KindValidation covers 4xx responses carrying field-level errors.
	KindValidation Kind = "validation"
	// KindAuthRequired covers 401 responses after refresh was attempted or unavailable.
	KindAuthRequired Kind = "auth_required"
	// KindForbidden covers 403 responses.
	KindForbidden Kind = "forbidden"
	// KindNotFound covers 404 responses, including soft-deleted records.
	KindNotFound Kind = "not_found"
	// KindConflict covers 409 responses: optimistic-lock or uniqueness violations.
	KindConflict Kind = "conflict"
	// KindRateLimited covers 429 responses and carries the server retry-after hint.
	KindRateLimited Kind = "rate_limited"
	// KindServerError covers 5xx responses.
	KindServerError Kind = "server_error"
	// KindNetworkOffline covers requests that produced no response at all.
	KindNetworkOffline Kind = "network_offline"
	// KindTimeout covers requests that exceeded their deadline.
	KindTimeout Kind = "timeout"
	// KindQueuedOffline marks a mutation accepted into the offline queue, not yet sent.
	KindQueuedOffline Kind = "queued_offline"
	// KindMaxRetriesExceeded wraps the last error after the retry budget is spent.
	KindMaxRetriesExceeded Kind = "max_retries_exceeded"
	// KindCancelled marks a caller-cancelled request. Never retried, never shown.
	KindCancelled Kind = "cancelled"
	// KindUnknown is the fallback for anything that does not match the above.
	KindUnknown Kind = "unknown"
)

// defaultMessages provide the user-visible text when the server payload
// supplies none. Surfaced errors never expose raw transport messages.
var defaultMessages = map[Kind]string{
	KindValidation:         "The submitted data is invalid.",
	KindAuthRequired:       "Your session has expired. Please sign in again.",
	KindForbidden:          "You do not have permission to perform this action.",
	KindNotFound:           "The requested record could not be found.",
	KindConflict:           "The record was modified by someone else. Reload and try again.",
	KindRateLimited:        "Too many requests. Please wait a moment and retry.",
	KindServerError:        "The server encountered an error. Please try again later.",
	KindNetworkOffline:     "You appear to be offline. Check your connection.",
	KindTimeout:            "The request took too long to complete.",
	KindQueuedOffline:      "You are offline. The change was saved and will sync when you reconnect.",
	KindMaxRetriesExceeded: "The operation failed after several attempts.",
	KindCancelled:          "The request was cancelled.",
	KindUnknown:            "An unexpected error occurred.",
}

// DefaultMessage returns the kind-specific fallback message.
func DefaultMessage(k Kind) string {
	if msg, ok := defaultMessages[k]; ok {
		return msg
	}
	return defaultMessages[KindUnknown]
}
