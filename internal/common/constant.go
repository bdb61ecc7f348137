package common

// RequestIDHeaderName is the HTTP header carrying the per-request id on
// outbound store requests.
const RequestIDHeaderName = "X-Request-ID"

// Metadata keys of the local key-value store.
const (
	MetadataKeySession    = "session"
	MetadataKeySessionKey = "session_key"
)
