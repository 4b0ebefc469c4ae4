package models

// Envelope is the uniform success/data/error wrapper every public API
// operation returns.
type Envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError carries a machine-readable code alongside the message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK wraps data in a successful envelope.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Fail wraps an error code and message in a failed envelope.
func Fail(code, message string) Envelope {
	return Envelope{Success: false, Error: &APIError{Code: code, Message: message}}
}

// BatchFailure records one failed item of a batch operation. Batch operations
// return partial success rather than failing the whole batch.
type BatchFailure struct {
	Key     string `json:"key"` // address or transaction id
	Message string `json:"message"`
}

// ProfileBatch is the result of a multi-address profile lookup.
type ProfileBatch struct {
	Profiles []*UserProfile `json:"profiles"`
	Failures []BatchFailure `json:"failures,omitempty"`
}
