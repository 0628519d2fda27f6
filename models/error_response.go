package models

// ErrorResponse is the flat error shape used by middleware rejections
// (auth, rate limiting) where the full APIResponse envelope is overkill.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
