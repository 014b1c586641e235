package types

// SuccessEnvelope wraps every successful response body.
type SuccessEnvelope struct {
	Success    bool            `json:"success"`
	Data       any             `json:"data,omitempty"`
	Message    string          `json:"message,omitempty"`
	Count      *int            `json:"count,omitempty"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope shares the success flag and message with SuccessEnvelope.
type ErrorEnvelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Error   APIError `json:"error"`
}

// PaginationMeta describes an offset/limit page.
type PaginationMeta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}
