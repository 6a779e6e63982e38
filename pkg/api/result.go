package api

// Result is the uniform response envelope returned to API callers.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK wraps data in a successful result.
func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// OKList wraps a list and its length in a successful result.
func OKList(data any, count int) Result {
	return Result{Success: true, Data: data, Count: &count}
}

// Fail wraps err in a failed result.
func Fail(err error) Result {
	return Result{Success: false, Error: err.Error()}
}
