package httpapi

// Result is the response envelope shared with the care front end:
// code 2000 on success, -1 on error; type 'success' | 'error'.
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

// Page is the result of a list endpoint. Items is never null.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func OkPage[T any](items []T) Result[Page[T]] {
	if items == nil {
		items = []T{}
	}
	return Ok(Page[T]{Items: items, Total: len(items)})
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}
