package segments

// Result is the uniform envelope returned to callers that do not want Go
// errors: Success with Data, or an Error message with its Kind.
type Result[T any] struct {
	Success bool   `json:"success" yaml:"success"`
	Data    T      `json:"data,omitempty" yaml:"data,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
	Kind    Kind   `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// ResultOf wraps the return values of a Service method. Data is kept on
// failure so batch details stay visible.
func ResultOf[T any](v T, err error) Result[T] {
	if err != nil {
		return Result[T]{Data: v, Error: err.Error(), Kind: KindOf(err)}
	}
	return Result[T]{Success: true, Data: v}
}
