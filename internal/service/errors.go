package service

// DetailedError 在哨兵错误之外携带给客户端的上下文，例如当前进度与门槛、已有分数
type DetailedError struct {
	Err     error
	Details map[string]interface{}
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

func withDetails(err error, details map[string]interface{}) error {
	return &DetailedError{Err: err, Details: details}
}
