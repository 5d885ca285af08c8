package buffer_pool

import "errors"

var (
	// 页面错误
	ErrPageNotFound  = errors.New("page not found in buffer pool")
	ErrPageCorrupted = errors.New("page content is corrupted")
	ErrPageFreed     = errors.New("page has been freed")
	ErrNoSuchSpace   = errors.New("tablespace not attached to buffer pool")

	// 缓冲池错误
	ErrBufferPoolFull = errors.New("buffer pool is full")
	ErrInvalidConfig  = errors.New("invalid buffer pool configuration")
	ErrIOError        = errors.New("IO error occurred")

	// 刷新错误
	ErrFlushFailed = errors.New("failed to flush dirty page")
)

// BufferPoolError 缓冲池错误结构
//
// Kind is the sentinel the error classifies as; Err is the underlying cause
// and stays reachable through errors.Is and errors.As.
type BufferPoolError struct {
	Op   string // 操作名称
	Kind error
	Err  error // 原始错误
}

func (e *BufferPoolError) Error() string {
	if e.Err == nil {
		return "<nil>"
	}
	if e.Kind != nil && e.Kind != e.Err {
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *BufferPoolError) Unwrap() error {
	return e.Err
}

func (e *BufferPoolError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// NewError 创建新的缓冲池错误
func NewError(op string, kind, err error) error {
	return &BufferPoolError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsNotFound 检查是否为页面未找到错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPageNotFound)
}

// IsCorrupted 检查是否为页面损坏错误
func IsCorrupted(err error) bool {
	return errors.Is(err, ErrPageCorrupted)
}

// IsBufferPoolFull 检查是否为缓冲池已满错误
func IsBufferPoolFull(err error) bool {
	return errors.Is(err, ErrBufferPoolFull)
}

// IsIOError 检查是否为IO错误
func IsIOError(err error) bool {
	return errors.Is(err, ErrIOError)
}
