package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 是 keeper 内部统一使用的错误码。
type Code string

// Severity 表示错误的严重程度，会写入日志与事件。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 描述错误码的默认行为。
// Fatal 为 true 的错误只会出现在启动阶段，进程应直接退出。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
	Fatal     bool
}

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInvalidConfig   Code = "INVALID_CONFIG"
	CodeKeyMaterial     Code = "KEY_MATERIAL"
	CodeChainRead       Code = "CHAIN_READ_FAILED"
	CodeSubmission      Code = "TX_SUBMISSION_FAILED"
	CodeReceiptTimeout  Code = "TX_RECEIPT_TIMEOUT"
	CodeReverted        Code = "TX_REVERTED"
	CodeStorageFailure  Code = "STORAGE_FAILURE"
	CodePublishFailure  Code = "PUBLISH_FAILURE"
	CodeCancelled       Code = "CANCELLED"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Message:  "unknown error",
			Severity: SeverityCritical,
			Alert:    true,
		},
		CodeInvalidArgument: {
			Message:  "invalid argument",
			Severity: SeverityInfo,
		},
		CodeInvalidConfig: {
			Message:  "invalid configuration",
			Severity: SeverityCritical,
			Alert:    true,
			Fatal:    true,
		},
		CodeKeyMaterial: {
			Message:  "key material unavailable",
			Severity: SeverityCritical,
			Alert:    true,
			Fatal:    true,
		},
		CodeChainRead: {
			Message:   "chain read failed",
			Severity:  SeverityWarning,
			Retryable: true,
		},
		CodeSubmission: {
			Message:   "transaction submission failed",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     true,
		},
		CodeReceiptTimeout: {
			Message:   "transaction receipt not observed in time",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     true,
		},
		CodeReverted: {
			Message:   "transaction reverted",
			Severity:  SeverityCritical,
			Retryable: true,
			Alert:     true,
		},
		CodeStorageFailure: {
			Message:   "storage failure",
			Severity:  SeverityWarning,
			Retryable: true,
		},
		CodePublishFailure: {
			Message:   "event publish failed",
			Severity:  SeverityWarning,
			Retryable: true,
		},
		CodeCancelled: {
			Message:  "operation cancelled",
			Severity: SeverityInfo,
		},
	}
)

// Register 允许其他包在 init 阶段补充错误码。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码的属性，未注册时回退到 UNKNOWN。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是 keeper 内统一的错误类型。
type Error struct {
	code      Code
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool
	severity  *Severity
}

// Option 用于定制单个错误实例。
type Option func(*Error)

// WithMetadata 附加键值信息，例如交易哈希或轮次。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRetryable 覆盖错误码默认的可重试属性。
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建错误。message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 用统一错误类型包裹底层错误。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 返回底层错误。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，便于 errors.Is(err, ErrXxx)。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误描述。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Retryable 判断错误是否会在下一轮询周期自然重试。
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return AttributesOf(e.code).Retryable
}

// Severity 返回严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 从错误链中取出统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误码，非统一错误返回 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}

// ShouldAlert 判断错误是否需要在事件中标记告警。
func ShouldAlert(err error) bool {
	if err == nil {
		return false
	}
	return AttributesOf(CodeOf(err)).Alert
}

// IsFatal 判断错误是否属于启动期致命错误。
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return AttributesOf(CodeOf(err)).Fatal
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
