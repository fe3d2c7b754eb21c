// Package apperr 定义请求链路上的错误分类，以及分类到 HTTP 状态码和错误码的稳定映射。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是错误的分类。
type Kind string

const (
	OriginDenied         Kind = "OriginDenied"
	MissingCredentials   Kind = "MissingCredentials"
	RecaptchaFailed      Kind = "RecaptchaFailed"
	InvalidToken         Kind = "InvalidToken"
	RateLimited          Kind = "RateLimited"
	AutomationDetected   Kind = "AutomationDetected"
	ValidationError      Kind = "ValidationError"
	NotFound             Kind = "NotFound"
	SearchUnavailable    Kind = "SearchUnavailable"
	UpstreamModelFailure Kind = "UpstreamModelFailure"
	InternalError        Kind = "InternalError"
)

type mapping struct {
	status  int
	code    string
	message string // 对外的默认文案
}

var mappings = map[Kind]mapping{
	OriginDenied:         {http.StatusForbidden, "ORIGIN_DENIED", "Origin not allowed"},
	MissingCredentials:   {http.StatusUnauthorized, "MISSING_CREDENTIALS", "Missing session or recaptcha token"},
	InvalidToken:         {http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired session token"},
	RecaptchaFailed:      {http.StatusTooManyRequests, "RECAPTCHA_FAILED", "reCAPTCHA verification failed"},
	RateLimited:          {http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests"},
	AutomationDetected:   {http.StatusForbidden, "AUTOMATION_DETECTED", "Request blocked"},
	ValidationError:      {http.StatusBadRequest, "VALIDATION_ERROR", "Missing required fields"},
	NotFound:             {http.StatusNotFound, "NOT_FOUND", "Not found"},
	SearchUnavailable:    {http.StatusOK, "SEARCH_UNAVAILABLE", "Search unavailable"},
	UpstreamModelFailure: {http.StatusInternalServerError, "UPSTREAM_MODEL_FAILURE", "The assistant is temporarily unavailable, please try again"},
	InternalError:        {http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"},
}

// Error 携带分类、对外文案和内部原因。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New 创建一个使用默认对外文案的错误。
func New(kind Kind) *Error {
	return &Error{Kind: kind, Message: mappings[kind].message}
}

// Wrap 创建一个带内部原因的错误，内部原因不会返回给客户端。
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: mappings[kind].message, Err: err}
}

// Newf 创建一个自定义对外文案的错误。
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf 返回错误链上第一个 *Error 的分类，未分类的错误视为 InternalError。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// Is 判断错误是否属于指定分类。
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status 返回分类对应的 HTTP 状态码。
func Status(kind Kind) int {
	if m, ok := mappings[kind]; ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// Code 返回分类对应的机器可读错误码。
func Code(kind Kind) string {
	if m, ok := mappings[kind]; ok {
		return m.code
	}
	return mappings[InternalError].code
}

// PublicMessage 返回可以安全展示给客户端的文案。
// 内部错误与模型错误一律使用默认文案，不泄露细节。
func PublicMessage(err error) string {
	kind := KindOf(err)
	var e *Error
	if kind == InternalError || kind == UpstreamModelFailure || !errors.As(err, &e) || e.Message == "" {
		return mappings[kind].message
	}
	return e.Message
}
