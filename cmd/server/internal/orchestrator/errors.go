package orchestrator

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode 表示转写请求错误类型代码
type ErrorCode string

const (
	// INVALID_INPUT 缺少文件、文件名为空、格式不支持或缺少 URL
	INVALID_INPUT ErrorCode = "INVALID_INPUT"

	// PAYLOAD_TOO_LARGE 请求体超过上限
	PAYLOAD_TOO_LARGE ErrorCode = "PAYLOAD_TOO_LARGE"

	// MODEL_UNAVAILABLE 启动时模型加载失败
	MODEL_UNAVAILABLE ErrorCode = "MODEL_UNAVAILABLE"

	// TRANSCRIPTION_FAILED 转写过程中后端报错（解码失败、格式错误等）
	TRANSCRIPTION_FAILED ErrorCode = "TRANSCRIPTION_FAILED"
)

// 返回给客户端的错误信息
const (
	MsgNoAudioFile       = "Aucun fichier audio fourni"
	MsgNoFileSelected    = "Aucun fichier sélectionné"
	MsgUnsupportedFormat = "Format de fichier non supporté"
	MsgURLRequired       = "URL audio requise"
	MsgInvalidURL        = "URL audio invalide"
	MsgModelNotLoaded    = "Modèle Whisper non chargé"
	msgTranscription     = "Erreur lors de la transcription"
)

// OrchError 表示 Orchestrator 转写错误
type OrchError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error 实现 error 接口
func (e *OrchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现错误链支持
func (e *OrchError) Unwrap() error {
	return e.Cause
}

// PublicMessage 返回可直接放入 {"error": ...} 响应体的信息。
// 转写失败时附带底层错误原因。
func (e *OrchError) PublicMessage() string {
	if e.Code == TRANSCRIPTION_FAILED && e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// NewOrchError 创建新的 Orchestrator 错误
func NewOrchError(code ErrorCode, message string, cause error) *OrchError {
	return &OrchError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewInvalidInputError 创建输入无效错误
func NewInvalidInputError(message string, cause error) *OrchError {
	return NewOrchError(INVALID_INPUT, message, cause)
}

// NewPayloadTooLargeError 创建请求体过大错误
func NewPayloadTooLargeError(limitMB int64) *OrchError {
	return NewOrchError(PAYLOAD_TOO_LARGE, fmt.Sprintf("Fichier trop volumineux (max %d MB)", limitMB), nil)
}

// NewModelUnavailableError 创建模型未加载错误
func NewModelUnavailableError() *OrchError {
	return NewOrchError(MODEL_UNAVAILABLE, MsgModelNotLoaded, nil)
}

// NewTranscriptionError 创建转写失败错误
func NewTranscriptionError(cause error) *OrchError {
	return NewOrchError(TRANSCRIPTION_FAILED, msgTranscription, cause)
}

// CodeOf 返回错误链中第一个 OrchError 的代码，没有则返回空字符串
func CodeOf(err error) ErrorCode {
	var oe *OrchError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}

// HTTPStatus 将错误映射为 HTTP 状态码，未知错误一律 500
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case INVALID_INPUT:
		return http.StatusBadRequest
	case PAYLOAD_TOO_LARGE:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage 返回任意错误对客户端展示的信息
func PublicMessage(err error) string {
	var oe *OrchError
	if errors.As(err, &oe) {
		return oe.PublicMessage()
	}
	return fmt.Sprintf("%s: %v", msgTranscription, err)
}
