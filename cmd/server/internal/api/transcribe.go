package api

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator"
)

// audioField 上传文件使用的表单字段
const audioField = "audio"

// TranscribeURLRequest POST /transcribe-url 请求体
type TranscribeURLRequest struct {
	URL        string `json:"url"`
	Language   string `json:"language"`
	Timestamps *bool  `json:"timestamps"`
}

// HandleTranscribe POST /transcribe
// multipart 字段 audio；表单 language 默认 auto，timestamps 默认 true
func HandleTranscribe(svc *orchestrator.Service, limitMB int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile(audioField)
		if c.Request.MultipartForm != nil {
			defer c.Request.MultipartForm.RemoveAll()
		}
		if err != nil {
			switch {
			case isBodyTooLarge(err):
				PayloadTooLarge(limitMB)(c)
			case errors.Is(err, http.ErrMissingFile) && hasFormValue(c.Request.MultipartForm, audioField):
				// 字段存在但未选择文件（filename 为空）
				errorResponse(c, http.StatusBadRequest, orchestrator.MsgNoFileSelected)
			default:
				errorResponse(c, http.StatusBadRequest, orchestrator.MsgNoAudioFile)
			}
			return
		}

		opts := orchestrator.Options{
			Language:          c.DefaultPostForm("language", orchestrator.LanguageAuto),
			IncludeTimestamps: formBool(c, "timestamps", true),
		}
		result, err := svc.TranscribeUpload(c.Request.Context(), fh, opts)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleTranscribeURL POST /transcribe-url
// 不经过上传暂存，直接把 URL 交给后端
func HandleTranscribeURL(svc *orchestrator.Service, limitMB int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TranscribeURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if isBodyTooLarge(err) {
				PayloadTooLarge(limitMB)(c)
				return
			}
			// 请求体不是合法 JSON 时按缺少 URL 处理
			req = TranscribeURLRequest{}
		}

		language := req.Language
		if language == "" {
			language = orchestrator.LanguageAuto
		}
		timestamps := true
		if req.Timestamps != nil {
			timestamps = *req.Timestamps
		}

		result, err := svc.TranscribeURL(c.Request.Context(), req.URL, orchestrator.Options{
			Language:          language,
			IncludeTimestamps: timestamps,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func hasFormValue(form *multipart.Form, key string) bool {
	if form == nil {
		return false
	}
	_, ok := form.Value[key]
	return ok
}
