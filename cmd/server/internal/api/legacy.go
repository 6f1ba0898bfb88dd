package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/metrics"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator"
)

// 旧版接口沿用英文错误信息
const (
	msgLegacyModelNotLoaded = "Whisper model not loaded"
	msgLegacyNoFiles        = "No files uploaded"
)

// LegacyResult /whisper 单个文件的结果
type LegacyResult struct {
	Filename   string                 `json:"filename"`
	Transcript string                 `json:"transcript"`
	Language   string                 `json:"language"`
	Segments   []orchestrator.Segment `json:"segments"`
}

// LegacyResponse /whisper 响应
type LegacyResponse struct {
	Results []LegacyResult `json:"results"`
}

// HandleLegacyWhisper POST /whisper
// 接受任意字段名、任意格式的 multipart 文件，逐个转写；任一文件失败则整体失败，不返回部分结果。
func HandleLegacyWhisper(svc *orchestrator.Service, limitMB int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !svc.ModelLoaded() {
			metrics.RecordTranscription(orchestrator.SourceLegacy, false)
			metrics.RecordError(orchestrator.SourceLegacy, string(orchestrator.MODEL_UNAVAILABLE))
			errorResponse(c, http.StatusInternalServerError, msgLegacyModelNotLoaded)
			return
		}

		form, err := c.MultipartForm()
		if form != nil {
			defer form.RemoveAll()
		}
		if err != nil && isBodyTooLarge(err) {
			PayloadTooLarge(limitMB)(c)
			return
		}
		files := collectFiles(form)
		if len(files) == 0 {
			errorResponse(c, http.StatusBadRequest, msgLegacyNoFiles)
			return
		}

		opts := orchestrator.Options{
			Language:          orchestrator.LanguageAuto,
			IncludeTimestamps: true,
			Origin:            orchestrator.SourceLegacy,
			AcceptAnyFormat:   true,
		}
		results := make([]LegacyResult, 0, len(files))
		for _, fh := range files {
			res, err := svc.TranscribeUpload(c.Request.Context(), fh, opts)
			if err != nil {
				errorResponse(c, orchestrator.HTTPStatus(err), legacyMessage(err))
				return
			}
			item := LegacyResult{
				Filename:   fh.Filename,
				Transcript: res.Text,
				Language:   res.Language,
				Segments:   []orchestrator.Segment{},
			}
			if res.Timeline != nil {
				item.Segments = res.Segments
			}
			results = append(results, item)
		}
		c.JSON(http.StatusOK, LegacyResponse{Results: results})
	}
}

// collectFiles 按字段名排序返回全部上传文件
func collectFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	keys := make([]string, 0, len(form.File))
	for k := range form.File {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var files []*multipart.FileHeader
	for _, k := range keys {
		files = append(files, form.File[k]...)
	}
	return files
}

// legacyMessage 转写失败时返回底层错误原文
func legacyMessage(err error) string {
	var oe *orchestrator.OrchError
	if errors.As(err, &oe) {
		if oe.Code == orchestrator.TRANSCRIPTION_FAILED && oe.Cause != nil {
			return oe.Cause.Error()
		}
		if oe.Code == orchestrator.MODEL_UNAVAILABLE {
			return msgLegacyModelNotLoaded
		}
	}
	return orchestrator.PublicMessage(err)
}
