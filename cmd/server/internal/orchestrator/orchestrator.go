// Package orchestrator turns a staged upload or a remote URL into a transcript.
// It calls the Whisper provider, shapes the public result and computes speech/silence timing.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"mime/multipart"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/audio"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/metrics"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/upload"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/whisper"
	"github.com/houzhh15/whisper-gateway/pkg/logger"
	backendmetrics "github.com/houzhh15/whisper-gateway/pkg/metrics"
)

// 请求来源，用于日志和指标标签
const (
	SourceUpload = "upload"
	SourceURL    = "url"
	SourceLegacy = "legacy"
)

// LanguageAuto 表示由模型自动检测语言
const LanguageAuto = "auto"

// unknownLanguage 是后端未返回语言时的占位值
const unknownLanguage = "unknown"

// Source 转写输入：本地临时文件或远程 URL，二选一
type Source struct {
	Path string
	URL  string
}

func (s Source) location() string {
	if s.Path != "" {
		return s.Path
	}
	return s.URL
}

// Options 单次转写参数
type Options struct {
	Language          string // "auto" 或空表示自动检测
	IncludeTimestamps bool
	Model             string // 为空时使用后端默认模型

	// AcceptAnyFormat 跳过扩展名白名单，只要求文件名非空（旧版 /whisper）
	AcceptAnyFormat bool

	// Origin 覆盖日志/指标中的来源标签（如 legacy），为空时按输入推断
	Origin string
}

// Segment 对外返回的分段
type Segment struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

// Timeline 时间信息，仅在请求时间戳时出现
type Timeline struct {
	Segments        []Segment `json:"segments"`
	TotalSpeechTime float64   `json:"total_speech_time"`
	SilenceTime     float64   `json:"silence_time"`
}

// Result 对外返回的转写结果。Timeline 为 nil 时相关字段不会出现在 JSON 中。
type Result struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Duration *float64 `json:"duration,omitempty"`
	*Timeline
}

// Service 转写编排服务。provider 为 nil 表示模型启动时加载失败。
type Service struct {
	provider whisper.WhisperTranscriber
	stager   *upload.Stager
	logger   *slog.Logger
}

// NewService 创建转写服务，provider 可以为 nil
func NewService(provider whisper.WhisperTranscriber, stager *upload.Stager) *Service {
	if stager == nil {
		stager = upload.NewStager("")
	}
	return &Service{
		provider: provider,
		stager:   stager,
		logger:   logger.L().With("component", "orchestrator"),
	}
}

// ModelLoaded 返回模型是否可用
func (s *Service) ModelLoaded() bool {
	return s.provider != nil
}

// BackendName 返回当前后端名称，未加载时为空
func (s *Service) BackendName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// Provider 返回底层后端，未加载时为 nil
func (s *Service) Provider() whisper.WhisperTranscriber {
	return s.provider
}

// Stager 返回上传暂存器
func (s *Service) Stager() *upload.Stager {
	return s.stager
}

// TranscribeUpload 校验并暂存上传文件，转写后删除临时文件
func (s *Service) TranscribeUpload(ctx context.Context, fh *multipart.FileHeader, opts Options) (*Result, error) {
	check := upload.Validate
	if opts.AcceptAnyFormat {
		check = upload.ValidateName
	}
	if err := check(fh); err != nil {
		return nil, s.fail(originOr(opts, SourceUpload), uploadError(err))
	}
	if s.provider == nil {
		return nil, s.fail(originOr(opts, SourceUpload), NewModelUnavailableError())
	}

	var result *Result
	err := s.stager.DoWith(fh, check, func(tmp *upload.TempFile) error {
		var err error
		result, err = s.Transcribe(ctx, Source{Path: tmp.Path}, opts)
		return err
	})
	if err != nil {
		var oe *OrchError
		if !errors.As(err, &oe) {
			// 暂存失败（磁盘写入等）
			err = s.fail(originOr(opts, SourceUpload), uploadError(err))
		}
		return nil, err
	}
	return result, nil
}

// TranscribeURL 直接把 URL 交给后端，不创建临时文件
func (s *Service) TranscribeURL(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, s.fail(originOr(opts, SourceURL), NewInvalidInputError(MsgURLRequired, nil))
	}
	if !whisper.IsURL(rawURL) {
		return nil, s.fail(originOr(opts, SourceURL), NewInvalidInputError(MsgInvalidURL, nil))
	}
	return s.Transcribe(ctx, Source{URL: rawURL}, opts)
}

// Transcribe 调用后端并整理结果。
// 不加锁、不设超时、不重试，并发安全由后端负责。
func (s *Service) Transcribe(ctx context.Context, src Source, opts Options) (*Result, error) {
	origin := SourceUpload
	if src.Path == "" {
		origin = SourceURL
	}
	origin = originOr(opts, origin)

	if s.provider == nil {
		return nil, s.fail(origin, NewModelUnavailableError())
	}
	if src.location() == "" {
		return nil, s.fail(origin, NewInvalidInputError(MsgNoAudioFile, nil))
	}

	backend := s.provider.Name()
	logger.LogTranscription(s.logger, origin, "start", backend, 0, "")
	start := time.Now()

	raw, err := s.provider.Transcribe(ctx, src.location(), &whisper.TranscribeOptions{
		Model:    opts.Model,
		Language: LanguageHint(opts.Language),
	})
	elapsed := time.Since(start)

	backendmetrics.RecordBackendCall(backend, origin, err == nil)
	backendmetrics.RecordBackendDuration(backend, elapsed.Seconds())
	metrics.RecordDuration(origin, elapsed.Seconds())

	if err != nil {
		oe := NewTranscriptionError(err)
		logger.LogTranscription(s.logger, origin, "error", backend, elapsed.Milliseconds(), string(oe.Code))
		metrics.RecordTranscription(origin, false)
		metrics.RecordError(origin, string(oe.Code))
		return nil, oe
	}

	result := shape(raw, totalDuration(raw, src), opts.IncludeTimestamps)

	logger.LogTranscription(s.logger, origin, "success", backend, elapsed.Milliseconds(), "")
	metrics.RecordTranscription(origin, true)
	if result.Duration != nil {
		metrics.RecordAudioSeconds(*result.Duration)
	}
	return result, nil
}

// fail 记录失败指标与日志后原样返回错误
func (s *Service) fail(origin string, oe *OrchError) *OrchError {
	s.logger.Warn("transcription rejected", "source", origin, "code", oe.Code, "message", oe.Message)
	metrics.RecordTranscription(origin, false)
	metrics.RecordError(origin, string(oe.Code))
	return oe
}

func originOr(opts Options, def string) string {
	if opts.Origin != "" {
		return opts.Origin
	}
	return def
}

// uploadError 将 upload 包错误映射为客户端错误
func uploadError(err error) *OrchError {
	switch {
	case errors.Is(err, upload.ErrNoFile):
		return NewInvalidInputError(MsgNoAudioFile, err)
	case errors.Is(err, upload.ErrEmptyFilename):
		return NewInvalidInputError(MsgNoFileSelected, err)
	case errors.Is(err, upload.ErrUnsupportedFormat):
		return NewInvalidInputError(MsgUnsupportedFormat, err)
	default:
		return NewTranscriptionError(err)
	}
}

// LanguageHint 返回传给后端的语言参数，"auto" 和空值返回空字符串。
// BCP-47 标签（fr-FR、en_US）归一为 ISO 639 基础语言，无法解析的值原样透传。
// 未指明语言的标签（und、und-FR）同样按自动检测处理。
func LanguageHint(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" || strings.EqualFold(lang, LanguageAuto) {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return lang
	}
	base, confidence := tag.Base()
	if confidence != language.Exact {
		return ""
	}
	return base.String()
}

// totalDuration 依次取后端返回时长、WAV 头时长、最后一个分段结束时间
func totalDuration(raw *whisper.TranscriptionResult, src Source) float64 {
	if raw.Duration > 0 {
		return raw.Duration
	}
	if src.Path != "" {
		if d, ok := audio.ProbeDuration(src.Path); ok {
			return d
		}
	}
	var last float64
	for _, seg := range raw.Segments {
		if seg.End > last {
			last = seg.End
		}
	}
	return last
}

// shape 把后端原始结果转换为对外结果。
// silence_time 在分段重叠或超出总时长时可能为负，不做修正。
func shape(raw *whisper.TranscriptionResult, total float64, withTimestamps bool) *Result {
	res := &Result{
		Text:     raw.Text,
		Language: raw.Language,
	}
	if res.Language == "" {
		res.Language = unknownLanguage
	}
	if total > 0 {
		d := Round2(total)
		res.Duration = &d
	}
	if !withTimestamps {
		return res
	}

	tl := &Timeline{Segments: make([]Segment, 0, len(raw.Segments))}
	var speech float64
	for _, seg := range raw.Segments {
		start, end := Round2(seg.Start), Round2(seg.End)
		d := Round2(end - start)
		tl.Segments = append(tl.Segments, Segment{
			Start:    start,
			End:      end,
			Text:     strings.TrimSpace(seg.Text),
			Duration: d,
		})
		speech += d
	}
	tl.TotalSpeechTime = Round2(speech)
	tl.SilenceTime = Round2(total - tl.TotalSpeechTime)
	res.Timeline = tl
	return res
}

// Round2 四舍五入到两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
