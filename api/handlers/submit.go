package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/modguard/moderation"
	"github.com/BaSui01/modguard/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🛡️ 提交审核 Handler
// =============================================================================

// DefaultMaxUploadBytes 单次请求体上限
const DefaultMaxUploadBytes int64 = 10 << 20

const sinkTimeout = 10 * time.Second

// Runner 执行一次已校验输入的审核，由 *moderation.Pipeline 实现
type Runner interface {
	Run(ctx context.Context, in moderation.ModerationInput) moderation.Result
}

// SubmitRequest JSON 形式的提交
type SubmitRequest struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	Filename    string `json:"filename,omitempty"`
	MIMEType    string `json:"mime_type,omitempty"`
}

// SubmitHandler 处理 POST /submit
type SubmitHandler struct {
	runner    Runner
	sink      moderation.ResultSink
	logger    *zap.Logger
	maxUpload int64
	onRecord  func(error)
}

// SubmitOption 配置 SubmitHandler
type SubmitOption func(*SubmitHandler)

// WithResultSink 每次审核后写入日志
func WithResultSink(sink moderation.ResultSink) SubmitOption {
	return func(h *SubmitHandler) { h.sink = sink }
}

// WithMaxUploadBytes 覆盖请求体上限
func WithMaxUploadBytes(n int64) SubmitOption {
	return func(h *SubmitHandler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithRecordHook 日志写入结果回调（指标）
func WithRecordHook(fn func(error)) SubmitOption {
	return func(h *SubmitHandler) { h.onRecord = fn }
}

// NewSubmitHandler 创建提交处理器
func NewSubmitHandler(runner Runner, logger *zap.Logger, opts ...SubmitOption) *SubmitHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &SubmitHandler{
		runner:    runner,
		logger:    logger.With(zap.String("handler", "submit")),
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleSubmit 解析提交、执行审核、记录日志并返回结果。
// 支持 multipart/form-data（字段 type、text，文件字段 file）、
// application/json 与 application/x-www-form-urlencoded。
func (h *SubmitHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	sub, err := h.parseSubmission(r)
	if err != nil {
		WriteError(w, r, ToAPIError(err), h.logger)
		return
	}

	in, err := moderation.NewInput(sub)
	if err != nil {
		WriteError(w, r, ToAPIError(err), h.logger)
		return
	}

	res := h.runner.Run(r.Context(), in)
	h.record(r.Context(), in, sub.Text, res)

	WriteJSON(w, http.StatusOK, res)
}

// record 写入失败只记日志，不影响响应
func (h *SubmitHandler) record(ctx context.Context, in moderation.ModerationInput, text string, res moderation.Result) {
	if h.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	err := h.sink.Record(ctx, moderation.NewSubmissionLog(in, text, res))
	if h.onRecord != nil {
		h.onRecord(err)
	}
	if err != nil {
		h.logger.Error("failed to record submission log",
			zap.String("kind", string(in.Kind)),
			zap.Error(err),
		)
	}
}

func (h *SubmitHandler) parseSubmission(r *http.Request) (moderation.Submission, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		return parseJSONSubmission(r.Body)
	case "multipart/form-data":
		return h.parseMultipart(r)
	default:
		if err := r.ParseForm(); err != nil {
			return moderation.Submission{}, badRequest("invalid form body", err)
		}
		return moderation.Submission{Type: r.PostFormValue("type"), Text: r.PostFormValue("text")}, nil
	}
}

func (h *SubmitHandler) parseMultipart(r *http.Request) (moderation.Submission, error) {
	// 超出内存阈值的部分落盘
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return moderation.Submission{}, badRequest("invalid multipart body", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sub := moderation.Submission{
		Type: r.FormValue("type"),
		Text: r.FormValue("text"),
	}

	f, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return sub, nil
	case err != nil:
		return moderation.Submission{}, badRequest("invalid file part", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return moderation.Submission{}, badRequest("unreadable file part", err)
	}
	sub.File = &moderation.File{
		Data:     data,
		Filename: header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
	}
	return sub, nil
}

func parseJSONSubmission(body io.Reader) (moderation.Submission, error) {
	var req SubmitRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return moderation.Submission{}, badRequest("invalid JSON body", err)
	}

	sub := moderation.Submission{Type: req.Type, Text: req.Text}
	if req.ImageBase64 == "" {
		return sub, nil
	}
	data, mimeType, err := decodeImage(req.ImageBase64)
	if err != nil {
		return moderation.Submission{}, &moderation.ValidationError{Field: "image_base64", Reason: "image_base64 is not valid base64"}
	}
	if req.MIMEType != "" {
		mimeType = req.MIMEType
	}
	sub.File = &moderation.File{Data: data, Filename: req.Filename, MIMEType: mimeType}
	return sub, nil
}

// badRequest 请求体超限时保留原错误以映射为 413
func badRequest(msg string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return types.NewError(types.ErrInvalidRequest, msg).WithCause(err).WithHTTPStatus(http.StatusBadRequest)
}

// decodeImage 接受裸 base64 或 data URL
func decodeImage(s string) ([]byte, string, error) {
	var mimeType string
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, "", errors.New("unsupported data url")
		}
		mimeType = strings.TrimSuffix(meta, ";base64")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, "", err
	}
	return data, mimeType, nil
}

// HandleRoot GET /
func HandleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Hello World!")
}
