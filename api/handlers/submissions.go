package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/BaSui01/modguard/internal/store"
	"github.com/BaSui01/modguard/types"
	"go.uber.org/zap"
)

// SubmissionLister 审核日志查询，由 *store.SubmissionStore 实现
type SubmissionLister interface {
	List(ctx context.Context, opts store.ListOptions) ([]store.SubmissionRecord, error)
	Count(ctx context.Context, opts store.ListOptions) (int64, error)
}

// SubmissionList GET /submissions 的响应数据
type SubmissionList struct {
	Items  []store.SubmissionRecord `json:"items"`
	Total  int64                    `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// SubmissionsHandler 审核日志查询接口
type SubmissionsHandler struct {
	lister SubmissionLister
	logger *zap.Logger
}

// NewSubmissionsHandler 创建查询处理器
func NewSubmissionsHandler(lister SubmissionLister, logger *zap.Logger) *SubmissionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionsHandler{lister: lister, logger: logger.With(zap.String("handler", "submissions"))}
}

// HandleList 支持 type、classification、limit、offset 查询参数
func (h *SubmissionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{
		Type:           q.Get("type"),
		Classification: q.Get("classification"),
	}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a non-negative integer", h.logger)
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "offset must be a non-negative integer", h.logger)
		return
	}

	items, err := h.lister.List(r.Context(), opts)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrStorage, "failed to list submissions").WithCause(err), h.logger)
		return
	}
	total, err := h.lister.Count(r.Context(), opts)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrStorage, "failed to count submissions").WithCause(err), h.logger)
		return
	}
	if items == nil {
		items = []store.SubmissionRecord{}
	}
	WriteSuccess(w, SubmissionList{Items: items, Total: total, Limit: opts.Limit, Offset: opts.Offset})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
