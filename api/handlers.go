package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/pkg/conv"
	"github.com/rushteam/recserve/service"
)

var validate = validator.New()

// resultMeta 是各推荐接口共有的字段
type resultMeta struct {
	Count        int              `json:"count"`
	Degradation  core.Degradation `json:"degradation"`
	Algorithm    string           `json:"algorithm,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	ModelVersion string           `json:"model_version"`
	Dropped      int              `json:"dropped,omitempty"`
	Timestamp    string           `json:"timestamp"`
}

type userResponse struct {
	UserID          int                   `json:"user_id"`
	Recommendations []core.Recommendation `json:"recommendations"`
	resultMeta
}

type similarResponse struct {
	ItemID       int                   `json:"item_id"`
	SimilarItems []core.Recommendation `json:"similar_items"`
	resultMeta
}

type popularResponse struct {
	Type            string                `json:"type"`
	Category        *string               `json:"category"`
	Recommendations []core.Recommendation `json:"recommendations"`
	resultMeta
}

type batchRequest struct {
	UserIDs []int `json:"user_ids" validate:"required,min=1,dive,gte=0"`
	N       *int  `json:"n" validate:"omitempty,gte=1"`
}

type batchResponse struct {
	Results      map[int][]core.Recommendation `json:"results"`
	Degradations map[int]core.Degradation      `json:"degradations"`
	Count        int                           `json:"count"`
	ModelVersion string                        `json:"model_version"`
	Timestamp    string                        `json:"timestamp"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.svc.Health()
	status := http.StatusOK
	if h.Status == service.StatusNotLoaded {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, struct {
		service.Health
		Timestamp string `json:"timestamp"`
	}{h, s.timestamp()})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt(r, "user_id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	n, err := s.queryN(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	exclude, err := conv.ParseIntList(r.URL.Query()["exclude"]...)
	if err != nil {
		s.respondError(w, r, invalid("exclude: %v", err))
		return
	}

	res, err := s.svc.RecommendForUser(r.Context(), userID, n, exclude)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, userResponse{
		UserID:          userID,
		Recommendations: res.Items,
		resultMeta:      s.meta(res),
	})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathInt(r, "item_id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	n, err := s.queryN(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.svc.RecommendSimilar(r.Context(), itemID, n)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, similarResponse{
		ItemID:       itemID,
		SimilarItems: res.Items,
		resultMeta:   s.meta(res),
	})
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	n, err := s.queryN(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	category := r.URL.Query().Get("category")

	res, err := s.svc.RecommendPopular(r.Context(), n, category)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := popularResponse{
		Type:            "popular",
		Recommendations: res.Items,
		resultMeta:      s.meta(res),
	}
	if category != "" {
		resp.Category = &category
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, invalid("invalid request body: %v", err))
		return
	}
	if err := validate.Struct(&req); err != nil {
		s.respondError(w, r, invalid("invalid request body: %v", err))
		return
	}
	n := s.implicitN()
	if req.N != nil {
		n = *req.N
	}

	out, err := s.svc.RecommendBatch(r.Context(), req.UserIDs, n)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := batchResponse{
		Results:      make(map[int][]core.Recommendation, len(out)),
		Degradations: make(map[int]core.Degradation, len(out)),
		Count:        len(out),
		Timestamp:    s.timestamp(),
	}
	for uid, res := range out {
		resp.Results[uid] = res.Items
		resp.Degradations[uid] = res.Degradation
		resp.ModelVersion = res.ModelVersion
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reload(r.Context()); err != nil {
		code := core.ErrorCodeInternalError
		if de := core.GetDomainError(err); de != nil {
			code = de.Code
		}
		s.respondJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     err.Error(),
			Code:      code,
			RequestID: RequestID(r.Context()),
		})
		return
	}
	snap := s.svc.Snapshot()
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":        "reloaded",
		"model_version": snap.Version,
		"timestamp":     s.timestamp(),
	})
}

func (s *Server) meta(res *core.Result) resultMeta {
	return resultMeta{
		Count:        len(res.Items),
		Degradation:  res.Degradation,
		Algorithm:    res.Labels[core.LabelAlgorithm].Value,
		Reason:       res.Labels[core.LabelReason].Value,
		ModelVersion: res.ModelVersion,
		Dropped:      res.Dropped,
		Timestamp:    s.timestamp(),
	}
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// implicitN 是未指定 n 时的数量，不超过当前目录大小；显式传入的 n 仍按 [1, N] 严格校验。
func (s *Server) implicitN() int {
	if snap := s.svc.Snapshot(); snap != nil && snap.Catalog.Len() > 0 {
		return min(s.defaultN, snap.Catalog.Len())
	}
	return s.defaultN
}

func (s *Server) queryN(r *http.Request) (int, error) {
	n, err := conv.ParseInt(r.URL.Query().Get("n"), s.implicitN())
	if err != nil {
		return 0, invalid("n: %v", err)
	}
	return n, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, invalid("%s must be an integer, got %q", name, chi.URLParam(r, name))
	}
	return v, nil
}

func invalid(format string, args ...any) error {
	return core.Errorf(core.ModuleAPI, core.ErrorCodeInvalidInput, format, args...)
}

// statusOf 把领域错误码映射为 HTTP 状态码
func statusOf(err error) (int, string) {
	de := core.GetDomainError(err)
	if de == nil {
		return http.StatusInternalServerError, core.ErrorCodeInternalError
	}
	switch de.Code {
	case core.ErrorCodeInvalidInput:
		return http.StatusBadRequest, de.Code
	case core.ErrorCodeNotFound:
		return http.StatusNotFound, de.Code
	case core.ErrorCodeModelNotLoaded, core.ErrorCodeUnavailable:
		return http.StatusServiceUnavailable, de.Code
	}
	return http.StatusInternalServerError, de.Code
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", RequestID(r.Context())).Str("code", code).Msg("request failed")
	}
	s.respondJSON(w, status, errorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: RequestID(r.Context()),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("write response")
	}
}
