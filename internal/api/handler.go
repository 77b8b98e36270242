package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/usagerisk/internal/domain"
	"github.com/xela07ax/usagerisk/internal/infra/auth"
	"go.uber.org/zap"
)

// PredictionService Описываем, что нам нужно от сервиса
type PredictionService interface {
	Predict(ctx context.Context, userID int64) (*domain.Prediction, error)
	MoodDescription(ctx context.Context, userID int64) (domain.MoodDescription, error)
}

type PredictionHandler struct {
	service PredictionService
	logger  *zap.Logger
}

func NewPredictionHandler(s PredictionService, logger *zap.Logger) *PredictionHandler {
	return &PredictionHandler{service: s, logger: logger}
}

// Today — прогноз риска на сегодня для пользователя из токена.
func (h *PredictionHandler) Today(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	p, err := h.service.Predict(r.Context(), userID)
	if err != nil {
		h.logger.Error("prediction failed", zap.Int64("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "prediction_unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PredictionHandler) Mood(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	d, err := h.service.MoodDescription(r.Context(), userID)
	if err != nil {
		h.logger.Error("mood description failed", zap.Int64("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "mood_unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
