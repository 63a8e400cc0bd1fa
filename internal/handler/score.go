package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"stockpulse/internal/httputil"
	"stockpulse/internal/queue"
)

type scoreChangedRequest struct {
	StockID  int64 `json:"stock_id"`
	OldScore int   `json:"old_score"`
	NewScore int   `json:"new_score"`
}

type ScoreHandler struct {
	publisher queue.Publisher
}

func NewScoreHandler(publisher queue.Publisher) *ScoreHandler {
	return &ScoreHandler{publisher: publisher}
}

// ScoreChanged handles POST /internal/scores/changed
// Accepts a score movement from the scoring pipeline and enqueues it for
// the alert workers. Evaluation happens asynchronously; this endpoint only
// confirms the event was queued.
func (h *ScoreHandler) ScoreChanged(w http.ResponseWriter, r *http.Request) {
	var req scoreChangedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.StockID <= 0 {
		httputil.WriteBadRequest(w, "stock_id is required")
		return
	}

	msgID, err := h.publisher.PublishScoreChanged(r.Context(), req.StockID, req.OldScore, req.NewScore)
	if err != nil {
		log.Printf("[ERROR] Publish score change: stock=%d err=%v", req.StockID, err)
		httputil.WriteInternalError(w, "Failed to enqueue score change")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"message":    "Score change queued",
		"message_id": msgID,
	})
}
