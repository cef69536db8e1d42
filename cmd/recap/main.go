package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/comigor/recap/internal/budget"
	"github.com/comigor/recap/internal/config"
	"github.com/comigor/recap/internal/logger"
	"github.com/comigor/recap/internal/pipeline"
	"github.com/comigor/recap/internal/sampler"
	"github.com/comigor/recap/internal/store"
	"github.com/comigor/recap/internal/summarize"
	"github.com/comigor/recap/internal/timeframe"
)

type appendRequest struct {
	ConversationID string    `json:"conversation_id"`
	SequenceID     int64     `json:"sequence_id"`
	AuthorID       string    `json:"author_id"`
	AuthorName     string    `json:"author_name"`
	Text           string    `json:"text"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type summarizeRequest struct {
	ConversationID string `json:"conversation_id"`
	Timeframe      string `json:"timeframe"`
	LastN          int    `json:"last_n"`
}

type summarizeResponse struct {
	Summary          string `json:"summary,omitempty"`
	RangeLabel       string `json:"range_label"`
	OriginalCount    int    `json:"original_count"`
	KeptCount        int    `json:"kept_count"`
	Denied           bool   `json:"denied,omitempty"`
	DeniedReason     string `json:"denied_reason,omitempty"`
	ThresholdCrossed string `json:"threshold_crossed,omitempty"`
}

type purgeRequest struct {
	ConversationID string `json:"conversation_id"`
	OlderThanDays  int    `json:"older_than_days"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		return
	}
	logger.SetLevel(cfg.LogLevel)

	// Tier selection happens once here: the durable tier wins when it is
	// configured and reachable, otherwise everything runs in memory.
	var durable store.Store
	if cfg.Storage.DSN != "" {
		sqlite, err := store.OpenSQLite(cfg.Storage.DSN)
		if err != nil {
			logger.L.Warn("durable tier unavailable, using in-memory tier only", "error", err)
		} else {
			durable = sqlite
			defer sqlite.Close()
		}
	}
	messages := store.NewTiered(durable, store.NewVolatile(cfg.Storage.VolatileCapacity, cfg.Storage.VolatileMaxAge))

	ledger := budget.NewLedger(cfg.Budget)
	limits := sampler.Limits{Soft: cfg.Sampler.SoftLimit, Hard: cfg.Sampler.HardLimit}
	pipe := pipeline.New(messages, ledger, limits, cfg.Pipeline.RetrieveTimeout, cfg.Pipeline.RetryBackoff)
	summarizer := summarize.New(summarize.NewClient(cfg.LLM), cfg.LLM.Model)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /messages", func(w http.ResponseWriter, r *http.Request) {
		var req appendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		err := messages.Append(r.Context(), store.Message{
			ConversationID: req.ConversationID,
			SequenceID:     req.SequenceID,
			AuthorID:       req.AuthorID,
			AuthorName:     req.AuthorName,
			Text:           req.Text,
			OccurredAt:     req.OccurredAt,
		})
		if errors.Is(err, store.ErrDegradedStorage) {
			// Message is stored; the tier degraded. Notice is surfaced once.
			logger.L.Warn("storage degraded", "error", err)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		if err != nil {
			logger.L.Error("append failed", "error", err)
			http.Error(w, "failed to store message", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /summarize", func(w http.ResponseWriter, r *http.Request) {
		var req summarizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if req.Timeframe == "" && req.LastN <= 0 {
			req.LastN = 75
		}

		prep, err := pipe.Prepare(r.Context(), pipeline.Request{
			ConversationID: req.ConversationID,
			Timeframe:      req.Timeframe,
			LastN:          req.LastN,
		})
		switch {
		case errors.Is(err, timeframe.ErrUnrecognized), errors.Is(err, timeframe.ErrInvalidRange):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, pipeline.ErrStoreTimeout):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		case err != nil:
			logger.L.Error("prepare failed", "error", err)
			http.Error(w, "failed to process request", http.StatusInternalServerError)
			return
		}

		resp := summarizeResponse{
			RangeLabel:    prep.RangeLabel,
			OriginalCount: prep.OriginalCount,
			KeptCount:     prep.KeptCount,
		}
		if !prep.Decision.Approved {
			resp.Denied = true
			resp.DeniedReason = prep.Decision.Reason
			writeJSON(w, http.StatusPaymentRequired, resp)
			return
		}
		if prep.KeptCount == 0 {
			resp.Summary = "No messages found for " + prep.RangeLabel + "."
			writeJSON(w, http.StatusOK, resp)
			return
		}

		summary, err := summarizer.Summarize(r.Context(), prep.Messages, prep.RangeLabel)
		if err != nil {
			logger.L.Error("summarization failed", "request_id", prep.RequestID, "error", err)
			http.Error(w, "failed to generate summary", http.StatusBadGateway)
			return
		}
		committed := pipe.Commit(summary.InputUnits, summary.OutputUnits)
		if committed.Crossed != budget.ThresholdNone {
			resp.ThresholdCrossed = committed.Crossed.String()
		}
		resp.Summary = summary.Text
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /usage", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ledger.Usage())
	})

	mux.HandleFunc("POST /usage/reset", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ledger.Reset())
	})

	mux.HandleFunc("POST /purge", func(w http.ResponseWriter, r *http.Request) {
		var req purgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		days := req.OlderThanDays
		if days <= 0 {
			days = cfg.Storage.RetentionDays
		}
		if days <= 0 {
			http.Error(w, "older_than_days required", http.StatusBadRequest)
			return
		}
		removed, err := messages.Purge(r.Context(), req.ConversationID, time.Now().UTC().AddDate(0, 0, -days))
		if err != nil {
			logger.L.Error("purge failed", "error", err)
			http.Error(w, "failed to purge", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.L.Info("starting server", "address", serverAddr)
	if err := http.ListenAndServe(serverAddr, mux); err != nil {
		logger.L.Error("failed to start server", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Error("response encode failed", "error", err)
	}
}
