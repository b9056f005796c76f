package main

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fystack/explorer-api/internal/attribution"
	"github.com/fystack/explorer-api/internal/feed"
	"github.com/fystack/explorer-api/internal/store"
	"github.com/fystack/explorer-api/internal/warehouse"
	"github.com/fystack/explorer-api/pkg/common/logger"
	"github.com/fystack/explorer-api/pkg/common/types"
	"github.com/fystack/explorer-api/pkg/ratelimiter"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type APIErrorResponse struct {
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

type FeedResponse struct {
	Data       []types.AttributionResult `json:"data"`
	TotalCount int64                     `json:"total_count"`
}

type TransactionResponse struct {
	Data types.AttributionResult `json:"data"`
}

type AccountResponse struct {
	Data types.AccountSummary `json:"data"`
}

type BlockResponse struct {
	Data types.Block `json:"data"`
}

type APIHandler struct {
	version     string
	feed        *feed.Service
	txRepo      *store.TransactionRepo
	eventRepo   *store.EventRepo
	blockRepo   *store.BlockRepo
	accountRepo *store.AccountRepo
	limiter     *ratelimiter.KeyedLimiter
}

func NewAPIHandler(
	version string,
	feedService *feed.Service,
	txRepo *store.TransactionRepo,
	eventRepo *store.EventRepo,
	blockRepo *store.BlockRepo,
	accountRepo *store.AccountRepo,
	limiter *ratelimiter.KeyedLimiter,
) *APIHandler {
	return &APIHandler{
		version:     version,
		feed:        feedService,
		txRepo:      txRepo,
		eventRepo:   eventRepo,
		blockRepo:   blockRepo,
		accountRepo: accountRepo,
		limiter:     limiter,
	}
}

func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.Handle("GET /v1/accounts/{address}/transactions", h.limited(h.HandleAccountTransactions))
	mux.Handle("GET /v1/accounts/{address}", h.limited(h.HandleAccountSummary))
	mux.Handle("GET /v1/transactions/{hash}", h.limited(h.HandleTransaction))
	mux.Handle("GET /v1/blocks/latest", h.limited(h.HandleLatestBlock))
	mux.Handle("GET /v1/blocks/{height}", h.limited(h.HandleBlockByHeight))
}

// limited applies the per-key rate limit, keyed by API key when present and
// remote host otherwise.
func (h *APIHandler) limited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil {
			key := strings.TrimSpace(r.Header.Get("X-API-Key"))
			if key == "" {
				host, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					host = r.RemoteAddr
				}
				key = host
			}
			if !h.limiter.Allow(key) {
				writeErrorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next(w, r)
	})
}

func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

func (h *APIHandler) HandleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.PathValue("address"))
	params := parseFeedParams(r)

	page, err := h.feed.List(r.Context(), address, params)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FeedResponse{Data: page.Items, TotalCount: page.TotalCount})
}

func (h *APIHandler) HandleAccountSummary(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.PathValue("address"))
	if address == "" {
		writeErrorJSON(w, http.StatusBadRequest, "address must not be empty")
		return
	}

	summary, err := h.accountRepo.Summary(r.Context(), address)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Data: *summary})
}

func (h *APIHandler) HandleTransaction(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimSpace(r.PathValue("hash"))
	if hash == "" {
		writeErrorJSON(w, http.StatusBadRequest, "transaction hash must not be empty")
		return
	}

	env, err := h.txRepo.FindByHash(r.Context(), hash)
	if err != nil {
		h.writeError(w, err)
		return
	}

	events, err := h.eventRepo.ListByTxHash(r.Context(), hash)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// The perspective address is optional; without it, address-relative
	// fields (fee, direction) resolve against the signer's view.
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	resolved := resolveForAddress(*env, events, address)
	writeJSON(w, http.StatusOK, TransactionResponse{Data: resolved})
}

func (h *APIHandler) HandleLatestBlock(w http.ResponseWriter, r *http.Request) {
	block, err := h.blockRepo.Latest(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BlockResponse{Data: *block})
}

func (h *APIHandler) HandleBlockByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(strings.TrimSpace(r.PathValue("height")), 10, 64)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "height must be a positive integer")
		return
	}

	block, err := h.blockRepo.ByHeight(r.Context(), height)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BlockResponse{Data: *block})
}

// parseFeedParams reads pagination inputs leniently: unparseable numerics fall
// back to defaults and out-of-range values are clamped downstream.
func parseFeedParams(r *http.Request) feed.Params {
	q := r.URL.Query()

	params := feed.Params{
		Limit:  parseInt(q.Get("limit")),
		Offset: parseInt(q.Get("offset")),
		Action: strings.TrimSpace(q.Get("action")),
	}
	params.HeightWindow = parseUint(q.Get("heightWindow"))
	params.BeforeHeight = parseUint(q.Get("beforeHeight"))

	if t, ok := parseDate(q.Get("startDate")); ok {
		params.StartDate = &t
	}
	if t, ok := parseDate(q.Get("endDate")); ok {
		params.EndDate = &t
	}
	return params
}

func parseInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

func parseUint(raw string) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, format := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(format, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func resolveForAddress(env types.TransactionEnvelope, events []types.Event, address string) types.AttributionResult {
	if address == "" {
		probe := attribution.Resolve(env, events, "")
		if probe.Signer == nil {
			return probe
		}
		address = *probe.Signer
	}
	return attribution.Resolve(env, events, address)
}

// writeError maps internal failures onto the client-facing contract: backend
// exhaustion surfaces as a generic upstream error with no endpoint details.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, feed.ErrEmptyAddress):
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeErrorJSON(w, http.StatusNotFound, "not found")
	case warehouse.IsExhausted(err):
		logger.Error("Warehouse exhausted", "error", err)
		writeErrorJSON(w, http.StatusServiceUnavailable, "upstream temporarily unavailable")
	default:
		logger.Error("Request failed", "error", err)
		writeErrorJSON(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Write response failed", "error", err)
	}
}

func writeErrorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIErrorResponse{
		Status:    "error",
		Error:     msg,
		Timestamp: time.Now().UTC(),
	})
}
