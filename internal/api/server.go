// Package api serves the read-side HTTP endpoints and the websocket
// event stream. Everything here is a projection of the stores; nothing
// writes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"meme-token-ledger/internal/domain"
	"meme-token-ledger/internal/storage"
)

// Server exposes the token registry, ledger, holders and candles.
type Server struct {
	events   storage.EventStore
	registry storage.RegistryStore
	candles  storage.CandleStore
	hub      *Hub
	logger   *zap.Logger
	router   *mux.Router
}

// NewServer wires the read API over the given stores.
func NewServer(events storage.EventStore, registry storage.RegistryStore, candles storage.CandleStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		events:   events,
		registry: registry,
		candles:  candles,
		hub:      NewHub(logger),
		logger:   logger,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/token/{token}", s.handleToken).Methods(http.MethodGet)
	s.router.HandleFunc("/api/token/{token}/trades", s.handleTrades).Methods(http.MethodGet)
	s.router.HandleFunc("/api/token/{token}/holders", s.handleHolders).Methods(http.MethodGet)
	s.router.HandleFunc("/api/token/{token}/candles/{tf}", s.handleCandles).Methods(http.MethodGet)
	s.router.HandleFunc("/api/token/{token}/summary", s.handleSummary).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.hub.handleWS)
	s.router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Publish forwards a freshly persisted event to websocket subscribers.
func (s *Server) Publish(ev *domain.CanonicalEvent) {
	s.hub.Publish(ev)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	token := strings.ToLower(mux.Vars(r)["token"])

	reg, err := s.registry.GetByAddress(r.Context(), token)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	if err != nil {
		s.fail(w, "load token", err)
		return
	}
	writeJSON(w, tokenResponse(reg))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	token := strings.ToLower(mux.Vars(r)["token"])

	events, err := s.events.QueryEvents(r.Context(), token)
	if err != nil {
		s.fail(w, "load trades", err)
		return
	}

	limit := queryInt(r, "limit", 100)
	if len(events) > limit {
		events = events[len(events)-limit:]
	}

	out := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		out = append(out, eventResponse(ev))
	}
	writeJSON(w, out)
}

func (s *Server) handleHolders(w http.ResponseWriter, r *http.Request) {
	token := strings.ToLower(mux.Vars(r)["token"])

	holders, err := s.events.HolderBalances(r.Context(), token)
	if err != nil {
		s.fail(w, "load holders", err)
		return
	}

	out := make([]map[string]any, 0, len(holders))
	for _, h := range holders {
		out = append(out, map[string]any{
			"wallet":  h.Wallet,
			"balance": h.Balance,
		})
	}
	writeJSON(w, map[string]any{
		"token":   token,
		"count":   len(out),
		"holders": out,
	})
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	token := strings.ToLower(vars["token"])
	tf := vars["tf"]

	if _, ok := domain.Timeframes[tf]; !ok {
		writeError(w, http.StatusBadRequest, "unknown timeframe")
		return
	}

	from := queryInt64(r, "from", 0)
	to := queryInt64(r, "to", 1<<62)

	rows, err := s.candles.Range(r.Context(), token, tf, from, to)
	if err != nil {
		s.fail(w, "load candles", err)
		return
	}

	out := make([]map[string]any, 0, len(rows))
	for _, c := range rows {
		out = append(out, map[string]any{
			"time":          c.BucketStart,
			"open":          c.Open,
			"high":          c.High,
			"low":           c.Low,
			"close":         c.Close,
			"marketcapUSD":  c.MarketCapUSD,
			"volumeUSD":     c.VolumeUSD,
			"buyVolumeUSD":  c.BuyVolumeUSD,
			"sellVolumeUSD": c.SellVolumeUSD,
			"txCount":       c.TxCount,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	token := strings.ToLower(mux.Vars(r)["token"])
	ctx := r.Context()

	reg, err := s.registry.GetByAddress(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	if err != nil {
		s.fail(w, "load token", err)
		return
	}

	stats, err := s.events.AggregateTradeStats(ctx, token)
	if err != nil {
		s.fail(w, "load stats", err)
		return
	}
	holders, err := s.events.HolderCount(ctx, token)
	if err != nil {
		s.fail(w, "count holders", err)
		return
	}
	mcap, known, err := s.events.LastMarketCap(ctx, token)
	if err != nil {
		s.fail(w, "load market cap", err)
		return
	}

	resp := tokenResponse(reg)
	resp["txCount"] = stats.Count
	resp["peakMarketcapUSD"] = stats.PeakMarketCap
	resp["holderCount"] = holders
	if known {
		resp["marketcapUSD"] = mcap
	}
	writeJSON(w, resp)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.Error("api request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func tokenResponse(reg *domain.TokenRegistry) map[string]any {
	return map[string]any{
		"tokenAddress": reg.TokenAddress,
		"name":         reg.Name,
		"symbol":       reg.Symbol,
		"creator":      reg.Creator,
		"totalSupply":  reg.TotalSupply,
		"launchTxHash": reg.LaunchTxHash,
		"launchTime":   reg.LaunchTime,
		"baseSymbol":   reg.BaseSymbol,
		"status":       reg.Status,
		"isQualified":  reg.IsQualified,
		"migratedAt":   reg.MigratedAt,
		"image":        reg.Image,
		"website":      reg.Website,
		"twitter":      reg.Twitter,
		"telegram":     reg.Telegram,
	}
}

func eventResponse(ev *domain.CanonicalEvent) map[string]any {
	return map[string]any{
		"kind":                ev.Kind,
		"side":                ev.Side,
		"txHash":              ev.TxHash,
		"tokenAddress":        ev.TokenAddress,
		"wallet":              ev.Wallet,
		"isDev":               ev.IsDev,
		"tokenAmount":         ev.TokenAmount,
		"considerationAmount": ev.ConsiderationAmount,
		"considerationSymbol": ev.ConsiderationSymbol,
		"considerationUSD":    ev.ConsiderationUSD,
		"priceUSD":            ev.PriceUSD,
		"marketcapUSD":        ev.MarketCapUSD,
		"priceSource":         ev.PriceSource,
		"isMigration":         ev.IsMigration,
		"time":                ev.Timestamp,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func queryInt64(r *http.Request, key string, fallback int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
