package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"DexLedger/internal/asset"
	"DexLedger/internal/client"
	"DexLedger/internal/exchange"
	"DexLedger/internal/observability"
	"DexLedger/internal/query"
	"DexLedger/internal/views"
)

// Server is the HTTP/WebSocket surface: live views from the projector,
// balances from the engine, historical pages from Postgres when configured,
// and submission endpoints through the pending-state gateway.
type Server struct {
	router    *mux.Router
	engine    *exchange.Engine
	gateway   *client.Gateway
	projector *views.Projector
	registry  *asset.Registry
	querySvc  *query.Service // nil without Postgres
	hub       *Hub
	health    *observability.HealthChecker
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewServer(
	engine *exchange.Engine,
	gateway *client.Gateway,
	projector *views.Projector,
	registry *asset.Registry,
	querySvc *query.Service,
	hub *Hub,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		engine:    engine,
		gateway:   gateway,
		projector: projector,
		registry:  registry,
		querySvc:  querySvc,
		hub:       hub,
		health:    health,
		metrics:   metrics,
		logger:    observability.NewLogger("http"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Read endpoints
	api.HandleFunc("/balances/{account}", s.instrument("balances", s.handleBalances)).Methods("GET")
	api.HandleFunc("/orderbook", s.instrument("orderbook", s.handleOrderBook)).Methods("GET")
	api.HandleFunc("/orders/open", s.instrument("open_orders", s.handleOpenOrders)).Methods("GET")
	api.HandleFunc("/trades", s.instrument("trades", s.handleTrades)).Methods("GET")
	api.HandleFunc("/trades/history", s.instrument("trade_history", s.handleTradeArchive)).Methods("GET")
	api.HandleFunc("/chart", s.instrument("chart", s.handleChart)).Methods("GET")
	api.HandleFunc("/accounts/{account}/orders", s.instrument("account_orders", s.handleAccountOrders)).Methods("GET")
	api.HandleFunc("/accounts/{account}/trades", s.instrument("account_trades", s.handleAccountTrades)).Methods("GET")
	api.HandleFunc("/accounts/{account}/trades/history", s.instrument("account_trade_history", s.handleAccountTradeArchive)).Methods("GET")
	api.HandleFunc("/accounts/{account}/balances/history", s.instrument("account_balance_history", s.handleAccountBalanceArchive)).Methods("GET")
	api.HandleFunc("/pending", s.instrument("pending", s.handlePending)).Methods("GET")

	// Submission endpoints
	api.HandleFunc("/deposits", s.instrument("deposit", s.handleDeposit)).Methods("POST")
	api.HandleFunc("/withdrawals", s.instrument("withdraw", s.handleWithdraw)).Methods("POST")
	api.HandleFunc("/orders", s.instrument("make_order", s.handleMakeOrder)).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.instrument("cancel_order", s.handleCancelOrder)).Methods("POST")
	api.HandleFunc("/orders/{id}/fill", s.instrument("fill_order", s.handleFillOrder)).Methods("POST")

	s.router.HandleFunc("/ws", s.hub.handleWebSocket)
	s.router.HandleFunc("/healthz", s.health.LivenessHandler).Methods("GET")
	s.router.HandleFunc("/readyz", s.health.ReadinessHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      c.Handler(s.router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// --- Read handlers ---

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]

	type balanceEntry struct {
		Asset   asset.ID `json:"asset"`
		Symbol  string   `json:"symbol"`
		Balance uint64   `json:"balance"`
	}

	out := make([]balanceEntry, 0)
	for _, info := range s.registry.All() {
		out = append(out, balanceEntry{
			Asset:   info.ID,
			Symbol:  info.Symbol,
			Balance: s.engine.BalanceOf(info.ID, account),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":  account,
		"balances": out,
	})
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.projector.OrderBook())
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.projector.OpenOrders())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.projector.TradeHistory())
}

func (s *Server) handleTradeArchive(w http.ResponseWriter, r *http.Request) {
	if s.querySvc == nil {
		s.writeError(w, http.StatusServiceUnavailable, "trade archive not configured")
		return
	}

	limit := parseUintParam(r, "limit", 100)
	offset := parseUintParam(r, "offset", 0)

	page, err := s.querySvc.TradeHistory(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("trade archive query failed")
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.projector.PriceChart())
}

func (s *Server) handleAccountOrders(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	s.writeJSON(w, http.StatusOK, s.projector.MyOpenOrders(account))
}

func (s *Server) handleAccountTrades(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	s.writeJSON(w, http.StatusOK, s.projector.MyTrades(account))
}

func (s *Server) handleAccountTradeArchive(w http.ResponseWriter, r *http.Request) {
	if s.querySvc == nil {
		s.writeError(w, http.StatusServiceUnavailable, "trade archive not configured")
		return
	}
	account := mux.Vars(r)["account"]
	limit := parseUintParam(r, "limit", 100)

	trades, err := s.querySvc.AccountTrades(r.Context(), account, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("account trade archive query failed")
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

// handleAccountBalanceArchive serves the projected balances from Postgres,
// which survive restarts; the live endpoint reads the engine instead.
func (s *Server) handleAccountBalanceArchive(w http.ResponseWriter, r *http.Request) {
	if s.querySvc == nil {
		s.writeError(w, http.StatusServiceUnavailable, "balance archive not configured")
		return
	}
	account := mux.Vars(r)["account"]

	balances, err := s.querySvc.Balances(r.Context(), account)
	if err != nil {
		s.logger.Error().Err(err).Msg("balance archive query failed")
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, balances)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.gateway.Pending())
}

// --- Submission handlers ---

type transferRequest struct {
	Asset  asset.ID `json:"asset"`
	User   string   `json:"user"`
	Amount uint64   `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}
	env, err := s.gateway.Deposit(req.Asset, req.User, req.Amount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]uint64{"sequence": env.Sequence})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}
	env, err := s.gateway.Withdraw(req.Asset, req.User, req.Amount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]uint64{"sequence": env.Sequence})
}

type makeOrderRequest struct {
	User       string   `json:"user"`
	TokenGet   asset.ID `json:"token_get"`
	AmountGet  uint64   `json:"amount_get"`
	TokenGive  asset.ID `json:"token_give"`
	AmountGive uint64   `json:"amount_give"`
}

func (s *Server) handleMakeOrder(w http.ResponseWriter, r *http.Request) {
	var req makeOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	env, err := s.gateway.MakeOrder(req.User, req.TokenGet, req.AmountGet, req.TokenGive, req.AmountGive)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"sequence": env.Sequence,
		"key":      env.Key,
	})
}

type orderActionRequest struct {
	User string `json:"user"`
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r, s)
	if !ok {
		return
	}
	var req orderActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	env, err := s.gateway.CancelOrder(id, req.User)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]uint64{"sequence": env.Sequence})
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r, s)
	if !ok {
		return
	}
	var req orderActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	env, err := s.gateway.FillOrder(id, req.User)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]uint64{"sequence": env.Sequence})
}

// --- Helpers ---

func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		if s.metrics != nil {
			s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("encode response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the engine's error taxonomy to HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, exchange.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, exchange.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, exchange.ErrCustodyFailure):
		status = http.StatusBadGateway
	case errors.Is(err, exchange.ErrInvalidAsset), errors.Is(err, exchange.ErrInvalidAmount):
		status = http.StatusBadRequest
	}
	s.writeError(w, status, err.Error())
}

func parseOrderID(w http.ResponseWriter, r *http.Request, s *Server) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func parseUintParam(r *http.Request, name string, fallback uint64) uint64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
