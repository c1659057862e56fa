package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/points-economy/internal/domain"
	"github.com/points-economy/internal/service"
	"github.com/points-economy/internal/store"
	"github.com/points-economy/internal/websocket"
)

// Handler provides HTTP handlers for the points economy API
type Handler struct {
	ledger     *service.LedgerService
	aggregator *service.Aggregator
	engine     *service.Engine
	inventory  *service.InventoryService
	events     store.EventStore
	cache      store.SnapshotCache
	hub        *websocket.Hub
	logger     *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	ledger *service.LedgerService,
	aggregator *service.Aggregator,
	engine *service.Engine,
	inventory *service.InventoryService,
	events store.EventStore,
	cache store.SnapshotCache,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		ledger:     ledger,
		aggregator: aggregator,
		engine:     engine,
		inventory:  inventory,
		events:     events,
		cache:      cache,
		hub:        hub,
		logger:     logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Ledger operations
		r.Post("/events", h.RecordEvent)

		// User state
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Get("/events", h.GetEvents)
			r.Get("/hammers", h.GetHammers)
			r.Post("/hammers", h.GrantHammer)
			r.Get("/tokens", h.GetTokens)
			r.Post("/tokens", h.CreditTokens)
			r.Get("/heists", h.GetHeistHistory)
			r.Put("/name", h.SetUserName)
		})

		// Leaderboard operations
		r.Route("/leaderboards/{scope}", func(r chi.Router) {
			r.Get("/", h.GetLeaderboard)
			r.Get("/position/{userID}", h.GetPosition)
		})

		// Heist operations
		r.Route("/heists", func(r chi.Router) {
			r.Get("/eligibility", h.CheckEligibility)
			r.Post("/", h.ExecuteHeist)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps domain errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if domain.IsNotFoundError(err) {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	if domain.IsConflict(err) {
		h.writeError(w, http.StatusConflict, err)
		return
	}
	h.logger.Error("request failed", "error", err)
	h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// RecordEvent appends a point-earning event to the ledger
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var event domain.PointEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	id, err := h.ledger.Record(r.Context(), event)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    map[string]string{"id": id},
	})
}

// GetBalance returns the user's current point balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var balance int64
	var err error
	if asOfStr := r.URL.Query().Get("as_of"); asOfStr != "" {
		asOf, parseErr := time.Parse(time.RFC3339, asOfStr)
		if parseErr != nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		balance, err = h.ledger.BalanceAt(r.Context(), userID, asOf)
	} else {
		balance, err = h.ledger.Balance(r.Context(), userID)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"user_id": userID,
		"balance": balance,
	})
}

// GetEvents lists the user's ledger events for a scope and period
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	scope := domain.Scope{Type: domain.ScopeGlobal}
	if s := r.URL.Query().Get("scope"); s != "" {
		scope = domain.Scope{Type: domain.ScopeType(s), ID: r.URL.Query().Get("scope_id")}
	}
	if err := scope.Validate(); err != nil {
		h.writeServiceError(w, err)
		return
	}
	period := parsePeriod(r)
	if !period.Valid() {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	window := period.WindowAt(time.Now().UTC())
	events := []domain.PointEvent{}
	err := h.ledger.EventsInWindow(r.Context(), userID, scope, window, func(event domain.PointEvent) error {
		events = append(events, event)
		return nil
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"user_id": userID,
		"window":  window,
		"events":  events,
	})
}

// leaderboardRow is the API shape of one ranked entry, enriched with the
// user's display name and all-time balance.
type leaderboardRow struct {
	Rank         int64  `json:"rank"`
	UserID       string `json:"user_id"`
	Name         string `json:"name,omitempty"`
	Points       int64  `json:"points"`
	PeriodPoints int64  `json:"period_points"`
	RankChange   int64  `json:"rank_change"`
}

// parseScope builds the scope from the path segment and scope_id query.
func parseScope(r *http.Request) domain.Scope {
	return domain.Scope{
		Type: domain.ScopeType(chi.URLParam(r, "scope")),
		ID:   r.URL.Query().Get("scope_id"),
	}
}

// parsePeriod reads the period query, defaulting to all-time.
func parsePeriod(r *http.Request) domain.Period {
	if p := r.URL.Query().Get("period"); p != "" {
		return domain.Period(p)
	}
	return domain.PeriodAllTime
}

// GetLeaderboard returns the ranked top-N for a scope and period
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	scope := parseScope(r)
	period := parsePeriod(r)

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	snapshot, err := h.aggregator.ComputeRanking(r.Context(), scope, period, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	rows, err := h.composeRows(r, snapshot)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"scope":       snapshot.Scope,
		"period":      snapshot.Period,
		"entries":     rows,
		"total_users": snapshot.TotalUsers,
		"computed_at": snapshot.ComputedAt,
	})
}

// composeRows joins snapshot entries with display names and all-time
// balances. Missing names degrade to empty; a broken balance read fails
// the request since points is part of the contract.
func (h *Handler) composeRows(r *http.Request, snapshot *domain.LeaderboardSnapshot) ([]leaderboardRow, error) {
	userIDs := make([]string, len(snapshot.Entries))
	for i, entry := range snapshot.Entries {
		userIDs[i] = entry.UserID
	}

	var balances map[string]int64
	if len(userIDs) > 0 {
		var err error
		balances, err = h.events.BalancesOf(r.Context(), userIDs)
		if err != nil {
			return nil, err
		}
	}

	names, err := h.cache.UserNames(r.Context(), userIDs)
	if err != nil {
		h.logger.Warn("user name lookup failed", "error", err)
		names = nil
	}

	rows := make([]leaderboardRow, len(snapshot.Entries))
	for i, entry := range snapshot.Entries {
		rows[i] = leaderboardRow{
			Rank:         entry.Rank,
			UserID:       entry.UserID,
			Name:         names[entry.UserID],
			Points:       balances[entry.UserID],
			PeriodPoints: entry.TotalPoints,
			RankChange:   entry.RankChange,
		}
	}
	return rows, nil
}

// GetPosition returns a user's exact rank for a scope and period
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	position, err := h.aggregator.PositionOf(r.Context(), userID, parseScope(r), parsePeriod(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, position)
}

// eligibilityResponse is the advisory pre-flight answer.
type eligibilityResponse struct {
	Eligible         bool                   `json:"eligible"`
	Reason           string                 `json:"reason,omitempty"`
	Details          map[string]interface{} `json:"details,omitempty"`
	PointsWouldSteal int64                  `json:"points_would_steal,omitempty"`
}

// CheckEligibility runs the advisory heist pre-flight check
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	thiefID := r.URL.Query().Get("thief")
	victimID := r.URL.Query().Get("victim")
	if thiefID == "" || victimID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	eligibility, err := h.engine.CheckEligibility(r.Context(), thiefID, victimID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := eligibilityResponse{
		Eligible:         eligibility.Eligible,
		Reason:           string(eligibility.Reason),
		PointsWouldSteal: eligibility.PointsWouldSteal,
	}
	if eligibility.Reason == domain.ReasonCooldown {
		resp.Details = map[string]interface{}{
			"hours_remaining": eligibility.HoursRemaining,
		}
	}

	h.writeSuccess(w, resp)
}

// heistRequest is the heist execution request body.
type heistRequest struct {
	ThiefID  string `json:"thief_id"`
	VictimID string `json:"victim_id"`
}

// ExecuteHeist performs an atomic point transfer between two users
func (h *Handler) ExecuteHeist(w http.ResponseWriter, r *http.Request) {
	var req heistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.engine.Execute(r.Context(), req.ThiefID, req.VictimID)
	if err != nil {
		var ineligible *domain.IneligibleHeistError
		if errors.As(err, &ineligible) {
			refusal := eligibilityResponse{
				Eligible: false,
				Reason:   string(ineligible.Reason),
			}
			if ineligible.Reason == domain.ReasonCooldown {
				refusal.Details = map[string]interface{}{
					"hours_remaining": ineligible.HoursRemaining,
				}
			}
			h.writeJSON(w, http.StatusUnprocessableEntity, APIResponse{
				Success: false,
				Error:   err.Error(),
				Data:    refusal,
			})
			return
		}
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"points_stolen":   result.PointsStolen,
		"hammer_consumed": result.HammerConsumed,
	})
}

// GetHammers returns the user's hammer inventory
func (h *Handler) GetHammers(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	hammers, err := h.inventory.Hammers(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"user_id": userID,
		"hammers": hammers,
	})
}

// GrantHammer provisions a hammer for the user
func (h *Handler) GrantHammer(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	id, err := h.inventory.GrantHammer(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    map[string]string{"id": id},
	})
}

// GetTokens returns the user's steal-token balance
func (h *Handler) GetTokens(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	balance, err := h.inventory.Tokens(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"user_id": userID,
		"tokens":  balance,
	})
}

// tokenCreditRequest is the token credit request body.
type tokenCreditRequest struct {
	Amount int64 `json:"amount"`
}

// CreditTokens adds steal tokens to the user's balance
func (h *Handler) CreditTokens(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req tokenCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	balance, err := h.inventory.CreditTokens(r.Context(), userID, req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"user_id": userID,
		"tokens":  balance,
	})
}

// nameRequest is the display-name update body.
type nameRequest struct {
	Name string `json:"name"`
}

// SetUserName stores the display name shown on leaderboard rows
func (h *Handler) SetUserName(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.cache.SetUserName(r.Context(), userID, req.Name); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]string{"user_id": userID, "name": req.Name})
}

// GetHeistHistory returns the user's newest heist attempts
func (h *Handler) GetHeistHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	attempts, err := h.inventory.Attempts(r.Context(), userID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"user_id":  userID,
		"attempts": attempts,
	})
}
