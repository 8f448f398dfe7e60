// Package server exposes the achievements gateway HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"girochain/services/achievements-gateway/auth"
	"girochain/services/achievements-gateway/middleware"
	"girochain/services/achievements-gateway/mirror"
	"girochain/services/achievements-gateway/models"
	"girochain/services/achievements-gateway/orchestrator"
	"girochain/services/achievements-gateway/storage"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Store           *mirror.Store
	Orchestrator    *orchestrator.Orchestrator
	Auth            *auth.Middleware
	Idempotency     *storage.SQLiteStore
	RateLimitPerMin int
	AllowedOrigins  []string
	Logger          *slog.Logger
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	store        *mirror.Store
	orchestrator *orchestrator.Orchestrator
	authMW       *auth.Middleware
	idempotency  *storage.SQLiteStore
	logger       *slog.Logger
	obs          *middleware.Observability

	router http.Handler
}

// New constructs a configured HTTP router with authentication, rate limiting
// and idempotency support.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 120
	}
	srv := &Server{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		authMW:       cfg.Auth,
		idempotency:  cfg.Idempotency,
		logger:       logger,
		obs: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "achievements-gateway",
			Enabled:     true,
		}, log.Default()),
	}
	srv.router = srv.buildRouter(cfg)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	limits := map[string]middleware.RateLimit{
		"api":    {RequestsPerMinute: float64(cfg.RateLimitPerMin), Burst: cfg.RateLimitPerMin / 4},
		"claims": {RequestsPerMinute: float64(cfg.RateLimitPerMin) / 4, Burst: 5},
	}
	limiter := middleware.NewRateLimiter(limits, log.Default())

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}))

	r.Get("/healthz", s.Healthz)
	r.Method(http.MethodGet, "/metrics", s.obs.MetricsHandler())

	r.Route("/v1", func(api chi.Router) {
		api.With(s.obs.Middleware("products"), limiter.Middleware("api")).Get("/products", s.ListProducts)

		api.Group(func(protected chi.Router) {
			protected.Use(s.obs.Middleware("users"))
			protected.Use(limiter.Middleware("api"))
			protected.Use(s.authMW.Handler)
			protected.Post("/users", s.RegisterUser)
			protected.Post("/users/{wallet}/onboarding/complete", s.CompleteOnboarding)
			protected.Get("/users/{wallet}/achievements", s.GetAchievements)
			protected.Get("/users/{wallet}/claims", s.ListClaims)
		})

		api.Group(func(claims chi.Router) {
			claims.Use(s.obs.Middleware("claims"))
			claims.Use(limiter.Middleware("claims"))
			claims.Use(s.authMW.Handler)
			claims.Use(func(next http.Handler) http.Handler {
				return middleware.WithIdempotency(s.idempotency, next)
			})
			claims.Post("/claims/{kind}", s.SubmitClaim)
		})
	})

	return r
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerUserRequest struct {
	Username string `json:"username"`
}

type userResponse struct {
	Wallet           string `json:"wallet"`
	Username         string `json:"username,omitempty"`
	ProfileCompleted bool   `json:"profileCompleted"`
	RewardClaimed    bool   `json:"rewardClaimed"`
}

// RegisterUser creates the mirror rows for the authenticated wallet. The call
// is safe to repeat.
func (s *Server) RegisterUser(w http.ResponseWriter, r *http.Request) {
	wallet, ok := auth.WalletFromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	user, err := s.store.EnsureUser(wallet, strings.TrimSpace(req.Username))
	if err != nil {
		s.logger.Error("register user", slog.Any("error", err))
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}
	onboarding, err := s.store.Onboarding(wallet)
	if err != nil {
		s.logger.Error("load onboarding", slog.Any("error", err))
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusCreated, userResponse{
		Wallet:           user.Wallet,
		Username:         user.Username,
		ProfileCompleted: onboarding.ProfileCompleted,
		RewardClaimed:    onboarding.RewardClaimed,
	})
}

// CompleteOnboarding marks the profile step done, which unlocks the
// onboarding reward.
func (s *Server) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.walletFromPath(w, r)
	if !ok {
		return
	}
	if err := s.store.CompleteProfile(wallet); err != nil {
		if errors.Is(err, mirror.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		s.logger.Error("complete profile", slog.Any("error", err))
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"profileCompleted": true})
}

// GetAchievements returns the unlock and claim state for every reward kind.
func (s *Server) GetAchievements(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.walletFromPath(w, r)
	if !ok {
		return
	}
	achievements, err := s.store.Achievements(wallet)
	if err != nil {
		s.logger.Error("load achievements", slog.Any("error", err))
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"wallet": wallet, "achievements": achievements})
}

type claimEntry struct {
	Kind      string    `json:"kind"`
	AmountWei string    `json:"amountWei,omitempty"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListClaims returns the mirror's record of the wallet's reward claims.
func (s *Server) ListClaims(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.walletFromPath(w, r)
	if !ok {
		return
	}
	claims, err := s.store.Claims(wallet)
	if err != nil {
		s.logger.Error("load claims", slog.Any("error", err))
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	entries := make([]claimEntry, 0, len(claims))
	for _, claim := range claims {
		entries = append(entries, claimEntry{
			Kind:      claim.Kind,
			AmountWei: claim.AmountWei,
			Status:    string(claim.Status),
			UpdatedAt: claim.UpdatedAt.UTC(),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"wallet": wallet, "claims": entries})
}

// SubmitClaim pushes a reward claim through the orchestrator for the
// authenticated wallet. The achievement kind comes from the URL.
func (s *Server) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	wallet, ok := auth.WalletFromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	kind := strings.TrimSpace(chi.URLParam(r, "kind"))
	if kind == "" {
		http.Error(w, "kind is required", http.StatusBadRequest)
		return
	}
	result, err := s.orchestrator.Claim(r.Context(), wallet, kind)
	if err != nil {
		s.handleClaimError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleClaimError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNotUnlocked):
		http.Error(w, "achievement not unlocked", http.StatusConflict)
	case errors.Is(err, orchestrator.ErrAlreadyClaimed):
		http.Error(w, "reward already claimed", http.StatusConflict)
	case errors.Is(err, orchestrator.ErrPoolExhausted):
		http.Error(w, "reward pool exhausted", http.StatusServiceUnavailable)
	case errors.Is(err, mirror.ErrUserNotFound):
		http.Error(w, "user not found", http.StatusNotFound)
	default:
		s.logger.Error("claim failed", slog.Any("error", err))
		http.Error(w, "claim failed", http.StatusBadGateway)
	}
}

type productEntry struct {
	ID          uint64     `json:"id"`
	Seller      string     `json:"seller"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	PriceWei    string     `json:"priceWei"`
	Status      string     `json:"status"`
	Buyer       string     `json:"buyer,omitempty"`
	ListedAt    time.Time  `json:"listedAt"`
	SoldAt      *time.Time `json:"soldAt,omitempty"`
}

// ListProducts serves the mirrored marketplace catalogue. The status query
// parameter filters by active, sold or cancelled.
func (s *Server) ListProducts(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	switch status {
	case "", "active", "sold", "cancelled":
	default:
		http.Error(w, "unknown status filter", http.StatusBadRequest)
		return
	}
	records, err := s.store.Products(status)
	if err != nil {
		s.logger.Error("load products", slog.Any("error", err))
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	entries := make([]productEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, formatProduct(record))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"products": entries})
}

func formatProduct(record models.ProductRecord) productEntry {
	return productEntry{
		ID:          record.ChainID,
		Seller:      record.Seller,
		Title:       record.Title,
		Description: record.Description,
		PriceWei:    record.PriceWei,
		Status:      record.Status,
		Buyer:       record.Buyer,
		ListedAt:    record.ListedAt.UTC(),
		SoldAt:      record.SoldAt,
	}
}

// walletFromPath resolves the {wallet} path parameter and rejects requests
// whose token identity does not match it.
func (s *Server) walletFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller, ok := auth.WalletFromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return "", false
	}
	wallet := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "wallet")))
	if wallet == "" {
		http.Error(w, "wallet is required", http.StatusBadRequest)
		return "", false
	}
	if wallet != caller {
		http.Error(w, "wallet mismatch", http.StatusForbidden)
		return "", false
	}
	return wallet, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
