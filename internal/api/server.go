package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/tender-finder/internal/auth"
	"github.com/david/tender-finder/internal/db"
	"github.com/david/tender-finder/internal/embed"
	"github.com/david/tender-finder/internal/feedback"
	"github.com/david/tender-finder/internal/match"
	"github.com/david/tender-finder/internal/models"
	"github.com/david/tender-finder/internal/obs"
	"github.com/david/tender-finder/internal/similar"
)

// Server wires the HTTP surface (§6) on top of the Matcher, Feedback
// Processor, Similar-Tender Service and company account store.
type Server struct {
	Store       *db.Store
	AuthService *auth.Service
	Matcher     *match.Matcher
	Feedback    *feedback.Processor
	Similar     *similar.Service
	Embedder    embed.Embedder
	Echo        *echo.Echo
	DB          *pgxpool.Pool
	log         obs.Logger
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

var profileOptions = models.ProfileOptions{
	Sectors: []string{
		"construction", "ict", "consulting", "supply_and_logistics",
		"agriculture", "manufacturing", "energy", "healthcare", "education",
	},
	Regions: []string{
		"addis_ababa", "oromia", "amhara", "tigray", "sidama",
		"snnpr", "somali", "afar", "national",
	},
	Certifications: []string{"iso9001", "iso14001", "ohsas18001"},
	Languages:      []string{"english", "amharic"},
	CompanySizes:   []string{"startup", "small", "medium", "large"},
	YearsInOperation: []string{"<1", "1-3", "3-5", "5-10", "10+"},
}

func NewServer(pool *pgxpool.Pool, matcher *match.Matcher, proc *feedback.Processor, simSvc *similar.Service, embedder embed.Embedder, log obs.Logger) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		DB:          pool,
		Store:       db.NewStore(pool),
		AuthService: auth.NewService(pool),
		Matcher:     matcher,
		Feedback:    proc,
		Similar:     simSvc,
		Embedder:    embedder,
		Echo:        e,
		log:         log,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)
	api.GET("/company-profile/options", s.handleProfileOptions)

	protected := api.Group("")
	protected.Use(auth.Middleware)
	protected.GET("/company-profile", s.handleGetProfile)
	protected.PUT("/company-profile", s.handlePutProfile)
	protected.GET("/recommendations", s.handleRecommend)
	protected.GET("/recommendations/tenders/:id/similar", s.handleSimilar)
	protected.POST("/recommendations/feedback/:tender_id", s.handleFeedback)
	protected.POST("/recommendations/refresh-profile-embedding", s.handleRefreshEmbedding)

	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/admin/recompute-popularity-p95", s.handleRecomputePopularityP95)
}

// --- Auth ---

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email and password are required"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrUserExists {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		s.log.Error("signup failed", map[string]interface{}{"error": err.Error()})
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		}
		s.log.Error("login failed", map[string]interface{}{"error": err.Error()})
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// --- Company profile ---

func (s *Server) handleProfileOptions(c echo.Context) error {
	return c.JSON(http.StatusOK, profileOptions)
}

func (s *Server) handleGetProfile(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	profile, err := s.Store.GetProfileByCompanyID(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "profile not found"})
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) handlePutProfile(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var req models.CompanyProfile
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	req.CompanyID = userID
	req.ComputeCompletion()

	ctx, cancel := timeoutCtx(c, 2*time.Second)
	defer cancel()

	updated, err := s.Store.UpsertProfile(ctx, req)
	if err != nil {
		s.log.Error("profile update failed", map[string]interface{}{"error": err.Error()})
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, updated)
}

// --- Recommendations ---

func (s *Server) handleRecommend(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	filters := match.Filters{
		Limit:     atoiOr(c.QueryParam("limit"), 0),
		MinScore:  atoiOr(c.QueryParam("min_score"), 0),
		DaysAhead: atoiOr(c.QueryParam("days_ahead"), 0),
		Sectors:   splitCSV(c.QueryParam("sectors")),
		Regions:   splitCSV(c.QueryParam("regions")),
	}

	ctx, cancel := timeoutCtx(c, 2*time.Second)
	defer cancel()

	resp, err := s.Matcher.Recommend(ctx, userID, filters)
	if err != nil {
		switch err {
		case match.ErrShed:
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "server is under load, retry shortly"})
		case match.ErrProfileNotFound:
			return c.JSON(http.StatusNotFound, map[string]string{"error": "company profile not found"})
		case match.ErrProfileIncomplete:
			return c.JSON(http.StatusConflict, map[string]string{"error": "company profile is incomplete"})
		default:
			s.log.Error("recommend failed", map[string]interface{}{"error": err.Error()})
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSimilar(c echo.Context) error {
	tenderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid tender id"})
	}
	limit := atoiOr(c.QueryParam("limit"), 10)

	ctx, cancel := timeoutCtx(c, 1*time.Second)
	defer cancel()

	resp, err := s.Similar.Similar(ctx, tenderID, limit)
	if err != nil {
		switch err {
		case similar.ErrReferenceNotEmbedded:
			return c.JSON(http.StatusConflict, map[string]string{"error": "reference tender has no embedding yet"})
		default:
			s.log.Error("similar failed", map[string]interface{}{"error": err.Error()})
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type feedbackRequest struct {
	Type             models.InteractionType `json:"interaction_type"`
	TimeSpentSeconds *int                    `json:"time_spent_seconds,omitempty"`
	FeedbackReason   string                  `json:"feedback_reason,omitempty"`
	MatchScoreAtTime *int                    `json:"match_score_at_time,omitempty"`
}

func (s *Server) handleFeedback(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	tenderID, err := uuid.Parse(c.Param("tender_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid tender id"})
	}

	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if !req.Type.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unrecognized interaction type"})
	}

	ctx, cancel := timeoutCtx(c, 500*time.Millisecond)
	defer cancel()

	tender, err := s.Store.GetTenderByID(ctx, tenderID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "tender not found"})
	}

	id, err := s.Feedback.RecordInteraction(ctx, userID, tenderID, userID, req.Type, req.TimeSpentSeconds,
		req.FeedbackReason, req.MatchScoreAtTime, tender.Category, tender.Region, tender.BudgetAmount)
	if err != nil {
		s.log.Error("record interaction failed", map[string]interface{}{"error": err.Error()})
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":        true,
		"interaction_id": id.String(),
		"message":        "interaction recorded",
	})
}

func (s *Server) handleRefreshEmbedding(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	profile, err := s.Store.GetProfileByCompanyID(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "profile not found"})
	}

	ctx, cancel := timeoutCtx(c, 5*time.Second)
	defer cancel()

	composed := embed.ComposeProfileText(profile)
	reembedded, err := s.Feedback.TriggerReembedIfDirty(ctx, profile.ID, userID, composed, true)
	if err != nil {
		s.log.Error("refresh embedding failed", map[string]interface{}{"error": err.Error()})
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"reembedded": reembedded})
}

// --- Admin ---

func (s *Server) handleRecomputePopularityP95(c echo.Context) error {
	p95, err := s.Store.PopularityP95(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]float64{"popularity_p95": p95})
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "server admin configuration error"})
		}

		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if authHeader[7:] == secret {
				return next(c)
			}
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}
		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})
	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}
	return adminSecretRuntime, nil
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}

func timeoutCtx(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}
