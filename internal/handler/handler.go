package handler

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"yakssok-api/internal/auth"
	"yakssok-api/internal/calendar"
	"yakssok-api/internal/coordination"
	"yakssok-api/internal/middleware"
	"yakssok-api/internal/model"
)

// AccountStore holds users and their refresh tokens.
type AccountStore interface {
	UpsertGoogleUser(ctx context.Context, u *model.User) error
	UserByID(ctx context.Context, id string) (*model.User, error)
	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, userID, newHash string, newExpiry time.Time) (string, error)
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

type GoogleLogin interface {
	AuthURL(state string, force bool) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	UserInfo(ctx context.Context, tok *oauth2.Token) (*auth.GoogleUser, error)
}

type Sealer interface {
	Seal(plain string) (string, error)
}

type EventLister interface {
	ListEvents(ctx context.Context, userID string, p calendar.ListParams) (*calendar.Page, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Appointments *coordination.Service
	Accounts     AccountStore
	Google       GoogleLogin
	Sealer       Sealer
	Calendar     EventLister
	DB           Pinger
	Limiter      *middleware.RateLimiter
}

type Config struct {
	Secret      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	FrontendURL string
	// TrustedProxies are the reverse proxies allowed to set X-Forwarded-For.
	TrustedProxies []string
}

type Handler struct {
	Deps
	cfg Config
}

func New(d Deps, cfg Config) *Handler {
	return &Handler{Deps: d, cfg: cfg}
}

// Router wires every HTTP route.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	if err := middleware.TrustProxies(r, h.cfg.TrustedProxies); err != nil {
		log.Printf("trusted proxies %v ignored: %v", h.cfg.TrustedProxies, err)
	}
	r.Use(middleware.RequestLog(), gin.Recovery(), middleware.CORS(h.cfg.FrontendURL))

	requireAuth := middleware.RequireAuth(h.cfg.Secret)
	limit := h.Limiter.Limit()

	r.GET("/health", h.Health)

	appts := r.Group("/appointments")
	appts.POST("", requireAuth, h.CreateAppointment)
	appts.POST("/", requireAuth, h.CreateAppointment)
	appts.GET("/:code", h.GetAppointment)
	appts.GET("/:code/dates", h.ListCandidateDates)
	appts.POST("/:code/join", limit, requireAuth, h.JoinAppointment)
	appts.PATCH("/:code/participation", requireAuth, h.UpdateParticipation)
	appts.GET("/:code/participations", requireAuth, h.ListParticipations)
	appts.POST("/:code/status", requireAuth, h.SetStatus)

	r.GET("/calendar/events", requireAuth, h.ListCalendarEvents)

	r.GET("/user/google/login", limit, h.GoogleLogin)
	r.GET("/user/google/callback", limit, h.GoogleCallback)
	r.POST("/auth/refresh", limit, h.Refresh)
	r.POST("/auth/logout", requireAuth, h.Logout)

	return r
}

func uid(c *gin.Context) string {
	return middleware.UserID(c.Request.Context())
}
