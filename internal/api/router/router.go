package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lumivoice/frontdesk-ai/internal/http/handlers"
	httpmiddleware "github.com/lumivoice/frontdesk-ai/internal/http/middleware"
	"github.com/lumivoice/frontdesk-ai/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	VoiceWebhook       *handlers.VoiceWebhookHandler
	Setup              *handlers.SetupHandler
	Health             *handlers.HealthHandler
	Stream             http.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// SetupRateLimit caps persona registrations per IP per second. Zero
	// disables the limiter.
	SetupRateLimit float64
	SetupRateBurst int

	// VoiceStartRateLimit caps call.started events per caller identity per
	// second; mid-call events are exempt. Zero disables the limiter.
	VoiceStartRateLimit float64
	VoiceStartRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.HandleHealth)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Transport bindings. The webhook and the stream drive the same core;
	// a deployment typically wires only one of them to its telephony side.
	if cfg.VoiceWebhook != nil {
		webhook := chi.NewRouter()
		if cfg.VoiceStartRateLimit > 0 {
			limiter := httpmiddleware.NewLimiter(cfg.VoiceStartRateLimit, cfg.VoiceStartRateBurst, nil)
			webhook.Use(httpmiddleware.RateLimitKeyed(limiter, httpmiddleware.VoiceStartKey))
		}
		webhook.Post("/", cfg.VoiceWebhook.HandleVoice)
		r.Mount("/webhooks/voice", webhook)
	}
	if cfg.Stream != nil {
		r.Get("/stream/voice", cfg.Stream.ServeHTTP)
	}

	if cfg.Setup != nil {
		setup := chi.NewRouter()
		if cfg.SetupRateLimit > 0 {
			setup.Use(httpmiddleware.RateLimit(cfg.SetupRateLimit, cfg.SetupRateBurst))
		}
		setup.Post("/session", cfg.Setup.HandleCreateSession)
		r.Mount("/setup", setup)
	}

	return r
}
