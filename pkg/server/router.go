// Package server assembles the chi router shared by the serverless entry
// point and the long-running CLI server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"democrm-backend/pkg/ai"
	"democrm-backend/pkg/config"
	"democrm-backend/pkg/database"
	"democrm-backend/pkg/events"
	"democrm-backend/pkg/handlers"
	"democrm-backend/pkg/mailer"
	customMiddleware "democrm-backend/pkg/middleware"
	"democrm-backend/pkg/seed"
	"democrm-backend/pkg/utils"
	"democrm-backend/pkg/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	requestTimeout = 25 * time.Second
	maxBodyBytes   = 1 << 20
)

// Dependencies are the collaborators the handlers are built from
type Dependencies struct {
	Config    *config.Config
	DB        database.DatabaseInterface
	Mailer    mailer.Mailer
	Assistant ai.Assistant
	Hub       *events.Hub
	Seeder    *seed.Seeder
	// Limiter guards sign-in; nil disables rate limiting
	Limiter customMiddleware.Limiter
}

// BuildDependencies 根据配置创建数据库、邮件、AI 与限流组件
func BuildDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	db, err := database.GetDatabase(database.DatabaseConfig{
		UseLocalDB:  cfg.UseLocalDB,
		PostgresDSN: cfg.PostgresDSN,
		Debug:       cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var m mailer.Mailer
	if cfg.ResendAPIKey != "" {
		m = mailer.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom)
	} else {
		fmt.Printf("⚠️  RESEND_API_KEY not set, emails are only logged\n")
		m = mailer.NewLogMailer()
	}

	deps := &Dependencies{
		Config:    cfg,
		DB:        db,
		Mailer:    m,
		Assistant: ai.NewOpenAIAssistant(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL),
		Hub:       events.NewHub(cfg.AllowedOrigins),
		Seeder:    seed.NewSeeder(db),
	}

	rdb, err := database.ConnectRedis(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		// 限流不可用时仍然提供服务
		fmt.Printf("⚠️  %v, sign-in rate limiting disabled\n", err)
	} else if rdb != nil {
		deps.Limiter = database.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute)
	}

	return deps, nil
}

// NewRouter 创建路由器
func NewRouter(deps *Dependencies) http.Handler {
	cfg := deps.Config
	router := chi.NewRouter()

	setupMiddleware(router, cfg)

	jwtService := utils.NewJWTService(cfg.JWTSecret)
	system := handlers.NewSystemHandler(cfg, deps.DB, deps.Hub)

	// websocket upgrades stay outside Timeout and Compress
	router.With(customMiddleware.AuthMiddleware(jwtService)).Get("/api/events", system.Events)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.Compress(5))
		setupRoutes(r, deps, jwtService, system)
	})

	// 404处理
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	// 405处理
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})

	return router
}

// setupMiddleware 设置全局中间件
func setupMiddleware(router *chi.Mux, cfg *config.Config) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path and restore scheme/host before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(cfg))
	router.Use(customMiddleware.Recovery(cfg))
	router.Use(customMiddleware.CORS(cfg))

	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

// setupRoutes 设置页面与 API 路由
func setupRoutes(router chi.Router, deps *Dependencies, jwtService *utils.JWTService, system *handlers.SystemHandler) {
	cfg, db := deps.Config, deps.DB

	authHandler := handlers.NewAuthHandler(cfg, db, jwtService, deps.Mailer, deps.Seeder)
	clientsHandler := handlers.NewClientsHandler(cfg, db, deps.Hub, deps.Mailer)
	companyHandler := handlers.NewCompanyHandler(cfg, db, deps.Hub, deps.Mailer)
	taskHandler := handlers.NewTaskHandler(cfg, db, deps.Hub)
	meetingHandler := handlers.NewMeetingHandler(cfg, db, deps.Hub)
	aiHandler := handlers.NewAIHandler(cfg, db, deps.Assistant)
	seedHandler := handlers.NewSeedHandler(cfg, deps.Seeder, deps.Hub)

	// 页面
	router.Group(func(r chi.Router) {
		r.Use(customMiddleware.OptionalAuthMiddleware(jwtService))
		web.NewServer(db).Routes(r)
	})

	if cfg.IsDevelopment() {
		router.Get("/debug/db-pool", func(w http.ResponseWriter, r *http.Request) {
			utils.WriteSuccessResponse(w, database.GetConnectionStats())
		})
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", system.HealthCheck)

		// 公开路由（不需要认证）
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.NoCache)
			r.Get("/callback/email", authHandler.Callback)
			r.With(customMiddleware.AuthMiddleware(jwtService)).Get("/session", authHandler.Session)

			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.MaxBodySize(maxBodyBytes))
				r.Use(customMiddleware.ContentTypeJSON)
				r.With(customMiddleware.RateLimitByIP(deps.Limiter)).Post("/signin", authHandler.SignIn)
				r.Post("/refresh", authHandler.RefreshToken)
				r.Post("/signout", authHandler.SignOut)
			})
		})

		// 需要认证的过程：查询用 GET，变更用 POST
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.MaxBodySize(maxBodyBytes))
			r.Use(customMiddleware.ContentTypeJSON)
			r.Use(customMiddleware.AuthMiddleware(jwtService))

			r.Route("/clients", func(r chi.Router) {
				r.Post("/create", clientsHandler.Create)
				r.Post("/update", clientsHandler.Update)
				r.Post("/delete", clientsHandler.Delete)
				r.Get("/getAll", clientsHandler.GetAll)
				r.Get("/getAvailable", clientsHandler.GetAvailable)
				r.Post("/sendEmail", clientsHandler.SendEmail)
			})

			r.Route("/company", func(r chi.Router) {
				r.Post("/create", companyHandler.Create)
				r.Post("/update", companyHandler.Update)
				r.Post("/delete", companyHandler.Delete)
				r.Get("/getAll", companyHandler.GetAll)
				r.Get("/getSelectCompanies", companyHandler.GetSelectCompanies)
				r.Post("/addClientTo", companyHandler.AddClientTo)
				r.Post("/sendEmail", companyHandler.SendEmail)
			})

			r.Route("/task", func(r chi.Router) {
				r.Post("/create", taskHandler.Create)
				r.Post("/update", taskHandler.Update)
				r.Post("/delete", taskHandler.Delete)
				r.Get("/getUpcoming", taskHandler.GetUpcoming)
				r.Get("/getCompanyTasks", taskHandler.GetCompanyTasks)
				r.Get("/getClientTasks", taskHandler.GetClientTasks)
				r.Post("/updateCompletion", taskHandler.UpdateCompletion)
				r.Post("/updateCompletions", taskHandler.UpdateCompletions)
			})

			r.Route("/meeting", func(r chi.Router) {
				r.Post("/create", meetingHandler.Create)
				r.Get("/upcoming", meetingHandler.Upcoming)
				r.Get("/upcomingClient", meetingHandler.UpcomingClient)
				r.Post("/delete", meetingHandler.Delete)
			})

			r.Route("/ai", func(r chi.Router) {
				r.Get("/dailyPlan", aiHandler.DailyPlan)
				r.Post("/generateEmail", aiHandler.GenerateEmail)
			})

			r.Post("/seed/seedDemo", seedHandler.SeedDemo)
		})
	})
}
