package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shinyyama/paychat-backend/internal/config"
	"github.com/shinyyama/paychat-backend/internal/handler"
	"github.com/shinyyama/paychat-backend/internal/logger"
	"github.com/shinyyama/paychat-backend/internal/metrics"
	appmw "github.com/shinyyama/paychat-backend/internal/middleware"
	"github.com/shinyyama/paychat-backend/internal/openpayments"
	"github.com/shinyyama/paychat-backend/internal/pending"
	"github.com/shinyyama/paychat-backend/internal/repository"
	"github.com/shinyyama/paychat-backend/internal/service"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const janitorInterval = time.Minute

// Deps are the collaborators New wires together. Network and Registry are
// optional; nil values are built from Config.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   zerolog.Logger
	Verifier appmw.TokenVerifier
	Network  service.PaymentNetwork
	Registry *prometheus.Registry
}

type Server struct {
	e       *echo.Echo
	pending *pending.Registry
	log     zerolog.Logger
}

func New(d Deps) (*Server, error) {
	if d.Config == nil || d.DB == nil || d.Verifier == nil {
		return nil, errors.New("server: config, db and verifier are required")
	}
	cfg := d.Config

	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metrics.New(reg)

	network := d.Network
	if network == nil {
		client, err := openpayments.NewFromConfig(cfg, m)
		if err != nil {
			return nil, err
		}
		network = client
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(logger.Middleware(d.Logger))
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin(cfg.Origin),
	}))

	serviceRepo := repository.NewServiceRepository(d.DB)
	userRepo := repository.NewUserRepository(d.DB)
	chatRepo := repository.NewChatRepository(d.DB)
	purchaseRepo := repository.NewPurchaseRepository(d.DB)
	notificationRepo := repository.NewNotificationRepository(d.DB)

	registry := pending.NewRegistry(cfg.PendingPurchaseTTL, m)

	notifySvc := service.NewNotificationService(notificationRepo)
	purchaseSvc := service.NewPurchaseService(service.PurchaseDeps{
		Services:      serviceRepo,
		Users:         userRepo,
		Chats:         chatRepo,
		Notifications: notifySvc,
		Network:       network,
		Pending:       registry,
		Metrics:       m,
		Config: service.PurchaseConfig{
			CallbackURL:    cfg.CallbackURL(),
			IncomingExpiry: cfg.IncomingPaymentExpiry(),
			DefaultBilling: cfg.DefaultBillingISO,
		},
	})
	ledgerSvc := service.NewLedgerService(purchaseRepo)
	catalogSvc := service.NewCatalogService(serviceRepo, userRepo, network)
	chatSvc := service.NewChatService(chatRepo, serviceRepo, userRepo, notifySvc, m)
	userSvc := service.NewUserService(userRepo, network, cfg.WalletURL)

	purchaseHandler := handler.NewPurchaseHandler(purchaseSvc, ledgerSvc, cfg.Origin)
	serviceHandler := handler.NewServiceHandler(catalogSvc)
	chatHandler := handler.NewChatHandler(chatSvc)
	userHandler := handler.NewUserHandler(userSvc)
	notificationHandler := handler.NewNotificationHandler(notifySvc)

	auth := appmw.NewAuthMiddleware(d.Verifier).RequireAuth
	limiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimitPerSecond)))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"ok":              true,
			"git_sha":         cfg.GitSHA,
			"build_time":      cfg.BuildTime,
			"pending":         registry.Len(),
			"network_breaker": breakerState(network),
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	e.GET(cfg.InteractCallbackPath, purchaseHandler.Callback)

	api := e.Group("/api")
	purchases := api.Group("/purchases", limiter, auth)
	purchases.POST("/renew/:chatId", purchaseHandler.Renew)
	purchases.DELETE("/pending/:nonce", purchaseHandler.Cancel)
	purchases.POST("/:serviceId", purchaseHandler.Start)
	purchases.POST("/:serviceId/interval", purchaseHandler.StartInterval)

	api.GET("/services", serviceHandler.List)
	api.GET("/services/:id", serviceHandler.Get)
	api.POST("/services", serviceHandler.Create, auth)
	api.PUT("/services/:id", serviceHandler.Update, auth)
	api.DELETE("/services/:id", serviceHandler.Delete, auth)

	api.GET("/chats", chatHandler.List, auth)
	api.GET("/chats/:id", chatHandler.Get, auth)
	api.GET("/chats/:id/messages", chatHandler.ListMessages, auth)
	api.POST("/chats/:id/messages", chatHandler.Send, auth)

	api.GET("/me", userHandler.Me, auth)
	api.PUT("/me", userHandler.SaveMe, auth)
	api.GET("/me/asset", userHandler.MyAsset, auth)
	api.GET("/me/purchases", purchaseHandler.ListMine, auth)
	api.GET("/me/sales", purchaseHandler.ListSales, auth)
	api.GET("/users/:uid/public", userHandler.GetPublic)

	api.GET("/notifications", notificationHandler.List, auth)
	api.POST("/notifications/read", notificationHandler.MarkAllRead, auth)

	registry.Start(janitorInterval)
	return &Server{e: e, pending: registry, log: d.Logger}, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("starting server")
	return s.e.Start(addr)
}

// Shutdown drains in-flight requests and stops the pending-purchase janitor.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.pending.Close()
	return s.e.Shutdown(ctx)
}

func breakerState(network service.PaymentNetwork) string {
	if c, ok := network.(*openpayments.Client); ok {
		return c.BreakerState()
	}
	return "n/a"
}

// allowOrigin admits the configured frontend plus local and preview hosts.
func allowOrigin(configured string) func(string) (bool, error) {
	configured = strings.TrimRight(strings.ToLower(configured), "/")
	return func(origin string) (bool, error) {
		low := strings.ToLower(origin)
		if configured != "" && low == configured {
			return true, nil
		}
		if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
			strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
			return true, nil
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false, nil
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false, nil
		}
		if strings.HasSuffix(u.Hostname(), "vercel.app") {
			return true, nil
		}
		return false, nil
	}
}
