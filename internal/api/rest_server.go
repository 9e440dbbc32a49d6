package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/annel0/skyplots/internal/auth"
	"github.com/annel0/skyplots/internal/logging"
	"github.com/annel0/skyplots/internal/middleware"
	"github.com/annel0/skyplots/internal/service"
	"github.com/annel0/skyplots/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Version — версия сервиса в /api/server
const Version = "v0.3.0"

// WorldStats отдаёт статистику мира для /api/server
type WorldStats interface {
	Stats() world.Stats
}

// RestServer представляет REST API сервер
type RestServer struct {
	router           *gin.Engine
	service          *service.PlotService
	operators        auth.OperatorRepository
	issuer           *auth.TokenIssuer
	world            WorldStats
	metrics          *ServerMetrics
	webhookConfig    WebhookConfig
	outboundWebhooks *OutboundWebhookManager
	log              *logging.Logger

	addr       string
	httpServer *http.Server
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr      string                   // адрес для запуска сервера
	Service   *service.PlotService     // командная поверхность участков
	Operators auth.OperatorRepository  // операторы API
	Issuer    *auth.TokenIssuer        // выпуск и проверка токенов
	World     WorldStats               // необязательно
	Webhook   WebhookConfig            // входящие уведомления
	Outbound  *OutboundWebhookManager  // исходящие подписки; nil — без них
	// Registerer/Gatherer для HTTP-метрик; nil — глобальный регистр Prometheus
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Addr == "" {
		config.Addr = ":8088"
	}
	if config.Service == nil || config.Operators == nil || config.Issuer == nil {
		return nil, errors.New("rest server requires service, operators and issuer")
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Outbound == nil {
		config.Outbound = NewOutboundWebhookManager(config.Service.Registry().WorldID())
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("rest_api"))

	loggerMw := middleware.NewRequestLogger()
	router.Use(loggerMw.Handler())

	promMw, err := middleware.NewPrometheusMiddleware("rest_api", config.Registerer)
	if err != nil {
		return nil, err
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	server := &RestServer{
		router:           router,
		service:          config.Service,
		operators:        config.Operators,
		issuer:           config.Issuer,
		world:            config.World,
		metrics:          NewServerMetrics(),
		webhookConfig:    config.Webhook,
		outboundWebhooks: config.Outbound,
		log:              logging.GetAPILogger(),
		addr:             config.Addr,
	}

	// Настраиваем маршруты
	server.setupRoutes()

	return server, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Группа API
	api := rs.router.Group("/api")

	// Эндпоинт для аутентификации (без JWT защиты)
	api.POST("/auth/login", rs.handleLogin)

	// Уведомления игрового сервера (без JWT, с подписью)
	api.POST("/webhook", rs.HandleWebhook)

	// Защищенные эндпоинты (требуют JWT)
	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/plots", rs.handleListPlots)
		protected.GET("/plots/:owner", rs.handleGetPlot)
		protected.GET("/lobby", rs.handleGetLobby)
		protected.GET("/templates", rs.handleListTemplates)
		protected.GET("/server", rs.handleServerInfo)

		// Изменяющие операции (только для админов)
		admin := protected.Group("/")
		admin.Use(rs.adminMiddleware())
		{
			admin.POST("/plots/:owner", rs.handleCreatePlot)
			admin.POST("/plots/:owner/regen", rs.handleRegeneratePlot)
			admin.POST("/teams/:team/plot", rs.handleTeamPlot)
			admin.POST("/templates/reload", rs.handleReloadTemplates)

			// Управление исходящими webhook'ами
			admin.GET("/webhooks", rs.handleGetOutboundWebhooks)
			admin.POST("/webhooks", rs.handleCreateOutboundWebhook)
			admin.DELETE("/webhooks/:id", rs.handleDeleteOutboundWebhook)
		}
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token,omitempty"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	IsAdmin   bool      `json:"is_admin,omitempty"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	op, err := rs.operators.ValidateCredentials(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		rs.log.Warn("🔒 Неудачный вход оператора %s с %s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, LoginResponse{
			Success: false,
			Message: "Неверное имя пользователя или пароль",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	token, expires, err := rs.issuer.Issue(op)
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Ошибка генерации токена",
		})
		return
	}

	rs.log.Info("🔑 Оператор %s вошёл (admin=%v)", op.Username, op.IsAdmin)
	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		Message:   "Успешный вход",
		ExpiresAt: expires,
		IsAdmin:   op.IsAdmin,
	})
}

// handleServerInfo возвращает информацию о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, err := rs.metrics.GetCPUUsage()
	if err != nil {
		rs.log.Debug("CPU недоступен: %v", err)
	}

	registry := rs.service.Registry()
	cursor := registry.Cursor()
	info := map[string]interface{}{
		"version":      Version,
		"name":         "skyplots",
		"status":       "running",
		"uptime":       rs.metrics.GetUptime(),
		"memory_mb":    memoryMB,
		"cpu_percent":  cpuPercent,
		"goroutines":   rs.metrics.Goroutines(),
		"world":        registry.WorldID(),
		"plots":        registry.Len(),
		"spacing":      cursor.Spacing,
		"cursor_layer": cursor.Layer,
	}
	if rs.world != nil {
		info["world_stats"] = rs.world.Stats()
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Информация о сервере",
		Data:    info,
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Handler возвращает http.Handler сервера
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает REST сервер и блокируется до остановки
func (rs *RestServer) Start() error {
	rs.httpServer = &http.Server{
		Addr:              rs.addr,
		Handler:           rs.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	rs.log.Info("🌐 REST API слушает %s", rs.addr)
	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown останавливает сервер, дожидаясь текущих запросов
func (rs *RestServer) Shutdown(ctx context.Context) error {
	rs.outboundWebhooks.Close()
	if rs.httpServer == nil {
		return nil
	}
	return rs.httpServer.Shutdown(ctx)
}
