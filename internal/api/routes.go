package api

import (
	"net/http"

	"paradexbot/internal/api/handlers"
	"paradexbot/internal/api/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Engine handlers.StatusProvider
	Log    *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /health              - проверка живости
// /metrics             - метрики Prometheus
// /api/v1/
//
//	├── GET /status  - состояние движка (книга, баланс, позиция, батчи)
//	└── GET /batches - список батчей ордеров в полете
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	log := zap.NewNop()
	if deps != nil && deps.Log != nil {
		log = deps.Log
	}

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))

	// Создание handlers с внедрением зависимостей
	var statusHandler *handlers.StatusHandler
	if deps != nil && deps.Engine != nil {
		statusHandler = handlers.NewStatusHandler(deps.Engine)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	if statusHandler != nil {
		api.HandleFunc("/status", statusHandler.GetStatus).Methods("GET")
		api.HandleFunc("/batches", statusHandler.GetBatches).Methods("GET")
	}

	// Метрики Prometheus
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
