package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"paradexbot/internal/api"
	"paradexbot/internal/bot"
	"paradexbot/internal/config"
	"paradexbot/internal/exchange"
	"paradexbot/internal/market"
	"paradexbot/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	logger.Info("запуск бота",
		zap.String("env", cfg.Exchange.Env),
		zap.String("market", cfg.Trading.Market),
	)

	// Аутентификация: L2 ключ предпочтительнее, L1 как fallback
	privateKey := cfg.Exchange.L2PrivateKey
	if privateKey == "" {
		privateKey = cfg.Exchange.L1PrivateKey
	}

	auth := exchange.NewAuthenticator(exchange.AuthConfig{
		BaseURL:    cfg.Exchange.RESTBaseURL(),
		L1Address:  cfg.Exchange.L1Address,
		PrivateKey: privateKey,
		TokenTTL:   cfg.Exchange.TokenTTL,
	}, nil, logger)

	// REST клиент биржи
	client := exchange.NewClient(cfg.Exchange.RESTBaseURL(), auth, logger)

	// Торговый движок
	engine := bot.NewEngine(bot.Config{
		Market: cfg.Trading.Market,
		Fees: bot.FeeSchedule{
			Taker: cfg.Trading.TakerFeePct,
			Maker: cfg.Trading.MakerFeePct,
		},
		MinProfitUSD:    cfg.Trading.MinProfitUSD,
		MinProfitSpread: cfg.Trading.MinProfitSpread,
		OrderSizeCap:    cfg.Trading.OrderSizeCap,
		Leverage:        cfg.Trading.Leverage,
		ReservedPct:     cfg.Trading.BalanceReservedPct,
		MaxOpenBatches:  cfg.Trading.MaxOpenBatches,
		PollInterval:    cfg.Trading.PollInterval,
		BalanceRefresh:  cfg.Trading.BalanceRefresh,
	}, client, logger)

	// WebSocket шлюз: все события сериализуются в inbox движка
	reconnect := exchange.DefaultWSReconnectConfig()
	reconnect.InitialDelay = cfg.Exchange.WSReconnectDelay
	reconnect.PingInterval = cfg.Exchange.WSPingInterval

	gateway := exchange.NewGateway(exchange.GatewayConfig{
		WSURL:     cfg.Exchange.WSURL(),
		Market:    cfg.Trading.Market,
		Depth:     cfg.Trading.BookDepth,
		Reconnect: reconnect,
	}, auth, logger)

	gateway.OnSnapshot(func(bids, asks []market.Level) {
		engine.Post(bot.BookSnapshotEvent{Bids: bids, Asks: asks})
	})
	gateway.OnDelta(func(inserts []market.Insert) {
		engine.Post(bot.BookDeltaEvent{Inserts: inserts})
	})
	gateway.OnOrderStatus(func(clientID, status string) {
		engine.Post(bot.OrderStatusEvent{ClientID: clientID, Status: status})
	})
	gateway.OnAccountUpdate(func() {
		engine.Post(bot.AccountUpdateEvent{})
	})
	gateway.OnConnState(func(connected bool) {
		if connected {
			bot.WSConnectionStatus.Set(1)
		} else {
			bot.WSConnectionStatus.Set(0)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запуск движка до подключения шлюза: события не должны теряться
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(ctx)
	}()

	if err := gateway.Connect(); err != nil {
		logger.Fatal("не удалось подключиться к бирже", zap.Error(err))
	}

	// HTTP сервер статуса
	router := api.SetupRoutes(&api.Dependencies{
		Engine: engine,
		Log:    logger.Named("api"),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP сервер статуса запущен", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP сервер упал", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("остановка бота...")

	cancel()
	<-engineDone

	if err := gateway.Close(); err != nil {
		logger.Warn("ошибка закрытия WebSocket", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ошибка остановки HTTP сервера", zap.Error(err))
	}

	exchange.CloseGlobalClient()

	logger.Info("бот остановлен")
}
