package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ignatzorin/bounty-escrow/internal/ai"
	"github.com/ignatzorin/bounty-escrow/internal/authz"
	"github.com/ignatzorin/bounty-escrow/internal/config"
	"github.com/ignatzorin/bounty-escrow/internal/db"
	"github.com/ignatzorin/bounty-escrow/internal/events"
	httpHandlers "github.com/ignatzorin/bounty-escrow/internal/http/handlers"
	httpRouter "github.com/ignatzorin/bounty-escrow/internal/http/router"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	"github.com/ignatzorin/bounty-escrow/internal/logger"
	"github.com/ignatzorin/bounty-escrow/internal/metrics"
	"github.com/ignatzorin/bounty-escrow/internal/repository"
	"github.com/ignatzorin/bounty-escrow/internal/service"
	"github.com/ignatzorin/bounty-escrow/internal/storage"
	"github.com/ignatzorin/bounty-escrow/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logger.Setup(cfg.Env)

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.DefaultPool)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose("база", dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	ledgerMetrics := metrics.NewLedgerMetrics(nil)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run(ctx)

	sinks := []events.Sink{events.LogSink(), events.MetricsSink(ledgerMetrics.ObserveEvents), hub}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic).OnFailure(ledgerMetrics.ObserveKafkaFailure)
		defer safeClose("kafka", kafkaPublisher)
		sinks = append(sinks, kafkaPublisher)
	}

	// Реестр восстанавливается из журнала до приёма запросов.
	ledgerRepo := repository.NewLedgerRepository(dbConn)
	records, err := ledgerRepo.Load(ctx)
	if err != nil {
		log.Fatalf("main: ошибка чтения журнала: %v", err)
	}

	book := ledger.New(ledger.SystemClock{},
		ledger.WithJournal(ledgerRepo),
		ledger.WithPublisher(events.NewFanout(sinks...)),
		ledger.WithObserver(ledgerMetrics),
	)
	if err := book.Restore(records); err != nil {
		log.Fatalf("main: ошибка восстановления реестра: %v", err)
	}

	sys := service.NewSystem(book)
	if err := bootstrap(ctx, sys, cfg); err != nil {
		log.Fatalf("main: ошибка инициализации системы: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	service.NewKeeper(sys, cfg.KeeperInterval).WithObserver(ledgerMetrics).Start(ctx)

	var advisory *service.AdvisoryService
	if cfg.AIBaseURL != "" && cfg.AIModel != "" {
		advisory = service.NewAdvisoryService(sys, ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel))
	}

	evidenceStorage, err := storage.NewEvidenceStorage(cfg.EvidenceStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}
	evidenceRepo := repository.NewEvidenceRepository(dbConn)

	// HTTP хэндлеры.
	handlers := httpRouter.Handlers{
		Auth:       httpHandlers.NewAuthHandler(tokenManager, sys),
		Bounty:     httpHandlers.NewBountyHandler(sys.Registry, advisory),
		Submission: httpHandlers.NewSubmissionHandler(sys.Submissions),
		Dispute:    httpHandlers.NewDisputeHandler(sys.Disputes, advisory),
		Reputation: httpHandlers.NewReputationHandler(sys.Oracle, sys.Registry),
		Escrow:     httpHandlers.NewEscrowHandler(sys.Escrow),
		Admin:      httpHandlers.NewAdminHandler(sys, ledgerRepo),
		Evidence:   httpHandlers.NewEvidenceHandler(evidenceStorage, evidenceRepo),
		WS:         httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
		Health:     httpHandlers.NewHealthHandler(dbConn, sys),
	}

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, handlers, tokenManager)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// bootstrap выполняет первичную настройку только на пустом журнале.
func bootstrap(ctx context.Context, sys *service.System, cfg *config.Config) error {
	ok, err := sys.Initialized(ctx)
	if err != nil || ok {
		return err
	}

	grants := make(map[authz.Role][]common.Address, len(cfg.RoleGrants))
	for role, addrs := range cfg.RoleGrants {
		grants[authz.Role(role)] = addrs
	}

	log.Printf("main: первичная настройка, администратор %s", cfg.AdminAddress.Hex())
	return sys.Bootstrap(ctx, service.Genesis{
		Admin:           cfg.AdminAddress,
		Treasury:        cfg.TreasuryAddress,
		FeeBps:          cfg.PlatformFeeBps,
		AppealThreshold: cfg.AppealThreshold,
		Updaters:        cfg.OracleUpdaters,
		Grants:          grants,
	})
}

// safeClose закрывает ресурс при остановке.
func safeClose(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Printf("main: ошибка закрытия (%s): %v", name, err)
	}
}
