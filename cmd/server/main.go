package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"genieacs-portal/internal/audit"
	auditrepo "genieacs-portal/internal/audit/repository"
	"genieacs-portal/internal/config"
	"genieacs-portal/internal/db"
	"genieacs-portal/internal/gateway"
	"genieacs-portal/internal/genieacs"
	healthhandler "genieacs-portal/internal/health/handler"
	applogger "genieacs-portal/internal/logger"
	"genieacs-portal/internal/otp"
	"genieacs-portal/internal/policy/engine"
	"genieacs-portal/internal/portal/service"
	"genieacs-portal/internal/security"
	"genieacs-portal/internal/server"
	"genieacs-portal/internal/settings"
	"genieacs-portal/internal/telemetry"
	telemetryotel "genieacs-portal/internal/telemetry/otel"
	"genieacs-portal/internal/telemetry/producer"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := applogger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal("telemetry: providers", zap.Error(err))
	}
	providers.SetGlobal()
	meter := providers.MeterProvider.Meter(cfg.ServiceName)

	store := settings.NewFileStore(cfg.SettingsFile)
	if err := store.EnsureDefaults(); err != nil {
		logger.Fatal("settings: ensure defaults", zap.String("path", store.Path()), zap.Error(err))
	}

	acs := genieacs.NewClient(cfg.GenieACSURL, cfg.GenieACSUsername, cfg.GenieACSPassword, cfg.GenieACSTimeout, logger)
	dispatcher := gateway.NewDispatcher(cfg.FonnteURL, cfg.GatewayTimeout, logger, meter)

	checks := []healthhandler.Check{{Name: "genieacs", Fn: acs.Ping}}

	var otpStore otp.Store
	switch cfg.OTPStore {
	case config.OTPStoreRedis:
		client := otp.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		defer client.Close()
		rs := otp.NewRedisStore(client)
		otpStore = rs
		checks = append(checks, healthhandler.Check{Name: "redis", Fn: rs.Ping})
	default:
		ms := otp.NewMemoryStore()
		otpStore = ms
		if cfg.OTPSweepInterval > 0 {
			sweeper := otp.NewSweeper(ms, cfg.OTPSweepInterval, logger)
			go sweeper.Start(ctx)
			defer sweeper.Stop()
		}
	}
	otpEngine := otp.NewEngine(otpStore, dispatcher, logger, meter)

	tokens, err := security.NewSessionTokens([]byte(cfg.SessionSecret), cfg.SessionTTL)
	if err != nil {
		logger.Fatal("security: session tokens", zap.Error(err))
	}
	creds := security.NewAdminCredentials(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.AdminPassword)

	authz, err := engine.NewOPAAuthorizer(ctx, "", logger)
	if err != nil {
		logger.Fatal("policy: authorizer", zap.Error(err))
	}
	checks = append(checks, healthhandler.PolicyCheck(authz))

	var (
		auditLogger audit.AuditLogger
		trail       service.AuditTrail
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db: open", zap.Error(err))
		}
		defer conn.Close()
		al := audit.NewLogger(auditrepo.NewPostgresRepository(conn), logger)
		auditLogger, trail = al, al
		checks = append(checks, healthhandler.PingCheck("database", conn))
	} else {
		logger.Info("audit: DATABASE_URL not set, audit log disabled")
	}

	emitters := telemetry.Multi{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic, logger)
	if err != nil {
		logger.Fatal("telemetry: kafka producer", zap.Error(err))
	}
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
		emitters = append(emitters, kafkaProducer)
	}
	events := telemetry.NewAsync(emitters, logger)
	recorder := service.NewRecorder(auditLogger, events)

	customer := service.NewCustomer(acs, store, otpEngine, tokens, recorder, service.CustomerOptions{
		SettleDelay: cfg.RefreshSettleDelay,
		Logger:      logger,
	})
	admin := service.NewAdmin(acs, store, dispatcher, tokens, creds, trail, recorder, service.AdminOptions{
		Concurrency: cfg.RefreshConcurrency,
		SettleDelay: cfg.RefreshSettleDelay,
		Logger:      logger,
		Meter:       meter,
	})
	health := healthhandler.NewServer(logger, checks...)

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Customer:     customer,
			Admin:        admin,
			Authz:        authz,
			Sessions:     tokens,
			Health:       health,
			SessionTTL:   cfg.SessionTTL,
			SecureCookie: cfg.IsProduction(),
			Logger:       logger,
			Meter:        meter,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Bulk refresh waits for every device task to be posted.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
			stop()
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc: listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
		}
		grpcSrv = grpc.NewServer()
		server.RegisterServices(grpcSrv, health)
		go func() {
			logger.Info("grpc health server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc server", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}

	drainCtx, drainCancel := context.WithTimeout(shutdownCtx, telemetry.ShutdownDrainDuration)
	events.Drain(drainCtx)
	drainCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
