package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/valenrosasc/chatbot/internal/api"
	"github.com/valenrosasc/chatbot/internal/backup"
	"github.com/valenrosasc/chatbot/internal/booking"
	"github.com/valenrosasc/chatbot/internal/bot"
	"github.com/valenrosasc/chatbot/internal/config"
	"github.com/valenrosasc/chatbot/internal/conversation"
	"github.com/valenrosasc/chatbot/internal/database"
	"github.com/valenrosasc/chatbot/internal/events"
	"github.com/valenrosasc/chatbot/internal/metrics"
	"github.com/valenrosasc/chatbot/internal/notify"
	"github.com/valenrosasc/chatbot/internal/repository"
	"github.com/valenrosasc/chatbot/internal/slots"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var remote backup.Remote
	if cfg.Remote.Provider != "" {
		remote = newRemote(cfg.Remote, &logger)
		if cfg.Remote.RestoreOnStart {
			if err := backup.Restore(ctx, remote, cfg.Remote.Path, cfg.Database.Path, &logger); err != nil {
				logger.Error().Err(err).Msg("restore from remote backup failed, using local database")
			}
		}
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()
	db.SetDailyLimit(cfg.Booking.MaxPerPersonPerDay)

	catalog, err := slots.NewCatalog(cfg.Booking.TimeSlots, cfg.Booking.ScheduleStart, cfg.Booking.ScheduleEnd, cfg.Booking.SlotMinutes)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid booking schedule")
	}
	calendar := slots.NewCalendar(cfg.Booking.Holidays)

	var rdb *redis.Client
	var sessions conversation.SessionStore = conversation.NewMemorySessionStore()
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		sessions = repository.NewFailoverSessionStore(
			repository.NewRedisSessionStore(rdb, cfg.SessionTTL()),
			sessions,
			&logger,
		)
	}

	bus := events.NewEventBus(&logger)

	var mailer *notify.Mailer
	if cfg.Email.Enabled {
		mailer, err = notify.NewSMTPMailer(cfg.Email, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create mailer error")
		}
		bus.Subscribe(events.AppointmentBooked, mailer.HandleEvent)
	}

	if remote != nil {
		replicator := backup.NewReplicator(db, remote, cfg.Remote.Path, filepath.Join(cfg.Backup.Path, "upload"), &logger)
		bus.Subscribe(events.AppointmentBooked, replicator.HandleEvent)
		bus.Subscribe(events.AppointmentCancelled, replicator.HandleEvent)
		go replicator.Run(ctx)
	}

	loc := cfg.Location()
	rules := booking.NewRules(db, cfg.Booking.MaxPerPersonPerDay)
	engine := conversation.NewEngine(conversation.Services{
		Store:      db,
		Rules:      rules,
		Calendar:   calendar,
		Slots:      catalog,
		Publisher:  bus,
		Now:        func() time.Time { return time.Now().In(loc) },
		DaysAhead:  cfg.Booking.DaysAhead,
		DailyLimit: rules.MaxPerPersonPerDay(),
	}, sessions, contentFrom(cfg), &logger)

	// Office text, menu keywords and holidays are picked up without a restart.
	reloader, err := config.NewReloader(configPath, func(updated *config.Config) {
		engine.SetContent(contentFrom(updated))
		calendar.SetHolidays(updated.Booking.Holidays)
	}, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("config watch failed")
	} else {
		go reloader.Run(ctx, 30*time.Second)
	}

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	httpServer := api.NewHTTPServer(api.Options{
		Port:                 cfg.HTTP.Port,
		APIKey:               cfg.HTTP.APIKey,
		VerifyToken:          cfg.HTTP.VerifyToken,
		WebhookRatePerMinute: cfg.HTTP.WebhookRatePerMinute,
	}, engine, db, rdb, db, &logger)
	go func() {
		if err := httpServer.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	var grpcHealth *api.GRPCHealth
	if cfg.Monitoring.GRPCHealthPort > 0 {
		grpcHealth = api.NewGRPCHealth(cfg.Monitoring.GRPCHealthPort, &logger)
		go func() {
			if err := grpcHealth.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("grpc health server error")
			}
		}()
	}

	var telegram *bot.Bot
	if cfg.Telegram.BotToken != "" {
		telegram, err = bot.New(cfg.Telegram.BotToken, cfg.Telegram.Debug, cfg.Telegram.SendRatePerSecond, engine, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create bot error")
		}
	}

	httpServer.MarkReady()
	if grpcHealth != nil {
		grpcHealth.MarkServing()
	}
	logger.Info().Str("office", cfg.Office.Name).Msg("Appointment bot started")

	if telegram != nil {
		telegram.Start(ctx)
	} else {
		<-ctx.Done()
	}

	if mailer != nil {
		mailer.Wait()
	}
	logger.Info().Msg("Appointment bot stopped")
}

func contentFrom(cfg *config.Config) conversation.Content {
	return conversation.Content{
		OfficeName: cfg.Office.Name,
		Address:    cfg.Office.Address,
		Hours:      cfg.Office.Hours,
		Phone:      cfg.Office.Phone,
		Keywords:   cfg.NormalizedKeywords(),
	}
}

func newRemote(cfg config.RemoteConfig, logger *zerolog.Logger) backup.Remote {
	creds := backup.NewCredentials(cfg.AccessToken, cfg.RefreshToken, cfg.ClientID, cfg.ClientSecret, cfg.TokenURL)
	auth := backup.NewReauthorizer(creds, logger)
	if cfg.Provider == "drive" {
		return backup.NewDriveClient(auth, cfg.DriveFolderID)
	}
	return backup.NewDropboxClient(auth)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
