package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"inbox_monitor/internal/app"
	"inbox_monitor/internal/domain/activity"
	"inbox_monitor/internal/domain/inbound"
	"inbox_monitor/internal/domain/ledger"
	"inbox_monitor/internal/domain/monitor"
	"inbox_monitor/internal/domain/quota"
	"inbox_monitor/internal/infra/config"
	idb "inbox_monitor/internal/infra/database"
	"inbox_monitor/internal/infra/generator"
	"inbox_monitor/internal/infra/inboxfile"
	"inbox_monitor/internal/infra/logger"
	"inbox_monitor/internal/infra/memory"
	"inbox_monitor/internal/infra/monitorfile"
	"inbox_monitor/internal/infra/responder"
	"inbox_monitor/internal/infra/scheduler"
	"inbox_monitor/internal/infra/telegram"
)

type activityStore interface {
	activity.Sink
	activity.Reader
}

// storage bundles whichever backend DATABASE_DRIVER selected.
type storage struct {
	quota     quota.Store
	ledger    ledger.Ledger
	state     monitor.StateStore
	activity  activityStore
	source    inbound.Source
	inbox     inboxfile.Ingester
	responder inbound.Responder
	close     func() error
}

func openStorage(ctx context.Context, cfg *config.AppConfig) (*storage, error) {
	var (
		conn *idb.Conn
		err  error
	)
	switch cfg.DatabaseDriver {
	case config.DriverMemory:
		inbox := memory.NewInbox()
		return &storage{
			quota:     memory.NewQuotaStore(),
			ledger:    memory.NewLedger(),
			state:     memory.NewStateStore(),
			activity:  memory.NewActivityLog(),
			source:    inbox,
			inbox:     inbox,
			responder: memory.NewOutbox(),
			close:     func() error { return nil },
		}, nil
	case config.DriverSQLite:
		conn, err = idb.NewSQLiteConnection(cfg.SQLitePath)
	default:
		conn, err = idb.NewPostgresConnection(cfg.DatabaseURL)
	}
	if err != nil {
		return nil, err
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	inbox := idb.NewInboxRepository(conn)
	return &storage{
		quota:     idb.NewQuotaRepository(conn),
		ledger:    idb.NewLedgerRepository(conn),
		state:     idb.NewStateRepository(conn),
		activity:  idb.NewActivityRepository(conn),
		source:    inbox,
		inbox:     inbox,
		responder: idb.NewOutboxRepository(conn),
		close:     conn.Close,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"driver":      cfg.DatabaseDriver,
		"monitors":    cfg.MonitorsFile,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not open storage")
	}
	defer store.close()
	mainLogger.Info("Storage ready")

	monitors := monitorfile.NewStore(cfg.MonitorsFile, logrus.NewEntry(logger.Log))
	if _, err := monitors.Load(); err != nil {
		mainLogger.WithError(err).Fatal("Could not load monitors")
	}
	go func() {
		if err := monitors.Watch(ctx); err != nil {
			mainLogger.WithError(err).Error("Monitors file watcher stopped")
		}
	}()

	if cfg.InboxFeedFile != "" {
		feed := inboxfile.NewFeed(cfg.InboxFeedFile, store.inbox, logrus.NewEntry(logger.Log))
		if _, err := feed.Load(ctx); err != nil {
			mainLogger.WithError(err).Fatal("Could not load inbox feed")
		}
		go func() {
			if err := feed.Watch(ctx); err != nil {
				mainLogger.WithError(err).Error("Inbox feed watcher stopped")
			}
		}()
	} else if cfg.DatabaseDriver == config.DriverMemory {
		mainLogger.Warn("Memory driver without INBOX_FEED_FILE: no items will arrive")
	}

	var gen inbound.Generator = generator.NewTemplate()
	if cfg.OpenAIAPIKey != "" {
		gen = generator.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, gen, logrus.NewEntry(logger.Log))
		mainLogger.WithField("model", cfg.OpenAIModel).Info("AI replies enabled")
	}

	sinks := activity.Multi{store.activity}
	usageService := app.NewUsageService(store.quota, store.activity, cfg.AdminTelegramID, logrus.NewEntry(logger.Log))

	var bot *telebot.Bot
	if cfg.TelegramEnabled() {
		botLogger := logger.Component("telegram")
		pref := telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram handler failed")
			},
		}
		bot, err = telebot.NewBot(pref)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		sinks = append(sinks, telegram.NewNotifier(telegram.NewTelebotAdapter(bot), cfg.NotifyChatID))
		telegram.RegisterBotCommands(bot, cfg.AdminTelegramID, botLogger)
		telegram.RegisterAdminHandlers(ctx, bot, usageService, cfg.AdminTelegramID, botLogger)
		go bot.Start()
		mainLogger.Info("Telegram bot started")
	}

	pollService := app.NewPollService(app.PollDeps{
		Quota:     store.quota,
		Ledger:    store.ledger,
		State:     store.state,
		Source:    store.source,
		Generator: gen,
		Responder: responder.NewRateLimited(store.responder, cfg.ResponderRatePerSec),
		Activity:  sinks,
	}, logrus.NewEntry(logger.Log), cfg.FetchLookback)

	pollScheduler := scheduler.NewPollScheduler(
		pollService,
		monitors,
		logrus.NewEntry(logger.Log),
		cfg.PollCronSpec,
		cfg.CycleTimeout,
		cfg.MaxConcurrentCycles,
	)
	if err := pollScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start poll scheduler")
	}

	mainLogger.Info("Application setup complete")
	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	pollScheduler.Stop()
	if bot != nil {
		bot.Stop()
	}
	mainLogger.Info("Application shut down gracefully.")
}
