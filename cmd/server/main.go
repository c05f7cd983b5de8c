package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/skylinesee/reeQute/bot"
	"github.com/skylinesee/reeQute/impl/core"
	"github.com/skylinesee/reeQute/internal/alert"
	"github.com/skylinesee/reeQute/internal/bridge"
	"github.com/skylinesee/reeQute/internal/config"
	"github.com/skylinesee/reeQute/internal/database"
	"github.com/skylinesee/reeQute/internal/http-server/api"
	"github.com/skylinesee/reeQute/internal/metrics"
	"github.com/skylinesee/reeQute/internal/provision"
	"github.com/skylinesee/reeQute/internal/registry"
	"github.com/skylinesee/reeQute/internal/verification"
	"github.com/skylinesee/reeQute/lib/clock"
	"github.com/skylinesee/reeQute/lib/logger"
	"github.com/skylinesee/reeQute/lib/sl"
)

const (
	logFileName     = "reequte.log"
	auditBufferSize = 512
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, filepath.Join(*logPath, logFileName))
	lg.Info("starting reequte", slog.String("config", *configPath), slog.String("env", conf.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notifier *alert.Notifier
	if conf.Telegram.Enabled {
		var err error
		notifier, err = alert.NewNotifier(conf.Telegram.ApiKey, lg, alert.Options{
			AdminIDs:       conf.Telegram.AdminIDs,
			DigestInterval: conf.DigestInterval(),
		})
		if err != nil {
			lg.Error("telegram alerts", sl.Err(err))
		} else {
			lg = logger.WithTelegram(lg, notifier, logger.ParseLevel(conf.Telegram.MinLevel))
			lg.Info("telegram alerts enabled")
		}
	}

	clk := clock.Real()
	m := metrics.New()

	loop := bridge.New(lg, conf.Verification.QueueSize, clk)
	loop.SetObserver(m)
	reg := registry.NewMemory(clk, conf.CodeTTL())

	discord, err := bot.New(conf.Discord.Token, lg)
	if err != nil {
		lg.Error("discord session", sl.Err(err))
		os.Exit(1)
	}

	prov := provision.New(discord.Platform(), lg, provision.Options{
		CategoryID:     conf.Discord.CategoryID,
		DirectFallback: conf.Discord.DMFallback,
	})
	svc := verification.New(reg, prov, loop, clk, lg, verification.Options{
		CodeLength:     conf.Verification.CodeLength,
		ConfirmTimeout: conf.ConfirmTimeout(),
	})
	svc.AddRecorder(m)

	commands := bot.NewCommands(svc, discord.Platform(), loop, lg, bot.CommandsOptions{
		Prefix:         conf.Discord.Prefix,
		ConfirmTimeout: conf.ConfirmTimeout(),
		Clock:          clk,
	})

	var audit *database.AuditLog
	if conf.Mongo.Enabled {
		mongo := database.NewMongoClient(conf)
		audit = database.NewAuditLog(mongo, lg, auditBufferSize)
		svc.AddRecorder(audit)
		commands.SetAuditSource(mongo)
		go audit.Run(ctx)
		lg.With(slog.String("host", conf.Mongo.Host)).Info("audit trail enabled")
	}
	discord.SetCommands(commands)

	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			lg.Error("bridge loop stopped", sl.Err(err))
		}
	}()

	if err = discord.Start(); err != nil {
		lg.Error("discord connect", sl.Err(err))
		os.Exit(1)
	}
	svc.StartJanitor(ctx, conf.SweepInterval())

	facade := core.New(svc, discord, lg)
	if notifier != nil {
		notifier.SetStatusSource(facade)
		go func() {
			if err := notifier.Start(); err != nil {
				lg.Error("telegram polling", sl.Err(err))
			}
		}()
	}

	server := api.New(conf, lg, facade, m.Handler())
	go func() {
		if err := server.Start(ctx); err != nil {
			lg.Error("api server", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		lg.Error("api shutdown", sl.Err(err))
	}
	discord.Stop()
	loop.Close()
	select {
	case <-loop.Done():
	case <-shutdownCtx.Done():
	}
	if audit != nil {
		select {
		case <-audit.Done():
		case <-shutdownCtx.Done():
			log.Print("audit trail not fully flushed")
		}
	}
	if notifier != nil {
		notifier.Stop()
	}
}
