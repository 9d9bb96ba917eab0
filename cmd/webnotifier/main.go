package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"webnotifier/internal/app"
	"webnotifier/internal/config"
	telegram "webnotifier/internal/transport/telegram"
	logx "webnotifier/pkg/logx"
)

func main() {
	os.Exit(run())
}

type options struct {
	Config  string `short:"c" long:"config" env:"WEBNOTIFIER_CONFIG" default:"./config.json" description:"Path to config file (json or yaml)"`
	EnvFile string `long:"env-file" default:".env" description:"Optional dotenv file loaded before env overrides"`
}

func run() int {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return 0
		}
		return app.StopStartup.ExitCode()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.NewConfigManager(opts.Config, opts.EnvFile).Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal config:", err)
		return app.StopStartup.ExitCode()
	}

	tgCfg, err := app.MapTelegramConfig(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal config:", err)
		return app.StopStartup.ExitCode()
	}
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	sender, err := telegram.New(tgCfg, bootLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal telegram:", err)
		return app.StopStartup.ExitCode()
	}

	logCfg, err := app.MapLogConfig(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal config:", err)
		return app.StopStartup.ExitCode()
	}
	logs, log, err := logx.Open(logCfg, sender)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal logging:", err)
		return app.StopStartup.ExitCode()
	}
	defer logs.Close()

	a, err := app.New(cfg, log, app.WithSender(sender))
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		return app.StopStartup.ExitCode()
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close store failed", logx.Err(err))
		}
	}()

	_, err = a.Run(ctx)
	reason := app.ReasonOf(err)
	if err != nil {
		log.Error("run aborted", logx.String("reason", reason.String()), logx.Err(err))
	}
	return reason.ExitCode()
}
