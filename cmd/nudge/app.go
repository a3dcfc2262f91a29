package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"nudge/internal/auth"
	"nudge/internal/channel"
	"nudge/internal/config"
	"nudge/internal/contact"
	"nudge/internal/db"
	"nudge/internal/flags"
	"nudge/internal/inbound"
	"nudge/internal/outbox"
	"nudge/internal/scheduler"
	"nudge/internal/task"
)

// app holds every component built from one Config.
type app struct {
	db          *gorm.DB
	redis       *redis.Client
	outboxRepo  *outbox.Repo
	contactRepo *contact.Repo
	contacts    *contact.Service
	tasks       *task.Service
	worker      *outbox.Worker
	scheduler   *scheduler.Scheduler
	interpreter *inbound.Interpreter
}

func newApp(cfg config.Config) (*app, error) {
	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &app{db: gdb}
	pref := channel.ParseList(cfg.ChannelPreference)

	a.outboxRepo = &outbox.Repo{DB: gdb}
	a.contactRepo = &contact.Repo{DB: gdb}
	taskRepo := &task.Repo{DB: gdb}

	a.contacts = &contact.Service{Store: a.contactRepo, Outbox: a.outboxRepo, Preference: pref}
	a.tasks = &task.Service{Store: taskRepo, Contacts: a.contacts, Tx: task.GormTx{DB: gdb}}

	a.worker = outbox.NewWorker(a.outboxRepo, newRegistry(cfg, gdb), &outbox.LogTelemetry{Log: logger}, logger, outbox.Options{
		BatchSize:    cfg.Outbox.BatchSize,
		Concurrency:  cfg.Outbox.Concurrency,
		PollInterval: cfg.Outbox.PollInterval,
		StaleAfter:   cfg.Outbox.StaleAfter,
	})

	var src flags.Source = &flags.DBSource{DB: gdb}
	if cfg.Flags.Source == "redis" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Flags.RedisAddr})
		src = &flags.RedisSource{Client: a.redis, Prefix: cfg.Flags.RedisPrefix}
	}
	a.scheduler = scheduler.New(src, a.contactRepo, taskRepo, &scheduler.GuardRepo{DB: gdb}, a.outboxRepo, logger, scheduler.Options{
		Location:    cfg.Location,
		Preference:  pref,
		Concurrency: cfg.Scheduler.Concurrency,
	})

	a.interpreter = inbound.NewInterpreter(a.contactRepo, inbound.GormTx{DB: gdb}, cfg.Location, logger)
	return a, nil
}

func newRegistry(cfg config.Config, gdb *gorm.DB) *channel.Registry {
	reg := channel.NewRegistry()
	reg.Register(channel.Chat, &channel.ChatInbox{DB: gdb})

	if cfg.SMS.AccountSID != "" {
		sms := channel.SMSOptions{
			BaseURL:    cfg.SMS.GatewayURL,
			AccountSID: cfg.SMS.AccountSID,
			AuthToken:  cfg.SMS.AuthToken,
			From:       cfg.SMS.From,
			Timeout:    cfg.SMS.Timeout,
		}
		reg.Register(channel.SMS, channel.NewSMSGateway(sms, nil))
		if cfg.SMS.WhatsAppFrom != "" {
			wa := sms
			wa.From = cfg.SMS.WhatsAppFrom
			wa.AddressPrefix = "whatsapp:"
			reg.Register(channel.WhatsApp, channel.NewSMSGateway(wa, nil))
		}
	}
	if cfg.SMTP.Addr != "" {
		reg.Register(channel.Email, channel.NewEmailRelay(channel.SMTPOptions{
			Addr:     cfg.SMTP.Addr,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, nil))
	}
	return reg
}

func newJWT(cfg config.Config) (*auth.JWT, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing env: JWT_SECRET")
	}
	return auth.NewJWT(cfg.JWTSecret, cfg.JWTTTL), nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
