package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"

	"github.com/agenthands/minutes/internal/broadcast"
	"github.com/agenthands/minutes/internal/calendar"
	"github.com/agenthands/minutes/internal/config"
	"github.com/agenthands/minutes/internal/core"
	"github.com/agenthands/minutes/internal/core/archive"
	"github.com/agenthands/minutes/internal/core/attendee"
	"github.com/agenthands/minutes/internal/core/pipeline"
	"github.com/agenthands/minutes/internal/core/scheduler"
	"github.com/agenthands/minutes/internal/driver"
	"github.com/agenthands/minutes/internal/gauth"
	"github.com/agenthands/minutes/internal/llm"
	"github.com/agenthands/minutes/internal/mail"
)

// Components is everything a workflow process needs, built from config.
type Components struct {
	Config       *config.Config
	Orchestrator *core.Orchestrator
	Resolver     *attendee.Resolver
	Calendar     calendar.Calendar
	// Archive and Driver are nil when no Memgraph URI is configured or the
	// database is unreachable.
	Archive *archive.Archive
	Driver  driver.GraphDriver
}

// Wire builds the components described by cfg.
func Wire(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	table, err := cfg.Attendees.Table()
	if err != nil {
		return nil, err
	}
	resolver := attendee.NewResolver(table)

	llmClient, err := llm.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	cal, err := newCalendar(ctx, cfg.Calendar, loc)
	if err != nil {
		return nil, err
	}
	sender, err := newMailer(ctx, cfg.Mail, logger)
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(cal, resolver, scheduler.Options{
		Location:     loc,
		Workers:      cfg.Scheduler.Workers,
		FallbackHour: cfg.Scheduler.FallbackHour,
		CallTimeout:  cfg.Calendar.Timeout(),
		WorkStart:    cfg.Calendar.WorkStartHour,
		WorkEnd:      cfg.Calendar.WorkEndHour,
		SearchDays:   cfg.Calendar.SlotSearchDays,
	}, logger.Named("scheduler"))

	pipe, err := pipeline.New(pipeline.Deps{
		LLM:      llmClient,
		Calendar: cal,
		Executor: sched,
		Mail:     sender,
	}, pipeline.Options{
		Location:        loc,
		Temperature:     cfg.LLM.Temperature,
		TopP:            cfg.LLM.TopP,
		MaxTokens:       cfg.LLM.MaxTokens,
		LLMTimeout:      cfg.LLM.Timeout(),
		CalendarTimeout: cfg.Calendar.Timeout(),
		MailTimeout:     cfg.Mail.Timeout(),
		DaysBack:        cfg.Calendar.DaysBack,
		DaysAhead:       cfg.Calendar.DaysAhead,
		MaxEvents:       cfg.Calendar.MaxResults,
		Recipients:      cfg.Mail.Recipients,
		Prompts:         cfg.Prompts,
	}, logger.Named("pipeline"))
	if err != nil {
		return nil, err
	}

	c := &Components{Config: cfg, Resolver: resolver, Calendar: cal}
	if cfg.Memgraph.URI != "" {
		d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, logger)
		if err != nil {
			logger.Warn("meeting archive disabled", zap.String("uri", cfg.Memgraph.URI), zap.Error(err))
		} else {
			_ = d.BuildIndices(ctx)
			c.Driver = d
			c.Archive = archive.New(d, resolver, logger.Named("archive"))
		}
	}

	c.Orchestrator, err = core.NewOrchestrator(core.Config{
		Pipeline: pipe,
		Review:   pipe.WithExecutor(sched.WithDryRun(true)),
		Events:   broadcast.New(cfg.Broadcast.QueueSize, logger.Named("broadcast")),
		Archive:  c.Archive,
	}, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close stops any in-flight run and releases the archive connection.
func (c *Components) Close(ctx context.Context) error {
	c.Orchestrator.Close()
	if c.Driver != nil {
		return c.Driver.Close(ctx)
	}
	return nil
}

func newCalendar(ctx context.Context, cfg config.CalendarConfig, loc *time.Location) (calendar.Calendar, error) {
	switch cfg.Provider {
	case "google":
		opt, err := gauth.ClientOption(ctx, cfg.CredentialsFile, cfg.TokenFile, gcal.CalendarScope)
		if err != nil {
			return nil, err
		}
		g, err := calendar.NewGoogle(ctx, cfg.CalendarID, loc, opt)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		if cfg.ICSFile == "" {
			return calendar.NewMemory(loc), nil
		}
		m, err := calendar.NewMemoryFromICS(cfg.ICSFile, loc)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func newMailer(ctx context.Context, cfg config.MailConfig, logger *zap.Logger) (mail.Sender, error) {
	switch cfg.Provider {
	case "gmail":
		opt, err := gauth.ClientOption(ctx, cfg.CredentialsFile, cfg.TokenFile, gmail.GmailSendScope)
		if err != nil {
			return nil, err
		}
		g, err := mail.NewGmail(ctx, cfg.Sender, opt)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return &mail.LogSender{Logger: logger.Named("mail")}, nil
	}
}
