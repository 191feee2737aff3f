package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mzanetti/aura/internal/agents"
	"github.com/mzanetti/aura/internal/chat"
	"github.com/mzanetti/aura/internal/config"
	"github.com/mzanetti/aura/internal/dispatch"
	"github.com/mzanetti/aura/internal/httpapi"
	"github.com/mzanetti/aura/internal/llm"
	"github.com/mzanetti/aura/internal/notify"
	"github.com/mzanetti/aura/internal/observability"
	"github.com/mzanetti/aura/internal/plan"
	"github.com/mzanetti/aura/internal/session"
	"github.com/mzanetti/aura/internal/tasks"
	"github.com/mzanetti/aura/internal/tools"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := session.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("session store init failed: %v", err)
	}
	defer store.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("session store: in-memory (set DATABASE_URL for postgres)")
	} else {
		log.Printf("session store: postgres")
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	var completer llm.Completer
	switch cfg.LLMMode {
	case "mock":
		completer = llm.NewMock()
		log.Printf("llm provider: mock")
	default:
		log.Fatalf("invalid LLM_MODE: %q (expected mock)", cfg.LLMMode)
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, store, &http.Client{Timeout: 10 * time.Second}); err != nil {
		log.Fatalf("tool registration failed: %v", err)
	}

	executor := plan.NewExecutor(registry, llm.PromptCompleter{Completer: completer})
	pipeline := chat.NewEngine(completer, executor, store)

	queue := tasks.NewQueue(cfg.MaxTasksPerSession)
	center := notify.NewCenter()
	activity := notify.NewActivityStream()

	dispatcher := dispatch.New(dispatch.Config{
		Queue:         queue,
		Pipeline:      pipeline,
		Store:         store,
		Activity:      activity,
		Notifications: center,
		Metrics:       metrics,
		Staleness:     cfg.TaskStaleness,
		Timeout:       cfg.DispatchTimeout,
	})

	scheduler := agents.NewScheduler(agents.Config{
		Queue:       queue,
		Activity:    activity,
		Metrics:     metrics,
		Tick:        cfg.SchedulerTick,
		Staleness:   cfg.TaskStaleness,
		StuckWindow: cfg.StuckTaskWindow,
		PollTimeout: cfg.PollTimeout,
	})
	scheduler.RegisterDispatcher(dispatcher)

	contradictions := agents.NewContradictionLog()
	if err := scheduler.RegisterAgent(agents.ScheduledAgent{
		Name:     "contradiction_detector",
		Interval: cfg.ContradictionPollInterval,
		Poll:     agents.NewContradictionPoller(contradictions),
	}); err != nil {
		log.Fatalf("register contradiction agent: %v", err)
	}
	if len(cfg.HealthEndpoints) > 0 {
		endpoints := make([]agents.ServiceEndpoint, 0, len(cfg.HealthEndpoints))
		for _, ep := range cfg.HealthEndpoints {
			endpoints = append(endpoints, agents.ServiceEndpoint{Name: ep.Name, URL: ep.URL})
		}
		if err := scheduler.RegisterAgent(agents.ScheduledAgent{
			Name:     "health_monitor",
			Interval: cfg.HealthPollInterval,
			Poll:     agents.NewServiceHealthPoller(endpoints, sessions, &http.Client{Timeout: 10 * time.Second}),
		}); err != nil {
			log.Fatalf("register health agent: %v", err)
		}
	}

	api := httpapi.New(cfg, sessions, store, pipeline, queue, center, activity, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)
	go func() {
		if err := scheduler.RunForever(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scheduler stopped: %v", err)
		}
	}()

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful http shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Printf("dispatcher drain failed: %v", err)
	}

	log.Printf("shutdown complete")
}
