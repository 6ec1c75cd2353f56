// Command driftgate runs the drift remediation service: webhook intake,
// the drift state machine workers, the policy gate evaluator, and the
// human-approval callback endpoints in one process.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/vertaai/driftgate/pkg/adapters"
	"github.com/vertaai/driftgate/pkg/api"
	"github.com/vertaai/driftgate/pkg/audit"
	"github.com/vertaai/driftgate/pkg/comparators"
	"github.com/vertaai/driftgate/pkg/config"
	"github.com/vertaai/driftgate/pkg/dedup"
	"github.com/vertaai/driftgate/pkg/evaluator"
	"github.com/vertaai/driftgate/pkg/llm"
	"github.com/vertaai/driftgate/pkg/lock"
	"github.com/vertaai/driftgate/pkg/observability"
	"github.com/vertaai/driftgate/pkg/pack"
	"github.com/vertaai/driftgate/pkg/patchval"
	"github.com/vertaai/driftgate/pkg/pipeline"
	"github.com/vertaai/driftgate/pkg/queue"
	"github.com/vertaai/driftgate/pkg/store"
	"github.com/vertaai/driftgate/pkg/writeback"
)

const workerCount = 4

func main() {
	if err := run(); err != nil {
		slog.Error("driftgate exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogger(cfg.LogLevel)

	obs, err := initObservability(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutCtx)
	}()

	mem := store.NewMemory()
	stores := pipeline.Stores{
		Signals: mem, Drifts: mem, Proposals: mem,
		Mappings: mem, Bundles: mem, Workspaces: mem,
	}
	var auditLog audit.Log = mem

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err == nil {
			err = db.PingContext(ctx)
		}
		if err != nil {
			slog.Warn("postgres unavailable, drift state held in memory", "error", err)
		} else {
			pg, err := store.NewPostgres(db)
			if err != nil {
				return err
			}
			stores.Drifts = pg
			auditLog = pg
			slog.Info("drift state backed by postgres")
		}
	}

	if cfg.EvidenceDB != "" {
		db, err := sql.Open("sqlite", cfg.EvidenceDB)
		if err != nil {
			slog.Warn("evidence db unavailable, bundles held in memory", "error", err)
		} else {
			ev, err := store.NewSQLiteEvidence(db)
			if err != nil {
				return err
			}
			stores.Bundles = ev
			slog.Info("evidence bundles backed by sqlite", "path", cfg.EvidenceDB)
		}
	}

	var locker lock.Locker = lock.NewMemory()
	var index dedup.Index = dedup.NewMemory()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable, locks and dedup held in memory", "error", err)
		} else {
			locker = lock.NewRedis(client)
			index = dedup.NewRedis(client)
			slog.Info("locks and dedup backed by redis", "addr", cfg.RedisAddr)
		}
	}

	var notifier adapters.Notifier
	if cfg.SlackToken != "" {
		notifier = adapters.NewSlackNotifier(cfg.SlackToken)
	} else {
		notifier = adapters.NotifierFunc(func(ctx context.Context, channel, message string) error {
			slog.Info("notification (no slack token configured)", "channel", channel, "message", message)
			return nil
		})
	}

	var drafter llm.Drafter
	if cfg.LLMServiceURL != "" {
		drafter = llm.NewGuard(llm.NewRemote(cfg.LLMServiceURL))
	}

	docs := docAdapter()

	q := queue.New(cfg.QueueHighWater)
	driver := pipeline.NewDriver(pipeline.Deps{
		Stores:      stores,
		Audit:       auditLog,
		Locker:      locker,
		Queue:       q,
		Index:       index,
		Drafter:     drafter,
		Docs:        docs,
		Writeback:   writeback.New(docs),
		Notifier:    notifier,
		CallbackKey: callbackKey(cfg),
		LockTTL:     cfg.LockTTL,

		MaxTransitions: cfg.MaxTransitions,
		MaxRetries:     cfg.MaxRetryAttempts,
		ValidatorCfg: patchval.Config{
			MaxChangedLines:      cfg.MaxChangedLines,
			MinConfidence:        cfg.MinConfidence,
			AutoApproveThreshold: cfg.AutoApproveThreshold,
			MaxDocAgeDays:        cfg.MaxDocAgeDays,
		},
	})

	registry := comparators.NewDefaultRegistry()
	engine, err := evaluator.NewEngine(registry)
	if err != nil {
		return err
	}
	validator, err := pack.NewValidator(registry.Has)
	if err != nil {
		return err
	}

	srv := &api.Server{
		Driver:        driver,
		Engine:        engine,
		Packs:         mem,
		Workspaces:    mem,
		Validator:     validator,
		WebhookSecret: []byte(os.Getenv("WEBHOOK_SECRET")),
		Limiter:       api.NewGlobalRateLimiter(20, 40),
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, q, driver, obs)
		}()
	}
	go reportSLOBreaches(ctx, obs.SLO())

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutCtx)
		q.Close()
	}()

	slog.Info("driftgate listening", "port", cfg.Port, "observe_only", cfg.ObserveOnly)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	wg.Wait()
	return nil
}

// worker drains the scheduler queue. Each job advances one candidate under
// its drift lock; failed advances land back on the queue with backoff, so
// the worker only logs.
func worker(ctx context.Context, q *queue.Queue, driver *pipeline.Driver, obs *observability.Provider) {
	for {
		job, err := q.Dequeue(ctx)
		if err != nil {
			return
		}
		workspaceID, driftID, ok := splitJobKey(job.Key)
		if !ok {
			slog.Warn("dropping malformed job", "key", job.Key, "kind", job.Kind)
			continue
		}

		opCtx, done := obs.TrackOperation(ctx, "advance",
			observability.AttrWorkspaceID.String(workspaceID),
			observability.AttrDriftID.String(driftID),
		)
		res, err := driver.Advance(opCtx, workspaceID, driftID)
		done(err)
		if err != nil {
			slog.Error("advance failed", "workspace", workspaceID, "drift", driftID, "error", err)
			continue
		}
		if res.Transitions > 0 {
			slog.Info("advanced drift",
				"workspace", workspaceID, "drift", driftID,
				"state", res.FinalState, "transitions", res.Transitions)
		}
	}
}

// reportSLOBreaches surfaces out-of-compliance operations once a minute.
// TrackOperation feeds the tracker, so anything the workers and handlers
// time shows up here without extra plumbing.
func reportSLOBreaches(ctx context.Context, slo *observability.SLOTracker) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, st := range slo.Breaches() {
				slog.Warn("slo breach",
					"slo", st.SLOID, "operation", st.Operation,
					"p99_ms", st.CurrentP99, "success_rate", st.CurrentSuccess,
					"burn_rate", st.BurnRate, "budget_left_pct", st.ErrorBudgetLeft)
			}
		}
	}
}

func splitJobKey(key string) (workspaceID, driftID string, ok bool) {
	i := strings.IndexByte(key, '/')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

func initLogger(level string) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		lv = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lv})))
}

func initObservability(ctx context.Context) (*observability.Provider, error) {
	obsCfg := observability.DefaultConfig()
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	obsCfg.Enabled = endpoint != ""
	if endpoint != "" {
		obsCfg.OTLPEndpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
		obsCfg.Insecure = strings.HasPrefix(endpoint, "http://")
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		obsCfg.Environment = env
	}
	return observability.New(ctx, obsCfg)
}

// docAdapter picks the documentation backend. Without Confluence
// credentials the in-memory fake serves local development.
func docAdapter() adapters.DocAdapter {
	base := os.Getenv("CONFLUENCE_BASE_URL")
	if base == "" {
		slog.Warn("no doc system configured, using in-memory docs")
		return adapters.NewFakeDocs()
	}
	return adapters.NewConfluenceDocs(base,
		os.Getenv("CONFLUENCE_EMAIL"), os.Getenv("CONFLUENCE_TOKEN"))
}

func callbackKey(cfg *config.Config) []byte {
	if cfg.CallbackKey != "" {
		return []byte(cfg.CallbackKey)
	}
	slog.Warn("CALLBACK_KEY not set, generating an ephemeral key; approval links break on restart")
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	return key
}
