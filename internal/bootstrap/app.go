// Package bootstrap builds the dependency graph shared by the API server, the
// SQS worker, and the CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"autosurvey-backend/internal/automation"
	"autosurvey-backend/internal/batch"
	"autosurvey-backend/internal/browser"
	"autosurvey-backend/internal/cache"
	"autosurvey-backend/internal/formfill"
	"autosurvey-backend/internal/jobs"
	"autosurvey-backend/internal/llm"
	"autosurvey-backend/internal/llm/gemini"
	"autosurvey-backend/internal/llm/openai"
	"autosurvey-backend/internal/logs"
	"autosurvey-backend/internal/queue"
	"autosurvey-backend/internal/quiz"
	"autosurvey-backend/internal/shared/config"
	"autosurvey-backend/internal/shared/server"
	"autosurvey-backend/internal/shared/server/middleware"
	"autosurvey-backend/internal/shared/storage/db"
	"autosurvey-backend/internal/shared/storage/object"
	localstore "autosurvey-backend/internal/shared/storage/object/local"
	s3store "autosurvey-backend/internal/shared/storage/object/s3"
	"autosurvey-backend/internal/shared/telemetry"
	"autosurvey-backend/internal/submissions"
	"autosurvey-backend/internal/users"
	"autosurvey-backend/internal/workerproc"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	DB     *sql.DB
	Store  object.ObjectStore

	Cache        *cache.Store
	Gate         *submissions.Gate
	Browser      browser.Browser
	LLM          llm.Client
	Resolver     *quiz.Resolver
	Driver       *formfill.Driver
	Runner       *formfill.Runner
	Orchestrator *batch.Orchestrator

	UsersRepo    users.Repo
	UsersService *users.Service

	Processor *workerproc.Processor
	JobsRepo  jobs.Repo

	// Set by Build only.
	Queue  queue.Client
	Pool   *jobs.Pool
	Router *gin.Engine
}

// BuildCore prepares everything a run needs: storage, browser, LLM, the
// orchestrator, and the roster. No queue and no routes.
func BuildCore(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	llmClient, err := buildLLM(ctx, cfg)
	if err != nil {
		return nil, err
	}

	usersRepo, err := buildUsersRepo(cfg, sqlDB)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		DB:        sqlDB,
		Store:     store,
		LLM:       llmClient,
		UsersRepo: usersRepo,
	}
	app.Cache = cache.New(store)
	app.Gate = submissions.NewGate(app.Cache)
	app.Browser = browser.NewRodBrowser(browser.Options{
		Headless:          cfg.BrowserHeadless,
		Bin:               cfg.BrowserBin,
		NavigationTimeout: cfg.NavigationTimeout,
	})

	app.Resolver = quiz.NewResolver(app.Cache, app.LLM, app.Browser)
	app.Resolver.TTL = cfg.QuizCacheTTL
	if cfg.SettleDelay > 0 {
		app.Resolver.Settle = cfg.SettleDelay
	}

	app.Driver = formfill.NewDriver(app.Browser, timing(cfg))
	app.Runner = formfill.NewRunner(app.Gate, app.Driver)
	app.Orchestrator = &batch.Orchestrator{
		Runner:        app.Runner,
		Resolver:      app.Resolver,
		CompanyName:   cfg.CompanyName,
		Concurrency:   cfg.BatchConcurrency,
		UserDelayMin:  cfg.UserDelayMin,
		UserDelayMax:  cfg.UserDelayMax,
		ScoreWait:     cfg.ScoreWait,
		PassThreshold: cfg.PassThreshold,
		Sleep:         formfill.Sleep,
		RandDuration:  formfill.RandDuration,
	}

	app.UsersService = users.NewService(usersRepo)
	app.Processor = &workerproc.Processor{Automation: app.Orchestrator, Roster: app.UsersService}
	if sqlDB != nil {
		app.JobsRepo = &jobs.PGRepo{DB: sqlDB}
	} else {
		app.JobsRepo = jobs.NewMemoryRepo()
	}
	return app, nil
}

// Build prepares the API server: BuildCore plus a job queue and the router.
// Without AUTOSURVEY_SQS_QUEUE_URL jobs run on an in-process pool.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	app, err := BuildCore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var jobReader automation.JobReader
	if strings.TrimSpace(cfg.SQSQueueURL) != "" {
		sqsClient, err := queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		tracked := &jobs.Tracked{Repo: app.JobsRepo, Next: sqsClient}
		app.Queue, jobReader = tracked, tracked
	} else {
		app.Pool = jobs.NewPool(app.HandleJob, app.JobsRepo, cfg.WorkerConcurrency, cfg.QueueCapacity)
		app.Queue, jobReader = app.Pool, app.Pool
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      cfg,
		Users:       users.NewHandler(app.UsersService, middleware.EditorAuth(cfg.EditorUser, cfg.EditorPassword)),
		Automation:  automation.NewHandler(app.Queue, jobReader, app.UsersService),
		Logs:        logs.NewHandler(cfg.LogFile),
		Submissions: submissions.NewHandler(app.Gate, cfg.PassThreshold),
	})
	return app, nil
}

// HandleJob runs one queued message through the orchestrator.
func (a *App) HandleJob(ctx context.Context, msg queue.Message) error {
	return workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, msg), a.Processor, "")
}

// Close drains the pool, then releases the browser and database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Pool != nil {
		if err := a.Pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain jobs: %w", err))
		}
	}
	if a.Browser != nil {
		if err := a.Browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func timing(cfg config.Config) formfill.Timing {
	t := formfill.DefaultTiming()
	if cfg.MaxAttempts > 0 {
		t.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryBackoff > 0 {
		t.RetryBackoff = cfg.RetryBackoff
	}
	if cfg.SettleDelay > 0 {
		t.Settle = cfg.SettleDelay
	}
	if cfg.SubmitDelayMax > 0 {
		t.SubmitDelayMin, t.SubmitDelayMax = cfg.SubmitDelayMin, cfg.SubmitDelayMax
	}
	return t
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.RosterStore == "postgres" {
			return nil, errors.New("DATABASE_URL is required when ROSTER_STORE=postgres")
		}
		return nil, nil
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		if isDevLike(cfg.Env) && cfg.RosterStore != "postgres" {
			telemetry.Warn("bootstrap.db_unavailable", map[string]any{"error": err})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.CacheStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, errors.New("CACHE_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.CacheDir), nil
	}
}

func buildLLM(ctx context.Context, cfg config.Config) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch cfg.LLMProvider {
	case "none":
		return llm.PlaceholderClient{}, nil
	case "gemini":
		client, err = gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel)
	default:
		client, err = openai.NewPromptClient(cfg.OpenAIAPIKey, cfg.LLMModel)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.llm_unavailable", map[string]any{"provider": cfg.LLMProvider, "error": err})
			return llm.PlaceholderClient{}, nil
		}
		return nil, err
	}
	return llm.WithRetry(client), nil
}

func buildUsersRepo(cfg config.Config, sqlDB *sql.DB) (users.Repo, error) {
	switch cfg.RosterStore {
	case "postgres":
		if sqlDB == nil {
			return nil, errors.New("ROSTER_STORE=postgres requires a database")
		}
		return &users.PGRepo{DB: sqlDB}, nil
	case "memory":
		return users.NewMemoryRepo(), nil
	default:
		return users.NewCSVRepo(cfg.RosterCSVPath)
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
