package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	googleauth "interview-backend/internal/auth"
	"interview-backend/internal/enhance"
	"interview-backend/internal/interviews"
	"interview-backend/internal/llm"
	openai "interview-backend/internal/llm/openai"
	"interview-backend/internal/payments"
	"interview-backend/internal/queue"
	"interview-backend/internal/sessions"
	"interview-backend/internal/shared/config"
	"interview-backend/internal/shared/server"
	"interview-backend/internal/shared/storage/db"
	"interview-backend/internal/shared/storage/object"
	localstore "interview-backend/internal/shared/storage/object/local"
	s3store "interview-backend/internal/shared/storage/object/s3"
	"interview-backend/internal/speech"
	"interview-backend/internal/usage"
	"interview-backend/internal/users"
)

// App holds shared dependencies for the API server and the queue worker.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	SessionsRepo   sessions.Repo
	InterviewsRepo interviews.Repo
	PaymentsRepo   payments.Repo
	UsersRepo      users.Repo

	UsageService      *usage.Service
	SessionsService   *sessions.Service
	PipelineProcessor SessionProcessor
	InterviewsService *interviews.Service
	PaymentsService   *payments.Service
	SpeechService     *speech.Service
	EnhanceService    *enhance.Service
	UsersService      *users.Service

	SessionsHandler   *sessions.Handler
	InterviewsHandler *interviews.Handler
	PaymentsHandler   *payments.Handler
	SpeechHandler     *speech.Handler
	EnhanceHandler    *enhance.Handler
	UsageHandler      *usage.Handler
	UsersHandler      *users.Handler
	GoogleAuth        *googleauth.GoogleService
}

// SessionProcessor allows callers to override pipeline processing for tests.
type SessionProcessor interface {
	ProcessSession(ctx context.Context, sessionID string) error
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:           app.Config,
		SessionHandler:   app.SessionsHandler,
		InterviewHandler: app.InterviewsHandler,
		PaymentHandler:   app.PaymentsHandler,
		SpeechHandler:    app.SpeechHandler,
		EnhanceHandler:   app.EnhanceHandler,
		UsageHandler:     app.UsageHandler,
		UserHandler:      app.UsersHandler,
		GoogleAuth:       app.GoogleAuth,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("PIPELINE_SQS_QUEUE_URL")) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var (
		sessionRepo   sessions.Repo
		interviewRepo interviews.Repo
		paymentRepo   payments.Repo
		userRepo      users.Repo
	)

	if app.DB != nil {
		sessionRepo = &sessions.PGRepo{DB: app.DB}
		interviewRepo = &interviews.PGRepo{DB: app.DB}
		paymentRepo = &payments.PGRepo{DB: app.DB}
		userRepo = &users.PGRepo{DB: app.DB}
	} else {
		sessionRepo = sessions.NewMemoryRepo()
		interviewRepo = interviews.NewMemoryRepo()
		paymentRepo = payments.NewMemoryRepo()
		userRepo = users.NewMemoryRepo()
	}

	var usageSvc *usage.Service
	if app.DB != nil {
		usageSvc = usage.NewPostgresService(usage.NewPGStore(app.DB))
	} else {
		usageSvc = usage.NewService()
	}

	llmClient := llm.Client(llm.PlaceholderClient{})
	if app.Config.LLMProvider == "openai" {
		openaiClient, err := openai.NewClient(os.Getenv("OPENAI_API_KEY"), app.Config.LLMModel)
		if err != nil {
			return err
		}
		llmClient = openaiClient
	}

	userSvc := users.NewService(userRepo)
	userSvc.UsageReset = usageSvc

	sessionSvc := &sessions.Service{
		Repo:       sessionRepo,
		Usage:      usageSvc,
		Plans:      userSvc,
		LLM:        llmClient,
		Store:      app.Store,
		JobQueue:   app.Queue,
		StaleAfter: app.Config.SessionStaleAfter,
	}

	interviewSvc := &interviews.Service{
		Repo:     interviewRepo,
		Sessions: sessionSvc,
		Usage:    usageSvc,
		Plans:    userSvc,
		LLM:      llmClient,
	}

	paymentSvc := &payments.Service{
		Repo:          paymentRepo,
		Usage:         usageSvc,
		Users:         userSvc,
		KeySecret:     app.Config.PaymentsKeySecret,
		WebhookSecret: app.Config.PaymentsWebhookSecret,
	}
	if strings.TrimSpace(app.Config.PaymentsKeyID) != "" {
		provider, err := payments.NewRazorpayProvider(app.Config.PaymentsKeyID, app.Config.PaymentsKeySecret)
		if err != nil {
			return err
		}
		paymentSvc.Provider = provider
	}

	speechSvc, err := buildSpeech(app.Config)
	if err != nil {
		return err
	}

	enhanceSvc := &enhance.Service{
		LLM:   llmClient,
		Usage: usageSvc,
		Plans: userSvc,
	}

	googleAuthSvc := googleauth.NewGoogleService(
		app.Config.GoogleClientID,
		app.Config.GoogleClientSecret,
		app.Config.GoogleRedirectURL,
		app.Config.UIRedirectURL,
		userSvc,
	)

	app.SessionsRepo = sessionRepo
	app.InterviewsRepo = interviewRepo
	app.PaymentsRepo = paymentRepo
	app.UsersRepo = userRepo
	app.UsageService = usageSvc
	app.SessionsService = sessionSvc
	app.PipelineProcessor = sessionSvc
	app.InterviewsService = interviewSvc
	app.PaymentsService = paymentSvc
	app.SpeechService = speechSvc
	app.EnhanceService = enhanceSvc
	app.UsersService = userSvc
	app.SessionsHandler = sessions.NewHandler(sessionSvc)
	app.InterviewsHandler = interviews.NewHandler(interviewSvc)
	app.PaymentsHandler = payments.NewHandler(paymentSvc)
	app.SpeechHandler = speech.NewHandler(speechSvc)
	app.EnhanceHandler = enhance.NewHandler(enhanceSvc)
	app.UsageHandler = usage.NewHandler(usageSvc, userSvc)
	app.UsersHandler = users.NewHandler(userSvc)
	app.GoogleAuth = googleAuthSvc

	if app.SessionsHandler == nil || app.InterviewsHandler == nil || app.UsageHandler == nil {
		return errors.New("failed to initialize handlers")
	}

	return nil
}

// buildSpeech wires Polly as the primary voice when an AWS region is set and
// OpenAI speech as the fallback and transcriber when an API key is present.
func buildSpeech(cfg config.Config) (*speech.Service, error) {
	svc := &speech.Service{}

	if strings.TrimSpace(cfg.AWSRegion) != "" {
		polly, err := speech.NewPollySynthesizer(context.Background(), cfg.AWSRegion)
		if err != nil {
			log.Printf("bootstrap: polly unavailable, falling back to openai speech: %v", err)
		} else {
			svc.Primary = polly
		}
	}

	if apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); apiKey != "" {
		oai, err := speech.NewOpenAISpeech(apiKey)
		if err != nil {
			return nil, err
		}
		svc.Fallback = oai
		svc.Transcriber = oai
	}

	return svc, nil
}
