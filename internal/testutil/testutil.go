package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dom/social-backend/internal/api"
	"github.com/dom/social-backend/internal/cache"
	"github.com/dom/social-backend/internal/config"
	"github.com/dom/social-backend/internal/eventbus"
	"github.com/dom/social-backend/internal/events"
	"github.com/dom/social-backend/internal/metrics"
	"github.com/dom/social-backend/internal/repository"
	repoPostgres "github.com/dom/social-backend/internal/repository/postgres"
	"github.com/dom/social-backend/internal/service"
	"github.com/dom/social-backend/internal/storage"
	"github.com/dom/social-backend/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRabbitMQ "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB creates a new PostgreSQL testcontainer and returns a connection
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_social"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(repoPostgres.Models...); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	testDB := &TestDB{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}

	t.Cleanup(func() {
		testDB.Cleanup()
	})

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		ctx := context.Background()
		tdb.Container.Terminate(ctx)
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	tables := []string{
		"refresh_tokens",
		"search_documents",
		"media",
		"posts",
		"users",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

// TestRedis manages a testcontainers Redis instance
type TestRedis struct {
	Container *tcRedis.RedisContainer
	Client    *redis.Client
}

func NewTestRedis(t *testing.T) *TestRedis {
	t.Helper()

	ctx := context.Background()

	container, err := tcRedis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	client, err := cache.NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		container.Terminate(context.Background())
	})

	return &TestRedis{Container: container, Client: client}
}

// Flush empties the database for test isolation
func (tr *TestRedis) Flush(t *testing.T) {
	t.Helper()
	if err := tr.Client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}

// TestRabbitMQ manages a testcontainers RabbitMQ broker
type TestRabbitMQ struct {
	Container *tcRabbitMQ.RabbitMQContainer
	URL       string
}

func NewTestRabbitMQ(t *testing.T) *TestRabbitMQ {
	t.Helper()

	ctx := context.Background()

	container, err := tcRabbitMQ.Run(ctx,
		"rabbitmq:3.13-management-alpine",
		tcRabbitMQ.WithAdminUsername("guest"),
		tcRabbitMQ.WithAdminPassword("guest"),
	)
	if err != nil {
		t.Fatalf("failed to start rabbitmq container: %v", err)
	}

	url, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get amqp url: %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	return &TestRabbitMQ{Container: container, URL: url}
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	return &config.Config{
		Port:                "0", // Random port
		Environment:         "test",
		LogLevel:            "debug",
		Services:            []string{"identity", "posts", "media", "search", "feed"},
		EventExchange:       "test_events",
		JWTSecret:           "test-jwt-secret-key-for-testing-only",
		AccessTokenTTL:      time.Hour,
		RefreshTokenTTL:     7 * 24 * time.Hour,
		PostListCacheTTL:    time.Minute,
		PostCacheTTL:        time.Minute,
		EventHandlerTimeout: 5 * time.Second,
		MediaBaseURL:        "http://localhost/media",
		RateLimitRPS:        1000,
		RateLimitBurst:      1000,
		RegisterRateLimit:   1000,
		RegisterRateWindow:  time.Minute,
	}
}

// ResultLog collects event bus outcomes for assertions.
type ResultLog struct {
	mu      sync.Mutex
	results []eventbus.Result
}

func (l *ResultLog) Add(r eventbus.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
}

func (l *ResultLog) Snapshot() []eventbus.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]eventbus.Result(nil), l.results...)
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server   *httptest.Server
	DB       *TestDB
	Redis    *TestRedis
	Broker   *TestRabbitMQ
	Bus      *eventbus.Client
	Store    *storage.LocalStore
	Repos    *repository.Repositories
	Services *service.Services
	Hub      *websocket.Hub
	Config   *config.Config
	Results  *ResultLog
	Logger   *zap.Logger
}

// NewTestServer creates a complete test server with all dependencies,
// including the event consumers of every service.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	ctx := context.Background()
	testDB := NewTestDB(t)
	testRedis := NewTestRedis(t)
	broker := NewTestRabbitMQ(t)
	cfg := TestConfig()
	cfg.MediaDir = t.TempDir()
	log := zap.NewNop()

	store, err := storage.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		t.Fatalf("failed to create media store: %v", err)
	}

	registry := prometheus.NewRegistry()
	rec := metrics.NewCollector(registry)
	results := &ResultLog{}

	bus := eventbus.New(eventbus.Config{
		URL:            broker.URL,
		Exchange:       cfg.EventExchange,
		HandlerTimeout: cfg.EventHandlerTimeout,
		OnResult:       results.Add,
	}, log, rec)

	repos := repoPostgres.NewRepositories(testDB.DB)
	services := service.NewServices(service.Dependencies{
		Repos:     repos,
		Cache:     cache.NewRedisCache(testRedis.Client),
		Publisher: bus,
		Store:     store,
		Config:    cfg,
		Logger:    log,
		Metrics:   rec,
	})

	hub := websocket.NewHub(log)
	go hub.Run()

	if err := events.Register(ctx, bus, log, services.Search, services.Media, hub); err != nil {
		t.Fatalf("failed to register consumers: %v", err)
	}

	router := api.NewRouter(api.RouterDeps{
		Services: services,
		Hub:      hub,
		Files:    store,
		Limits:   testRedis.Client,
		Gatherer: registry,
		Config:   cfg,
		Logger:   log,
	})

	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:   server,
		DB:       testDB,
		Redis:    testRedis,
		Broker:   broker,
		Bus:      bus,
		Store:    store,
		Repos:    repos,
		Services: services,
		Hub:      hub,
		Config:   cfg,
		Results:  results,
		Logger:   log,
	}

	t.Cleanup(func() {
		server.Close()
		bus.Close()
		hub.Stop()
	})

	return ts
}

// Reset clears the database and cache between subtests.
func (ts *TestServer) Reset(t *testing.T) {
	t.Helper()
	ts.DB.Truncate(t)
	ts.Redis.Flush(t)
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", ts.Server.URL, path)
}

// FeedURL returns the live feed WebSocket URL with token
func (ts *TestServer) FeedURL(token string) string {
	wsURL := "ws" + strings.TrimPrefix(ts.Server.URL, "http")
	return fmt.Sprintf("%s/api/v1/feed/ws?token=%s", wsURL, token)
}
