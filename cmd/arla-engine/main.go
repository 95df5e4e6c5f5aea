// arla-engine serves the mortgage-origination question-evaluation API:
// given a proposal's system-of-record state, it determines which
// questions are still outstanding and applies submitted answers.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nickflorez-ai/arla-engine/internal/evaluator"
	"github.com/nickflorez-ai/arla-engine/internal/loanstate"
	"github.com/nickflorez-ai/arla-engine/internal/obsv"
	"github.com/nickflorez-ai/arla-engine/internal/queuebuilder"
	"github.com/nickflorez-ai/arla-engine/internal/registry"
	"github.com/nickflorez-ai/arla-engine/internal/rules"
	"github.com/nickflorez-ai/arla-engine/internal/sor/postgres"
	"github.com/nickflorez-ai/arla-engine/internal/statecache"
	transporthttp "github.com/nickflorez-ai/arla-engine/internal/transport/http"
	"github.com/nickflorez-ai/arla-engine/internal/writeback"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to the questions/sections configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	logger := obsv.InitLogger(getEnv("APP_ENV", "development"), getEnv("LOG_LEVEL", "info"))

	httpPort := getEnv("HTTP_PORT", "8080")

	log.Printf("Starting arla-engine")
	log.Printf("HTTP Port: %s", httpPort)
	log.Printf("Config Directory: %s", *configDir)

	ctx := context.Background()

	dbConfig, err := postgres.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load system-of-record config: %v", err)
	}
	dbClient, err := postgres.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to system of record: %v", err)
	}
	log.Println("Connected to PostgreSQL system of record")

	rdb := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to state cache: %v", err)
	}
	log.Println("Connected to Redis state cache")

	engine, err := rules.NewEngine(engineWorkerCount(), logger)
	if err != nil {
		log.Fatalf("Failed to initialize rules engine: %v", err)
	}
	engine.SetRowErrorCounter(obsv.RuleEvaluationFailure)

	reg, err := registry.Load(*configDir, engine, logger)
	if err != nil {
		log.Fatalf("Failed to load question registry: %v", err)
	}
	log.Printf("Loaded %d questions across %d sections", reg.QuestionCount(), len(reg.Sections()))

	loader := loanstate.NewLoader(dbClient)
	cache := statecache.NewCache(rdb, loader, logger)
	eval := evaluator.New(reg, engine, evaluatorBudget(), obsv.BudgetExceeded, logger)
	eval.SetDurationObserver(obsv.ObserveEvaluateDuration)

	brokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	producer, err := writeback.NewProducer(writeback.Config{Brokers: brokers, Topic: getEnv("WRITEBACK_TOPIC", writeback.DefaultTopic)}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize write-back producer: %v", err)
	}

	answerHandler := queuebuilder.NewAnswerHandler(reg, cache, eval, producer, dbClient, obsv.QueuePublishFailure, logger)

	svc := transporthttp.NewQuestionService(reg, engine, cache, eval, answerHandler, dbClient)
	svc.MarkWarmedUp()

	router := transporthttp.NewRouter(svc)
	srv := &http.Server{
		Addr:    ":" + httpPort,
		Handler: router,
	}

	go func() {
		log.Printf("HTTP server listening on :%s", httpPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	waitForShutdown(srv, dbClient, rdb, producer)
}

func engineWorkerCount() int {
	return 10
}

// evaluatorBudget reads the evaluator's latency budget in milliseconds from
// EVALUATOR_BUDGET_MS, falling back to evaluator.DefaultBudget when unset or
// not a positive integer.
func evaluatorBudget() time.Duration {
	ms, err := strconv.Atoi(getEnv("EVALUATOR_BUDGET_MS", ""))
	if err != nil || ms <= 0 {
		return evaluator.DefaultBudget
	}
	return time.Duration(ms) * time.Millisecond
}

// waitForShutdown blocks until the process receives a shutdown signal, then
// releases acquired resources in reverse order: the HTTP listener first,
// then the write-back producer, then the cache connection, then the
// database pool.
func waitForShutdown(srv *http.Server, db *postgres.Client, rdb *redis.Client, producer *writeback.Producer) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down arla-engine...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	producer.Close()
	if err := rdb.Close(); err != nil {
		log.Printf("Error closing state cache connection: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("Error closing system-of-record pool: %v", err)
	}
	log.Println("Shutdown complete")
}
