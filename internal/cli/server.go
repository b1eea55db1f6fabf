package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"quizparty-service/internal/app"
	"quizparty-service/internal/config"
	"quizparty-service/internal/domain"
	"quizparty-service/internal/infra/memory"
	pgloader "quizparty-service/internal/infra/postgres"
	redisinfra "quizparty-service/internal/infra/redis"
	"quizparty-service/internal/quiz"
	transport "quizparty-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	bankID := cfg.Bank.ID
	if bankID == "" {
		bankID = "default"
	}

	var loader memory.BankLoader = memory.NewStaticBankLoader(map[string][]domain.Question{
		bankID: sampleBank(),
	})
	if pool != nil {
		loader = pgloader.NewBankLoader(pool)
	}

	bankTTL := config.TTLDuration(cfg.Bank.TTL, 10*time.Minute)
	var banks app.BankRepository
	if redisClient != nil {
		banks = redisinfra.NewBankRepository(redisClient, loader, bankTTL)
	} else {
		banks = memory.NewBankRepository(loader, bankTTL)
	}

	// Level generation stalls on an empty difficulty tier; refuse to serve
	// a bank that cannot produce curricula.
	bank, err := banks.GetBank(ctx, bankID)
	if err != nil {
		return err
	}
	if _, err := quiz.PartitionByDifficulty(bank); err != nil {
		return err
	}

	var rooms app.RoomRepository
	if redisClient != nil {
		rooms = redisinfra.NewRoomStore(redisClient, redisTTL)
	} else {
		rooms = memory.NewRoomStore()
	}
	service := app.NewRoomService(rooms, banks, app.GameConfig{
		BankID:            bankID,
		TotalLevels:       cfg.Game.TotalLevels,
		QuestionsPerLevel: cfg.Game.QuestionsPerLevel,
	})
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quizparty service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleBank provides a minimal built-in question set; configure Postgres to
// serve a real bank in production.
func sampleBank() []domain.Question {
	return []domain.Question{
		{
			ID:          "e1",
			Difficulty:  domain.DifficultyEasy,
			Prompt:      "What is 2 + 2?",
			Options:     []string{"3", "4", "5", "22"},
			AnswerIndex: 1,
		},
		{
			ID:          "e2",
			Difficulty:  domain.DifficultyEasy,
			Prompt:      "Which planet do we live on?",
			Options:     []string{"Mars", "Venus", "Earth", "Jupiter"},
			AnswerIndex: 2,
		},
		{
			ID:          "e3",
			Difficulty:  domain.DifficultyEasy,
			Prompt:      "How many days are in a week?",
			Options:     []string{"5", "6", "7", "8"},
			AnswerIndex: 2,
		},
		{
			ID:          "m1",
			Difficulty:  domain.DifficultyMedium,
			Prompt:      "What is the square root of 144?",
			Options:     []string{"10", "11", "12", "14"},
			AnswerIndex: 2,
		},
		{
			ID:          "m2",
			Difficulty:  domain.DifficultyMedium,
			Prompt:      "Which gas makes up most of Earth's atmosphere?",
			Options:     []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Hydrogen"},
			AnswerIndex: 1,
		},
		{
			ID:          "m3",
			Difficulty:  domain.DifficultyMedium,
			Prompt:      "In which year did the first moon landing happen?",
			Options:     []string{"1965", "1967", "1969", "1971"},
			AnswerIndex: 2,
		},
		{
			ID:          "h1",
			Difficulty:  domain.DifficultyHard,
			Prompt:      "What is the time complexity of binary search?",
			Options:     []string{"O(n)", "O(log n)", "O(n log n)", "O(1)"},
			AnswerIndex: 1,
		},
		{
			ID:          "h2",
			Difficulty:  domain.DifficultyHard,
			Prompt:      "Which element has the atomic number 79?",
			Options:     []string{"Silver", "Platinum", "Gold", "Mercury"},
			AnswerIndex: 2,
		},
	}
}
