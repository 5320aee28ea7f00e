package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/config"
	"github.com/stemsi/assessment-runner/internal/database"
	"github.com/stemsi/assessment-runner/internal/logger"
	"github.com/stemsi/assessment-runner/internal/model"
	"github.com/stemsi/assessment-runner/internal/repository"
	"github.com/stemsi/assessment-runner/internal/service"
	"github.com/stemsi/assessment-runner/internal/validator"
)

func main() {
	n := flag.Int("n", 25, "Number of attempts to create")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load question catalog")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	attemptRepo := repository.NewAttemptRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	attemptService := service.NewAttemptService(attemptRepo, answerRepo, cat, log)

	fmt.Printf("=== Seeding %d Attempts ===\n", *n)

	names := []string{
		"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
		"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
		"Hendra Gunawan", "Ika Sari", "Lukman Hakim", "Maya Septiana", "Nanda Pratama",
		"Putri Dian", "Rafi Ahmad", "Toni Setiawan", "Wahyu Hidayat", "Citra Kirana",
	}
	keys := cat.Keys()

	created, submitted := 0, 0
	for i := 0; i < *n; i++ {
		name := names[i%len(names)]
		email := fmt.Sprintf("%s.%d@example.com", strings.ToLower(strings.ReplaceAll(name, " ", ".")), i+1)

		attempt, err := attemptService.Start(ctx, model.StartAttemptRequest{Name: name, Email: email})
		if err != nil {
			fmt.Printf("Error creating attempt for %s: %v\n", name, err)
			continue
		}
		created++

		// Every third attempt stays in progress with a partial answer set.
		done := i%3 != 0
		answered := keys
		if !done {
			answered = keys[:rand.IntN(len(keys))]
		}
		answers := make(map[string]string, len(answered))
		for _, k := range answered {
			answers[k] = fmt.Sprintf("Sample answer from %s for %s.", name, k)
		}

		if _, err := attemptService.Autosave(ctx, attempt, answers, ""); err != nil {
			fmt.Printf("Error saving answers for attempt %d: %v\n", attempt.ID, err)
			continue
		}
		if !done {
			continue
		}

		// Backdate the start so durations and completion times look real.
		duration := 1800 + rand.IntN(3601)
		startedAt := time.Now().Add(-time.Duration(duration+rand.IntN(7*24*3600)) * time.Second).UTC()
		if _, err := pool.Exec(ctx, "UPDATE attempts SET started_at = $2 WHERE id = $1", attempt.ID, startedAt); err != nil {
			fmt.Printf("Error backdating attempt %d: %v\n", attempt.ID, err)
			continue
		}
		completedAt := startedAt.Add(time.Duration(duration) * time.Second)
		if _, err := attemptRepo.MarkSubmitted(ctx, attempt.ID, completedAt, duration); err != nil {
			fmt.Printf("Error submitting attempt %d: %v\n", attempt.ID, err)
			continue
		}
		submitted++

		if created%10 == 0 {
			fmt.Printf("Created %d attempts...\n", created)
		}
	}

	fmt.Printf("\nSeed completed! Created %d/%d attempts (%d submitted).\n", created, *n, submitted)
}
