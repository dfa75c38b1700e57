//go:build ignore

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apocaliptyx/scenario-dedup/config"
	"github.com/apocaliptyx/scenario-dedup/database"
	"github.com/apocaliptyx/scenario-dedup/services"
)

func main() {
	fmt.Printf("🏥 Scenario Dedup Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig()
	unified := cfg.UnifiedConfiguration()
	config.ConfigureLogging(unified.Logging)
	ctx := context.Background()

	healthScore := 0
	totalTests := 4

	// Test 1: Similarity engine against a known pair
	fmt.Print("🧮 Similarity Engine: ")
	engine := services.NewSimilarityEngine(services.ThresholdsFromConfig(unified.Detector))
	if score := engine.CandidateScore("Bitcoin reaches 100k", "", "Bitcoin reaches 100k", ""); score != 100 {
		fmt.Printf("❌ FAILED (identical pair scored %d)\n", score)
	} else {
		fmt.Println("✅ OK")
		healthScore++
	}

	// Test 2: Database and schema
	fmt.Print("🗄️  Database: ")
	dbReady := false
	if cfg.DatabaseURL == "" {
		fmt.Println("❌ FAILED (DATABASE_URL not set)")
	} else if err := database.ConnectWithConfig(cfg.DatabaseURL, &unified.Database); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else if err := database.ValidateAndOptimizeSchema(ctx); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
		database.Close()
	} else {
		fmt.Println("✅ OK")
		healthScore++
		dbReady = true
		defer database.Close()
	}

	// Test 3: Comparison corpus and hash coverage
	fmt.Print("📊 Scenario Corpus: ")
	if !dbReady {
		fmt.Println("❌ SKIPPED (no database)")
	} else {
		store := services.NewPostgresScenarioStore(database.DB, unified.Database)
		active, err := store.FindActive(ctx, "", 0)
		missing, missingErr := store.FindMissingHash(ctx)
		if err != nil || missingErr != nil {
			fmt.Printf("❌ FAILED (%v %v)\n", err, missingErr)
		} else {
			fmt.Printf("✅ OK (%d active, %d missing content hash)\n", len(active), len(missing))
			healthScore++
		}
	}

	// Test 4: Suggestion cache
	fmt.Print("⚡ Suggestion Cache: ")
	if unified.Cache.RedisAddr == "" {
		fmt.Println("✅ OK (in-memory)")
		healthScore++
	} else if cache, err := services.NewRedisSampleCache(unified.Cache); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		fmt.Printf("✅ OK (redis %s)\n", unified.Cache.RedisAddr)
		healthScore++
		cache.Close()
	}

	// Overall health
	fmt.Println(strings.Repeat("-", 50))
	healthPercent := float64(healthScore) / float64(totalTests) * 100

	if healthScore == totalTests {
		fmt.Printf("🎉 SYSTEM HEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else if healthScore >= totalTests/2 {
		fmt.Printf("⚠️  SYSTEM DEGRADED: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else {
		fmt.Printf("❌ SYSTEM UNHEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	}

	fmt.Printf("⏰ Check completed at: %s\n", time.Now().Format("15:04:05"))
}
