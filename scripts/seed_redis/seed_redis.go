package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file — using system environment variables")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisGetEnv("REDIS_ADDR", "localhost:6379"),
		Password: redisGetEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer client.Close()

	ctx := context.Background()

	fmt.Println("Connecting to Redis...")
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	fmt.Println("✓ Connected")

	step1_webhook_tokens(ctx, client)
	step2_beacons(ctx, client)
	step3_verify(ctx, client)

	fmt.Println("\n✅ Redis seeded successfully")
	fmt.Println("   Run next: go test ./internal/... -v")
}

func step1_webhook_tokens(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 1: Seeding webhook tokens ──────────────")

	// Key pattern: webhook:auth:{token} → gateway name
	// This is what authenticator.go looks up at Level 2
	// TTL = 0 means permanent — these never expire
	tokens := map[string]string{
		"webhook:auth:ttn_gateway_token":       "ttn",
		"webhook:auth:abee_gateway_token":      "abee",
		"webhook:auth:teltonika_gateway_token": "teltonika",
		"webhook:auth:test_token":              "test",
	}

	for key, gateway := range tokens {
		err := client.Set(ctx, key, gateway, 0).Err()
		if err != nil {
			log.Fatalf("Failed to set key %s: %v", key, err)
		}
		fmt.Printf("  ✓ %-45s → %s\n", key, gateway)
	}
}

func step2_beacons(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 2: Seeding beacon cache ────────────────")

	// Key pattern: beacon:{mac} → JSON beacon record
	// Warm entries for the fixed installations so first uplinks skip the
	// database round trip. The service re-caches with its own TTL.
	beacons := []struct {
		MAC       string
		Latitude  float64
		Longitude float64
	}{
		{"C3:00:00:3E:7D:DA", 40.4168, -3.7038},
		{"C3:00:00:3E:7D:DB", 40.4170, -3.7031},
		{"C3:00:00:3E:7D:DC", 40.4175, -3.7045},
	}

	for _, b := range beacons {
		raw, err := json.Marshal(b)
		if err != nil {
			log.Fatalf("Failed to marshal beacon %s: %v", b.MAC, err)
		}
		key := fmt.Sprintf("beacon:%s", b.MAC)
		if err := client.Set(ctx, key, raw, 0).Err(); err != nil {
			log.Fatalf("Failed to set key %s: %v", key, err)
		}
		fmt.Printf("  ✓ %-30s → (%.4f, %.4f)\n", key, b.Latitude, b.Longitude)
	}
}

func step3_verify(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 3: Verification ────────────────────────")

	tokens, err := client.Keys(ctx, "webhook:auth:*").Result()
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	fmt.Printf("  ✓ %d webhook tokens found in Redis\n", len(tokens))

	beacons, err := client.Keys(ctx, "beacon:*").Result()
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	fmt.Printf("  ✓ %d beacons found in Redis\n", len(beacons))

	val, err := client.Get(ctx, "webhook:auth:test_token").Result()
	if err != nil {
		log.Fatalf("Spot check failed: %v", err)
	}
	fmt.Printf("  ✓ spot check: webhook:auth:test_token → %s\n", val)
}

func redisGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
