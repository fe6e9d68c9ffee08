package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"ORDERS_AUTH_JWT_SECRET": "test-secret",
		}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("unexpected port %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Fatalf("unexpected read timeout %s", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Backend != StorageBackendMemory {
		t.Fatalf("unexpected storage backend %s", cfg.Storage.Backend)
	}
	if cfg.Payments.Mode != PaymentsModeSimulated {
		t.Fatalf("unexpected payments mode %s", cfg.Payments.Mode)
	}
	if cfg.Payments.Currency != "usd" {
		t.Fatalf("unexpected currency %s", cfg.Payments.Currency)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" || cfg.Idempotency.TTL != 24*time.Hour {
		t.Fatalf("unexpected idempotency config %+v", cfg.Idempotency)
	}
}

func TestLoadOverridesAndNormalisation(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"ORDERS_AUTH_JWT_SECRET":           "test-secret",
			"ORDERS_SERVER_PORT":               "9000",
			"ORDERS_STORAGE_BACKEND":           "Firestore",
			"ORDERS_FIRESTORE_PROJECT_ID":      "demo-project",
			"ORDERS_PAYMENTS_MODE":             "SIMULATED",
			"ORDERS_PAYMENTS_CURRENCY":         "EUR",
			"ORDERS_SERVER_READ_TIMEOUT":       "5s",
			"ORDERS_PUBSUB_TOPIC_ID":           "order-events",
			"ORDERS_IDEMPOTENCY_CLEANUP_BATCH": "50",
		}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "9000" || cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Storage.Backend != StorageBackendFirestore {
		t.Fatalf("expected lowercased backend got %s", cfg.Storage.Backend)
	}
	if cfg.Payments.Mode != PaymentsModeSimulated || cfg.Payments.Currency != "eur" {
		t.Fatalf("unexpected payments config %+v", cfg.Payments)
	}
	// PubSub project falls back to the Firestore project.
	if cfg.PubSub.ProjectID != "demo-project" || cfg.PubSub.TopicID != "order-events" {
		t.Fatalf("unexpected pubsub config %+v", cfg.PubSub)
	}
	if cfg.Idempotency.CleanupBatchSize != 50 {
		t.Fatalf("unexpected cleanup batch %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"ORDERS_STORAGE_BACKEND": "firestore",
			"ORDERS_PAYMENTS_MODE":   "stripe",
		}),
	)

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error got %v", err)
	}
	fields := validationErr.Fields()
	want := map[string]bool{
		"Firestore.ProjectID":   false,
		"Payments.StripeAPIKey": false,
		"Auth.JWTSecret":        false,
	}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Fatalf("expected %s in validation fields %v", field, fields)
		}
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://projects/demo/secrets/stripe/versions/latest" {
			return "", errors.New("unexpected ref " + ref)
		}
		return "sk_live_resolved", nil
	})

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithEnvMap(map[string]string{
			"ORDERS_AUTH_JWT_SECRET":         "plain-secret",
			"ORDERS_PAYMENTS_MODE":           "stripe",
			"ORDERS_PAYMENTS_STRIPE_API_KEY": "sm://projects/demo/secrets/stripe/versions/latest",
		}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Payments.StripeAPIKey != "sk_live_resolved" {
		t.Fatalf("expected resolved key got %q", cfg.Payments.StripeAPIKey)
	}
	if cfg.Auth.JWTSecret != "plain-secret" {
		t.Fatalf("plain values must pass through, got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"ORDERS_AUTH_JWT_SECRET": "secret://projects/demo/secrets/jwt/versions/1",
		}),
	)

	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected secret error got %v", err)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport ORDERS_SERVER_PORT=7777\nORDERS_AUTH_JWT_SECRET=\"file-secret\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(path),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "7777" {
		t.Fatalf("unexpected port %s", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "file-secret" {
		t.Fatalf("expected quoted value stripped got %q", cfg.Auth.JWTSecret)
	}
}
