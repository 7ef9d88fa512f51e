// Package testutil provides helpers shared by the test suites: random
// resource names, payload generators, an in-memory S3-compatible fake
// server, and environment wiring for integration runs.
package testutil

import (
	"math/rand"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// Environment variables consumed by integration tests.
const (
	EnvEndpoint  = "MINIO_TEST_CONNECTION"
	EnvAccessKey = "MINIO_TEST_ACCESS_KEY"
	EnvSecretKey = "MINIO_TEST_SECRET_KEY"
)

// RandomBucketName returns a unique DNS-safe bucket name with the given
// prefix.
func RandomBucketName(prefix string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	name := prefix + "-" + id
	if len(name) > 63 {
		name = name[:63]
	}
	return strings.ToLower(name)
}

// RandomKey returns a unique object key with the given prefix.
func RandomKey(prefix string) string {
	return prefix + "/" + uuid.New().String()
}

// RandomData returns n bytes of deterministic pseudo-random data. The same
// seed yields the same payload, so tests can compare round-tripped bytes.
func RandomData(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	data := make([]byte, n)
	_, _ = r.Read(data)
	return data
}

// IntegrationConfig holds the connection settings for a live server.
type IntegrationConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
}

// IntegrationSetup reads the integration environment and skips the test
// when it is not configured.
func IntegrationSetup(t *testing.T) IntegrationConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := IntegrationConfig{
		Endpoint:  os.Getenv(EnvEndpoint),
		AccessKey: os.Getenv(EnvAccessKey),
		SecretKey: os.Getenv(EnvSecretKey),
	}
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		t.Skipf("integration environment not configured; set %s, %s and %s",
			EnvEndpoint, EnvAccessKey, EnvSecretKey)
	}
	return cfg
}
