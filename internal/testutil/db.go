// Package testutil holds the shared fixtures for store and handler tests:
// a per-test Mongo database, user fixtures, and request helpers.
package testutil

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/indexes"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultMongoURI is used when STRATAGATE_TEST_MONGO_URI is unset.
	DefaultMongoURI = "mongodb://localhost:27017"

	// dbPrefix starts every per-test database name.
	dbPrefix = "gate_test_"

	// Mongo caps database names at 63 bytes.
	maxDBName = 63
)

var (
	connectOnce sync.Once
	shared      *mongo.Client
	connectErr  error
)

func mongoURI() string {
	if uri := os.Getenv("STRATAGATE_TEST_MONGO_URI"); uri != "" {
		return uri
	}
	return DefaultMongoURI
}

// connect dials the test server once per test binary.
func connect() (*mongo.Client, error) {
	connectOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		opts := options.Client().
			ApplyURI(mongoURI()).
			SetMaxPoolSize(200).
			SetMaxConnIdleTime(30 * time.Second).
			SetServerSelectionTimeout(5 * time.Second)

		shared, connectErr = mongo.Connect(ctx, opts)
		if connectErr == nil {
			connectErr = shared.Ping(ctx, nil)
		}
	})
	return shared, connectErr
}

// SetupTestDB returns an empty database, private to t, with the production
// indexes in place. It is dropped when t finishes.
//
// Without a reachable server the test is skipped, unless
// STRATAGATE_TEST_REQUIRE_MONGO is set, in which case it fails.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	client, err := connect()
	if err != nil {
		if os.Getenv("STRATAGATE_TEST_REQUIRE_MONGO") != "" {
			t.Fatalf("test MongoDB unavailable at %s: %v", mongoURI(), err)
		}
		t.Skipf("test MongoDB unavailable at %s: %v", mongoURI(), err)
	}

	db := client.Database(dbName(t.Name()))

	ctx, cancel := TestContext()
	defer cancel()
	if err := db.Drop(ctx); err != nil {
		t.Fatalf("drop stale test database: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("create indexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("drop test database %s: %v", db.Name(), err)
		}
	})
	return db
}

// dbName maps a test name to a legal database name. Long names keep a
// readable head plus a hash of the full name so subtests never collide.
func dbName(testName string) string {
	var b strings.Builder
	b.WriteString(dbPrefix)
	for _, c := range testName {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if len(name) <= maxDBName {
		return name
	}
	sum := sha1.Sum([]byte(testName))
	suffix := "_" + hex.EncodeToString(sum[:])[:10]
	return name[:maxDBName-len(suffix)] + suffix
}

// TestContext returns a context with a timeout suited to one test's store calls.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
