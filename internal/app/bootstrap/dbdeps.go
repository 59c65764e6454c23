// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/stratagate/internal/app/store/pgtokens"
	"github.com/dalemusser/stratagate/internal/app/system/actiontoken"
	"github.com/dalemusser/stratagate/internal/app/system/mailer"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// It is created in ConnectDB and passed to EnsureSchema, Startup,
// BuildHandler and Shutdown. Shutdown closes what ConnectDB opened.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Postgres is set only when token_store is "postgres".
	Postgres *pgtokens.Store

	// ActionTokens is the configured action token backend.
	ActionTokens actiontoken.Store

	// Mailer is nil when no SMTP host is configured.
	Mailer *mailer.Mailer
}
