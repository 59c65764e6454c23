// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dalemusser/stratagate/internal/app/system/status"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Mongo command error codes we tolerate.
const (
	codeNamespaceExists = 48
	codeCommandNotFound = 59
	codeNotImplemented  = 115
)

// collectionSpec pairs a collection with its validator. A nil schema only
// makes sure the collection exists.
type collectionSpec struct {
	name   string
	schema bson.M
}

func specs() []collectionSpec {
	return []collectionSpec{
		{"users", usersSchema()},
		{"sessions", nil},
		{"audit_logs", nil},
		{"action_tokens", actionTokensSchema()},
		{"user_list_settings", nil},
		{"pending_revocations", pendingRevocationsSchema()},
		{"login_lockouts", loginLockoutsSchema()},
	}
}

// EnsureAll creates the gate's collections and attaches their validators.
// Deployments without collMod support (some DocumentDB versions) keep the
// collections and skip the validators.
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		// fall through to create-and-tolerate-exists
		logger.Warn("list collections failed", zap.Error(err))
		existing = nil
	}

	var errs []error
	for _, spec := range specs() {
		if err := ensure(ctx, db, spec, slices.Contains(existing, spec.name), logger); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", spec.name, err))
		}
	}
	return errors.Join(errs...)
}

func ensure(ctx context.Context, db *mongo.Database, spec collectionSpec, exists bool, logger *zap.Logger) error {
	log := logger.With(zap.String("collection", spec.name))

	if !exists {
		err := db.CreateCollection(ctx, spec.name)
		switch {
		case err == nil:
			log.Info("created collection")
		case isCommandError(err, []int32{codeNamespaceExists}, "already exists", "namespace exists"):
			// lost a race with another instance
		default:
			return err
		}
	}

	if spec.schema == nil {
		return nil
	}

	cmd := bson.D{
		{Key: "collMod", Value: spec.name},
		{Key: "validator", Value: spec.schema},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	if err := db.RunCommand(ctx, cmd).Err(); err != nil {
		if unsupported(err) {
			log.Info("validator skipped (unsupported)")
			return nil
		}
		return err
	}
	log.Info("validator ensured")
	return nil
}

// unsupported reports whether the server lacks collMod validators.
func unsupported(err error) bool {
	return isCommandError(err, []int32{codeCommandNotFound, codeNotImplemented},
		"no such command", "not implemented", "not supported")
}

// isCommandError matches a server error by code or, for proxies that
// rewrite errors, by message.
func isCommandError(err error, codes []int32, phrases ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && slices.Contains(codes, ce.Code) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

/* ------------------------- JSON-Schema docs ---------------------- */

// usersSchema also rejects any document that is both super_admin and
// disabled, so a privileged account cannot be disabled by a direct write.
func usersSchema() bson.M {
	return bson.M{
		"$and": bson.A{
			bson.M{"$jsonSchema": bson.M{
				"bsonType": "object",
				"required": bson.A{"full_name", "role", "status", "auth_method"},
				"properties": bson.M{
					"full_name":    bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
					"full_name_ci": bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
					"login_id":     bson.M{"bsonType": bson.A{"string", "null"}},
					"login_id_ci":  bson.M{"bsonType": bson.A{"string", "null"}},
					"email":        bson.M{"bsonType": bson.A{"string", "null"}},
					"tenant_id":    bson.M{"bsonType": bson.A{"string", "null"}},
					"super_admin":  bson.M{"bsonType": "bool"},
					"role":         bson.M{"enum": bson.A{"admin", "developer", "user"}},
					"status":       bson.M{"enum": bson.A{status.Active, status.Disabled}},
					"auth_method":  bson.M{"enum": bson.A{"password", "trust"}},
				},
			}},
			bson.M{"$or": bson.A{
				bson.M{"super_admin": bson.M{"$ne": true}},
				bson.M{"status": status.Active},
			}},
		},
	}
}

func actionTokensSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"token_hash", "action", "target_id", "issued_to", "expires_at"},
			"properties": bson.M{
				"token_hash": bson.M{"bsonType": "string", "minLength": 64, "maxLength": 64},
				"action":     bson.M{"enum": bson.A{"enable", "disable"}},
				"target_id":  bson.M{"bsonType": "string", "minLength": 1},
				"issued_to":  bson.M{"bsonType": "string", "minLength": 1},
				"expires_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func pendingRevocationsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "attempts", "next_attempt_at"},
			"properties": bson.M{
				"user_id":         bson.M{"bsonType": "string", "minLength": 1},
				"attempts":        bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"next_attempt_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func loginLockoutsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"login_id", "attempt_count", "last_attempt"},
			"properties": bson.M{
				"login_id":      bson.M{"bsonType": "string", "minLength": 1},
				"attempt_count": bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"locked_until":  bson.M{"bsonType": bson.A{"date", "null"}},
				"last_attempt":  bson.M{"bsonType": "date"},
			},
		},
	}
}
