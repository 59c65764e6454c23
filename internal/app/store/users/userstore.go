// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/normalize"
	"github.com/dalemusser/stratagate/internal/app/system/status"
	"github.com/dalemusser/stratagate/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection holds one document per identity.
const Collection = "users"

var (
	// ErrDuplicateLoginID is returned when the folded login ID is taken.
	ErrDuplicateLoginID = errors.New("a user with this login ID already exists")

	// ErrInvalidUser wraps every field validation failure from Create.
	ErrInvalidUser = errors.New("invalid user")
)

// Store is the user collection. Status reads and writes for the access gate
// live in status.go.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns mongo.ErrNoDocuments when the user is missing.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByLoginID matches case- and diacritic-insensitively.
func (s *Store) GetByLoginID(ctx context.Context, loginID string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"login_id_ci": text.Fold(loginID)})
}

// prepare normalizes u in place and reports every invalid field at once.
func prepare(u *models.User) error {
	u.FullName = normalize.Name(u.FullName)
	u.FullNameCI = text.Fold(u.FullName)
	u.Role = normalize.Role(u.Role)

	login := normalize.Email(u.Login())
	u.LoginID, u.LoginIDCI = nil, nil
	if login != "" {
		folded := text.Fold(login)
		u.LoginID, u.LoginIDCI = &login, &folded
	}
	if u.Email != nil {
		if email := normalize.Email(*u.Email); email != "" {
			u.Email = &email
		} else {
			u.Email = nil
		}
	}

	if u.Status == "" {
		u.Status = status.Default()
	}
	if u.AuthMethod == "" {
		u.AuthMethod = models.AuthMethodPassword
	}
	// A privileged identity never starts out disabled.
	if u.SuperAdmin {
		u.Status = status.Active
	}

	var errs []error
	if u.FullName == "" {
		errs = append(errs, errors.New("full name is required"))
	}
	if !models.IsValidRole(u.Role) {
		errs = append(errs, fmt.Errorf("role %q is not valid", u.Role))
	}
	if !status.IsValid(u.Status) {
		errs = append(errs, fmt.Errorf("status must be %q or %q", status.Active, status.Disabled))
	}
	if !models.IsValidAuthMethod(u.AuthMethod) {
		errs = append(errs, fmt.Errorf("auth method %q is not valid", u.AuthMethod))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidUser, errors.Join(errs...))
	}
	return nil
}

// Create validates and inserts u, returning the stored document.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	if err := prepare(&u); err != nil {
		return models.User{}, err
	}

	u.ID = primitive.NewObjectID()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateLoginID
		}
		return models.User{}, err
	}
	return u, nil
}

// CreateInput is the flat form of a new user used by seeding.
type CreateInput struct {
	FullName     string
	LoginID      string
	Email        string
	AuthMethod   string
	Role         string
	TenantID     string
	SuperAdmin   bool
	PasswordHash *string
}

func (in CreateInput) user() models.User {
	u := models.User{
		FullName:     in.FullName,
		AuthMethod:   in.AuthMethod,
		Role:         in.Role,
		TenantID:     in.TenantID,
		SuperAdmin:   in.SuperAdmin,
		PasswordHash: in.PasswordHash,
	}
	if in.LoginID != "" {
		u.LoginID = &in.LoginID
	}
	if in.Email != "" {
		u.Email = &in.Email
	}
	return u
}

// CreateFromInput is Create for a CreateInput.
func (s *Store) CreateFromInput(ctx context.Context, in CreateInput) (models.User, error) {
	return s.Create(ctx, in.user())
}

// Find returns users matching filter. Callers own pagination and sorting.
func (s *Store) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.User, error) {
	cur, err := s.c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Count returns the number of users matching filter.
func (s *Store) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.c.CountDocuments(ctx, filter)
}

// SetSuperAdmin marks a user privileged and active. Only seeding calls it.
func (s *Store) SetSuperAdmin(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"super_admin": true,
		"status":      status.Active,
		"updated_at":  time.Now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
