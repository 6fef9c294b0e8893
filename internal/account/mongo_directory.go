package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hackgods/clinic-booking/internal/auth"
)

const UsersCollection = "users"

type userDocument struct {
	ID             string    `bson:"_id"`
	Name           string    `bson:"name"`
	Email          string    `bson:"email"`
	Role           string    `bson:"role"`
	Specialization *string   `bson:"specialization,omitempty"`
	IsActive       bool      `bson:"is_active"`
	CreatedAt      time.Time `bson:"created_at"`
}

func (doc userDocument) toAccount() (*Account, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", doc.ID, err)
	}
	role, err := auth.ParseRole(doc.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return &Account{
		ID:             id,
		Name:           doc.Name,
		Email:          doc.Email,
		Role:           role,
		Specialization: doc.Specialization,
		IsActive:       doc.IsActive,
		CreatedAt:      doc.CreatedAt,
	}, nil
}

type MongoDirectory struct {
	users *mongo.Collection
}

func NewMongoDirectory(db *mongo.Database) *MongoDirectory {
	return &MongoDirectory{users: db.Collection(UsersCollection)}
}

// EnsureIndexes makes email unique across users, matching the accounts table.
func (d *MongoDirectory) EnsureIndexes(ctx context.Context) error {
	_, err := d.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("unique_email").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "role", Value: 1}, {Key: "is_active", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (d *MongoDirectory) Resolve(ctx context.Context, id uuid.UUID) (*Account, error) {
	var doc userDocument
	err := d.users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return doc.toAccount()
}

func (d *MongoDirectory) ListActiveDoctors(ctx context.Context) ([]Account, error) {
	filter := bson.M{"role": string(auth.RoleDoctor), "is_active": true}
	cur, err := d.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var result []Account
	for cur.Next(ctx) {
		var doc userDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		a, err := doc.toAccount()
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (d *MongoDirectory) CreateAccount(ctx context.Context, a Account) (*Account, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	doc := userDocument{
		ID:             a.ID.String(),
		Name:           a.Name,
		Email:          a.Email,
		Role:           string(a.Role),
		Specialization: a.Specialization,
		IsActive:       a.IsActive,
		CreatedAt:      a.CreatedAt,
	}
	if _, err := d.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %s", ErrEmailTaken, a.Email)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &a, nil
}
