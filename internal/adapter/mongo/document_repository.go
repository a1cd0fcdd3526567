package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type documentRecord struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Title         string             `bson:"title"`
	Content       string             `bson:"content"`
	Collaborators []string           `bson:"collaborators"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

func (r documentRecord) toDomain() domain.Document {
	collaborators := r.Collaborators
	if collaborators == nil {
		collaborators = []string{}
	}
	return domain.Document{
		ID:            r.ID.Hex(),
		Title:         r.Title,
		Content:       r.Content,
		Collaborators: collaborators,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type DocumentRepo struct {
	client *mongo.Client
	col    *mongo.Collection
	clock  clockwork.Clock
}

var _ domain.DocumentStore = (*DocumentRepo)(nil)

func NewDocumentRepo(client *mongo.Client, database, collection string, clock clockwork.Clock) *DocumentRepo {
	return &DocumentRepo{
		client: client,
		col:    client.Database(database).Collection(collection),
		clock:  clock,
	}
}

// Collection exposes the underlying collection for index management.
func (r *DocumentRepo) Collection() *mongo.Collection {
	return r.col
}

func (r *DocumentRepo) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := r.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cur.Close(ctx)

	var records []documentRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}

	docs := make([]domain.Document, 0, len(records))
	for _, rec := range records {
		docs = append(docs, rec.toDomain())
	}
	return docs, nil
}

func (r *DocumentRepo) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// Ids that are not ObjectIDs can never be stored here.
		return nil, domain.ErrDocumentNotFound
	}

	var rec documentRecord
	if err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc := rec.toDomain()
	return &doc, nil
}

func (r *DocumentRepo) CreateDocument(ctx context.Context, title, content string) (*domain.Document, error) {
	// Mongo stores milliseconds; truncating keeps the returned value equal to what a read yields.
	now := r.clock.Now().UTC().Truncate(time.Millisecond)
	rec := documentRecord{
		ID:            primitive.NewObjectID(),
		Title:         title,
		Content:       content,
		Collaborators: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := r.col.InsertOne(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	doc := rec.toDomain()
	return &doc, nil
}

func (r *DocumentRepo) UpdateDocument(ctx context.Context, id, content string, title *string) (*domain.Document, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrDocumentNotFound
	}

	set := bson.D{
		{Key: "content", Value: content},
		{Key: "updatedAt", Value: r.clock.Now().UTC().Truncate(time.Millisecond)},
	}
	if title != nil && *title != "" {
		set = append(set, bson.E{Key: "title", Value: *title})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var rec documentRecord
	err = r.col.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: set}}, opts).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	doc := rec.toDomain()
	return &doc, nil
}

func (r *DocumentRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}
