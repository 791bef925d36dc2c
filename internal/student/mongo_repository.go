package student

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutordesk/common/metrics"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRepository struct {
	coll    *mongo.Collection
	metrics *metrics.Metrics
}

// NewMongoRepository stores students as documents with embedded progress entries.
func NewMongoRepository(db *mongo.Database, collection string, m *metrics.Metrics) Repository {
	return &mongoRepository{
		coll:    db.Collection(collection),
		metrics: m,
	}
}

// EnsureIndexes creates the unique email index and the expiry lookup indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database, collection string) error {
	_, err := db.Collection(collection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_email")},
		{Keys: bson.D{{Key: "status", Value: 1}}, Options: options.Index().SetName("idx_status")},
		{Keys: bson.D{{Key: "subscription_expiry", Value: 1}}, Options: options.Index().SetName("idx_subscription_expiry")},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "subscription_expiry", Value: 1}}, Options: options.Index().SetName("idx_status_expiry")},
	})
	if err != nil {
		return fmt.Errorf("failed to create student indexes: %w", err)
	}
	return nil
}

func (r *mongoRepository) record(ctx context.Context, operation string, start time.Time, err error) {
	if errors.Is(err, mongo.ErrNoDocuments) {
		err = nil
	}
	r.metrics.Database.RecordQuery(ctx, "mongo", operation, r.coll.Name(), time.Since(start), err)
}

func (r *mongoRepository) findOne(ctx context.Context, filter bson.M) (*Student, error) {
	start := time.Now()
	student := new(Student)
	err := r.coll.FindOne(ctx, filter).Decode(student)

	r.record(ctx, "find", start, err)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}

func (r *mongoRepository) find(ctx context.Context, filter bson.M, sort bson.D) ([]Student, error) {
	start := time.Now()
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		r.record(ctx, "find", start, err)
		return nil, err
	}
	defer cursor.Close(ctx)

	students := make([]Student, 0)
	err = cursor.All(ctx, &students)

	r.record(ctx, "find", start, err)

	if err != nil {
		return nil, err
	}
	return students, nil
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Student, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoRepository) FindByEmail(ctx context.Context, email string) (*Student, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *mongoRepository) FindAll(ctx context.Context) ([]Student, error) {
	return r.find(ctx, bson.M{}, bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
}

func (r *mongoRepository) FindByStatus(ctx context.Context, status Status) ([]Student, error) {
	return r.find(ctx, bson.M{"status": status}, bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
}

func (r *mongoRepository) FindActiveWithExpiryAtOrBefore(ctx context.Context, date time.Time) ([]Student, error) {
	filter := bson.M{
		"status":              StatusActive,
		"subscription_expiry": bson.M{"$lte": DateOf(date)},
	}
	return r.find(ctx, filter, bson.D{{Key: "subscription_expiry", Value: 1}, {Key: "_id", Value: 1}})
}

func (r *mongoRepository) Save(ctx context.Context, student *Student) error {
	if student.Progress == nil {
		student.Progress = []ProgressEntry{}
	}

	start := time.Now()
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": student.ID}, student, options.Replace().SetUpsert(true))

	r.record(ctx, "replace", start, err)

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailExists
		}
		return err
	}
	return nil
}

func (r *mongoRepository) DeleteByID(ctx context.Context, id string) error {
	start := time.Now()
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})

	r.record(ctx, "delete", start, err)

	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrStudentNotFound
	}
	return nil
}

func (r *mongoRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))

	r.record(ctx, "count", start, err)

	return count > 0, err
}
