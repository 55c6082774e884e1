package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const DefaultMongoDatabase = "movie_bot_db"

const (
	moviesCollection     = "movies"
	activitiesCollection = "activity_logs"
	usersCollection      = "users"
)

// MongoDB is the document-store backend. It uses the same three collections
// as the SQLite schema.
type MongoDB struct {
	client     *mongo.Client
	movies     *mongo.Collection
	activities *mongo.Collection
	users      *mongo.Collection
	now        func() time.Time
}

var _ Store = (*MongoDB)(nil)

type movieDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ExternalID   int64              `bson:"external_id"`
	Title        string             `bson:"title"`
	Year         string             `bson:"year"`
	Actors       string             `bson:"actors"`
	Director     string             `bson:"director"`
	Overview     string             `bson:"overview"`
	PosterURL    string             `bson:"poster_path,omitempty"`
	Rating       *float64           `bson:"rating,omitempty"`
	WhereToWatch string             `bson:"where_to_watch"`
	CreatedAt    time.Time          `bson:"created_at"`
}

func (d movieDoc) movie() Movie {
	return Movie{
		ExternalID:   d.ExternalID,
		Title:        d.Title,
		Year:         d.Year,
		Actors:       d.Actors,
		Director:     d.Director,
		Overview:     d.Overview,
		PosterURL:    d.PosterURL,
		Rating:       scoreFromPtr(d.Rating),
		WhereToWatch: d.WhereToWatch,
		CreatedAt:    d.CreatedAt,
	}
}

type activityDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Action    string             `bson:"action"`
	Details   bson.M             `bson:"details"`
	Timestamp time.Time          `bson:"timestamp"`
}

type userDoc struct {
	ID        int64     `bson:"id"`
	Username  string    `bson:"username"`
	FirstName string    `bson:"first_name"`
	CreatedAt time.Time `bson:"created_at"`
}

// OpenMongo connects to uri, pings the primary and ensures the unique index on
// movies.external_id exists.
func OpenMongo(ctx context.Context, uri, database string) (*MongoDB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	if database == "" {
		database = DefaultMongoDatabase
	}
	db := client.Database(database)
	m := &MongoDB{
		client:     client,
		movies:     db.Collection(moviesCollection),
		activities: db.Collection(activitiesCollection),
		users:      db.Collection(usersCollection),
		now:        time.Now,
	}

	_, err = m.movies.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "external_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_external_id"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create movies index: %w", err)
	}
	_, err = m.activities.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create activity index: %w", err)
	}
	return m, nil
}

func (m *MongoDB) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoDB) Exists(ctx context.Context, externalID int64) (bool, error) {
	n, err := m.movies.CountDocuments(ctx, bson.M{"external_id": externalID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *MongoDB) InsertMovie(ctx context.Context, mv *Movie) error {
	createdAt := m.now().UTC()
	_, err := m.movies.InsertOne(ctx, movieDoc{
		ExternalID:   mv.ExternalID,
		Title:        mv.Title,
		Year:         mv.Year,
		Actors:       mv.Actors,
		Director:     mv.Director,
		Overview:     mv.Overview,
		PosterURL:    mv.PosterURL,
		Rating:       mv.Rating.ptr(),
		WhereToWatch: mv.WhereToWatch,
		CreatedAt:    createdAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %d", ErrConflict, mv.ExternalID)
	}
	if err != nil {
		return err
	}
	mv.CreatedAt = createdAt
	return nil
}

func (m *MongoDB) GetMovie(ctx context.Context, externalID int64) (*Movie, error) {
	var doc movieDoc
	err := m.movies.FindOne(ctx, bson.M{"external_id": externalID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, externalID)
	}
	if err != nil {
		return nil, err
	}
	mv := doc.movie()
	return &mv, nil
}

func (m *MongoDB) ListMovies(ctx context.Context, limit int) ([]Movie, error) {
	limit = normalizeLimit(limit, 50)
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).SetLimit(int64(limit))
	cur, err := m.movies.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	return decodeMovies(ctx, cur)
}

func (m *MongoDB) RandomSample(ctx context.Context, n int) ([]Movie, error) {
	if n <= 0 {
		return []Movie{}, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: n}}}},
	}
	cur, err := m.movies.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return decodeMovies(ctx, cur)
}

func decodeMovies(ctx context.Context, cur *mongo.Cursor) ([]Movie, error) {
	var docs []movieDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	movies := make([]Movie, 0, len(docs))
	for _, d := range docs {
		movies = append(movies, d.movie())
	}
	return movies, nil
}

func (m *MongoDB) LogActivity(ctx context.Context, action string, details map[string]any) error {
	doc := activityDoc{Action: action, Details: bson.M{}, Timestamp: m.now().UTC()}
	for k, v := range details {
		doc.Details[k] = v
	}
	_, err := m.activities.InsertOne(ctx, doc)
	return err
}

// RecentActivities sorts on timestamp then _id, both descending; ObjectIDs
// grow with insertion so ties resolve newest first.
func (m *MongoDB) RecentActivities(ctx context.Context, limit int) ([]Activity, error) {
	limit = normalizeLimit(limit, DefaultActivityLimit)
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).SetLimit(int64(limit))
	cur, err := m.activities.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []activityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	activities := make([]Activity, 0, len(docs))
	for _, d := range docs {
		activities = append(activities, Activity{Action: d.Action, Details: map[string]any(d.Details), Timestamp: d.Timestamp})
	}
	return activities, nil
}

func (m *MongoDB) ListUsers(ctx context.Context, limit int) ([]User, error) {
	limit = normalizeLimit(limit, DefaultUserLimit)
	cur, err := m.users.Find(ctx, bson.M{}, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]User, 0, len(docs))
	for _, d := range docs {
		users = append(users, User{ID: d.ID, Username: d.Username, FirstName: d.FirstName, CreatedAt: d.CreatedAt})
	}
	return users, nil
}

func (m *MongoDB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	counts := []struct {
		coll *mongo.Collection
		dst  *int
	}{
		{m.movies, &s.Movies},
		{m.activities, &s.Activities},
		{m.users, &s.Users},
	}
	for _, c := range counts {
		n, err := c.coll.EstimatedDocumentCount(ctx)
		if err != nil {
			return s, err
		}
		*c.dst = int(n)
	}
	return s, nil
}
