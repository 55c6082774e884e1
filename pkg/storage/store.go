package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrConflict is returned by InsertMovie when the external id is already stored.
	ErrConflict = errors.New("movie already stored")
	// ErrNotFound is returned by GetMovie for unknown ids.
	ErrNotFound = errors.New("movie not found")
)

const (
	DefaultActivityLimit = 10
	DefaultUserLimit     = 100
)

// Store is the persistence contract shared by the SQLite and MongoDB backends.
// Implementations must be safe for concurrent use and must enforce uniqueness
// of Movie.ExternalID themselves.
type Store interface {
	Exists(ctx context.Context, externalID int64) (bool, error)
	InsertMovie(ctx context.Context, m *Movie) error
	GetMovie(ctx context.Context, externalID int64) (*Movie, error)
	ListMovies(ctx context.Context, limit int) ([]Movie, error)
	RandomSample(ctx context.Context, n int) ([]Movie, error)

	LogActivity(ctx context.Context, action string, details map[string]any) error
	RecentActivities(ctx context.Context, limit int) ([]Activity, error)

	ListUsers(ctx context.Context, limit int) ([]User, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// OpenURL opens the backend matching dbURL: mongodb:// and mongodb+srv://
// URLs go to MongoDB, anything else is treated as a SQLite file path.
func OpenURL(ctx context.Context, dbURL string) (Store, error) {
	if strings.HasPrefix(dbURL, "mongodb://") || strings.HasPrefix(dbURL, "mongodb+srv://") {
		return OpenMongo(ctx, dbURL, DefaultMongoDatabase)
	}
	return Open(dbURL)
}

// IsSQLite reports whether dbURL would be opened with the SQLite backend.
func IsSQLite(dbURL string) bool {
	return !strings.HasPrefix(dbURL, "mongodb://") && !strings.HasPrefix(dbURL, "mongodb+srv://")
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
