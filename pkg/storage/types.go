package storage

import (
	"encoding/json"
	"strconv"
	"time"
)

// Movie is the normalized form of one provider item. ExternalID is the
// provider's id and the only identity the store cares about.
type Movie struct {
	ExternalID   int64     `json:"external_id"`
	Title        string    `json:"title"`
	Year         string    `json:"year"`
	Actors       string    `json:"actors"`
	Director     string    `json:"director"`
	Overview     string    `json:"overview"`
	PosterURL    string    `json:"poster_url"`
	Rating       Score     `json:"rating"`
	WhereToWatch string    `json:"where_to_watch"`
	CreatedAt    time.Time `json:"created_at"`
}

// Score is a vote average. The zero value means the provider did not send one.
type Score struct {
	Value float64
	Known bool
}

// NewScore returns a known score.
func NewScore(v float64) Score { return Score{Value: v, Known: true} }

func (s Score) String() string {
	if !s.Known {
		return "N/A"
	}
	return strconv.FormatFloat(s.Value, 'f', -1, 64)
}

func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Known {
		return []byte(`"N/A"`), nil
	}
	return json.Marshal(s.Value)
}

// ptr is used by the backends to persist an unknown score as NULL.
func (s Score) ptr() *float64 {
	if !s.Known {
		return nil
	}
	v := s.Value
	return &v
}

func scoreFromPtr(v *float64) Score {
	if v == nil {
		return Score{}
	}
	return NewScore(*v)
}

// Activity is one entry of the append-only activity log.
type Activity struct {
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

// User is populated outside of reelwatch; we only read it.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats holds per-collection counts.
type Stats struct {
	Movies     int
	Activities int
	Users      int
}
