package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// NotWatchedYet is the sentinel rating for a show the user has not rated.
const NotWatchedYet = "Not Watched Yet"

const (
	MinRating = 0
	MaxRating = 10
)

// ErrInvalidRating is returned when a rating is neither the sentinel nor a
// number in [MinRating, MaxRating].
var ErrInvalidRating = errors.New(`rating must be a number between 0 and 10 or "Not Watched Yet"`)

// Genre is one of a fixed set of show categories.
type Genre string

const (
	GenreAction      Genre = "Action"
	GenreAdventure   Genre = "Adventure"
	GenreAnimation   Genre = "Animation"
	GenreComedy      Genre = "Comedy"
	GenreCrime       Genre = "Crime"
	GenreDocumentary Genre = "Documentary"
	GenreDrama       Genre = "Drama"
	GenreFantasy     Genre = "Fantasy"
	GenreHorror      Genre = "Horror"
	GenreMystery     Genre = "Mystery"
	GenreReality     Genre = "Reality"
	GenreRomance     Genre = "Romance"
	GenreSciFi       Genre = "Sci-Fi"
	GenreThriller    Genre = "Thriller"
	GenreOther       Genre = "Other"
)

// Genres lists every accepted genre in display order.
var Genres = []Genre{
	GenreAction, GenreAdventure, GenreAnimation, GenreComedy, GenreCrime,
	GenreDocumentary, GenreDrama, GenreFantasy, GenreHorror, GenreMystery,
	GenreReality, GenreRomance, GenreSciFi, GenreThriller, GenreOther,
}

// ParseGenre returns the Genre matching s exactly.
func ParseGenre(s string) (Genre, bool) {
	for _, g := range Genres {
		if string(g) == s {
			return g, true
		}
	}
	return "", false
}

// Rating is either a score in [0, 10] or the "Not Watched Yet" sentinel.
//
// On the wire it is a JSON number or the sentinel string, matching what the
// frontend sends. The zero value is the sentinel.
type Rating struct {
	score   float64
	watched bool
}

// NotWatched returns the sentinel rating.
func NotWatched() Rating {
	return Rating{}
}

// NewRating returns a scored rating, or ErrInvalidRating if score is out of range.
func NewRating(score float64) (Rating, error) {
	if score < MinRating || score > MaxRating || score != score {
		return Rating{}, ErrInvalidRating
	}
	return Rating{score: score, watched: true}, nil
}

// ParseRatingString accepts the sentinel or a decimal number.
func ParseRatingString(s string) (Rating, error) {
	if s == NotWatchedYet {
		return NotWatched(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Rating{}, ErrInvalidRating
	}
	return NewRating(f)
}

// Watched reports whether the rating carries a score.
func (r Rating) Watched() bool {
	return r.watched
}

// Score returns the numeric score; it is 0 for the sentinel.
func (r Rating) Score() float64 {
	return r.score
}

func (r Rating) String() string {
	if !r.watched {
		return NotWatchedYet
	}
	return strconv.FormatFloat(r.score, 'f', -1, 64)
}

func (r Rating) MarshalJSON() ([]byte, error) {
	if !r.watched {
		return json.Marshal(NotWatchedYet)
	}
	return []byte(strconv.FormatFloat(r.score, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a JSON number in range or exactly the sentinel string.
// Numeric strings such as "8" are rejected, as are booleans and null.
func (r *Rating) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ErrInvalidRating
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil || s != NotWatchedYet {
			return ErrInvalidRating
		}
		*r = NotWatched()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return ErrInvalidRating
	}
	parsed, err := NewRating(f)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Show is one entry in a user's list. Within a user's list the title is the
// effective identity: update and delete target (UserID, Title) pairs and the
// stores reject a second show with the same pair.
type Show struct {
	ID        string    `json:"-"`
	UserID    string    `json:"-"`
	Title     string    `json:"show"`
	Rating    Rating    `json:"rating"`
	Genre     Genre     `json:"genre"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// ShowQuery selects shows for Search.
//
// Term matches case-insensitively against the start of the title; an empty
// Term matches every title. Genre, when set, must match exactly.
type ShowQuery struct {
	UserID string
	Term   string
	Genre  string
}

func (q ShowQuery) String() string {
	return fmt.Sprintf("user=%s term=%q genre=%q", q.UserID, q.Term, q.Genre)
}
