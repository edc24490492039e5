package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/showdex/internal/apperror"
	"github.com/sakif/showdex/internal/model"
	"github.com/sakif/showdex/internal/repository"
)

// compile-time check that *ShowDB implements repository.ShowRepository
var _ repository.ShowRepository = (*ShowDB)(nil)

func ratingValue(r model.Rating) sql.NullFloat64 {
	if !r.Watched() {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: r.Score(), Valid: true}
}

func ratingFrom(v sql.NullFloat64) (model.Rating, error) {
	if !v.Valid {
		return model.NotWatched(), nil
	}
	return model.NewRating(v.Float64)
}

func showConflict() error {
	return apperror.Conflict("show", "Show already exists")
}

// Create inserts a new show and fills in its ID and timestamps.
func (s *ShowDB) Create(ctx context.Context, show *model.Show) error {
	show.ID = xid.New().String()
	now := time.Now().UTC()
	show.CreatedAt = now
	show.UpdatedAt = now

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO shows (id, user_id, title, genre, rating_score, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		show.ID, show.UserID, show.Title, string(show.Genre), ratingValue(show.Rating),
		show.CreatedAt, show.UpdatedAt,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return showConflict()
		}
		return fmt.Errorf("sqlite: creating show: %w", err)
	}
	return nil
}

// Update renames and re-rates the show (show.UserID, oldTitle). Renaming onto
// a title the user already has violates UNIQUE(user_id, title).
func (s *ShowDB) Update(ctx context.Context, oldTitle string, show *model.Show) error {
	show.UpdatedAt = time.Now().UTC()

	result, err := s.conn.ExecContext(ctx,
		`UPDATE shows
		 SET title = ?, genre = ?, rating_score = ?, updated_at = ?
		 WHERE user_id = ? AND title = ?`,
		show.Title, string(show.Genre), ratingValue(show.Rating), show.UpdatedAt,
		show.UserID, oldTitle,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return showConflict()
		}
		return fmt.Errorf("sqlite: updating show: %w", err)
	}
	return requireOneRow(result, "show", oldTitle)
}

func (s *ShowDB) Delete(ctx context.Context, userID, title string) error {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM shows WHERE user_id = ? AND title = ?`,
		userID, title,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting show: %w", err)
	}
	return requireOneRow(result, "show", title)
}

// hasFoldedPrefix reports whether title starts with the already lower-cased
// term. SQLite's LOWER and LIKE only fold ASCII, so the prefix match runs
// in Go where "Élite" and "élite" fold alike.
func hasFoldedPrefix(title, term string) bool {
	return strings.HasPrefix(strings.ToLower(title), term)
}

// Search filters by user and genre in SQL and by title prefix in Go.
// Results come back in insertion order (rowid).
func (s *ShowDB) Search(ctx context.Context, q model.ShowQuery) ([]model.Show, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{q.UserID}
	)
	if q.Genre != "" {
		where = append(where, "genre = ?")
		args = append(args, q.Genre)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, title, genre, rating_score, created_at, updated_at
		 FROM shows
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY rowid`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching shows (%s): %w", q, err)
	}
	defer rows.Close()

	term := strings.ToLower(q.Term)
	shows := make([]model.Show, 0)
	for rows.Next() {
		var (
			s     model.Show
			genre string
			score sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &genre, &score, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning show row: %w", err)
		}
		if !hasFoldedPrefix(s.Title, term) {
			continue
		}
		s.Genre = model.Genre(genre)
		if s.Rating, err = ratingFrom(score); err != nil {
			return nil, fmt.Errorf("sqlite: show %s has a stored rating out of range: %w", s.ID, err)
		}
		shows = append(shows, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating shows: %w", err)
	}

	return shows, nil
}
