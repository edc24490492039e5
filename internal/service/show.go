package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/showdex/internal/apperror"
	"github.com/sakif/showdex/internal/model"
	"github.com/sakif/showdex/internal/repository"
)

const (
	msgAddFieldsRequired    = "User ID, show, genre, and rating are required."
	msgUpdateFieldsRequired = "User ID, old show name, new show name, genre, and rating are required."
	msgDeleteFieldsRequired = "User ID and show are required."
	msgUserIDRequired       = "User ID is required."
	msgShowNotFound         = "Show to update not found"
	msgShowAlreadyDeleted   = "Show not found or already deleted"
	// MaxTitleLength bounds show titles.
	MaxTitleLength = 200
)

// ShowService manages each user's list of shows. Titles identify shows
// within one user's list.
type ShowService struct {
	repo   repository.ShowRepository
	logger *slog.Logger
}

func NewShowService(repo repository.ShowRepository, logger *slog.Logger) *ShowService {
	return &ShowService{
		repo:   repo,
		logger: logger,
	}
}

// ShowInput is the editable part of a show. Rating is already validated by
// the time it gets here; Genre is checked against the fixed set.
type ShowInput struct {
	UserID string
	Title  string
	Genre  string
	Rating model.Rating
}

func (in ShowInput) normalize() ShowInput {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Title = strings.TrimSpace(in.Title)
	in.Genre = strings.TrimSpace(in.Genre)
	return in
}

// build validates in and turns it into a Show. requiredMsg is the message
// for a missing field.
func (in ShowInput) build(requiredMsg string) (*model.Show, error) {
	if in.UserID == "" || in.Title == "" || in.Genre == "" {
		return nil, apperror.ValidationFailed("", requiredMsg)
	}
	if len(in.Title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("show", fmt.Sprintf("Show must be %d characters or fewer.", MaxTitleLength))
	}
	genre, ok := model.ParseGenre(in.Genre)
	if !ok {
		return nil, apperror.ValidationFailed("genre", genreMessage())
	}
	return &model.Show{
		UserID: in.UserID,
		Title:  in.Title,
		Genre:  genre,
		Rating: in.Rating,
	}, nil
}

func genreMessage() string {
	names := make([]string, len(model.Genres))
	for i, g := range model.Genres {
		names[i] = string(g)
	}
	return "Genre must be one of: " + strings.Join(names, ", ") + "."
}

// Add creates a show in the user's list. A second show with the same title
// is a conflict.
func (s *ShowService) Add(ctx context.Context, in ShowInput) (*model.Show, error) {
	show, err := in.normalize().build(msgAddFieldsRequired)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, show); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/show: adding %q for user %s: %w", show.Title, show.UserID, err)
	}

	s.logger.Info("show added",
		slog.String("userID", show.UserID),
		slog.String("showID", show.ID),
		slog.String("genre", string(show.Genre)),
	)
	return show, nil
}

// Update replaces title, genre and rating of the show the user has under
// oldTitle.
func (s *ShowService) Update(ctx context.Context, oldTitle string, in ShowInput) (*model.Show, error) {
	oldTitle = strings.TrimSpace(oldTitle)
	if oldTitle == "" {
		return nil, apperror.ValidationFailed("", msgUpdateFieldsRequired)
	}
	show, err := in.normalize().build(msgUpdateFieldsRequired)
	if err != nil {
		return nil, err
	}

	err = s.repo.Update(ctx, oldTitle, show)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		return nil, apperror.NotFoundMessage(msgShowNotFound)
	case errors.Is(err, apperror.ErrConflict):
		return nil, err
	default:
		return nil, fmt.Errorf("service/show: updating %q for user %s: %w", oldTitle, show.UserID, err)
	}

	s.logger.Info("show updated", slog.String("userID", show.UserID))
	return show, nil
}

// Delete removes the show titled title from the user's list.
func (s *ShowService) Delete(ctx context.Context, userID, title string) error {
	userID = strings.TrimSpace(userID)
	title = strings.TrimSpace(title)
	if userID == "" || title == "" {
		return apperror.ValidationFailed("", msgDeleteFieldsRequired)
	}

	if err := s.repo.Delete(ctx, userID, title); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFoundMessage(msgShowAlreadyDeleted)
		}
		return fmt.Errorf("service/show: deleting %q for user %s: %w", title, userID, err)
	}

	s.logger.Info("show deleted", slog.String("userID", userID))
	return nil
}

// Search lists the user's shows whose title starts with term, ignoring
// case, optionally restricted to one genre. An empty term lists them all.
// The genre filter is matched as given and never rejected.
func (s *ShowService) Search(ctx context.Context, userID, term, genre string) ([]model.Show, error) {
	q := model.ShowQuery{
		UserID: strings.TrimSpace(userID),
		Term:   strings.TrimSpace(term),
		Genre:  strings.TrimSpace(genre),
	}
	if q.UserID == "" {
		return nil, apperror.ValidationFailed("userId", msgUserIDRequired)
	}

	shows, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("service/show: searching %s: %w", q, err)
	}
	return shows, nil
}
