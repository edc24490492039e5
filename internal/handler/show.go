package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/showdex/internal/model"
	"github.com/sakif/showdex/internal/service"
)

const (
	msgAddShowRequired    = "User ID, show, genre, and rating are required."
	msgUpdateShowRequired = "User ID, old show name, new show name, genre, and rating are required."
	msgDeleteShowRequired = "User ID and show are required."
	msgSearchRequired     = "User ID is required."
	msgShowDeleted        = "Successfully Deleted"
)

// ShowHandler serves the per-user show list.
type ShowHandler struct {
	shows     *service.ShowService
	validator *requestValidator
	logger    *slog.Logger
}

func NewShowHandler(shows *service.ShowService, logger *slog.Logger) *ShowHandler {
	return &ShowHandler{
		shows:     shows,
		validator: newRequestValidator(),
		logger:    logger,
	}
}

// Rating is a pointer so a missing rating can be told apart from the
// "Not Watched Yet" sentinel, which is the zero Rating.
type addShowRequest struct {
	UserID string        `json:"userId" validate:"required"`
	Show   string        `json:"show" validate:"required"`
	Genre  string        `json:"genre" validate:"required"`
	Rating *model.Rating `json:"rating" validate:"required"`
}

// HandleAdd adds a show to the user's list.
//
// HTTP: POST /api/addshow
func (h *ShowHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addShowRequest
	if err := h.validator.decode(w, r, &req, msgAddShowRequired); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	_, err := h.shows.Add(r.Context(), service.ShowInput{
		UserID: req.UserID,
		Title:  req.Show,
		Genre:  req.Genre,
		Rating: *req.Rating,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ErrorResponse{})
}

type updateShowRequest struct {
	UserID      string        `json:"userId" validate:"required"`
	OldShowName string        `json:"oldShowName" validate:"required"`
	NewShowName string        `json:"newShowName" validate:"required"`
	Genre       string        `json:"genre" validate:"required"`
	Rating      *model.Rating `json:"rating" validate:"required"`
}

// HandleUpdate renames and re-rates the show the user has under oldShowName.
//
// HTTP: POST /api/updateshow
func (h *ShowHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateShowRequest
	if err := h.validator.decode(w, r, &req, msgUpdateShowRequired); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	_, err := h.shows.Update(r.Context(), req.OldShowName, service.ShowInput{
		UserID: req.UserID,
		Title:  req.NewShowName,
		Genre:  req.Genre,
		Rating: *req.Rating,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ErrorResponse{})
}

type deleteShowRequest struct {
	UserID string `json:"userId" validate:"required"`
	Show   string `json:"show" validate:"required"`
}

// HandleDelete removes a show from the user's list.
//
// HTTP: POST /api/deleteshow
func (h *ShowHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteShowRequest
	if err := h.validator.decode(w, r, &req, msgDeleteShowRequired); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.shows.Delete(r.Context(), req.UserID, req.Show); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ErrorResponse{Message: msgShowDeleted})
}

type searchShowsRequest struct {
	UserID      string `json:"userId" validate:"required"`
	Search      string `json:"search"`
	GenreFilter string `json:"genreFilter"`
}

type searchShowsResponse struct {
	Results []model.Show `json:"results"`
	Error   string       `json:"error"`
}

// HandleSearch lists the user's shows by title prefix and optional genre.
//
// HTTP: POST /api/searchshows
func (h *ShowHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchShowsRequest
	if err := h.validator.decode(w, r, &req, msgSearchRequired); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	shows, err := h.shows.Search(r.Context(), req.UserID, req.Search, req.GenreFilter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if shows == nil {
		shows = []model.Show{}
	}
	writeJSON(w, r, http.StatusOK, searchShowsResponse{Results: shows})
}
