package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/storycreator/apiserver/internal/services"
	"github.com/storycreator/apiserver/internal/store"
	"github.com/storycreator/apiserver/types"
)

// UserHandler provides HTTP handlers for user listings.
type UserHandler struct {
	userService  *services.UserService
	storyService *services.StoryService
}

// NewUserHandler constructs a handler with the provided services.
func NewUserHandler(userService *services.UserService, storyService *services.StoryService) *UserHandler {
	return &UserHandler{
		userService:  userService,
		storyService: storyService,
	}
}

// UserRouter registers user routes on the given router. Every route runs
// behind the authentication gate.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	storyService *services.StoryService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(userService, storyService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListUsers)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.Get("/posts", handler.GetUserStories)
		r.Get("/likedposts", handler.GetUserLikedStories)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser returns a single user. A miss is an empty 200, not an error.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetUserStories returns the stories created by the given user, newest
// first, along with the user record for display context.
func (h *UserHandler) GetUserStories(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}

	stories, err := h.storyService.ListByOwner(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list stories")
		return
	}

	writeJSON(w, http.StatusOK, UserStoriesResponse{
		Stories: stories,
		User:    user,
	})
}

// GetUserLikedStories resolves the story ids held in the user's liked
// snapshots and returns the current story records.
func (h *UserHandler) GetUserLikedStories(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, []types.Story{})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}

	stories, err := h.storyService.ListLiked(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list liked stories")
		return
	}
	writeJSON(w, http.StatusOK, stories)
}

// UserStoriesResponse pairs a user's stories with the user record.
type UserStoriesResponse struct {
	Stories []types.Story `json:"stories"`
	User    types.User    `json:"user"`
}

func parseUserID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid user id")
	}
	return id, nil
}
