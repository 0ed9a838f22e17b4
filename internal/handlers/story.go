package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/storycreator/apiserver/internal/services"
	"github.com/storycreator/apiserver/internal/store"
	"github.com/storycreator/apiserver/types"
)

// StoryHandler provides HTTP handlers for stories.
type StoryHandler struct {
	storyService *services.StoryService
	likeService  *services.LikeService
}

// NewStoryHandler constructs a handler with the provided services.
func NewStoryHandler(storyService *services.StoryService, likeService *services.LikeService) *StoryHandler {
	return &StoryHandler{
		storyService: storyService,
		likeService:  likeService,
	}
}

// StoryRouter registers story routes on the given router. Every route runs
// behind the authentication gate.
func StoryRouter(
	r chi.Router,
	storyService *services.StoryService,
	likeService *services.LikeService,
	imageHandler *ImageHandler,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewStoryHandler(storyService, likeService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListStories)
	r.Post("/", handler.CreateStory)
	r.Route("/{storyID}", func(r chi.Router) {
		r.Get("/", handler.GetStory)
		r.Patch("/", handler.LikeStory)
		r.Delete("/", handler.DeleteStory)
		if imageHandler != nil {
			r.Post("/image", imageHandler.UploadImage)
			r.Get("/image", imageHandler.GetImage)
		}
	})
}

// ListStories returns all stories newest first, or the subset carrying the
// tag given in ?tags=.
func (h *StoryHandler) ListStories(w http.ResponseWriter, r *http.Request) {
	tag := strings.TrimSpace(r.URL.Query().Get("tags"))

	stories, err := h.storyService.List(r.Context(), tag)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list stories")
		return
	}
	writeJSON(w, http.StatusOK, stories)
}

// GetStory returns a single story. A miss is an empty 200, not an error.
func (h *StoryHandler) GetStory(w http.ResponseWriter, r *http.Request) {
	id, err := parseStoryID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	story, err := h.storyService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch story")
		return
	}
	writeJSON(w, http.StatusOK, story)
}

// CreateStory persists a new story owned by the request principal.
func (h *StoryHandler) CreateStory(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "please log in")
		return
	}

	var req CreateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	story, err := h.storyService.Create(r.Context(), req.Story, principal)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStory) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create story")
		return
	}
	writeJSON(w, http.StatusCreated, story)
}

// LikeStory applies the two-document like interaction: the story counter is
// incremented first, then the post-increment snapshot is appended to the
// principal's liked list. When the second half fails the response still
// reports the incremented story so the partial state is visible.
func (h *StoryHandler) LikeStory(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "please log in")
		return
	}

	id, err := parseStoryID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.likeService.Like(r.Context(), principal, id)
	if err != nil {
		if !result.Incremented {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusBadRequest, "unknown story")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to like story")
			return
		}
		// The counter was bumped but the snapshot append failed. The
		// increment is durable; report exactly which half succeeded.
		writeJSON(w, http.StatusInternalServerError, LikeResponse{
			Story:            result.Story,
			SnapshotAppended: false,
			Error:            "story liked but not added to user profile",
		})
		return
	}

	writeJSON(w, http.StatusOK, LikeResponse{
		Story:            result.Story,
		User:             &result.User,
		SnapshotAppended: true,
	})
}

// DeleteStory removes a story. Only the owner may delete it.
func (h *StoryHandler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	principal, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "please log in")
		return
	}

	id, err := parseStoryID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.storyService.Delete(r.Context(), id, principal)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "story not found")
		case errors.Is(err, services.ErrNotOwner):
			writeError(w, http.StatusForbidden, "only the owner can delete a story")
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete story")
		}
		return
	}
	writeJSON(w, http.StatusOK, DeleteStoryResponse{
		Response: "story deleted",
		Story:    deleted,
	})
}

// CreateStoryRequest is the story submission payload.
type CreateStoryRequest struct {
	Story types.StoryDetails `json:"story"`
}

// LikeResponse reports both halves of a like interaction.
type LikeResponse struct {
	Story            types.Story `json:"story"`
	User             *types.User `json:"user,omitempty"`
	SnapshotAppended bool        `json:"snapshotAppended"`
	Error            string      `json:"error,omitempty"`
}

// DeleteStoryResponse echoes the removed story.
type DeleteStoryResponse struct {
	Response string      `json:"response"`
	Story    types.Story `json:"story"`
}

func parseStoryID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "storyID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid story id")
	}
	return id, nil
}
