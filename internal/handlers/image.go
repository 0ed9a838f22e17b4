package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/storycreator/apiserver/internal/services"
	"github.com/storycreator/apiserver/internal/storage"
	"github.com/storycreator/apiserver/internal/store"
)

const (
	maxImageMemory = 8 << 20
	maxImageBytes  = 16 << 20
	formFieldImage = "image"
)

// ImageHandler serves story image upload and download backed by object
// storage. It is only wired when a storage provider is configured.
type ImageHandler struct {
	storyService *services.StoryService
	storage      *storage.Storage
}

// NewImageHandler constructs a handler with the provided dependencies.
func NewImageHandler(storyService *services.StoryService, st *storage.Storage) *ImageHandler {
	return &ImageHandler{
		storyService: storyService,
		storage:      st,
	}
}

// UploadImage stores a story image and records its object key on the
// story. Only the story owner may upload.
func (h *ImageHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
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

	story, err := h.storyService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "story not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch story")
		return
	}
	if story.UserID != principal.ID {
		writeError(w, http.StatusForbidden, "only the owner can upload a story image")
		return
	}

	if err := r.ParseMultipartForm(maxImageMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	data, err := readFileLimited(file, maxImageBytes)
	_ = file.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := fmt.Sprintf("stories/%d/%s", id, uuid.NewString())
	contentType := header.Header.Get("Content-Type")
	if err := h.storage.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	updated, err := h.storyService.SetImage(r.Context(), id, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update story")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// GetImage streams the story's image from object storage.
func (h *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseStoryID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	story, err := h.storyService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "story not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch story")
		return
	}
	if story.Story.StoryImg == "" {
		writeError(w, http.StatusNotFound, "story has no image")
		return
	}

	object, err := h.storage.Get(r.Context(), story.Story.StoryImg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch image")
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, object)
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
