package httpapi

import (
	"herdbook/internal/core"
	"herdbook/internal/photos"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// photoURLExpiry bounds presigned links handed out by the photo listing.
const photoURLExpiry = 15 * time.Minute

func (s *Server) photoAnimal(w http.ResponseWriter, r *http.Request) (core.Animal, bool) {
	if s.photos == nil {
		writeError(w, http.StatusServiceUnavailable, "photo storage is not configured")
		return core.Animal{}, false
	}
	id := chi.URLParam(r, "id")
	animal, ok := s.engine.GetAnimal(id)
	if !ok {
		s.writeEngineError(w, r, notFound(core.EntityAnimal, id))
		return core.Animal{}, false
	}
	return animal, true
}

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	animal, ok := s.photoAnimal(w, r)
	if !ok {
		return
	}
	infos, err := s.photos.List(r.Context(), photos.AnimalPrefix(animal.SerialNumber))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	for i := range infos {
		url, err := s.photos.URL(r.Context(), infos[i].Key, photos.URLOptions{Expiry: photoURLExpiry})
		if err != nil {
			s.logger.Warn("photo url unavailable", "key", infos[i].Key, "error", err)
			continue
		}
		infos[i].URL = url
	}
	writeJSON(w, http.StatusOK, map[string]any{"animal_id": animal.ID, "photos": infos})
}

// handleGetPhoto streams the index-th entry of the animal's photo list.
func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	animal, ok := s.photoAnimal(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= len(animal.Photos) {
		writeError(w, http.StatusNotFound, "no photo "+chi.URLParam(r, "index")+" for animal "+animal.ID)
		return
	}
	info, body, err := s.photos.Get(r.Context(), animal.Photos[index])
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if info.ETag != "" {
		w.Header().Set("ETag", info.ETag)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn("photo stream interrupted", "key", info.Key, "error", err)
	}
}
