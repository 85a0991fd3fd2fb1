package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/centrominero/labvision/internal/catalog"
	"github.com/centrominero/labvision/internal/recognizer"
	"github.com/centrominero/labvision/internal/store"
	"github.com/centrominero/labvision/internal/vision"
)

// ReferencesHandler handles training-image registration and removal.
type ReferencesHandler struct {
	service *recognizer.Service
}

// NewReferencesHandler creates a new references handler.
func NewReferencesHandler(service *recognizer.Service) *ReferencesHandler {
	return &ReferencesHandler{service: service}
}

type registerRequest struct {
	Kind     string `json:"kind"`
	OwnerID  int64  `json:"owner_id"`
	Name     string `json:"name"`
	Image    string `json:"image"`
	Category string `json:"category"`
	View     string `json:"view"`
	Source   string `json:"source"`
	Notes    string `json:"notes"`
}

// Register ingests one training image. Accepts a multipart form with an
// "image" file plus text fields, or a JSON body with a base64 image.
func (h *ReferencesHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRegister(w, r)
	if !ok {
		return
	}

	kind, ok := catalog.ParseOwnerKind(req.Kind)
	if !ok {
		respondError(w, http.StatusBadRequest, "kind must be item or equipment")
		return
	}

	res, err := h.service.RegisterReference(r.Context(), recognizer.RegisterRequest{
		Kind:      kind,
		OwnerID:   req.OwnerID,
		OwnerName: req.Name,
		ImageData: []byte(req.Image),
		Category:  req.Category,
		ViewTag:   catalog.ParseViewTag(req.View),
		Source:    req.Source,
		Notes:     req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, vision.ErrInvalidImage):
			respondError(w, http.StatusBadRequest, "image could not be decoded")
		case errors.Is(err, store.ErrNoFeatures):
			respondError(w, http.StatusUnprocessableEntity, "no features could be extracted from the image")
		case errors.Is(err, recognizer.ErrUnknownObject):
			respondError(w, http.StatusNotFound, "object not found")
		default:
			log.Printf("register reference for %s failed: %v", sanitizeForLog(req.Name), err)
			respondError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	respondJSON(w, http.StatusCreated, res)
}

func (h *ReferencesHandler) parseRegister(w http.ResponseWriter, r *http.Request) (*registerRequest, bool) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		data, ok := readImage(w, r)
		if !ok {
			return nil, false
		}
		ownerID, _ := strconv.ParseInt(r.FormValue("owner_id"), 10, 64)
		return &registerRequest{
			Kind:     r.FormValue("kind"),
			OwnerID:  ownerID,
			Name:     r.FormValue("name"),
			Image:    string(data),
			Category: r.FormValue("category"),
			View:     r.FormValue("view"),
			Source:   r.FormValue("source"),
			Notes:    r.FormValue("notes"),
		}, true
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return nil, false
	}
	if req.Image == "" {
		respondError(w, http.StatusBadRequest, "image is required")
		return nil, false
	}
	return &req, true
}

// Delete removes every training artifact of one object.
func (h *ReferencesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, ok := catalog.ParseOwnerKind(chi.URLParam(r, "kind"))
	if !ok {
		respondError(w, http.StatusBadRequest, "kind must be item or equipment")
		return
	}
	name := chi.URLParam(r, "name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	ownerID, _ := strconv.ParseInt(r.URL.Query().Get("owner_id"), 10, 64)

	removed, err := h.service.DeleteObjectData(r.Context(), kind, ownerID, name)
	if err != nil {
		if errors.Is(err, recognizer.ErrUnknownObject) {
			respondError(w, http.StatusNotFound, "object not found")
			return
		}
		log.Printf("delete references for %s failed: %v", sanitizeForLog(name), err)
		respondError(w, http.StatusInternalServerError, "deletion failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"files_removed": removed})
}
