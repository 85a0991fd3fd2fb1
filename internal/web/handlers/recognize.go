package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/centrominero/labvision/internal/recognizer"
	"github.com/centrominero/labvision/internal/store"
	"github.com/centrominero/labvision/internal/vision"
)

// RecognizeHandler handles recognition queries.
type RecognizeHandler struct {
	service *recognizer.Service
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(service *recognizer.Service) *RecognizeHandler {
	return &RecognizeHandler{service: service}
}

type recognizeRequest struct {
	Image string `json:"image"`
	// Optional per-call tuning; zero values keep the server defaults.
	Cap       int     `json:"cap"`
	MinGood   int     `json:"min_good"`
	Threshold float64 `json:"threshold"`
}

// Recognize answers whether the submitted image shows a known object. The
// image arrives either as a multipart "image" file or as a JSON body with
// a base64 "image" field (data URLs accepted). Both forms accept optional
// cap, min_good and threshold overrides.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	data, opts, ok := h.parseRecognize(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Recognize(r.Context(), data, opts)
	if err != nil {
		switch {
		case errors.Is(err, vision.ErrInvalidImage):
			respondError(w, http.StatusBadRequest, "image could not be decoded")
		case errors.Is(err, store.ErrStorageUnavailable):
			respondError(w, http.StatusServiceUnavailable, "template storage unavailable")
		default:
			log.Printf("recognize failed: %v", err)
			respondError(w, http.StatusInternalServerError, "recognition failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// parseRecognize extracts the image payload and tuning overrides from a
// multipart or JSON request.
func (h *RecognizeHandler) parseRecognize(w http.ResponseWriter, r *http.Request) ([]byte, recognizer.QueryOptions, bool) {
	var opts recognizer.QueryOptions

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		data, ok := readImage(w, r)
		if !ok {
			return nil, opts, false
		}
		opts.Cap, _ = strconv.Atoi(r.FormValue("cap"))
		opts.MinGood, _ = strconv.Atoi(r.FormValue("min_good"))
		opts.Threshold, _ = strconv.ParseFloat(r.FormValue("threshold"), 64)
		return data, opts, true
	}

	var req recognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return nil, opts, false
	}
	if req.Image == "" {
		respondError(w, http.StatusBadRequest, "image is required")
		return nil, opts, false
	}
	opts.Cap = req.Cap
	opts.MinGood = req.MinGood
	opts.Threshold = req.Threshold
	return []byte(req.Image), opts, true
}

// readImage extracts the image file from an already multipart request.
// Writes the error response itself when the payload is unusable.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return nil, false
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image file")
		return nil, false
	}
	return data, true
}
