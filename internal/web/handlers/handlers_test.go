package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/centrominero/labvision/internal/matcher"
	"github.com/centrominero/labvision/internal/orb"
	"github.com/centrominero/labvision/internal/recognizer"
	"github.com/centrominero/labvision/internal/store"
	"github.com/centrominero/labvision/internal/vision"
)

func texturedJPEG(t *testing.T, seed int64) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 320, 240))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	for n := 0; n < 60; n++ {
		x0 := rng.Intn(308)
		y0 := rng.Intn(228)
		w := 4 + rng.Intn(24)
		h := 4 + rng.Intn(24)
		v := uint8(rng.Intn(256))
		for y := y0; y < y0+h && y < 240; y++ {
			for x := x0; x < x0+w && x < 320; x++ {
				img.Pix[y*img.Stride+x] = v
			}
		}
	}
	data, err := vision.EncodeJPEG(img, 95)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func testRouter(t *testing.T) chi.Router {
	t.Helper()
	st := store.New(store.Config{Root: t.TempDir(), Extractor: orb.DefaultOptions()})
	svc := recognizer.New(recognizer.Config{
		Store:     st,
		Extractor: orb.DefaultOptions(),
		Matcher:   matcher.DefaultOptions(),
	})

	r := chi.NewRouter()
	recognizeHandler := NewRecognizeHandler(svc)
	referencesHandler := NewReferencesHandler(svc)
	statsHandler := NewStatsHandler(svc)
	r.Get("/api/v1/health", HealthCheck)
	r.Post("/api/v1/recognize", recognizeHandler.Recognize)
	r.Post("/api/v1/references", referencesHandler.Register)
	r.Delete("/api/v1/objects/{kind}/{name}/references", referencesHandler.Delete)
	r.Get("/api/v1/stats", statsHandler.Get)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRegisterAndRecognize(t *testing.T) {
	router := testRouter(t)
	jpg := texturedJPEG(t, 1)
	encoded := base64.StdEncoding.EncodeToString(jpg)

	rec := postJSON(t, router, "/api/v1/references", map[string]any{
		"kind":  "item",
		"name":  "Martillo de Bola",
		"image": encoded,
		"view":  "frontal",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	var reg struct {
		FeatureCount int    `json:"feature_count"`
		Slug         string `json:"slug"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reg); err != nil {
		t.Fatal(err)
	}
	if reg.Slug != "martillo_de_bola" || reg.FeatureCount == 0 {
		t.Fatalf("unexpected registration: %+v", reg)
	}

	rec = postJSON(t, router, "/api/v1/recognize", map[string]string{"image": encoded})
	if rec.Code != http.StatusOK {
		t.Fatalf("recognize status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Recognized bool    `json:"recognized"`
		Key        string  `json:"key"`
		Score      float64 `json:"score"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Recognized || result.Key != "martillo_de_bola" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestRecognizeQueryOverrides(t *testing.T) {
	router := testRouter(t)
	jpg := texturedJPEG(t, 6)
	encoded := base64.StdEncoding.EncodeToString(jpg)

	rec := postJSON(t, router, "/api/v1/references", map[string]string{
		"kind":  "item",
		"name":  "Taladro",
		"image": encoded,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d", rec.Code)
	}

	// Default tuning accepts the exact registered image.
	rec = postJSON(t, router, "/api/v1/recognize", map[string]any{"image": encoded})
	if rec.Code != http.StatusOK {
		t.Fatalf("recognize status = %d", rec.Code)
	}
	var result struct {
		Recognized bool   `json:"recognized"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Recognized {
		t.Fatalf("defaults should recognize, got %+v", result)
	}

	// A per-call min_good no template can satisfy flips the verdict.
	rec = postJSON(t, router, "/api/v1/recognize", map[string]any{
		"image":    encoded,
		"min_good": 1 << 20,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("recognize status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Recognized {
		t.Errorf("min_good override was not applied: %+v", result)
	}
}

func TestRecognizeMultipart(t *testing.T) {
	router := testRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "query.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(texturedJPEG(t, 2)); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Recognized bool   `json:"recognized"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Recognized || result.Reason != "no_templates" {
		t.Errorf("empty corpus should reject with no_templates, got %+v", result)
	}
}

func TestRecognizeInvalidImage(t *testing.T) {
	router := testRouter(t)
	rec := postJSON(t, router, "/api/v1/recognize", map[string]string{"image": "bm90IGFuIGltYWdl"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRecognizeMissingImage(t *testing.T) {
	router := testRouter(t)
	rec := postJSON(t, router, "/api/v1/recognize", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRegisterFlatImage(t *testing.T) {
	router := testRouter(t)
	flat := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range flat.Pix {
		flat.Pix[i] = 100
	}
	jpg, err := vision.EncodeJPEG(flat, 95)
	if err != nil {
		t.Fatal(err)
	}

	rec := postJSON(t, router, "/api/v1/references", map[string]string{
		"kind":  "item",
		"name":  "Placa Lisa",
		"image": base64.StdEncoding.EncodeToString(jpg),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterBadKind(t *testing.T) {
	router := testRouter(t)
	rec := postJSON(t, router, "/api/v1/references", map[string]string{
		"kind":  "muebles",
		"name":  "Silla",
		"image": base64.StdEncoding.EncodeToString(texturedJPEG(t, 3)),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteReferences(t *testing.T) {
	router := testRouter(t)
	encoded := base64.StdEncoding.EncodeToString(texturedJPEG(t, 4))

	rec := postJSON(t, router, "/api/v1/references", map[string]string{
		"kind":  "item",
		"name":  "Destornillador",
		"image": encoded,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/objects/item/Destornillador/references", nil)
	del := httptest.NewRecorder()
	router.ServeHTTP(del, req)
	if del.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", del.Code, del.Body.String())
	}
	var resp struct {
		FilesRemoved int `json:"files_removed"`
	}
	if err := json.Unmarshal(del.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.FilesRemoved == 0 {
		t.Error("expected removed files")
	}
}

func TestStatsEndpoint(t *testing.T) {
	router := testRouter(t)
	rec := postJSON(t, router, "/api/v1/references", map[string]string{
		"kind":  "item",
		"name":  "Llave Inglesa",
		"image": base64.StdEncoding.EncodeToString(texturedJPEG(t, 5)),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("stats status = %d", res.Code)
	}
	var stats struct {
		Templates int `json:"templates"`
		Storage   struct {
			Filesystem map[string]struct {
				Objects int `json:"objects"`
				Images  int `json:"images"`
			} `json:"filesystem"`
		} `json:"storage"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Templates != 1 {
		t.Errorf("templates = %d, want 1", stats.Templates)
	}
	if fs := stats.Storage.Filesystem["objetos"]; fs.Objects != 1 || fs.Images != 1 {
		t.Errorf("filesystem stats = %+v", fs)
	}
}
