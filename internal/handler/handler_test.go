package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ordersync/internal/config"
	"github.com/mmeshcher/ordersync/internal/metrics"
	"github.com/mmeshcher/ordersync/internal/middleware"
	"github.com/mmeshcher/ordersync/internal/model"
)

type stubService struct {
	orders    []model.OrderRecord
	ordersErr error
	gotLimit  int
}

func (s *stubService) RecentOrders(ctx context.Context, limit int) ([]model.OrderRecord, error) {
	s.gotLimit = limit
	return s.orders, s.ordersErr
}

func newTestHandler(t *testing.T, svc Service, auth *middleware.AuthMiddleware) (*Handler, *config.Config) {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	dir := t.TempDir()
	cfg := &config.Config{
		QueuePath: filepath.Join(dir, "queue"),
		LogPath:   filepath.Join(dir, "sync.log"),
	}

	return NewHandler(svc, cfg, logger, auth, metrics.NewRegistry()), cfg
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUpload_QueuesFiles(t *testing.T) {
	h, cfg := newTestHandler(t, &stubService{}, nil)

	body, contentType := multipartBody(t, UploadField, map[string]string{
		"export1.csv": "OrderID,SellerSKU\nA1,SKU-1\n",
		"export2.csv": "OrderID,SellerSKU\nA2,SKU-2\n",
	})

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusSeeOther)
	}
	if loc := res.Header.Get("Location"); loc != "/?success=1&count=2" {
		t.Fatalf("location = %q", loc)
	}

	entries, err := os.ReadDir(cfg.QueuePath)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("queued %d files, want 2", len(entries))
	}

	var contents []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "csv_") || filepath.Ext(e.Name()) != ".csv" {
			t.Fatalf("unexpected queue file name %q", e.Name())
		}
		data, err := os.ReadFile(filepath.Join(cfg.QueuePath, e.Name()))
		if err != nil {
			t.Fatalf("read queued file: %v", err)
		}
		contents = append(contents, string(data))
	}
	joined := strings.Join(contents, "")
	if !strings.Contains(joined, "A1,SKU-1") || !strings.Contains(joined, "A2,SKU-2") {
		t.Fatalf("queued files do not contain uploads: %q", joined)
	}
}

func TestUpload_NoFiles(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{}, nil)

	body, contentType := multipartBody(t, "other", map[string]string{"x.csv": "OrderID\n"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("OrderID"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUpload_BodyLimit(t *testing.T) {
	large := strings.Repeat("A1,SKU-1\n", 64)

	tests := []struct {
		name      string
		files     map[string]string
		hideSize  bool
		wantCodes []int
	}{
		{
			name:      "within limit",
			files:     map[string]string{"small.csv": "OrderID\nA1\n"},
			wantCodes: []int{http.StatusSeeOther},
		},
		{
			name:      "declared size over limit",
			files:     map[string]string{"big.csv": large},
			wantCodes: []int{http.StatusRequestEntityTooLarge},
		},
		{
			name:      "streamed body over limit",
			files:     map[string]string{"big.csv": large},
			hideSize:  true,
			wantCodes: []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := &config.Config{
				QueuePath:      filepath.Join(dir, "queue"),
				LogPath:        filepath.Join(dir, "sync.log"),
				MaxUploadBytes: 400,
			}
			h := NewHandler(&stubService{}, cfg, zap.NewNop(), nil, metrics.NewRegistry())

			body, contentType := multipartBody(t, UploadField, tt.files)
			var reader io.Reader = body
			if tt.hideSize {
				reader = io.MultiReader(body)
			}
			req := httptest.NewRequest(http.MethodPost, "/upload", reader)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			h.Upload(rec, req)

			ok := false
			for _, code := range tt.wantCodes {
				ok = ok || rec.Code == code
			}
			if !ok {
				t.Fatalf("status = %d, want one of %v", rec.Code, tt.wantCodes)
			}

			entries, _ := os.ReadDir(cfg.QueuePath)
			if rec.Code != http.StatusSeeOther && len(entries) != 0 {
				t.Fatalf("rejected upload queued %d files", len(entries))
			}
		})
	}
}

func TestIndex_SuccessMessage(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{}, nil)

	rec := httptest.NewRecorder()
	h.Index(rec, httptest.NewRequest(http.MethodGet, "/?success=1&count=3", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Upload successful. 3 file(s)") {
		t.Fatalf("success message missing: %s", body)
	}
	if !strings.Contains(body, `name="csv_files"`) {
		t.Fatalf("upload form missing")
	}

	rec = httptest.NewRecorder()
	h.Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Contains(rec.Body.String(), "Upload successful") {
		t.Fatalf("success message must not be shown without flag")
	}
}

func TestLogs_Page(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{}, nil)

	rec := httptest.NewRecorder()
	h.Logs(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content-type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "setInterval(refresh,") || !strings.Contains(body, "1000") {
		t.Fatalf("viewer does not poll every second: %s", body)
	}
}

func TestLogTail(t *testing.T) {
	h, cfg := newTestHandler(t, &stubService{}, nil)

	rec := httptest.NewRecorder()
	h.LogTail(rec, httptest.NewRequest(http.MethodGet, "/log", nil))
	if rec.Body.String() != "Log file not found." {
		t.Fatalf("body = %q", rec.Body.String())
	}

	var sb strings.Builder
	for i := 1; i <= 250; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	if err := os.WriteFile(cfg.LogPath, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	rec = httptest.NewRecorder()
	h.LogTail(rec, httptest.NewRequest(http.MethodGet, "/log", nil))

	lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
	if len(lines) != TailLines {
		t.Fatalf("got %d lines, want %d", len(lines), TailLines)
	}
	if lines[0] != "line 51" || lines[len(lines)-1] != "line 250" {
		t.Fatalf("unexpected tail bounds: %q .. %q", lines[0], lines[len(lines)-1])
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Fatalf("content-type = %q", ct)
	}
}

func TestTail_ShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.log")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines, err := tail(path, 5)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if strings.Join(lines, ",") != "a,b" {
		t.Fatalf("lines = %v", lines)
	}
}

func TestGetOrders_NoContent(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{}, nil)

	rec := httptest.NewRecorder()
	h.GetOrders(rec, httptest.NewRequest(http.MethodGet, "/api/sync/orders", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestGetOrders_JSONResponse(t *testing.T) {
	remoteID := 501
	svc := &stubService{
		orders: []model.OrderRecord{
			{ExternalID: "ABC123", File: "csv_1.csv", Outcome: model.OrderOutcomeCreated, RemoteID: &remoteID, ProcessedAt: time.Now().UTC()},
			{ExternalID: "XYZ", File: "csv_1.csv", Outcome: model.OrderOutcomeFailed, Error: "no line items"},
		},
	}
	h, _ := newTestHandler(t, svc, nil)

	rec := httptest.NewRecorder()
	h.GetOrders(rec, httptest.NewRequest(http.MethodGet, "/api/sync/orders?limit=10", nil))

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}
	if svc.gotLimit != 10 {
		t.Fatalf("limit = %d, want 10", svc.gotLimit)
	}

	var got []orderRecordResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ExternalID != "ABC123" || got[0].RemoteID == nil || *got[0].RemoteID != 501 {
		t.Fatalf("unexpected response: %+v", got)
	}
	if got[1].Outcome != "FAILED" || got[1].Error == "" {
		t.Fatalf("unexpected failed record: %+v", got[1])
	}
}

func TestGetOrders_Errors(t *testing.T) {
	tests := []struct {
		name   string
		svc    *stubService
		target string
		want   int
	}{
		{name: "bad limit", svc: &stubService{}, target: "/api/sync/orders?limit=abc", want: http.StatusBadRequest},
		{name: "negative limit", svc: &stubService{}, target: "/api/sync/orders?limit=-1", want: http.StatusBadRequest},
		{name: "journal failure", svc: &stubService{ordersErr: errors.New("db down")}, target: "/api/sync/orders", want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, tt.svc, nil)

			rec := httptest.NewRecorder()
			h.GetOrders(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRouter_BasicAuth(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{}, middleware.NewAuthMiddleware("admin", "pw"))
	srv := httptest.NewServer(h.SetupRouter())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	req.SetBasicAuth("admin", "pw")
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with auth: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	res, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	res, err = http.Get(srv.URL + "/missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}
