// Package handler содержит HTTP-обработчики веб-интерфейса синхронизации заказов.
package handler

import (
	"bufio"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/ordersync/internal/config"
	"github.com/mmeshcher/ordersync/internal/metrics"
	"github.com/mmeshcher/ordersync/internal/middleware"
	"github.com/mmeshcher/ordersync/internal/model"
	"github.com/mmeshcher/ordersync/internal/repository"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

const (
	// UploadField содержит имя поля формы с файлами.
	UploadField = "csv_files"
	// TailLines задаёт число последних строк журнала, отдаваемых /log.
	TailLines = 200

	maxUploadMemory  = 32 << 20
	defaultMaxUpload = 32 << 20
	logNotFound      = "Log file not found."
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RecentOrders(ctx context.Context, limit int) ([]model.OrderRecord, error)
}

// Handler реализует HTTP-обработчики веб-интерфейса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        *metrics.Registry

	queuePath string
	logPath   string
	maxUpload int64
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, cfg *config.Config, logger *zap.Logger, auth *middleware.AuthMiddleware, reg *metrics.Registry) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		metrics:        reg,
		queuePath:      cfg.QueuePath,
		logPath:        cfg.LogPath,
		maxUpload:      uploadLimit(cfg.MaxUploadBytes),
	}
}

func uploadLimit(n int64) int64 {
	if n <= 0 {
		return defaultMaxUpload
	}
	return n
}

// Index отображает форму загрузки и сообщение об успешной загрузке.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Success bool
		Count   int
	}{
		Success: r.URL.Query().Get("success") == "1",
	}
	data.Count, _ = strconv.Atoi(r.URL.Query().Get("count"))

	h.render(w, "index.html", data)
}

// Logs отображает страницу, периодически запрашивающую хвост журнала.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	h.render(w, "logs.html", struct {
		Endpoint       string
		IntervalMillis int
	}{Endpoint: "/log", IntervalMillis: 1000})
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("render page error", zap.String("page", name), zap.Error(err))
	}
}

func (h *Handler) rejectTooLarge(w http.ResponseWriter, size int64) {
	h.logger.Warn("upload rejected: body too large", zap.Int64("size", size), zap.Int64("limit", h.maxUpload))
	http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
}

// Upload сохраняет загруженные файлы в очередь под уникальными именами.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUpload {
		h.rejectTooLarge(w, r.ContentLength)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectTooLarge(w, r.ContentLength)
			return
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[UploadField]
	if len(files) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.queuePath, 0o755); err != nil {
		h.logger.Error("create queue directory error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	saved := 0
	for _, fh := range files {
		name, err := h.enqueue(fh)
		if err != nil {
			h.logger.Error("upload file error", zap.String("filename", fh.Filename), zap.Error(err))
			continue
		}
		saved++
		h.logger.Info("file queued", zap.String("filename", fh.Filename), zap.String("file", name), zap.Int64("size", fh.Size))
	}

	if saved == 0 {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/?success=1&count=%d", saved), http.StatusSeeOther)
}

// enqueue пишет файл во временный файл и переименовывает его, чтобы обработчик очереди
// не увидел частично записанный файл.
func (h *Handler) enqueue(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := "csv_" + uuid.NewString() + ".csv"
	final := filepath.Join(h.queuePath, name)
	tmp := final + ".part"

	dst, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create queue file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write queue file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close queue file: %w", err)
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename queue file: %w", err)
	}

	return name, nil
}

// LogTail возвращает последние строки файла журнала.
func (h *Handler) LogTail(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	if h.logPath == "" {
		_, _ = io.WriteString(w, logNotFound)
		return
	}

	lines, err := tail(h.logPath, TailLines)
	if errors.Is(err, os.ErrNotExist) {
		_, _ = io.WriteString(w, logNotFound)
		return
	}
	if err != nil {
		h.logger.Error("read log error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	for _, line := range lines {
		_, _ = io.WriteString(w, line+"\n")
	}
}

// tail читает файл построчно, удерживая в кольцевом буфере последние n строк.
func tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, n)
	count := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if count <= n {
		return ring[:count], nil
	}
	start := count % n
	return append(ring[start:], ring[:start]...), nil
}

type orderRecordResponse struct {
	ExternalID  string `json:"external_id"`
	File        string `json:"file"`
	Outcome     string `json:"outcome"`
	RemoteID    *int   `json:"remote_id,omitempty"`
	Error       string `json:"error,omitempty"`
	ProcessedAt string `json:"processed_at"`
}

// GetOrders возвращает последние записи журнала синхронизации.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	limit := repository.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = repository.ClampLimit(n)
	}

	records, err := h.service.RecentOrders(r.Context(), limit)
	if err != nil {
		h.logger.Error("get sync orders error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, orderRecordResponse{
			ExternalID:  rec.ExternalID,
			File:        rec.File,
			Outcome:     string(rec.Outcome),
			RemoteID:    rec.RemoteID,
			Error:       rec.Error,
			ProcessedAt: rec.ProcessedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
