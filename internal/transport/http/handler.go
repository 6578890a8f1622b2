package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"pdf-markdown-service/internal/entity"
	"pdf-markdown-service/internal/repository/postgresql"
	"pdf-markdown-service/internal/service"
)

// multipart parts above this spill to temp files
const maxUploadMemory = 32 << 20

type Handler struct {
	files *service.FileService
	agg   *service.AggregateService
}

func NewHandler(files *service.FileService, agg *service.AggregateService) *Handler {
	return &Handler{files: files, agg: agg}
}

type uploadedFileResp struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type statusResp struct {
	FileID      string  `json:"file_id"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	StartedAt   *string `json:"started_at"`
	CompletedAt *string `json:"completed_at"`
}

type messageResp struct {
	Message string `json:"message"`
}

type resultResp struct {
	Content string `json:"content"`
}

type downloadDTO struct {
	FileIDs []string `json:"file_ids"`
}

type chunkedDownloadDTO struct {
	FileIDs   []string `json:"file_ids"`
	ChunkSize int      `json:"chunk_size"`
}

// Upload godoc
// @Summary Upload one or more PDF files
// @Description Stores the uploaded bytes and registers each file in status "uploaded".
// @Tags files
// @Accept mpfd
// @Produce json
// @Param files formData file true "PDF files (repeatable)"
// @Success 200 {array} uploadedFileResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeErr(w, http.StatusBadRequest, "no files provided")
		return
	}

	out := make([]uploadedFileResp, 0, len(headers))
	for _, fh := range headers {
		rec, err := h.uploadOne(r.Context(), fh)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "failed to store file")
			return
		}

		out = append(out, uploadedFileResp{
			ID:        rec.ID,
			Name:      rec.Name,
			Status:    string(rec.Status),
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) uploadOne(ctx context.Context, fh *multipart.FileHeader) (*entity.FileRecord, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return h.files.Upload(ctx, fh.Filename, src)
}

// Status godoc
// @Summary Get file conversion status
// @Tags files
// @Produce json
// @Param id path string true "file id"
// @Success 200 {object} statusResp
// @Failure 404 {object} apiError
// @Router /status/{id} [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	f, err := h.files.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "file not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to read status")
		return
	}

	writeJSON(w, http.StatusOK, statusResp{
		FileID:      f.ID,
		Status:      string(f.Status),
		CreatedAt:   f.CreatedAt.Format(time.RFC3339),
		StartedAt:   formatTimePtr(f.StartedAt),
		CompletedAt: formatTimePtr(f.CompletedAt),
	})
}

// Convert godoc
// @Summary Queue a conversion for a file
// @Description Moves the file to "processing" and schedules the conversion. Returns before the conversion finishes.
// @Tags files
// @Produce json
// @Param id path string true "file id"
// @Param mode query string false "conversion mode: fast, balanced or accurate (default balanced)"
// @Success 200 {object} messageResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /convert/{id} [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = string(entity.ModeBalanced)
	}

	m, err := h.files.StartConversion(r.Context(), id, mode)
	switch {
	case errors.Is(err, service.ErrInvalidMode):
		writeErr(w, http.StatusBadRequest, "invalid mode, must be one of: fast, balanced, accurate")
		return
	case errors.Is(err, postgresql.ErrNotFound):
		writeErr(w, http.StatusNotFound, "file not found")
		return
	case errors.Is(err, service.ErrAlreadyProcessing):
		writeErr(w, http.StatusConflict, "conversion already in progress")
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, "failed to queue conversion")
		return
	}

	writeJSON(w, http.StatusOK, messageResp{
		Message: fmt.Sprintf("Conversion queued for %s with mode=%s", id, m),
	})
}

// Result godoc
// @Summary Get the converted Markdown of a file
// @Tags files
// @Produce json
// @Param id path string true "file id"
// @Success 200 {object} resultResp
// @Failure 404 {object} apiError
// @Router /result/{id} [get]
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	content, err := h.files.Result(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "conversion not found or not completed")
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to read result")
		return
	}

	writeJSON(w, http.StatusOK, resultResp{Content: content})
}

// DownloadChunk godoc
// @Summary Download combined Markdown for multiple files
// @Description Concatenates the latest completed result of each file, in request order, as a single Markdown attachment.
// @Tags downloads
// @Accept json
// @Produce plain
// @Param request body downloadDTO true "file ids"
// @Success 200 {string} string "combined markdown"
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /download-chunk [post]
func (h *Handler) DownloadChunk(w http.ResponseWriter, r *http.Request) {
	var dto downloadDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	combined, err := h.agg.Combine(r.Context(), dto.FileIDs)
	if err != nil {
		if errors.Is(err, service.ErrNoCompletedConversions) {
			writeErr(w, http.StatusNotFound, "no completed conversions found for the selected files")
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to combine results")
		return
	}

	filename := fmt.Sprintf("markdown_chunk_%s.md", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/markdown")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(combined))
}

// DownloadChunked godoc
// @Summary Plan a chunked download
// @Description Partitions the requested file ids into fixed-size chunks. Planning only, no content is fetched.
// @Tags downloads
// @Accept json
// @Produce json
// @Param request body chunkedDownloadDTO true "file ids and chunk size"
// @Success 200 {object} service.ChunkPlan
// @Failure 400 {object} apiError
// @Router /download-chunked [post]
func (h *Handler) DownloadChunked(w http.ResponseWriter, r *http.Request) {
	var dto chunkedDownloadDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	plan, err := h.agg.PlanChunks(r.Context(), dto.FileIDs, dto.ChunkSize)
	if err != nil {
		if errors.Is(err, service.ErrInvalidChunkSize) {
			writeErr(w, http.StatusBadRequest, "chunk size must be at least 1")
			return
		}
		writeErr(w, http.StatusInternalServerError, "failed to plan chunks")
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

// GetPDF godoc
// @Summary Serve the original uploaded PDF
// @Tags files
// @Produce octet-stream
// @Param id path string true "file id"
// @Success 200 {file} file
// @Failure 404 {object} apiError
// @Router /pdf/{id} [get]
func (h *Handler) GetPDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	path := h.files.PDFPath(id)
	if _, err := os.Stat(path); err != nil {
		writeErr(w, http.StatusNotFound, "pdf file not found")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}

// Health godoc
// @Summary Health check
// @Tags service
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
