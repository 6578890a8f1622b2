package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"pdf-markdown-service/internal/entity"
)

// Repository port (implementation: postgresql.FileRepository).
type FileRepository interface {
	PutFile(ctx context.Context, f *entity.FileRecord) error
	GetFile(ctx context.Context, id string) (*entity.FileRecord, error)
	MarkProcessing(ctx context.Context, id string, startedAt time.Time) error
	MarkFinished(ctx context.Context, id string, status entity.FileStatus, completedAt time.Time) error
	PutJob(ctx context.Context, j *entity.ConversionJob) error
	LatestCompletedJob(ctx context.Context, fileID string) (*entity.ConversionJob, error)
}

// ConversionTask is the unit of work handed to an executor.
type ConversionTask struct {
	FileID string      `json:"file_id"`
	Path   string      `json:"path"`
	Mode   entity.Mode `json:"mode"`
}

// ConversionExecutor runs conversion work off the request path.
// Submit must return before the conversion finishes.
type ConversionExecutor interface {
	Submit(ctx context.Context, task ConversionTask) error
}

var (
	ErrInvalidMode       = errors.New("invalid conversion mode")
	ErrAlreadyProcessing = errors.New("conversion already in progress")
)

// FileService drives the file lifecycle: uploaded -> processing -> terminal.
type FileService struct {
	repo      FileRepository
	executor  ConversionExecutor
	uploadDir string
}

func NewFileService(repo FileRepository, executor ConversionExecutor, uploadDir string) *FileService {
	return &FileService{
		repo:      repo,
		executor:  executor,
		uploadDir: uploadDir,
	}
}

// PDFPath is the durable location of a file's uploaded bytes.
func (s *FileService) PDFPath(id string) string {
	return filepath.Join(s.uploadDir, id+".pdf")
}

// Register allocates an id and persists a fresh record in status uploaded.
func (s *FileService) Register(ctx context.Context, name, originalFilename string) (*entity.FileRecord, error) {
	return s.register(ctx, uuid.NewString(), name, originalFilename)
}

func (s *FileService) register(ctx context.Context, id, name, originalFilename string) (*entity.FileRecord, error) {
	f := &entity.FileRecord{
		ID:               id,
		Name:             name,
		OriginalFilename: originalFilename,
		Status:           entity.StatusUploaded,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.repo.PutFile(ctx, f); err != nil {
		return nil, fmt.Errorf("put file: %w", err)
	}
	return f, nil
}

// Upload stores the PDF bytes and registers the file record. Bytes go to
// disk first; if the insert fails the file is removed again, so a record in
// the store always has its PDF at PDFPath.
func (s *FileService) Upload(ctx context.Context, filename string, src io.Reader) (*entity.FileRecord, error) {
	id := uuid.NewString()
	path := s.PDFPath(id)

	if err := writeFile(path, src); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	f, err := s.register(ctx, id, filename, filename)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return f, nil
}

func writeFile(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		_ = os.Remove(path)
		return copyErr
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return closeErr
	}
	return nil
}

// StartConversion validates the request, moves the file to processing and
// hands the work to the executor. It returns as soon as the task is
// submitted; the outcome is observable later via Status/Result.
//
// A file already in processing is rejected; terminal files may be
// re-triggered and each attempt appends a fresh job row.
func (s *FileService) StartConversion(ctx context.Context, fileID, mode string) (entity.Mode, error) {
	m, ok := entity.ParseMode(mode)
	if !ok {
		return "", ErrInvalidMode
	}

	f, err := s.repo.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if f.Status == entity.StatusProcessing {
		return "", ErrAlreadyProcessing
	}

	if err := s.repo.MarkProcessing(ctx, fileID, time.Now().UTC()); err != nil {
		return "", err
	}

	task := ConversionTask{
		FileID: fileID,
		Path:   s.PDFPath(fileID),
		Mode:   m,
	}
	if err := s.executor.Submit(ctx, task); err != nil {
		return "", fmt.Errorf("submit conversion: %w", err)
	}
	return m, nil
}

// Status returns the current lifecycle state of a file. Read-only.
func (s *FileService) Status(ctx context.Context, fileID string) (*entity.FileRecord, error) {
	return s.repo.GetFile(ctx, fileID)
}

// Result returns the Markdown of the latest completed attempt. Read-only.
func (s *FileService) Result(ctx context.Context, fileID string) (string, error) {
	j, err := s.repo.LatestCompletedJob(ctx, fileID)
	if err != nil {
		return "", err
	}
	return j.Result, nil
}
