package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pdf-markdown-service/internal/entity"
	"pdf-markdown-service/internal/repository/postgresql"
	"pdf-markdown-service/internal/service"
)

// ---- fakes ----

type fakeRepo struct {
	files map[string]*entity.FileRecord
	jobs  []*entity.ConversionJob

	putFileErr        error
	markProcessingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{files: map[string]*entity.FileRecord{}}
}

func (r *fakeRepo) PutFile(ctx context.Context, f *entity.FileRecord) error {
	if r.putFileErr != nil {
		return r.putFileErr
	}
	cp := *f
	r.files[f.ID] = &cp
	return nil
}

func (r *fakeRepo) GetFile(ctx context.Context, id string) (*entity.FileRecord, error) {
	f, ok := r.files[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *fakeRepo) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	if r.markProcessingErr != nil {
		return r.markProcessingErr
	}
	f, ok := r.files[id]
	if !ok {
		return postgresql.ErrNotFound
	}
	f.Status = entity.StatusProcessing
	f.StartedAt = &startedAt
	return nil
}

func (r *fakeRepo) MarkFinished(ctx context.Context, id string, status entity.FileStatus, completedAt time.Time) error {
	f, ok := r.files[id]
	if !ok {
		return postgresql.ErrNotFound
	}
	f.Status = status
	f.CompletedAt = &completedAt
	return nil
}

func (r *fakeRepo) PutJob(ctx context.Context, j *entity.ConversionJob) error {
	cp := *j
	r.jobs = append(r.jobs, &cp)
	return nil
}

func (r *fakeRepo) LatestCompletedJob(ctx context.Context, fileID string) (*entity.ConversionJob, error) {
	var latest *entity.ConversionJob
	for _, j := range r.jobs {
		if j.FileID != fileID || j.Status != entity.JobCompleted {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, postgresql.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

type executorStub struct {
	tasks     []service.ConversionTask
	submitErr error
}

func (e *executorStub) Submit(ctx context.Context, task service.ConversionTask) error {
	if e.submitErr != nil {
		return e.submitErr
	}
	e.tasks = append(e.tasks, task)
	return nil
}

// ---- tests ----

func TestFileService_Register_StartsUploaded(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := service.NewFileService(repo, &executorStub{}, "uploads")

	rec, err := svc.Register(ctx, "paper.pdf", "paper.pdf")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated id")
	}
	if rec.Status != entity.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", rec.Status)
	}

	got, err := svc.Status(ctx, rec.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.Status != entity.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", got.Status)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Fatalf("expected nil timestamps before conversion, got started=%v completed=%v", got.StartedAt, got.CompletedAt)
	}
}

func TestFileService_StartConversion_UnknownID(t *testing.T) {
	ctx := context.Background()
	svc := service.NewFileService(newFakeRepo(), &executorStub{}, "uploads")

	_, err := svc.StartConversion(ctx, "missing", "balanced")
	if !errors.Is(err, postgresql.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileService_StartConversion_InvalidModeDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	exec := &executorStub{}
	svc := service.NewFileService(repo, exec, "uploads")

	rec, _ := svc.Register(ctx, "paper.pdf", "paper.pdf")

	_, err := svc.StartConversion(ctx, rec.ID, "turbo")
	if !errors.Is(err, service.ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}

	got, _ := svc.Status(ctx, rec.ID)
	if got.Status != entity.StatusUploaded || got.StartedAt != nil {
		t.Fatalf("expected record untouched, got status=%s started=%v", got.Status, got.StartedAt)
	}
	if len(exec.tasks) != 0 {
		t.Fatalf("expected no task submitted, got %d", len(exec.tasks))
	}
}

func TestFileService_StartConversion_ProcessingObservableBeforeWork(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	exec := &executorStub{} // records the task, runs nothing
	svc := service.NewFileService(repo, exec, "uploads")

	rec, _ := svc.Register(ctx, "paper.pdf", "paper.pdf")

	mode, err := svc.StartConversion(ctx, rec.ID, "fast")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if mode != entity.ModeFast {
		t.Fatalf("expected mode fast, got %s", mode)
	}

	// processing must be visible even though no conversion ran
	got, _ := svc.Status(ctx, rec.ID)
	if got.Status != entity.StatusProcessing {
		t.Fatalf("expected status processing, got %s", got.Status)
	}
	if got.StartedAt == nil {
		t.Fatal("expected started_at to be set")
	}

	if len(exec.tasks) != 1 {
		t.Fatalf("expected one submitted task, got %d", len(exec.tasks))
	}
	task := exec.tasks[0]
	if task.FileID != rec.ID || task.Mode != entity.ModeFast {
		t.Fatalf("unexpected task %+v", task)
	}
	if want := filepath.Join("uploads", rec.ID+".pdf"); task.Path != want {
		t.Fatalf("expected path %s, got %s", want, task.Path)
	}
}

func TestFileService_StartConversion_RejectsWhileProcessing(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	exec := &executorStub{}
	svc := service.NewFileService(repo, exec, "uploads")

	rec, _ := svc.Register(ctx, "paper.pdf", "paper.pdf")

	if _, err := svc.StartConversion(ctx, rec.ID, "balanced"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	_, err := svc.StartConversion(ctx, rec.ID, "balanced")
	if !errors.Is(err, service.ErrAlreadyProcessing) {
		t.Fatalf("expected ErrAlreadyProcessing, got %v", err)
	}
	if len(exec.tasks) != 1 {
		t.Fatalf("expected one submitted task, got %d", len(exec.tasks))
	}
}

func TestFileService_StartConversion_RetriggerableAfterTerminal(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	exec := &executorStub{}
	svc := service.NewFileService(repo, exec, "uploads")

	rec, _ := svc.Register(ctx, "paper.pdf", "paper.pdf")

	if _, err := svc.StartConversion(ctx, rec.ID, "balanced"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := repo.MarkFinished(ctx, rec.ID, entity.StatusFailed, time.Now().UTC()); err != nil {
		t.Fatalf("mark finished: %v", err)
	}

	if _, err := svc.StartConversion(ctx, rec.ID, "accurate"); err != nil {
		t.Fatalf("expected re-trigger to succeed, got %v", err)
	}
	if len(exec.tasks) != 2 {
		t.Fatalf("expected two submitted tasks, got %d", len(exec.tasks))
	}
}

func TestFileService_Upload_BytesOnDiskBeforeRecord(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	dir := t.TempDir()
	svc := service.NewFileService(repo, &executorStub{}, dir)

	rec, err := svc.Upload(ctx, "paper.pdf", strings.NewReader("%PDF-1.4 fake"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rec.Status != entity.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", rec.Status)
	}

	data, err := os.ReadFile(svc.PDFPath(rec.ID))
	if err != nil {
		t.Fatalf("expected stored pdf: %v", err)
	}
	if string(data) != "%PDF-1.4 fake" {
		t.Fatalf("unexpected stored bytes %q", data)
	}
}

func TestFileService_Upload_StoreFailureRemovesFile(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.putFileErr = errors.New("pg down")
	dir := t.TempDir()
	svc := service.NewFileService(repo, &executorStub{}, dir)

	if _, err := svc.Upload(ctx, "paper.pdf", strings.NewReader("%PDF-1.4 fake")); err == nil {
		t.Fatal("expected error when the store is unavailable")
	}

	// no half-uploaded leftovers: the bytes must be gone again
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty upload dir, got %d entries", len(entries))
	}
}

func TestFileService_Upload_DiskFailureLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	// a missing upload dir makes the disk write fail before any insert
	svc := service.NewFileService(repo, &executorStub{}, filepath.Join(t.TempDir(), "missing"))

	if _, err := svc.Upload(ctx, "paper.pdf", strings.NewReader("%PDF-1.4 fake")); err == nil {
		t.Fatal("expected error when the bytes cannot be stored")
	}
	if len(repo.files) != 0 {
		t.Fatalf("expected no record for a failed upload, got %d", len(repo.files))
	}
}

func TestFileService_Result(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := service.NewFileService(repo, &executorStub{}, "uploads")

	rec, _ := svc.Register(ctx, "paper.pdf", "paper.pdf")

	if _, err := svc.Result(ctx, rec.ID); !errors.Is(err, postgresql.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before completion, got %v", err)
	}

	_ = repo.PutJob(ctx, &entity.ConversionJob{
		ID:        "job-1",
		FileID:    rec.ID,
		Status:    entity.JobCompleted,
		Result:    "# Paper",
		CreatedAt: time.Now().UTC(),
	})

	content, err := svc.Result(ctx, rec.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if content != "# Paper" {
		t.Fatalf("expected result markdown, got %q", content)
	}

	// repeated reads return identical values
	again, err := svc.Result(ctx, rec.ID)
	if err != nil || again != content {
		t.Fatalf("expected identical repeated read, got %q err=%v", again, err)
	}
}
