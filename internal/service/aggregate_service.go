package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdf-markdown-service/internal/repository/postgresql"
)

var (
	ErrNoCompletedConversions = errors.New("no completed conversions for the selected files")
	ErrInvalidChunkSize       = errors.New("chunk size must be at least 1")
)

// separatorTemplate heads each document inside a combined download.
const separatorTemplate = "\n\n--- DOCUMENT: %s ---\n\n"

// ChunkFile describes one file's position inside a chunk.
type ChunkFile struct {
	FileID           string `json:"file_id"`
	OriginalFilename string `json:"original_filename"`
	NumberInChunk    int    `json:"number_in_chunk"`
}

type Chunk struct {
	ChunkNumber int         `json:"chunk_number"`
	FileIDs     []string    `json:"file_ids"`
	Files       []ChunkFile `json:"files"`
	FileCount   int         `json:"file_count"`
}

type ChunkPlan struct {
	TotalFiles  int     `json:"total_files"`
	ChunkSize   int     `json:"chunk_size"`
	TotalChunks int     `json:"total_chunks"`
	Chunks      []Chunk `json:"chunks"`
}

// AggregateService combines converted Markdown across files and plans
// chunked multi-part downloads. It never mutates store state.
type AggregateService struct {
	repo FileRepository
}

func NewAggregateService(repo FileRepository) *AggregateService {
	return &AggregateService{repo: repo}
}

// Combine concatenates the latest completed result of each file, in input
// order, each headed by a separator block with the original filename.
// Files without a completed conversion contribute nothing.
func (s *AggregateService) Combine(ctx context.Context, fileIDs []string) (string, error) {
	var b strings.Builder

	for _, id := range fileIDs {
		filename := "Unknown File"
		f, err := s.repo.GetFile(ctx, id)
		switch {
		case err == nil:
			filename = f.OriginalFilename
		case !errors.Is(err, postgresql.ErrNotFound):
			return "", err
		}

		j, err := s.repo.LatestCompletedJob(ctx, id)
		if err != nil {
			if errors.Is(err, postgresql.ErrNotFound) {
				continue
			}
			return "", err
		}
		if j.Result == "" {
			continue
		}

		fmt.Fprintf(&b, separatorTemplate, filename)
		b.WriteString(j.Result)
	}

	if b.Len() == 0 {
		return "", ErrNoCompletedConversions
	}
	return b.String(), nil
}

// PlanChunks partitions fileIDs into consecutive groups of chunkSize,
// preserving order. Planning only: no Markdown is fetched.
func (s *AggregateService) PlanChunks(ctx context.Context, fileIDs []string, chunkSize int) (*ChunkPlan, error) {
	if chunkSize < 1 {
		return nil, ErrInvalidChunkSize
	}

	totalFiles := len(fileIDs)
	totalChunks := (totalFiles + chunkSize - 1) / chunkSize

	plan := &ChunkPlan{
		TotalFiles:  totalFiles,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		Chunks:      make([]Chunk, 0, totalChunks),
	}

	for i := 0; i < totalChunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > totalFiles {
			end = totalFiles
		}
		ids := fileIDs[start:end]

		files := make([]ChunkFile, 0, len(ids))
		for pos, id := range ids {
			name, err := s.resolveName(ctx, id)
			if err != nil {
				return nil, err
			}
			files = append(files, ChunkFile{
				FileID:           id,
				OriginalFilename: name,
				NumberInChunk:    pos + 1,
			})
		}

		plan.Chunks = append(plan.Chunks, Chunk{
			ChunkNumber: i + 1,
			FileIDs:     ids,
			Files:       files,
			FileCount:   len(ids),
		})
	}

	return plan, nil
}

// resolveName returns the display name for a chunk entry: the original
// filename without a trailing .pdf suffix, or unknown-{id} for missing files.
func (s *AggregateService) resolveName(ctx context.Context, id string) (string, error) {
	f, err := s.repo.GetFile(ctx, id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			return "unknown-" + id, nil
		}
		return "", err
	}
	return stripPDFSuffix(f.OriginalFilename), nil
}

func stripPDFSuffix(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return name[:len(name)-len(".pdf")]
	}
	return name
}
