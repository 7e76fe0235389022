package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/chunk"
	"github.com/yungbote/chatbridge-backend/internal/platform/ai"
	"github.com/yungbote/chatbridge-backend/internal/platform/apierr"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/repos"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

const (
	embedConcurrency    = 4
	candidateScanLimit  = 1000
	defaultSearchLimit  = 5
	defaultContextLimit = 3
)

type DocumentIngestInput struct {
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	MimeType     string         `json:"mime_type"`
	Metadata     map[string]any `json:"metadata"`
	ChunkSize    int            `json:"chunk_size"`
	ChunkOverlap int            `json:"chunk_overlap"`
}

type DocumentUpdateInput struct {
	Title    *string        `json:"title"`
	Content  *string        `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type DocumentSearchHit struct {
	ChunkID       uuid.UUID `json:"chunk_id"`
	DocumentID    uuid.UUID `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	Content       string    `json:"content"`
	Similarity    float64   `json:"similarity"`
}

type DocumentService interface {
	Ingest(ctx context.Context, userID uuid.UUID, input DocumentIngestInput) (*types.Document, error)
	Get(ctx context.Context, userID, docID uuid.UUID) (*types.Document, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.Document, error)
	Update(ctx context.Context, userID, docID uuid.UUID, input DocumentUpdateInput) (*types.Document, error)
	Delete(ctx context.Context, userID, docID uuid.UUID) error
	Search(ctx context.Context, userID uuid.UUID, query string, limit int) ([]DocumentSearchHit, error)
	ContextForQuery(ctx context.Context, userID uuid.UUID, query string, maxChunks int) (string, error)
}

type documentService struct {
	db       *gorm.DB
	log      *logger.Logger
	docs     repos.DocumentRepo
	chunks   repos.DocumentChunkRepo
	embedder ai.Embedder
}

// NewDocumentService builds the retrieval service. embedder may be nil;
// ingestion then stores chunks without vectors and search returns
// nothing.
func NewDocumentService(db *gorm.DB, baseLog *logger.Logger, docs repos.DocumentRepo, chunks repos.DocumentChunkRepo, embedder ai.Embedder) DocumentService {
	return &documentService{
		db:       db,
		log:      baseLog.With("service", "DocumentService"),
		docs:     docs,
		chunks:   chunks,
		embedder: embedder,
	}
}

func (s *documentService) Ingest(ctx context.Context, userID uuid.UUID, input DocumentIngestInput) (*types.Document, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apierr.InvalidRequest(fmt.Errorf("title is required"))
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, apierr.InvalidRequest(fmt.Errorf("content is required"))
	}
	size := input.ChunkSize
	if size == 0 {
		size = chunk.DefaultSize
	}
	overlap := input.ChunkOverlap
	if overlap == 0 && input.ChunkSize == 0 {
		overlap = chunk.DefaultOverlap
	}

	pieces, err := chunk.Split(input.Content, size, overlap)
	if err != nil {
		return nil, apierr.InvalidConfiguration(err)
	}

	doc := &types.Document{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Content:   input.Content,
		MimeType:  input.MimeType,
		SizeBytes: len(input.Content),
		Metadata:  marshalMetadata(input.Metadata),
	}

	chunkRows := s.buildChunks(ctx, doc.ID, pieces)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.docs.Create(ctx, tx, []*types.Document{doc}); err != nil {
			return err
		}
		if _, err := s.chunks.Create(ctx, tx, chunkRows); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("document ingested", "document_id", doc.ID.String(), "chunks", len(chunkRows))
	return doc, nil
}

// buildChunks embeds each piece best effort. A chunk whose embedding
// fails is stored with a NULL vector and skipped by retrieval.
func (s *documentService) buildChunks(ctx context.Context, docID uuid.UUID, pieces []string) []*types.DocumentChunk {
	rows := make([]*types.DocumentChunk, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, piece := range pieces {
		i, piece := i, piece
		g.Go(func() error {
			row := &types.DocumentChunk{
				ID:         uuid.New(),
				DocumentID: docID,
				Index:      i,
				Content:    piece,
				Metadata:   marshalMetadata(map[string]any{"chunk_size": len(piece)}),
			}
			if s.embedder != nil {
				vec, err := s.embedder.Embed(gctx, piece)
				if err != nil {
					s.log.Warn("chunk embedding failed", "document_id", docID.String(), "index", i, "error", err.Error())
				} else {
					row.Embedding = types.EncodeEmbedding(vec)
				}
			}
			rows[i] = row
			return nil
		})
	}
	_ = g.Wait()
	return rows
}

func (s *documentService) Get(ctx context.Context, userID, docID uuid.UUID) (*types.Document, error) {
	doc, err := s.docs.GetByIDForUser(ctx, nil, docID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("document %s not found", docID))
		}
		return nil, err
	}
	return doc, nil
}

func (s *documentService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*types.Document, error) {
	return s.docs.ListByUser(ctx, nil, userID, limit, offset)
}

func (s *documentService) Update(ctx context.Context, userID, docID uuid.UUID, input DocumentUpdateInput) (*types.Document, error) {
	doc, err := s.Get(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apierr.InvalidRequest(fmt.Errorf("title cannot be empty"))
		}
		doc.Title = title
	}
	if input.Metadata != nil {
		doc.Metadata = marshalMetadata(input.Metadata)
	}

	reingest := input.Content != nil && *input.Content != doc.Content
	var chunkRows []*types.DocumentChunk
	if reingest {
		if strings.TrimSpace(*input.Content) == "" {
			return nil, apierr.InvalidRequest(fmt.Errorf("content cannot be empty"))
		}
		doc.Content = *input.Content
		doc.SizeBytes = len(doc.Content)
		pieces, err := chunk.Split(doc.Content, chunk.DefaultSize, chunk.DefaultOverlap)
		if err != nil {
			return nil, apierr.InvalidConfiguration(err)
		}
		chunkRows = s.buildChunks(ctx, doc.ID, pieces)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if reingest {
			if err := s.chunks.FullDeleteByDocumentIDs(ctx, tx, []uuid.UUID{doc.ID}); err != nil {
				return err
			}
			if _, err := s.chunks.Create(ctx, tx, chunkRows); err != nil {
				return err
			}
		}
		return s.docs.Save(ctx, tx, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *documentService) Delete(ctx context.Context, userID, docID uuid.UUID) error {
	doc, err := s.Get(ctx, userID, docID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.chunks.FullDeleteByDocumentIDs(ctx, tx, []uuid.UUID{doc.ID}); err != nil {
			return err
		}
		return s.docs.Delete(ctx, tx, doc.ID)
	})
}

func (s *documentService) Search(ctx context.Context, userID uuid.UUID, query string, limit int) ([]DocumentSearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apierr.InvalidRequest(fmt.Errorf("query is required"))
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if s.embedder == nil {
		return []DocumentSearchHit{}, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.log.Warn("query embedding failed", "error", err.Error())
		return []DocumentSearchHit{}, nil
	}

	candidates, err := s.chunks.CandidatesByUser(ctx, nil, userID, candidateScanLimit)
	if err != nil {
		return nil, err
	}

	type scored struct {
		chunk      *types.DocumentChunk
		similarity float64
	}
	scoredRows := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		vec := types.DecodeEmbedding(c.Embedding)
		if vec == nil {
			continue
		}
		scoredRows = append(scoredRows, scored{chunk: c, similarity: cosineSimilarity(queryVec, vec)})
	}
	sort.SliceStable(scoredRows, func(i, j int) bool {
		return scoredRows[i].similarity > scoredRows[j].similarity
	})
	if len(scoredRows) > limit {
		scoredRows = scoredRows[:limit]
	}

	docIDs := make([]uuid.UUID, 0, len(scoredRows))
	seen := make(map[uuid.UUID]bool)
	for _, row := range scoredRows {
		if !seen[row.chunk.DocumentID] {
			seen[row.chunk.DocumentID] = true
			docIDs = append(docIDs, row.chunk.DocumentID)
		}
	}
	docs, err := s.docs.GetByIDs(ctx, nil, docIDs)
	if err != nil {
		return nil, err
	}
	titles := make(map[uuid.UUID]string, len(docs))
	for _, d := range docs {
		titles[d.ID] = d.Title
	}

	hits := make([]DocumentSearchHit, 0, len(scoredRows))
	for _, row := range scoredRows {
		hits = append(hits, DocumentSearchHit{
			ChunkID:       row.chunk.ID,
			DocumentID:    row.chunk.DocumentID,
			DocumentTitle: titles[row.chunk.DocumentID],
			Content:       row.chunk.Content,
			Similarity:    row.similarity,
		})
	}
	return hits, nil
}

// ContextForQuery renders top matching chunks as a prompt section.
// Empty string when nothing matches.
func (s *documentService) ContextForQuery(ctx context.Context, userID uuid.UUID, query string, maxChunks int) (string, error) {
	if maxChunks <= 0 {
		maxChunks = defaultContextLimit
	}
	hits, err := s.Search(ctx, userID, query, maxChunks)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		parts = append(parts, fmt.Sprintf("From '%s' (similarity: %.2f):\n%s", hit.DocumentTitle, hit.Similarity, hit.Content))
	}
	return strings.Join(parts, "\n\n"), nil
}

func marshalMetadata(meta map[string]any) datatypes.JSON {
	if len(meta) == 0 {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
