package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/platform/ai"
	"github.com/yungbote/chatbridge-backend/internal/platform/apierr"
	"github.com/yungbote/chatbridge-backend/internal/platform/envutil"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/repos"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

const (
	extractionTemperature = 0.3
	extractionMaxTokens   = 500
	extractionMinLineLen  = 10
	extractionImportance  = 0.7
	defaultMemoryLimit    = 5
)

type MemoryCreateInput struct {
	Kind       string         `json:"kind"`
	Content    string         `json:"content"`
	ChatID     *uuid.UUID     `json:"chat_id"`
	Importance float64        `json:"importance"`
	Metadata   map[string]any `json:"metadata"`
}

type MemoryUpdateInput struct {
	Content    *string        `json:"content"`
	Importance *float64       `json:"importance"`
	Metadata   map[string]any `json:"metadata"`
}

type MemorySearchHit struct {
	Memory     *types.Memory `json:"memory"`
	Similarity float64       `json:"similarity"`
}

type MemoryService interface {
	Create(ctx context.Context, userID uuid.UUID, input MemoryCreateInput) (*types.Memory, error)
	Get(ctx context.Context, userID, memoryID uuid.UUID) (*types.Memory, error)
	List(ctx context.Context, userID uuid.UUID, filter repos.MemoryFilter, limit, offset int) ([]*types.Memory, error)
	Update(ctx context.Context, userID, memoryID uuid.UUID, input MemoryUpdateInput) (*types.Memory, error)
	Delete(ctx context.Context, userID, memoryID uuid.UUID) error
	Search(ctx context.Context, userID uuid.UUID, query string, filter repos.MemoryFilter, limit int, minScore float64) ([]MemorySearchHit, error)
	RelevantContext(ctx context.Context, userID uuid.UUID, chatID *uuid.UUID, query string, limit int) (string, error)
	ExtractFromConversation(ctx context.Context, userID uuid.UUID, chatID *uuid.UUID, messages []ai.Message) ([]*types.Memory, error)
	DetachChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error
}

type memoryService struct {
	db           *gorm.DB
	log          *logger.Logger
	memories     repos.MemoryRepo
	embedder     ai.Embedder
	router       *ai.Router
	extractModel string
}

// NewMemoryService builds the memory store. embedder and router may be
// nil; semantic search and extraction then degrade to no-ops.
func NewMemoryService(db *gorm.DB, baseLog *logger.Logger, memories repos.MemoryRepo, embedder ai.Embedder, router *ai.Router) MemoryService {
	return &memoryService{
		db:           db,
		log:          baseLog.With("service", "MemoryService"),
		memories:     memories,
		embedder:     embedder,
		router:       router,
		extractModel: envutil.Str("MEMORY_EXTRACTION_MODEL", "gemini-2.5-flash"),
	}
}

func (s *memoryService) Create(ctx context.Context, userID uuid.UUID, input MemoryCreateInput) (*types.Memory, error) {
	if !types.ValidMemoryKind(input.Kind) {
		return nil, apierr.InvalidRequest(fmt.Errorf("invalid memory kind %q", input.Kind))
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apierr.InvalidRequest(fmt.Errorf("content is required"))
	}
	importance := input.Importance
	if importance <= 0 {
		importance = 0.5
	}
	if importance > 1 {
		importance = 1
	}

	memory := &types.Memory{
		ID:         uuid.New(),
		UserID:     userID,
		ChatID:     input.ChatID,
		Kind:       input.Kind,
		Content:    content,
		Importance: importance,
		Metadata:   marshalMetadata(input.Metadata),
	}
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			s.log.Warn("memory embedding failed", "error", err.Error())
		} else {
			memory.Embedding = types.EncodeEmbedding(vec)
		}
	}
	if _, err := s.memories.Create(ctx, nil, []*types.Memory{memory}); err != nil {
		return nil, err
	}
	return memory, nil
}

func (s *memoryService) Get(ctx context.Context, userID, memoryID uuid.UUID) (*types.Memory, error) {
	memory, err := s.memories.GetByIDForUser(ctx, nil, memoryID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("memory %s not found", memoryID))
		}
		return nil, err
	}
	return memory, nil
}

func (s *memoryService) List(ctx context.Context, userID uuid.UUID, filter repos.MemoryFilter, limit, offset int) ([]*types.Memory, error) {
	if filter.Kind != "" && !types.ValidMemoryKind(filter.Kind) {
		return nil, apierr.InvalidRequest(fmt.Errorf("invalid memory kind %q", filter.Kind))
	}
	return s.memories.ListByUser(ctx, nil, userID, filter, limit, offset)
}

func (s *memoryService) Update(ctx context.Context, userID, memoryID uuid.UUID, input MemoryUpdateInput) (*types.Memory, error) {
	memory, err := s.Get(ctx, userID, memoryID)
	if err != nil {
		return nil, err
	}
	if input.Content != nil {
		content := strings.TrimSpace(*input.Content)
		if content == "" {
			return nil, apierr.InvalidRequest(fmt.Errorf("content cannot be empty"))
		}
		if content != memory.Content {
			memory.Content = content
			memory.Embedding = nil
			if s.embedder != nil {
				vec, err := s.embedder.Embed(ctx, content)
				if err != nil {
					s.log.Warn("memory embedding failed", "error", err.Error())
				} else {
					memory.Embedding = types.EncodeEmbedding(vec)
				}
			}
		}
	}
	if input.Importance != nil {
		importance := *input.Importance
		if importance < 0 || importance > 1 {
			return nil, apierr.InvalidRequest(fmt.Errorf("importance must be within [0, 1]"))
		}
		memory.Importance = importance
	}
	if input.Metadata != nil {
		memory.Metadata = marshalMetadata(input.Metadata)
	}
	if err := s.memories.Save(ctx, nil, memory); err != nil {
		return nil, err
	}
	return memory, nil
}

func (s *memoryService) Delete(ctx context.Context, userID, memoryID uuid.UUID) error {
	memory, err := s.Get(ctx, userID, memoryID)
	if err != nil {
		return err
	}
	return s.memories.Delete(ctx, nil, memory.ID)
}

// Search ranks embedded memories by cosine similarity to the query,
// breaking ties by importance and then recency.
func (s *memoryService) Search(ctx context.Context, userID uuid.UUID, query string, filter repos.MemoryFilter, limit int, minScore float64) ([]MemorySearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apierr.InvalidRequest(fmt.Errorf("query is required"))
	}
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	if s.embedder == nil {
		return []MemorySearchHit{}, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.log.Warn("query embedding failed", "error", err.Error())
		return []MemorySearchHit{}, nil
	}

	candidates, err := s.memories.CandidatesByUser(ctx, nil, userID, filter, candidateScanLimit)
	if err != nil {
		return nil, err
	}
	hits := make([]MemorySearchHit, 0, len(candidates))
	for _, m := range candidates {
		vec := types.DecodeEmbedding(m.Embedding)
		if vec == nil {
			continue
		}
		similarity := cosineSimilarity(queryVec, vec)
		if similarity < minScore {
			continue
		}
		hits = append(hits, MemorySearchHit{Memory: m, Similarity: similarity})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].Memory.Importance != hits[j].Memory.Importance {
			return hits[i].Memory.Importance > hits[j].Memory.Importance
		}
		return hits[i].Memory.CreatedAt.After(hits[j].Memory.CreatedAt)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// RelevantContext renders matching memories as prompt bullets, scoped
// to a chat when one is given. Empty string when nothing is relevant.
func (s *memoryService) RelevantContext(ctx context.Context, userID uuid.UUID, chatID *uuid.UUID, query string, limit int) (string, error) {
	hits, err := s.Search(ctx, userID, query, repos.MemoryFilter{ChatID: chatID}, limit, 0)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", nil
	}
	lines := make([]string, 0, len(hits))
	for _, hit := range hits {
		lines = append(lines, fmt.Sprintf("- %s (type: %s)", hit.Memory.Content, hit.Memory.Kind))
	}
	return strings.Join(lines, "\n"), nil
}

const extractionSystemPrompt = `You analyze conversations and pull out information worth remembering about the user.
Output one item per line, each prefixed with exactly one of:
[FACT] a stable fact about the user
[PREFERENCE] something the user likes, dislikes or prefers
[CONTEXT] context that only matters within this conversation
Output nothing at all if the conversation contains nothing worth remembering.`

// ExtractFromConversation asks a fast model to distill the conversation
// into memories and stores the usable ones. Failures are swallowed so
// extraction never affects the request that triggered it.
func (s *memoryService) ExtractFromConversation(ctx context.Context, userID uuid.UUID, chatID *uuid.UUID, messages []ai.Message) ([]*types.Memory, error) {
	if s.router == nil || len(messages) == 0 {
		return nil, nil
	}
	adapter, err := s.router.AdapterFor(s.extractModel)
	if err != nil {
		s.log.Warn("memory extraction unavailable", "error", err.Error())
		return nil, nil
	}

	var convo strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&convo, "%s: %s\n", m.Role, m.Content)
	}
	completion, err := adapter.Complete(ctx, ai.Request{
		Model:        s.extractModel,
		Messages:     []ai.Message{{Role: ai.RoleUser, Content: convo.String()}},
		Temperature:  extractionTemperature,
		MaxTokens:    extractionMaxTokens,
		SystemPrompt: extractionSystemPrompt,
	})
	if err != nil {
		s.log.Warn("memory extraction failed", "error", err.Error())
		return nil, nil
	}

	var created []*types.Memory
	for _, line := range strings.Split(completion.Message.Content, "\n") {
		line = strings.TrimSpace(line)
		kind, content := parseExtractionLine(line)
		if kind == "" || len(content) <= extractionMinLineLen {
			continue
		}
		input := MemoryCreateInput{
			Kind:       kind,
			Content:    content,
			Importance: extractionImportance,
			Metadata:   map[string]any{"auto_extracted": true},
		}
		if kind == types.MemoryKindChat {
			input.ChatID = chatID
		}
		memory, err := s.Create(ctx, userID, input)
		if err != nil {
			s.log.Warn("extracted memory rejected", "error", err.Error())
			continue
		}
		created = append(created, memory)
	}
	return created, nil
}

func parseExtractionLine(line string) (kind, content string) {
	switch {
	case strings.HasPrefix(line, "[FACT]"):
		return types.MemoryKindUserFact, strings.TrimSpace(strings.TrimPrefix(line, "[FACT]"))
	case strings.HasPrefix(line, "[PREFERENCE]"):
		return types.MemoryKindPreference, strings.TrimSpace(strings.TrimPrefix(line, "[PREFERENCE]"))
	case strings.HasPrefix(line, "[CONTEXT]"):
		return types.MemoryKindChat, strings.TrimSpace(strings.TrimPrefix(line, "[CONTEXT]"))
	}
	return "", ""
}

func (s *memoryService) DetachChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error {
	return s.memories.DetachChat(ctx, tx, chatID)
}
