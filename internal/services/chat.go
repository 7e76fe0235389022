package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/chatbridge-backend/internal/platform/ai"
	"github.com/yungbote/chatbridge-backend/internal/platform/apierr"
	"github.com/yungbote/chatbridge-backend/internal/platform/envutil"
	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/repos"
	"github.com/yungbote/chatbridge-backend/internal/types"
)

const (
	defaultTemperature  = 0.7
	defaultMaxTokens    = 4000
	titleMaxTokens      = 20
	titleSourceMaxChars = 200
	titleMaxChars       = 100
	extractionWindow    = 10
	extractionTimeout   = 30 * time.Second
)

type ChatCreateInput struct {
	Title        string         `json:"title"`
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt"`
	Metadata     map[string]any `json:"metadata"`
}

type ChatUpdateInput struct {
	Title        *string        `json:"title"`
	Model        *string        `json:"model"`
	SystemPrompt *string        `json:"system_prompt"`
	Archived     *bool          `json:"archived"`
	Metadata     map[string]any `json:"metadata"`
}

// CompletionInput is the inbound payload for both completion modes.
type CompletionInput struct {
	Model               string       `json:"model"`
	Messages            []ai.Message `json:"messages"`
	Temperature         *float64     `json:"temperature"`
	MaxTokens           int          `json:"max_tokens"`
	Stream              bool         `json:"stream"`
	SystemPrompt        string       `json:"system_prompt"`
	ChatID              *uuid.UUID   `json:"chat_id"`
	UseRAG              bool         `json:"use_rag"`
	UseWebGrounding     bool         `json:"use_web_grounding"`
	UseExtendedThinking bool         `json:"use_extended_thinking"`
}

type ChatService interface {
	Create(ctx context.Context, userID uuid.UUID, input ChatCreateInput) (*types.Chat, error)
	Get(ctx context.Context, userID, chatID uuid.UUID) (*types.Chat, error)
	List(ctx context.Context, userID uuid.UUID, includeArchived bool, limit, offset int) ([]*types.Chat, error)
	Update(ctx context.Context, userID, chatID uuid.UUID, input ChatUpdateInput) (*types.Chat, error)
	Delete(ctx context.Context, userID, chatID uuid.UUID) error
	Messages(ctx context.Context, userID, chatID uuid.UUID, limit, offset int) ([]*types.Message, error)
	Complete(ctx context.Context, userID uuid.UUID, input CompletionInput) (*ai.Completion, error)
	CompleteStream(ctx context.Context, userID uuid.UUID, input CompletionInput) (<-chan ai.StreamEvent, error)
	GenerateTitle(ctx context.Context, userID, chatID uuid.UUID) (string, error)
}

type chatService struct {
	db         *gorm.DB
	log        *logger.Logger
	chats      repos.ChatRepo
	messages   repos.MessageRepo
	router     *ai.Router
	assembler  ContextAssembler
	memories   MemoryService
	titleModel string
}

func NewChatService(db *gorm.DB, baseLog *logger.Logger, chats repos.ChatRepo, messages repos.MessageRepo, router *ai.Router, assembler ContextAssembler, memories MemoryService) ChatService {
	return &chatService{
		db:         db,
		log:        baseLog.With("service", "ChatService"),
		chats:      chats,
		messages:   messages,
		router:     router,
		assembler:  assembler,
		memories:   memories,
		titleModel: envutil.Str("CHAT_TITLE_MODEL", "gemini-2.5-flash"),
	}
}

func (s *chatService) Create(ctx context.Context, userID uuid.UUID, input ChatCreateInput) (*types.Chat, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}
	chat := &types.Chat{
		ID:           uuid.New(),
		UserID:       userID,
		Title:        title,
		Model:        input.Model,
		SystemPrompt: input.SystemPrompt,
		Metadata:     marshalMetadata(input.Metadata),
	}
	if _, err := s.chats.Create(ctx, nil, []*types.Chat{chat}); err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *chatService) Get(ctx context.Context, userID, chatID uuid.UUID) (*types.Chat, error) {
	chat, err := s.chats.GetByIDForUser(ctx, nil, chatID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("chat %s not found", chatID))
		}
		return nil, err
	}
	return chat, nil
}

func (s *chatService) List(ctx context.Context, userID uuid.UUID, includeArchived bool, limit, offset int) ([]*types.Chat, error) {
	return s.chats.ListByUser(ctx, nil, userID, includeArchived, limit, offset)
}

func (s *chatService) Update(ctx context.Context, userID, chatID uuid.UUID, input ChatUpdateInput) (*types.Chat, error) {
	chat, err := s.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apierr.InvalidRequest(fmt.Errorf("title cannot be empty"))
		}
		chat.Title = title
	}
	if input.Model != nil {
		chat.Model = *input.Model
	}
	if input.SystemPrompt != nil {
		chat.SystemPrompt = *input.SystemPrompt
	}
	if input.Archived != nil {
		chat.Archived = *input.Archived
	}
	if input.Metadata != nil {
		chat.Metadata = marshalMetadata(input.Metadata)
	}
	if err := s.chats.Save(ctx, nil, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// Delete removes a chat and its messages. Memories born in the chat are
// kept but lose their chat linkage.
func (s *chatService) Delete(ctx context.Context, userID, chatID uuid.UUID) error {
	chat, err := s.Get(ctx, userID, chatID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.memories.DetachChat(ctx, tx, chat.ID); err != nil {
			return err
		}
		if err := s.messages.DeleteByChatIDs(ctx, tx, []uuid.UUID{chat.ID}); err != nil {
			return err
		}
		return s.chats.Delete(ctx, tx, chat.ID)
	})
}

func (s *chatService) Messages(ctx context.Context, userID, chatID uuid.UUID, limit, offset int) ([]*types.Message, error) {
	if _, err := s.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.messages.ListByChat(ctx, nil, chatID, limit, offset)
}

func (s *chatService) prepare(ctx context.Context, userID uuid.UUID, input CompletionInput) (ai.Adapter, ai.Request, error) {
	if len(input.Messages) == 0 {
		return nil, ai.Request{}, apierr.InvalidRequest(fmt.Errorf("messages are required"))
	}

	// Resolve the adapter before any context source runs so a bad model
	// name fails without network activity.
	adapter, err := s.router.AdapterFor(input.Model)
	if err != nil {
		return nil, ai.Request{}, err
	}

	if input.ChatID != nil {
		if _, err := s.Get(ctx, userID, *input.ChatID); err != nil {
			return nil, ai.Request{}, err
		}
	}

	temperature := defaultTemperature
	if input.Temperature != nil {
		temperature = *input.Temperature
	}
	maxTokens := input.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	query := input.Messages[len(input.Messages)-1].Content
	system := s.assembler.BuildSystemPrompt(ctx, userID, input.ChatID, query, input.SystemPrompt, AugmentOptions{
		UseRAG:          input.UseRAG,
		UseWebGrounding: input.UseWebGrounding,
	})

	return adapter, ai.Request{
		Model:             input.Model,
		Messages:          input.Messages,
		Temperature:       temperature,
		MaxTokens:         maxTokens,
		SystemPrompt:      system,
		ExtendedReasoning: input.UseExtendedThinking,
	}, nil
}

func (s *chatService) Complete(ctx context.Context, userID uuid.UUID, input CompletionInput) (*ai.Completion, error) {
	adapter, req, err := s.prepare(ctx, userID, input)
	if err != nil {
		return nil, err
	}
	completion, err := adapter.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if input.ChatID != nil {
		if err := s.persistExchange(ctx, *input.ChatID, input, completion); err != nil {
			s.log.Error("failed to persist exchange", "chat_id", input.ChatID.String(), "error", err.Error())
			return nil, err
		}
		s.extractAsync(userID, *input.ChatID)
	}
	return completion, nil
}

// CompleteStream returns the provider stream untouched. Streamed turns
// are not persisted; clients replay them through the message endpoints
// if they want them stored.
func (s *chatService) CompleteStream(ctx context.Context, userID uuid.UUID, input CompletionInput) (<-chan ai.StreamEvent, error) {
	adapter, req, err := s.prepare(ctx, userID, input)
	if err != nil {
		return nil, err
	}
	return adapter.Stream(ctx, req)
}

func (s *chatService) persistExchange(ctx context.Context, chatID uuid.UUID, input CompletionInput, completion *ai.Completion) error {
	last := input.Messages[len(input.Messages)-1]
	userMsg := &types.Message{
		ID:      uuid.New(),
		ChatID:  chatID,
		Role:    types.MessageRoleUser,
		Content: last.Content,
	}
	assistantMeta, _ := json.Marshal(map[string]any{
		"finish_reason": completion.FinishReason,
		"provider_id":   completion.ID,
	})
	assistantMsg := &types.Message{
		ID:         uuid.New(),
		ChatID:     chatID,
		Role:       types.MessageRoleAssistant,
		Content:    completion.Message.Content,
		Model:      completion.Model,
		TokensUsed: completion.TokensUsed,
		Metadata:   datatypes.JSON(assistantMeta),
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.messages.Create(ctx, tx, []*types.Message{userMsg, assistantMsg}); err != nil {
			return err
		}
		return s.chats.Touch(ctx, tx, chatID)
	})
}

// extractAsync runs memory extraction in the background with its own
// context so a slow extraction model never delays the response.
func (s *chatService) extractAsync(userID, chatID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), extractionTimeout)
		defer cancel()
		window, err := s.messages.LatestByChat(ctx, nil, chatID, extractionWindow)
		if err != nil {
			s.log.Warn("extraction window load failed", "chat_id", chatID.String(), "error", err.Error())
			return
		}
		msgs := make([]ai.Message, 0, len(window))
		for _, m := range window {
			msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
		}
		if _, err := s.memories.ExtractFromConversation(ctx, userID, &chatID, msgs); err != nil {
			s.log.Warn("memory extraction failed", "chat_id", chatID.String(), "error", err.Error())
		}
	}()
}

// GenerateTitle names a chat from its first user message and saves it.
// Generation failures fall back to the default title rather than
// erroring.
func (s *chatService) GenerateTitle(ctx context.Context, userID, chatID uuid.UUID) (string, error) {
	chat, err := s.Get(ctx, userID, chatID)
	if err != nil {
		return "", err
	}
	history, err := s.messages.ListByChat(ctx, nil, chatID, 3, 0)
	if err != nil {
		return "", err
	}
	var source string
	for _, m := range history {
		if m.Role == types.MessageRoleUser {
			source = m.Content
			break
		}
	}
	title := "New Chat"
	if source != "" {
		if runes := []rune(source); len(runes) > titleSourceMaxChars {
			source = string(runes[:titleSourceMaxChars])
		}
		if generated := s.requestTitle(ctx, source); generated != "" {
			title = generated
		}
	}
	chat.Title = title
	if err := s.chats.Save(ctx, nil, chat); err != nil {
		return "", err
	}
	return title, nil
}

func (s *chatService) requestTitle(ctx context.Context, source string) string {
	adapter, err := s.router.AdapterFor(s.titleModel)
	if err != nil {
		s.log.Warn("title model unavailable", "error", err.Error())
		return ""
	}
	completion, err := adapter.Complete(ctx, ai.Request{
		Model:        s.titleModel,
		Messages:     []ai.Message{{Role: ai.RoleUser, Content: source}},
		Temperature:  defaultTemperature,
		MaxTokens:    titleMaxTokens,
		SystemPrompt: "Generate a concise 3-5 word title for this conversation. Respond with the title only, no quotes.",
	})
	if err != nil {
		s.log.Warn("title generation failed", "error", err.Error())
		return ""
	}
	title := strings.TrimSpace(completion.Message.Content)
	title = strings.Trim(title, `"'`)
	if runes := []rune(title); len(runes) > titleMaxChars {
		title = string(runes[:titleMaxChars])
	}
	return title
}
