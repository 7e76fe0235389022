package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/chatbridge-backend/internal/platform/logger"
	"github.com/yungbote/chatbridge-backend/internal/platform/websearch"
)

// AugmentOptions selects which context sources feed a completion.
type AugmentOptions struct {
	UseRAG          bool
	UseWebGrounding bool
	MemoryLimit     int
	ChunkLimit      int
	WebResultLimit  int
}

// ContextAssembler fans out to the context sources and merges their
// output into the system prompt.
type ContextAssembler interface {
	BuildSystemPrompt(ctx context.Context, userID uuid.UUID, chatID *uuid.UUID, query, base string, opts AugmentOptions) string
}

type contextAssembler struct {
	log       *logger.Logger
	memories  MemoryService
	documents DocumentService
	web       *websearch.Client
}

func NewContextAssembler(baseLog *logger.Logger, memories MemoryService, documents DocumentService, web *websearch.Client) ContextAssembler {
	return &contextAssembler{
		log:       baseLog.With("service", "ContextAssembler"),
		memories:  memories,
		documents: documents,
		web:       web,
	}
}

// BuildSystemPrompt gathers the enabled sources concurrently. A failed
// or empty source drops its section; the others still land, and the
// section order is stable regardless of which source finishes first.
func (a *contextAssembler) BuildSystemPrompt(ctx context.Context, userID uuid.UUID, chatID *uuid.UUID, query, base string, opts AugmentOptions) string {
	var (
		memorySection string
		ragSection    string
		webSection    string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		section, err := a.memories.RelevantContext(gctx, userID, chatID, query, opts.MemoryLimit)
		if err != nil {
			a.log.Warn("memory context failed", "error", err.Error())
			return nil
		}
		memorySection = section
		return nil
	})
	if opts.UseRAG {
		g.Go(func() error {
			section, err := a.documents.ContextForQuery(gctx, userID, query, opts.ChunkLimit)
			if err != nil {
				a.log.Warn("document context failed", "error", err.Error())
				return nil
			}
			ragSection = section
			return nil
		})
	}
	if opts.UseWebGrounding && a.web != nil {
		g.Go(func() error {
			webSection = a.web.GroundingContext(gctx, query, opts.WebResultLimit)
			return nil
		})
	}
	_ = g.Wait()

	sections := make([]string, 0, 4)
	if strings.TrimSpace(base) != "" {
		sections = append(sections, base)
	}
	if memorySection != "" {
		sections = append(sections, "## User Memory Context\n"+memorySection)
	}
	if ragSection != "" {
		sections = append(sections, "## Retrieved Documents\n"+ragSection)
	}
	if webSection != "" {
		sections = append(sections, "## Web Search Results\n"+webSection)
	}
	return strings.Join(sections, "\n\n")
}
