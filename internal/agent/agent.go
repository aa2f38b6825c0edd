// Package agent runs the conversation loop of the shop assistant.
//
// A turn is an explicit state machine: call the model, run the tools it
// requested, feed the outputs back, repeat until the model answers in
// plain text or the turn ceiling is hit. Keeping the loop as plain Go
// states makes every transition loggable and lets tests drive it with a
// scripted model.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/spelhyllan/spelhyllan/internal/thread"
	"github.com/spelhyllan/spelhyllan/internal/tools"
)

// DefaultMaxTurns caps how many model calls one user message may cost.
const DefaultMaxTurns = 15

// fallbackResponse covers the rare case of the model returning neither
// text nor tool requests.
const fallbackResponse = "Jag kunde tyvärr inte formulera ett svar. Kan du omformulera frågan?"

// systemPromptFormat is the assistant's standing instructions. The
// verb "ALLTID" matters: without it Gemini Flash answers inventory
// questions from its own weights instead of calling the tool.
const systemPromptFormat = `Du är en hjälpsam e-handels-chattbot för en spelbutik.
VIKTIGT: Du har tillgång till verktyget item_lookup som söker i butikens inventarie av spel och tillbehör.
Använd ALLTID verktyget när kunder frågar om spel eller tillbehör, även om det returnerar fel eller tomma resultat.
När du använder item_lookup:
- Om det returnerar resultat, presentera varje spel med namn, beskrivning, pris och lagerstatus.
- Om det returnerar fel eller inga resultat, erkänn detta och erbjud hjälp på andra sätt.
- Om databasen verkar vara tom, berätta att inventariet kanske håller på att uppdateras.
Rekommendera aldrig produkter som inte finns i verktygets resultat.
Svara alltid på samma språk som kunden skriver på.
Inkludera produktlänkar endast om kunden uttryckligen ber om dem.
Nuvarande tid: %s`

// ThreadStore persists conversation history. Satisfied by
// *thread.Store.
type ThreadStore interface {
	Load(ctx context.Context, threadID string) ([]*thread.Message, error)
	Append(ctx context.Context, threadID string, messages []*thread.Message) error
}

// Config carries the dependencies of an Agent.
type Config struct {
	Genkit    *genkit.Genkit
	ModelName string
	Lookup    *tools.Lookup
	LookupRef ai.Tool
	Threads   ThreadStore
	Retry     RetryPolicy
	// Limiter optionally gates model calls before the provider does.
	// Nil disables proactive limiting.
	Limiter  *rate.Limiter
	MaxTurns int
	Logger   *slog.Logger
}

// Agent answers user messages against a persisted thread. It is safe
// for concurrent use; turns on the same thread are serialized.
type Agent struct {
	g         *genkit.Genkit
	modelName string
	lookup    *tools.Lookup
	toolRefs  []ai.ToolRef
	threads   ThreadStore
	retry     RetryPolicy
	limiter   *rate.Limiter
	maxTurns  int
	locks     *keyedMutex
	logger    *slog.Logger
	now       func() time.Time
}

// New validates the configuration and creates an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Genkit == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.Lookup == nil {
		return nil, fmt.Errorf("lookup tool is required")
	}
	if cfg.LookupRef == nil {
		return nil, fmt.Errorf("lookup tool registration is required")
	}
	if cfg.Threads == nil {
		return nil, fmt.Errorf("thread store is required")
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if err := cfg.Retry.validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Agent{
		g:         cfg.Genkit,
		modelName: cfg.ModelName,
		lookup:    cfg.Lookup,
		toolRefs:  []ai.ToolRef{cfg.LookupRef},
		threads:   cfg.Threads,
		retry:     cfg.Retry,
		limiter:   cfg.Limiter,
		maxTurns:  cfg.MaxTurns,
		locks:     newKeyedMutex(),
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// Send runs one full conversation turn: load history, loop model and
// tool calls until the model settles on text, persist the exchange,
// return the answer. Concurrent Sends on the same thread queue up
// behind each other; different threads proceed in parallel.
func (a *Agent) Send(ctx context.Context, threadID, userText string) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", fmt.Errorf("user message must not be empty: %w", ErrAgentFailed)
	}

	unlock := a.locks.Lock(threadID)
	defer unlock()

	stored, err := a.threads.Load(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("loading thread %s: %w", threadID, errors.Join(ErrAgentFailed, err))
	}

	messages := thread.History(stored)
	userMsg := ai.NewUserMessage(ai.NewTextPart(userText))
	messages = append(messages, userMsg)
	newMessages := []*ai.Message{userMsg}

	logger := a.logger.With("thread_id", threadID)
	state := StateAwaitingModel
	turns := 0
	var finalText string

	for !state.terminal() {
		switch state {
		case StateAwaitingModel:
			turns++
			resp, err := a.generate(ctx, messages)
			if err != nil {
				return "", a.classify(err)
			}
			messages = append(messages, resp.Message)
			newMessages = append(newMessages, resp.Message)

			if requests := resp.ToolRequests(); len(requests) > 0 {
				// Past the ceiling the request is not dispatched;
				// the turn aborts instead of cycling further.
				if turns > a.maxTurns {
					state = StateAborted
					continue
				}
				logger.Debug("model requested tools",
					"turn", turns, "requests", len(requests))
				state = StateAwaitingTool
				continue
			}

			finalText = resp.Text()
			if strings.TrimSpace(finalText) == "" {
				logger.Warn("model returned empty response", "turn", turns)
				finalText = fallbackResponse
			}
			state = StateDone

		case StateAwaitingTool:
			last := messages[len(messages)-1]
			toolMsg := a.runTools(ctx, logger, last)
			messages = append(messages, toolMsg)
			newMessages = append(newMessages, toolMsg)
			state = StateAwaitingModel
		}
	}

	if state == StateAborted {
		logger.Error("turn ceiling reached", "max_turns", a.maxTurns)
		return "", fmt.Errorf("conversation did not settle within %d turns: %w",
			a.maxTurns, ErrAgentFailed)
	}

	if err := a.threads.Append(ctx, threadID, toStoredMessages(newMessages)); err != nil {
		return "", fmt.Errorf("persisting thread %s: %w", threadID, errors.Join(ErrAgentFailed, err))
	}

	logger.Debug("turn complete", "model_calls", turns, "messages_appended", len(newMessages))
	return finalText, nil
}

// generate performs one model call under the retry policy. Tool
// requests come back unexecuted so the state machine owns dispatch.
func (a *Agent) generate(ctx context.Context, messages []*ai.Message) (*ai.ModelResponse, error) {
	system := fmt.Sprintf(systemPromptFormat, a.now().UTC().Format(time.RFC3339))
	return withRetry(ctx, a.retry, a.limiter, a.logger, "generate",
		func(ctx context.Context) (*ai.ModelResponse, error) {
			return genkit.Generate(ctx, a.g,
				ai.WithModelName(a.modelName),
				ai.WithSystem(system),
				ai.WithMessages(messages...),
				ai.WithTools(a.toolRefs...),
				ai.WithReturnToolRequests(true),
			)
		})
}

// runTools executes every tool request in the model message and builds
// the tool-role reply. Failures become payloads the model can read;
// a broken tool must never kill the conversation.
func (a *Agent) runTools(ctx context.Context, logger *slog.Logger, modelMsg *ai.Message) *ai.Message {
	var parts []*ai.Part
	for _, part := range modelMsg.Content {
		if part.ToolRequest == nil {
			continue
		}
		req := part.ToolRequest
		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: a.dispatch(ctx, logger, req),
		}))
	}
	return &ai.Message{Role: ai.RoleTool, Content: parts}
}

// dispatch routes one tool request by name.
func (a *Agent) dispatch(ctx context.Context, logger *slog.Logger, req *ai.ToolRequest) any {
	switch req.Name {
	case tools.LookupName:
		input, err := tools.ParseInput(req.Input)
		if err != nil {
			logger.Warn("model sent invalid tool input",
				"tool", req.Name, "error", err)
			return tools.LookupResult{
				Error:   "InvalidInput",
				Details: err.Error(),
			}
		}
		return a.lookup.Handle(ctx, input)
	default:
		logger.Warn("model requested unknown tool", "tool", req.Name)
		return map[string]string{
			"error":   "UnknownTool",
			"details": fmt.Sprintf("no tool named %q is available", req.Name),
		}
	}
}

// classify maps a generate failure onto the package's sentinel errors.
// withRetry already tags rate-limit exhaustion and auth failures.
func (a *Agent) classify(err error) error {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAuthFailed) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(ErrAgentFailed, err)
}

func toStoredMessages(messages []*ai.Message) []*thread.Message {
	out := make([]*thread.Message, len(messages))
	for i, msg := range messages {
		out[i] = &thread.Message{Role: msg.Role, Content: msg.Content}
	}
	return out
}
