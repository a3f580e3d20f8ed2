package catalogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"mova-bot/pkg/mova"
)

// CategoryCallbackPrefix prefixes the callback data of category buttons.
const CategoryCallbackPrefix = "category_"

// OutcomeKind enumerates what an engine event produced.
type OutcomeKind string

const (
	OutcomeCategoryList OutcomeKind = "category_list"
	OutcomeNoCategories OutcomeKind = "no_categories"
	OutcomeExampleList  OutcomeKind = "example_list"
	OutcomeExample      OutcomeKind = "example"
	OutcomeNoExamples   OutcomeKind = "no_examples"
	OutcomeUnavailable  OutcomeKind = "unavailable"
)

// Choice is one selectable entry of a list outcome.
type Choice struct {
	Label string
	Value string
}

// Outcome is the display-neutral result of one engine event.
type Outcome struct {
	Kind    OutcomeKind
	Choices []Choice
	Item    mova.RenderedExample
}

// ContentReader provides the full catalogue collections.
type ContentReader interface {
	Categories(ctx context.Context) ([]mova.Category, error)
	Examples(ctx context.Context) ([]mova.Example, error)
}

// Engine turns conversation events into outcomes. It is safe for concurrent
// use across conversations.
type Engine struct {
	content    ContentReader
	navigation *NavigationStore
	location   *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLocation sets the time zone that defines the calendar day of the daily rule.
func WithLocation(location *time.Location) EngineOption {
	return func(engine *Engine) {
		if location != nil {
			engine.location = location
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(engine *Engine) {
		if now != nil {
			engine.now = now
		}
	}
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(engine *Engine) {
		if logger != nil {
			engine.logger = logger
		}
	}
}

// NewEngine creates an engine over content and navigation.
func NewEngine(content ContentReader, navigation *NavigationStore, options ...EngineOption) (*Engine, error) {
	if content == nil {
		return nil, fmt.Errorf("new engine: nil content reader")
	}
	if navigation == nil {
		return nil, fmt.Errorf("new engine: nil navigation store")
	}

	engine := &Engine{
		content:    content,
		navigation: navigation,
		location:   time.UTC,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, option := range options {
		option(engine)
	}
	engine.logger = engine.logger.With("component", "catalogue.engine")

	return engine, nil
}

// RequestCategories lists every category as a choice whose value is the
// category callback data.
func (e *Engine) RequestCategories(ctx context.Context) (Outcome, error) {
	categories, err := e.content.Categories(ctx)
	if err != nil {
		return e.failure(ctx, "request categories", err)
	}
	if len(categories) == 0 {
		return Outcome{Kind: OutcomeNoCategories}, nil
	}

	choices := make([]Choice, 0, len(categories))
	for _, category := range categories {
		choices = append(choices, Choice{
			Label: category.Title,
			Value: CategoryCallbackData(category.ID),
		})
	}

	return Outcome{Kind: OutcomeCategoryList, Choices: choices}, nil
}

// ChooseCategory replaces the conversation page with the examples of
// categoryID, in upstream order, and lists them by 0-based index. An empty
// category still replaces the page. The page is left untouched on failure.
func (e *Engine) ChooseCategory(ctx context.Context, key ConversationKey, categoryID int64) (Outcome, error) {
	examples, err := e.content.Examples(ctx)
	if err != nil {
		return e.failure(ctx, "choose category", err)
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("choose category: %w", err)
	}

	filtered := make([]mova.Example, 0)
	for _, example := range examples {
		if example.CategoryID == categoryID {
			filtered = append(filtered, example)
		}
	}
	e.navigation.SetPage(key, filtered)

	choices := make([]Choice, 0, len(filtered))
	for index, example := range filtered {
		choices = append(choices, Choice{
			Label: fmt.Sprintf("%d - %s", index, example.Title),
			Value: strconv.Itoa(index),
		})
	}

	return Outcome{Kind: OutcomeExampleList, Choices: choices}, nil
}

// SelectIndex renders the item at index on the conversation page.
func (e *Engine) SelectIndex(key ConversationKey, index int) Outcome {
	example, found := e.navigation.Resolve(key, index)
	if !found {
		return Outcome{Kind: OutcomeNoExamples}
	}

	return Outcome{Kind: OutcomeExample, Item: RenderExample(example)}
}

// DailyRule renders the example of the day. Every caller gets the same
// example for one calendar day and collection.
func (e *Engine) DailyRule(ctx context.Context) (Outcome, error) {
	examples, err := e.content.Examples(ctx)
	if err != nil {
		return e.failure(ctx, "daily rule", err)
	}
	if len(examples) == 0 {
		return Outcome{Kind: OutcomeNoExamples}, nil
	}

	index := DailyIndex(e.now().In(e.location), len(examples))

	return Outcome{Kind: OutcomeExample, Item: RenderExample(examples[index])}, nil
}

// failure maps an unavailable source to the unavailable outcome. Caller
// cancellation and unclassified errors are returned as errors.
func (e *Engine) failure(ctx context.Context, op string, err error) (Outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, fmt.Errorf("%s: %w", op, ctxErr)
	}
	if errors.Is(err, mova.ErrSourceUnavailable) {
		e.logger.WarnContext(ctx, "content source unavailable",
			"op", op,
			"kind", mova.ContentErrorSourceUnavailable,
			"error", err,
		)
		return Outcome{Kind: OutcomeUnavailable}, nil
	}

	return Outcome{}, fmt.Errorf("%s: %w", op, err)
}

// CategoryCallbackData encodes a category id as button callback data.
func CategoryCallbackData(id int64) string {
	return CategoryCallbackPrefix + strconv.FormatInt(id, 10)
}

// ParseCategoryCallback decodes button callback data produced by CategoryCallbackData.
func ParseCategoryCallback(data string) (int64, bool) {
	raw, found := strings.CutPrefix(data, CategoryCallbackPrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}

// ParseSelection parses a typed example number.
func ParseSelection(text string) (int, bool) {
	index, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, false
	}

	return index, true
}
