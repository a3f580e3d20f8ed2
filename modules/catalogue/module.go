// Package catalogue maps bot commands, category button presses and numeric
// replies onto the content engine and renders its outcomes as messages.
package catalogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	catalog "mova-bot/internal/catalogue"
	"mova-bot/internal/upstream"
	"mova-bot/pkg/mova"
)

const (
	categoriesCommandName = "categories"
	dailyRuleCommandName  = "dailyrule"

	defaultSweepInterval = 10 * time.Minute
	defaultWorkers       = 8
)

// Engine is the content engine surface this module drives.
type Engine interface {
	RequestCategories(ctx context.Context) (catalog.Outcome, error)
	ChooseCategory(ctx context.Context, key catalog.ConversationKey, categoryID int64) (catalog.Outcome, error)
	SelectIndex(key catalog.ConversationKey, index int) catalog.Outcome
	DailyRule(ctx context.Context) (catalog.Outcome, error)
}

// Janitor evicts idle navigation pages until its context ends.
type Janitor interface {
	Run(ctx context.Context, interval time.Duration)
}

// Option configures the module.
type Option func(*Module)

// WithImageBaseURL sets the host that example image paths are relative to.
func WithImageBaseURL(base string) Option {
	return func(module *Module) {
		module.imageBaseURL = strings.TrimRight(base, "/")
	}
}

// WithJanitor runs janitor between OnStart and OnShutdown.
func WithJanitor(janitor Janitor, interval time.Duration) Option {
	return func(module *Module) {
		module.janitor = janitor
		if interval > 0 {
			module.sweepInterval = interval
		}
	}
}

// WithWorkers sets how many conversations are served at once.
func WithWorkers(workers int) Option {
	return func(module *Module) {
		if workers > 0 {
			module.workers = workers
		}
	}
}

// WithLogger sets the module logger.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// Module serves the /categories and /dailyrule commands, category buttons and
// example selection by number.
type Module struct {
	engine        Engine
	dispatcher    mova.SinkDispatcher
	imageBaseURL  string
	janitor       Janitor
	sweepInterval time.Duration
	workers       int
	logger        *slog.Logger

	mu          sync.Mutex
	stopJanitor context.CancelFunc
	janitorDone chan struct{}
}

// New creates a catalogue module driving engine.
func New(engine Engine, options ...Option) (*Module, error) {
	if engine == nil {
		return nil, fmt.Errorf("new catalogue module: nil engine")
	}

	module := &Module{
		engine:        engine,
		imageBaseURL:  upstream.DefaultBaseURL,
		sweepInterval: defaultSweepInterval,
		workers:       defaultWorkers,
		logger:        slog.Default(),
	}
	for _, option := range options {
		option(module)
	}

	return module, nil
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "catalogue"
}

// Spec declares one subscription for every catalogue input, ordered per
// conversation so that a category choice and the following number are
// handled in order while other conversations proceed.
func (m *Module) Spec() mova.ModuleSpec {
	return mova.ModuleSpec{
		Handlers: []mova.ModuleHandler{
			{
				Capability: mova.Capability{
					Name:        "catalogue-navigation",
					Description: "browses categories and examples",
					Interest: mova.InterestSet{
						Kinds: []mova.EventKind{
							mova.EventKindCommandReceived,
							mova.EventKindCallbackReceived,
							mova.EventKindMessageCreated,
						},
					},
					RequiredServices: []string{mova.ServiceSinkDispatcher},
				},
				Subscription: mova.SubscriptionSpec{
					Name:    "catalogue-events",
					Workers: m.workers,
					Ordered: true,
				},
				Handler: m.handleEvent,
			},
		},
		Commands: []mova.CommandSpec{
			{Name: categoriesCommandName, Description: "browse rule categories"},
			{Name: dailyRuleCommandName, Description: "show the rule of the day"},
		},
	}
}

// OnRegister resolves the outbound dispatcher.
func (m *Module) OnRegister(_ context.Context, runtime mova.ModuleRuntime) error {
	dispatcher, err := mova.ResolveAs[mova.SinkDispatcher](runtime.Services(), mova.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("catalogue resolve outbound dispatcher: %w", err)
	}
	m.dispatcher = dispatcher

	return nil
}

// OnStart launches the navigation janitor when one is configured.
func (m *Module) OnStart(_ context.Context) error {
	if m.janitor == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopJanitor != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.stopJanitor = cancel
	m.janitorDone = done
	go func() {
		defer close(done)
		m.janitor.Run(ctx, m.sweepInterval)
	}()

	return nil
}

// OnShutdown stops the janitor and waits for it to exit.
func (m *Module) OnShutdown(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.stopJanitor, m.janitorDone
	m.stopJanitor, m.janitorDone = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("catalogue stop janitor: %w", ctx.Err())
	}
}

func (m *Module) handleEvent(ctx context.Context, event *mova.Event) error {
	if event == nil {
		return nil
	}
	if m.dispatcher == nil {
		return fmt.Errorf("catalogue handle %s: outbound dispatcher not configured", event.Kind)
	}

	switch event.Kind {
	case mova.EventKindCommandReceived:
		return m.handleCommand(ctx, event)
	case mova.EventKindCallbackReceived:
		return m.handleCallback(ctx, event)
	case mova.EventKindMessageCreated:
		return m.handleSelection(ctx, event)
	default:
		return nil
	}
}

func (m *Module) handleCommand(ctx context.Context, event *mova.Event) error {
	if event.Command == nil {
		return nil
	}

	var (
		outcome catalog.Outcome
		err     error
	)
	switch event.Command.Name {
	case categoriesCommandName:
		outcome, err = m.engine.RequestCategories(ctx)
	case dailyRuleCommandName:
		outcome, err = m.engine.DailyRule(ctx)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("catalogue %s: %w", event.Command.Name, err)
	}

	return m.deliver(ctx, event, outcome)
}

func (m *Module) handleCallback(ctx context.Context, event *mova.Event) error {
	if event.Callback == nil {
		return nil
	}
	categoryID, ok := catalog.ParseCategoryCallback(event.Callback.Data)
	if !ok {
		return nil
	}
	target, err := mova.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("catalogue derive outbound target: %w", err)
	}

	if err := m.dispatcher.AnswerCallback(ctx, mova.AnswerCallbackRequest{
		Target:  target,
		QueryID: event.Callback.QueryID,
	}); err != nil {
		m.logger.WarnContext(ctx, "answer callback failed",
			"module", m.Name(),
			"conversation", event.Conversation.ID,
			"error", err,
		)
	}

	outcome, err := m.engine.ChooseCategory(ctx, catalog.ConversationKeyFromEvent(event), categoryID)
	if err != nil {
		return fmt.Errorf("catalogue choose category %d: %w", categoryID, err)
	}
	if err := m.deliver(ctx, event, outcome); err != nil {
		return err
	}

	if event.Callback.MessageID == "" {
		return nil
	}
	if err := m.dispatcher.ClearKeyboard(ctx, mova.ClearKeyboardRequest{
		Target:    target,
		MessageID: event.Callback.MessageID,
	}); err != nil {
		return fmt.Errorf("catalogue clear keyboard: %w", err)
	}

	return nil
}

func (m *Module) handleSelection(ctx context.Context, event *mova.Event) error {
	if event.Message == nil {
		return nil
	}
	index, ok := catalog.ParseSelection(event.Message.Text)
	if !ok {
		return nil
	}

	return m.deliver(ctx, event, m.engine.SelectIndex(catalog.ConversationKeyFromEvent(event), index))
}

func (m *Module) deliver(ctx context.Context, event *mova.Event, outcome catalog.Outcome) error {
	target, err := mova.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("catalogue derive outbound target: %w", err)
	}

	var rejectedImage string
	if outcome.Kind == catalog.OutcomeExample && outcome.Item.Image != "" {
		imageURL := m.imageURL(outcome.Item.Image)
		_, err := m.dispatcher.SendPhoto(ctx, mova.SendPhotoRequest{
			Target:  target,
			URL:     imageURL,
			Caption: itemText(outcome.Item),
		})
		if err == nil {
			return nil
		}
		if !mova.IsOutboundMediaRejected(err) {
			return fmt.Errorf("catalogue send example photo: %w", err)
		}
		// Fall back to the text rendering below, with the image as a link.
		rejectedImage = imageURL
		m.logger.WarnContext(ctx, "example image rejected, sending text with link",
			"module", m.Name(),
			"url", imageURL,
			"error", err,
		)
	}

	request, ok := renderOutcome(outcome)
	if !ok {
		return fmt.Errorf("catalogue render outcome: unknown kind %q", outcome.Kind)
	}
	request.Target = target
	if rejectedImage != "" {
		request.Text += "\n" + rejectedImage
	}
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("catalogue send %s: %w", outcome.Kind, err)
	}

	return nil
}

func (m *Module) imageURL(image string) string {
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return image
	}

	return m.imageBaseURL + "/" + strings.TrimLeft(image, "/")
}

var (
	_ mova.Module          = (*Module)(nil)
	_ mova.ModuleRegistrar = (*Module)(nil)
)
