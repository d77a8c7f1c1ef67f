package alert

import (
	"context"

	"github.com/google/uuid"

	"github.com/rewired-gh/gapwatch/internal/logger"
	"github.com/rewired-gh/gapwatch/internal/models"
)

// Notifier delivers formatted text to the end-user channel.
type Notifier interface {
	Deliver(ctx context.Context, text string) error
}

// NewsSource renders a short headline block for a symbol. It never fails;
// errors are folded into the returned text.
type NewsSource interface {
	Summary(ctx context.Context, symbol string) string
}

// Journal records every dispatched alert.
type Journal interface {
	AddAlert(rec models.AlertRecord) error
}

// Dispatcher is the Emitter used by the real-time components. Emit only
// enqueues; Run formats, attaches news, delivers and journals.
type Dispatcher struct {
	notifier Notifier
	news     NewsSource
	journal  Journal
	queue    chan Alert
}

// NewDispatcher creates a dispatcher with a bounded outbox. news and journal may be nil.
func NewDispatcher(notifier Notifier, news NewsSource, journal Journal, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		notifier: notifier,
		news:     news,
		journal:  journal,
		queue:    make(chan Alert, queueSize),
	}
}

// Emit enqueues a without blocking. A full outbox drops the alert.
func (d *Dispatcher) Emit(ctx context.Context, a Alert) {
	select {
	case d.queue <- a:
	case <-ctx.Done():
	default:
		logger.Warn("Alert outbox full, dropping %s alert for %s", a.Kind, a.Symbol)
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-d.queue:
			d.dispatch(ctx, a)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, a Alert) {
	news := ""
	if d.news != nil {
		news = d.news.Summary(ctx, a.Symbol)
	}
	text := Format(a, news)

	delivered := true
	if err := d.notifier.Deliver(ctx, text); err != nil {
		delivered = false
		logger.Error("Failed to deliver %s alert for %s: %v", a.Kind, a.Symbol, err)
	} else {
		logger.Info("Sent %s alert for %s at $%.2f", a.Kind, a.Symbol, a.Price)
	}

	if d.journal == nil {
		return
	}
	rec := models.AlertRecord{
		ID:        uuid.NewString(),
		Symbol:    a.Symbol,
		Kind:      string(a.Kind),
		Text:      text,
		Delivered: delivered,
		CreatedAt: a.At,
	}
	if err := d.journal.AddAlert(rec); err != nil {
		logger.Warn("Failed to journal alert %s: %v", rec.ID, err)
	}
}

// LogNotifier writes alerts to the log instead of a chat. Used when no
// delivery channel is configured.
type LogNotifier struct{}

func (LogNotifier) Deliver(_ context.Context, text string) error {
	logger.Info("Alert:\n%s", text)
	return nil
}
