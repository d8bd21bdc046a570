package history

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
)

// Notifier receives history events.
type Notifier interface {
	Post(ctx context.Context, entry model.HistoryLog) error
}

// Inserter stores history entries. store.Store satisfies it.
type Inserter interface {
	InsertHistory(ctx context.Context, entry *model.HistoryLog) error
}

// StoreSink writes history events to the local run store.
type StoreSink struct {
	store Inserter
}

// NewStoreSink wraps s as a Notifier.
func NewStoreSink(s Inserter) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) Post(ctx context.Context, entry model.HistoryLog) error {
	return eris.Wrap(s.store.InsertHistory(ctx, &entry), "history: store entry")
}

// Multi fans an event out to every notifier. All notifiers are tried; their
// errors are joined.
type Multi []Notifier

func (m Multi) Post(ctx context.Context, entry model.HistoryLog) error {
	var errs []error
	for _, n := range m {
		if err := n.Post(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
