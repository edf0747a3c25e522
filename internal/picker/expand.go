package picker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"carousel/internal/catalog"
	"carousel/internal/lifecycle"
	"carousel/internal/logging"
	"carousel/internal/services"
)

// ItemLister lists the remote picker's selections for one picker session.
// Satisfied by *Client.
type ItemLister interface {
	SessionItems(ctx context.Context, pickerSessionID string) ([]Item, error)
}

// Enqueuer pushes a claim-eligible notification for one selection to the
// external task queue. Best effort: failures are logged and the selection
// still reaches the workers through their store polling.
type Enqueuer interface {
	Publish(ctx context.Context, sel *catalog.Selection) error
}

// Expander turns a pending picker session into enqueued selections.
type Expander struct {
	store    *catalog.Store
	client   ItemLister
	logger   *slog.Logger
	enqueuer Enqueuer
}

// NewExpander builds an expander. enqueuer may be nil.
func NewExpander(store *catalog.Store, client ItemLister, logger *slog.Logger, enqueuer Enqueuer) *Expander {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Expander{
		store:    store,
		client:   client,
		logger:   logger.With(logging.String(logging.FieldComponent, "picker")),
		enqueuer: enqueuer,
	}
}

// Expand pulls the picker's item list for the session, inserts the
// selections, and moves the session to enqueued. A picker failure parks the
// session in error with the reason on record; the operator retries via
// session retry once the picker recovers.
func (e *Expander) Expand(ctx context.Context, session *catalog.Session) ([]*catalog.Selection, error) {
	if session == nil {
		return nil, services.Wrap(services.ErrValidation, "picker", "expand", "session is required", nil)
	}
	if session.Provider != catalog.ProviderPicker {
		return nil, services.Wrap(services.ErrValidation, "picker", "expand",
			fmt.Sprintf("session %d has provider %s", session.ID, session.Provider), nil)
	}
	ctx = services.WithSessionID(ctx, session.ID)
	logger := logging.WithContext(ctx, e.logger)

	if err := e.transition(ctx, session.ID, session.Status, catalog.SessionExpanding, "picker expansion started"); err != nil {
		return nil, err
	}

	items, err := e.client.SessionItems(ctx, session.PickerSessionID)
	if err != nil {
		e.park(ctx, logger, session.ID, fmt.Sprintf("list picker items: %v", err))
		return nil, err
	}
	if len(items) == 0 {
		e.park(ctx, logger, session.ID, "picker returned no items")
		return nil, services.Wrap(services.ErrValidation, "picker", "expand", "picker returned no items", nil)
	}

	specs := make([]catalog.SelectionSpec, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		specs = append(specs, catalog.SelectionSpec{
			SourceRef: id,
			FileName:  item.FileName,
			MimeType:  item.MimeType,
			ByteSize:  item.ByteSize,
		})
	}
	if len(specs) == 0 {
		e.park(ctx, logger, session.ID, "picker items carried no usable ids")
		return nil, services.Wrap(services.ErrValidation, "picker", "expand", "picker items carried no usable ids", nil)
	}

	selections, err := e.store.AddSelections(ctx, session.ID, specs)
	if err != nil {
		e.park(ctx, logger, session.ID, fmt.Sprintf("insert selections: %v", err))
		return nil, err
	}

	if err := e.transition(ctx, session.ID, catalog.SessionExpanding, catalog.SessionEnqueued, "selections enqueued"); err != nil {
		return selections, err
	}
	logger.Info("session expanded",
		logging.Int("selection_count", len(selections)),
		logging.String(logging.FieldEventType, "session_expanded"),
	)

	if e.enqueuer != nil {
		for _, sel := range selections {
			if err := e.enqueuer.Publish(ctx, sel); err != nil {
				logger.Warn("enqueue publish failed",
					logging.Error(err),
					logging.Int64(logging.FieldItemID, sel.ID),
					logging.String(logging.FieldEventType, "enqueue_publish_failed"),
				)
			}
		}
	}
	return selections, nil
}

func (e *Expander) transition(ctx context.Context, id int64, from, to catalog.SessionStatus, reason string) error {
	rec, err := lifecycle.TransitionSession(id, from, to, reason)
	if err != nil {
		return err
	}
	moved, err := e.store.TransitionSession(ctx, id, from, to, "")
	if err != nil {
		return err
	}
	if !moved {
		return services.Wrap(services.ErrValidation, "picker", "expand",
			fmt.Sprintf("session %d left %s before expansion could proceed", id, from), nil)
	}
	if err := e.store.RecordTransition(ctx, rec); err != nil {
		e.logger.Debug("failed to record transition", logging.Error(err))
	}
	return nil
}

// park moves the session to error after a failed expansion, best effort.
func (e *Expander) park(ctx context.Context, logger *slog.Logger, id int64, reason string) {
	moved, err := e.store.TransitionSession(ctx, id, catalog.SessionExpanding, catalog.SessionError, reason)
	if err != nil || !moved {
		logger.Warn("failed to park session after expansion failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "expand_park_failed"),
		)
		return
	}
	if rec, recErr := lifecycle.TransitionSession(id, catalog.SessionExpanding, catalog.SessionError, reason); recErr == nil {
		if err := e.store.RecordTransition(ctx, rec); err != nil {
			logger.Debug("failed to record transition", logging.Error(err))
		}
	}
	logger.Warn("session expansion failed",
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "session_expand_failed"),
	)
}
