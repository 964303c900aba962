package channels

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/declwidgets/declwidgets/internal/serialize"
	"github.com/declwidgets/declwidgets/internal/store"
)

// Ack statuses reported back for change notifications
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// EventChange tags a change notification from the front end
const EventChange = "change"

// Sender delivers state updates to connected front ends
type Sender interface {
	SendUpdate(ctx context.Context, state map[string]any) error
}

// SenderFunc adapts a function to the Sender interface
type SenderFunc func(ctx context.Context, state map[string]any) error

// SendUpdate calls f
func (f SenderFunc) SendUpdate(ctx context.Context, state map[string]any) error {
	return f(ctx, state)
}

// Message is an inbound event from the front end
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Change is the payload of a change notification
type Change struct {
	Channel string `json:"channel"`
	Name    string `json:"name"`
	OldVal  any    `json:"old_val"`
	NewVal  any    `json:"new_val"`
}

// Ack acknowledges the handling of an inbound message
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Registry is the live connection between channels and the front end
type Registry struct {
	sender     Sender
	serializer *serialize.Serializer
	store      store.Store
	watchers   *watcherTable
	limit      int
	logger     *zap.Logger
}

func newRegistry(sender Sender, watchers *watcherTable, cfg *config) *Registry {
	return &Registry{
		sender:     sender,
		serializer: cfg.serializer,
		store:      cfg.store,
		watchers:   watchers,
		limit:      cfg.limit,
		logger:     cfg.logger,
	}
}

// Set serializes value and publishes it as "channel:key". Failures are logged.
func (r *Registry) Set(ctx context.Context, channel, key string, value any, opts ...serialize.Option) {
	attr := store.Key(channel, key)
	logger := r.logger.With(zap.String("channel", channel), zap.String("key", key))

	options := append([]serialize.Option{serialize.WithLimit(r.limit)}, opts...)
	serialized, err := r.serializer.Serialize(value, options...)
	if err != nil {
		logger.Error("failed to serialize channel value", zap.Error(err))
		return
	}

	if r.store != nil {
		if encoded, err := json.Marshal(serialized); err != nil {
			logger.Warn("failed to encode channel value for store", zap.Error(err))
		} else if err := r.store.Put(ctx, attr, encoded); err != nil {
			logger.Warn("failed to record channel value", zap.Error(err))
		}
	}

	if err := r.sender.SendUpdate(ctx, map[string]any{attr: serialized}); err != nil {
		logger.Error("failed to send channel update", zap.Error(err))
		return
	}
	logger.Debug("channel value published")
}

// Watch registers handler for (channel, key), replacing any earlier handler
func (r *Registry) Watch(channel, key string, handler Handler) {
	r.watchers.set(channel, key, handler)
}

// HandleMessage dispatches an inbound message. Only change notifications are
// acted on; everything else is acknowledged and ignored.
func (r *Registry) HandleMessage(ctx context.Context, msg Message) Ack {
	if msg.Event != EventChange {
		return Ack{Status: StatusOK}
	}

	var change Change
	if err := json.Unmarshal(msg.Data, &change); err != nil {
		r.logger.Warn("malformed change notification", zap.Error(err))
		return Ack{Status: StatusError, Message: fmt.Sprintf("malformed change notification: %v", err)}
	}

	return r.HandleChange(ctx, change)
}

// HandleChange invokes the watch handler for the changed variable, if any.
// Handler errors and panics are reported in the returned Ack.
func (r *Registry) HandleChange(_ context.Context, change Change) Ack {
	handler, ok := r.watchers.lookup(change.Channel, change.Name)
	if !ok {
		return Ack{Status: StatusOK}
	}

	if err := invoke(handler, change.OldVal, change.NewVal); err != nil {
		r.logger.Error("watch handler failed",
			zap.String("channel", change.Channel),
			zap.String("key", change.Name),
			zap.Error(err),
		)
		return Ack{Status: StatusError, Message: err.Error()}
	}
	return Ack{Status: StatusOK}
}

func invoke(handler Handler, oldVal, newVal any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("watch handler panic: %v", rec)
		}
	}()
	return handler(oldVal, newVal)
}

// Snapshot returns the last recorded value of every published variable,
// keyed by "channel:key". It is empty when no store is configured.
func (r *Registry) Snapshot(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any)
	if r.store == nil {
		return out, nil
	}

	raw, err := r.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read channel state: %w", err)
	}

	for attr, data := range raw {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode channel state %s: %w", attr, err)
		}
		out[attr] = v
	}
	return out, nil
}
