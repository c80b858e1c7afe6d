package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/eduadmin/portal/internal/ports"
)

var _ ports.ChangeNotifier = (*Notifier)(nil)

const defaultChannel = "eduadmin:session:changes"

// NotifierOptions configures a Notifier.
type NotifierOptions struct {
	Channel string
	// Origin identifies this instance; events carrying it are not delivered back.
	Origin string
	Logger *slog.Logger
}

// Notifier broadcasts session change events over Redis pub/sub.
type Notifier struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  *slog.Logger
}

// NewNotifier creates a pub/sub notifier.
func NewNotifier(client redis.UniversalClient, opts NotifierOptions) *Notifier {
	channel := opts.Channel
	if channel == "" {
		channel = defaultChannel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:  client,
		channel: channel,
		origin:  opts.Origin,
		logger:  logger.With("component", "redis_notifier"),
	}
}

// Publish sends ev. An empty Origin is filled with this instance's ID.
func (n *Notifier) Publish(ctx context.Context, ev ports.ChangeEvent) error {
	if ev.Origin == "" {
		ev.Origin = n.origin
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Listen subscribes to the channel and delivers events from other instances until ctx is done.
func (n *Notifier) Listen(ctx context.Context, fn func(ports.ChangeEvent)) error {
	sub := n.client.Subscribe(ctx, n.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			n.logger.DebugContext(ctx, "close subscription", "error", err)
		}
	}()

	// Wait for the subscription to be confirmed so no event published after Listen starts is lost.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe: %w", err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev ports.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				n.logger.WarnContext(ctx, "dropping malformed change event", "error", err)
				continue
			}
			if ev.Origin == n.origin {
				continue
			}
			fn(ev)
		}
	}
}
