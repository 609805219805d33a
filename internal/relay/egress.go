package relay

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/cheese-uci/pkg/enginedto"
)

// Publisher delivers game events to remote listeners.
type Publisher interface {
	Publish(ctx context.Context, ev enginedto.Event) error
}

// NewPublisher picks the transport for events. "ws" uses only the feed, "http"
// only the webhook, and "auto" prefers a connected feed with one fallback to
// the webhook. A nil transport is skipped.
func NewPublisher(mode string, c *Client, feed *Feed, logger *zap.Logger) Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case mode == "ws" && feed != nil:
		return feed
	case mode == "http" && c != nil:
		return c
	case c != nil && feed != nil:
		return &autoPublisher{feed: feed, http: c, logger: logger}
	case c != nil:
		return c
	case feed != nil:
		return feed
	default:
		return nopPublisher{}
	}
}

type autoPublisher struct {
	feed   *Feed
	http   *Client
	logger *zap.Logger
}

func (a *autoPublisher) Publish(ctx context.Context, ev enginedto.Event) error {
	if a.feed.State() == FeedConnected {
		err := a.feed.Publish(ctx, ev)
		if err == nil {
			return nil
		}
		a.logger.Warn("relay_fallback", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
	return a.http.Publish(ctx, ev)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, enginedto.Event) error { return nil }

// Multi publishes to every p in order and joins their errors.
func Multi(ps ...Publisher) Publisher {
	return multiPublisher(ps)
}

type multiPublisher []Publisher

func (m multiPublisher) Publish(ctx context.Context, ev enginedto.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
