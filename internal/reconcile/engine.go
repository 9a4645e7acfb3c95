// Package reconcile computes and applies the create, edit and delete plan
// that makes a channel mirror the current feed entries.
package reconcile

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"feedmirror/internal/render"
	"feedmirror/internal/signature"
	"feedmirror/internal/types"
)

// Messenger is the messaging platform as seen by the engine. FetchMessage
// returns an error matching types.ErrNotFound when the message is gone.
type Messenger interface {
	SendMessage(ctx context.Context, channelID string, msg render.Message) (string, error)
	FetchMessage(ctx context.Context, channelID, messageID string) error
	EditMessage(ctx context.Context, channelID, messageID string, msg render.Message) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

type Outcome int

const (
	Found Outcome = iota
	Missing
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Missing:
		return "missing"
	default:
		return "failed"
	}
}

// Metrics counts what one pass did.
type Metrics struct {
	Created    int
	Updated    int
	Unchanged  int
	Deleted    int
	Dropped    int
	Failed     int
	Duplicates int
}

func (m Metrics) Changed() bool {
	return m.Created+m.Updated+m.Deleted+m.Dropped > 0
}

type Engine struct {
	messenger Messenger
	logger    *zap.Logger
}

func NewEngine(messenger Messenger, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{messenger: messenger, logger: logger}
}

// Reconcile makes channelID match entries, starting from the prior
// mapping, and returns the mapping to persist. prior is never modified.
// Failures on one key never abort the pass: a failed send is retried on
// the next pass, a failed edit drops the entry so it is recreated next
// pass, and stale keys are always dropped.
func (e *Engine) Reconcile(ctx context.Context, channelID string, entries []Entry, prior types.Mapping) (types.Mapping, Metrics) {
	var metrics Metrics
	next := make(types.Mapping, len(entries))
	active := make(map[string]struct{}, len(entries))
	log := e.logger.With(zap.String("channel_id", channelID))

	for _, entry := range entries {
		if _, seen := active[entry.Key]; seen {
			metrics.Duplicates++
			log.Debug("duplicate key in feed, keeping first", zap.String("key", entry.Key))
			continue
		}
		active[entry.Key] = struct{}{}

		sig := signature.Compute(entry.Message.Content, entry.Message.ImageURL)
		tracked, ok := prior[entry.Key]

		switch {
		case !ok:
			messageID, err := e.messenger.SendMessage(ctx, channelID, entry.Message)
			if err != nil {
				metrics.Failed++
				log.Warn("send failed", zap.String("key", entry.Key),
					zap.Error(&types.PlatformError{Op: "send", Key: entry.Key, Err: err}))
				continue
			}
			next[entry.Key] = types.TrackedMessage{MessageID: messageID, Signature: sig}
			metrics.Created++

		case tracked.Signature == sig:
			next[entry.Key] = tracked
			metrics.Unchanged++

		default:
			if err := e.update(ctx, channelID, tracked.MessageID, entry); err != nil {
				metrics.Dropped++
				log.Info("edit failed, entry dropped", zap.String("key", entry.Key), zap.Error(err))
				continue
			}
			next[entry.Key] = types.TrackedMessage{MessageID: tracked.MessageID, Signature: sig}
			metrics.Updated++
		}
	}

	for _, key := range prior.Keys() {
		if _, ok := active[key]; ok {
			continue
		}
		outcome := e.TryDelete(ctx, channelID, prior[key].MessageID)
		if outcome == Failed {
			log.Warn("stale message could not be deleted", zap.String("key", key))
		}
		metrics.Deleted++
	}

	return next, metrics
}

func (e *Engine) update(ctx context.Context, channelID, messageID string, entry Entry) error {
	if outcome := e.TryFetch(ctx, channelID, messageID); outcome != Found {
		return &types.PlatformError{Op: "fetch", Key: entry.Key, Err: errors.New(outcome.String())}
	}
	if err := e.messenger.EditMessage(ctx, channelID, messageID, entry.Message); err != nil {
		return &types.PlatformError{Op: "edit", Key: entry.Key, Err: err}
	}
	return nil
}

// TryFetch reports whether a tracked message still exists.
func (e *Engine) TryFetch(ctx context.Context, channelID, messageID string) Outcome {
	if messageID == "" {
		return Missing
	}
	err := e.messenger.FetchMessage(ctx, channelID, messageID)
	switch {
	case err == nil:
		return Found
	case errors.Is(err, types.ErrNotFound):
		return Missing
	default:
		e.logger.Debug("fetch failed", zap.String("channel_id", channelID),
			zap.String("message_id", messageID), zap.Error(err))
		return Failed
	}
}

// TryDelete removes a message if it still exists. Missing messages count
// as deleted.
func (e *Engine) TryDelete(ctx context.Context, channelID, messageID string) Outcome {
	outcome := e.TryFetch(ctx, channelID, messageID)
	if outcome != Found {
		return outcome
	}
	if err := e.messenger.DeleteMessage(ctx, channelID, messageID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return Missing
		}
		e.logger.Debug("delete failed", zap.String("channel_id", channelID),
			zap.String("message_id", messageID), zap.Error(err))
		return Failed
	}
	return Found
}
