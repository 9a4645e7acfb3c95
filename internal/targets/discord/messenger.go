// Package discord adapts a discordgo session to the reconciliation
// engine's messaging operations.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"feedmirror/internal/clock"
	"feedmirror/internal/render"
	"feedmirror/internal/types"
)

// Session is the subset of *discordgo.Session the messenger uses.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

type Options struct {
	// Rate and Burst pace outgoing calls, in calls per second.
	Rate  float64
	Burst int
	// Sleep is waited after every successful send.
	Sleep  time.Duration
	Clock  clock.Clock
	Logger *zap.Logger
}

type Messenger struct {
	session Session
	limiter *rate.Limiter
	sleep   time.Duration
	clock   clock.Clock
	logger  *zap.Logger
}

func NewMessenger(session Session, opts Options) *Messenger {
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Messenger{
		session: session,
		limiter: rate.NewLimiter(limit, opts.Burst),
		sleep:   opts.Sleep,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
}

// Platform calls already started are not interrupted by shutdown.
func (m *Messenger) begin(ctx context.Context) (context.Context, error) {
	ctx = context.WithoutCancel(ctx)
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

func embeds(msg render.Message) []*discordgo.MessageEmbed {
	if msg.ImageURL == "" {
		return []*discordgo.MessageEmbed{}
	}
	return []*discordgo.MessageEmbed{{Image: &discordgo.MessageEmbedImage{URL: msg.ImageURL}}}
}

func (m *Messenger) SendMessage(ctx context.Context, channelID string, msg render.Message) (string, error) {
	ctx, err := m.begin(ctx)
	if err != nil {
		return "", err
	}

	sent, err := m.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: msg.Content,
		Embeds:  embeds(msg),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", classify(err))
	}

	m.logger.Debug("message sent", zap.String("channel_id", channelID), zap.String("message_id", sent.ID))
	if m.sleep > 0 {
		_ = m.clock.Sleep(ctx, m.sleep)
	}
	return sent.ID, nil
}

func (m *Messenger) FetchMessage(ctx context.Context, channelID, messageID string) error {
	ctx, err := m.begin(ctx)
	if err != nil {
		return err
	}
	if _, err := m.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to fetch message %s: %w", messageID, classify(err))
	}
	return nil
}

func (m *Messenger) EditMessage(ctx context.Context, channelID, messageID string, msg render.Message) error {
	ctx, err := m.begin(ctx)
	if err != nil {
		return err
	}

	edit := discordgo.NewMessageEdit(channelID, messageID).
		SetContent(msg.Content).
		SetEmbeds(embeds(msg))
	if _, err := m.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to edit message %s: %w", messageID, classify(err))
	}
	return nil
}

func (m *Messenger) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	ctx, err := m.begin(ctx)
	if err != nil {
		return err
	}
	if err := m.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID, classify(err))
	}
	return nil
}

type notFoundError struct {
	err error
}

func (e *notFoundError) Error() string { return e.err.Error() }
func (e *notFoundError) Unwrap() []error {
	return []error{types.ErrNotFound, e.err}
}

// classify marks REST errors for missing messages or channels so callers
// can match them with types.ErrNotFound.
func classify(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return &notFoundError{err: err}
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return &notFoundError{err: err}
		}
	}
	return err
}
