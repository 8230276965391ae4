// Package mentionflow orchestrates one app_mention end to end: thread
// resolution, allowlist derivation, the backend answer call, response
// shaping, and conversation-state bookkeeping.
package mentionflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grestlabs/racenbot/allowlist"
	"github.com/grestlabs/racenbot/answer"
	"github.com/grestlabs/racenbot/convo"
	"github.com/grestlabs/racenbot/reply"
)

const (
	answerK       = 18
	notFoundText  = "Info not found"
	thinkingText  = "Thinking…"
	genericErrMsg = "Error handling that message."
)

var mentionTokenRe = regexp.MustCompile(`<@[^>]+>`)

// Messenger is the slice of the Slack client the flow needs.
type Messenger interface {
	PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error)
	UpdateMessage(ctx context.Context, channelID, ts, text string) error
}

// Answerer asks the backend for a grounded answer.
type Answerer interface {
	Answer(ctx context.Context, req answer.AnswerRequest) (answer.AnswerResponse, error)
}

type Mention struct {
	ChannelID string
	UserID    string
	MessageTS string
	ThreadTS  string
	Text      string
}

type Runtime struct {
	Store     *convo.Store
	Resolver  *allowlist.Resolver
	Answerer  Answerer
	Messenger Messenger
	Shaper    *reply.Shaper
	Logger    *slog.Logger

	Preset       string
	Override     string
	ShowThinking bool

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

// HandleMention answers a mention. Every failure is converted to
// user-facing text here; nothing propagates to the socket loop.
func (r *Runtime) HandleMention(ctx context.Context, m Mention) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", "sess_"+uuid.NewString(), "channel_id", m.ChannelID, "user_id", m.UserID)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("mention_panic", "panic", fmt.Sprint(rec))
			if _, err := r.Messenger.PostMessage(ctx, m.ChannelID, genericErrMsg, strings.TrimSpace(m.ThreadTS)); err != nil {
				logger.Warn("mention_error_post_failed", "error", err.Error())
			}
		}
	}()

	now := r.now()
	question := strings.TrimSpace(mentionTokenRe.ReplaceAllString(m.Text, ""))
	threadID := r.Store.ResolveThreadID(m.ChannelID, m.UserID, m.ThreadTS, m.MessageTS, now)
	scope := r.Resolver.Resolve(r.Preset, r.Override, m.Text)

	var thinkingTS string
	if r.ShowThinking {
		ts, err := r.Messenger.PostMessage(ctx, m.ChannelID, thinkingText, threadID)
		if err != nil {
			logger.Warn("mention_thinking_post_failed", "error", err.Error())
		} else {
			thinkingTS = ts
		}
	}

	resp, err := r.Answerer.Answer(ctx, answer.AnswerRequest{
		Question:       question,
		Allowlist:      scope,
		K:              answerK,
		Short:          true,
		PreviousAnswer: r.Store.LastAnswer(threadID),
		PreviousUser:   question,
	})
	if err != nil {
		// Backend down or gibberish: tell the user, store nothing.
		logger.Warn("mention_answer_failed", "thread_id", threadID, "error", err.Error())
		r.deliver(ctx, logger, m.ChannelID, threadID, thinkingTS, notFoundText)
		return
	}

	answerText := resp.Answer
	if strings.TrimSpace(answerText) == "" {
		answerText = notFoundText
	}
	ribbon := answer.Ribbon(resp.Ribbon)

	escalate := false
	if reply.IsFallback(answerText, ribbon) {
		count, escalatedNow := r.Store.RecordFallback(threadID)
		escalate = escalatedNow
		logger.Debug("mention_fallback", "thread_id", threadID, "count", count, "escalate", escalatedNow)
	} else {
		r.Store.ResetFallbacks(threadID)
	}

	text := r.Shaper.Shape(reply.Input{
		Answer:    answerText,
		Citations: resp.Citations,
		Ribbon:    ribbon,
		Escalate:  escalate,
	})
	r.deliver(ctx, logger, m.ChannelID, threadID, thinkingTS, text)

	// The raw (pre-shaping) answer is what goes back to the backend as
	// previous_answer on the next turn.
	r.Store.RememberAnswer(threadID, answerText)
	r.Store.TouchThread(m.ChannelID, m.UserID, threadID, now)
	logger.Info("mention_answered", "thread_id", threadID, "allowlist", scope, "citations", len(resp.Citations))
}

func (r *Runtime) deliver(ctx context.Context, logger *slog.Logger, channelID, threadID, thinkingTS, text string) {
	if thinkingTS != "" {
		if err := r.Messenger.UpdateMessage(ctx, channelID, thinkingTS, text); err != nil {
			logger.Warn("mention_update_failed", "error", err.Error())
		}
		return
	}
	if _, err := r.Messenger.PostMessage(ctx, channelID, text, threadID); err != nil {
		logger.Warn("mention_post_failed", "error", err.Error())
	}
}

func (r *Runtime) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
