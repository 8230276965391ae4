// Package adminflow handles the two admin shortcuts: URL ingestion and
// the iPhone specs sync. Both open a modal, then report back to the
// requesting user over DM.
package adminflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/grestlabs/racenbot/answer"
	"github.com/grestlabs/racenbot/ingest"
	"github.com/grestlabs/racenbot/internal/slackclient"
)

const (
	CallbackIngestShortcut = "racen_ingest_url"
	CallbackIngestSubmit   = "racen_ingest_url_submit"
	CallbackSyncShortcut   = "racen_sync_iphone_specs"
	CallbackSyncSubmit     = "racen_sync_iphone_specs_submit"
)

const notAuthorizedText = "You are not authorized to ingest URLs. Please contact an admin if you need access."

const ingestModalView = `{
	"type": "modal",
	"callback_id": "racen_ingest_url_submit",
	"title": {"type": "plain_text", "text": "Ingest URL"},
	"submit": {"type": "plain_text", "text": "Ingest"},
	"close": {"type": "plain_text", "text": "Cancel"},
	"blocks": [
		{
			"type": "input",
			"block_id": "url_block",
			"label": {"type": "plain_text", "text": "grest.in URL"},
			"element": {
				"type": "plain_text_input",
				"action_id": "url_value",
				"placeholder": {"type": "plain_text", "text": "https://grest.in/products/..."}
			}
		}
	]
}`

const syncModalView = `{
	"type": "modal",
	"callback_id": "racen_sync_iphone_specs_submit",
	"title": {"type": "plain_text", "text": "Sync iPhone Specs"},
	"submit": {"type": "plain_text", "text": "Sync"},
	"close": {"type": "plain_text", "text": "Cancel"},
	"blocks": [
		{
			"type": "section",
			"text": {
				"type": "mrkdwn",
				"text": "This will sync the latest iPhone prices and specs from the Google Sheet into RACEN's database.\n\nUse this after you update the sheet."
			}
		}
	]
}`

// SlackAPI is the slice of the Slack client the flows need.
type SlackAPI interface {
	OpenView(ctx context.Context, triggerID string, view json.RawMessage) error
	OpenConversation(ctx context.Context, userID string) (string, error)
	PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error)
	UpdateMessage(ctx context.Context, channelID, ts, text string) error
}

// Backend is the slice of the answer client the flows need.
type Backend interface {
	EnqueueIngest(ctx context.Context, target, requestedBy string) (string, error)
	SyncPhoneSpecs(ctx context.Context) (answer.SyncResult, error)
}

type Flow struct {
	Slack      SlackAPI
	Backend    Backend
	Poller     *ingest.Poller
	Logger     *slog.Logger
	SiteDomain string

	// Background outlives per-envelope contexts; the ingest poller runs
	// on it so a finished event dispatch does not kill the job updates.
	// Nil means context.Background().
	Background context.Context
}

// HandleInteraction dispatches one shortcut or modal submission.
// Unknown callback ids return false so the caller can log them.
func (f *Flow) HandleInteraction(ctx context.Context, in slackclient.Interaction) bool {
	switch in.Kind {
	case slackclient.InteractionShortcut:
		switch in.CallbackID {
		case CallbackIngestShortcut:
			f.openModal(ctx, in.TriggerID, ingestModalView)
			return true
		case CallbackSyncShortcut:
			f.openModal(ctx, in.TriggerID, syncModalView)
			return true
		}
	case slackclient.InteractionViewSubmission:
		switch in.CallbackID {
		case CallbackIngestSubmit:
			f.handleIngestSubmit(ctx, in)
			return true
		case CallbackSyncSubmit:
			f.handleSyncSubmit(ctx, in)
			return true
		}
	}
	return false
}

func (f *Flow) openModal(ctx context.Context, triggerID, view string) {
	if err := f.Slack.OpenView(ctx, triggerID, json.RawMessage(view)); err != nil {
		f.logger().Warn("admin_modal_open_failed", "error", err.Error())
	}
}

func (f *Flow) handleIngestSubmit(ctx context.Context, in slackclient.Interaction) {
	target := in.InputValue("url_block", "url_value")
	logger := f.logger().With("user_id", in.UserID)
	logger.Debug("ingest_submit", "url", target)

	if !f.validTarget(target) {
		f.dm(ctx, in.UserID, "Invalid URL: "+target)
		return
	}

	jobID, err := f.Backend.EnqueueIngest(ctx, target, in.UserID)
	if err != nil {
		logger.Warn("ingest_enqueue_failed", "error", err.Error())
		if err == answer.ErrNotAuthorized {
			f.dm(ctx, in.UserID, notAuthorizedText)
			return
		}
		f.dm(ctx, in.UserID, "Failed to enqueue ingest: "+err.Error())
		return
	}
	logger.Debug("ingest_enqueued", "job_id", jobID)

	dmChannel, err := f.Slack.OpenConversation(ctx, in.UserID)
	if err != nil {
		logger.Warn("ingest_dm_open_failed", "error", err.Error())
		return
	}

	background := f.Background
	if background == nil {
		background = context.Background()
	}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("ingest_poll_panic", "job_id", jobID, "panic", fmt.Sprint(rec))
			}
		}()
		notifier := &dmNotifier{slack: f.Slack, channelID: dmChannel}
		if err := f.Poller.Run(background, jobID, target, notifier); err != nil {
			logger.Warn("ingest_poll_stopped", "job_id", jobID, "error", err.Error())
		}
	}()
}

func (f *Flow) handleSyncSubmit(ctx context.Context, in slackclient.Interaction) {
	logger := f.logger().With("user_id", in.UserID)

	res, err := f.Backend.SyncPhoneSpecs(ctx)
	if err != nil {
		logger.Warn("specs_sync_failed", "error", err.Error())
		if syncErr, ok := err.(*answer.SyncError); ok {
			msg := fmt.Sprintf("Specs sync failed (HTTP %d)", syncErr.HTTPStatus)
			if syncErr.Detail != "" {
				msg += ": " + syncErr.Detail
			}
			f.dm(ctx, in.UserID, msg)
			return
		}
		f.dm(ctx, in.UserID, "Specs sync failed: "+err.Error())
		return
	}
	logger.Info("specs_sync_done", "status", res.Status, "rows_written", res.RowsWritten)
	f.dm(ctx, in.UserID, ingest.FormatSyncResult(res))
}

// validTarget accepts absolute http(s) URLs on the configured site
// domain or one of its subdomains.
func (f *Flow) validTarget(target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain := strings.ToLower(strings.TrimSpace(f.SiteDomain))
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func (f *Flow) dm(ctx context.Context, userID, text string) {
	channelID, err := f.Slack.OpenConversation(ctx, userID)
	if err != nil {
		f.logger().Warn("admin_dm_open_failed", "user_id", userID, "error", err.Error())
		return
	}
	if _, err := f.Slack.PostMessage(ctx, channelID, text, ""); err != nil {
		f.logger().Warn("admin_dm_post_failed", "user_id", userID, "error", err.Error())
	}
}

func (f *Flow) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// dmNotifier adapts the Slack client to the poller's Notifier over one
// DM channel.
type dmNotifier struct {
	slack     SlackAPI
	channelID string
}

func (d *dmNotifier) Post(ctx context.Context, text string) (string, error) {
	return d.slack.PostMessage(ctx, d.channelID, text, "")
}

func (d *dmNotifier) Update(ctx context.Context, ts, text string) error {
	return d.slack.UpdateMessage(ctx, d.channelID, ts, text)
}
