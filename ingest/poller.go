// Package ingest drives the two admin workflows against the answer
// backend: polling a URL-ingestion job to completion and summarizing
// a specs sync, relaying progress to the requesting user over DM.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/grestlabs/racenbot/answer"
)

const (
	defaultInterval   = 2 * time.Second
	maxTransientPolls = 5
)

var urlRe = regexp.MustCompile(`https?://\S+`)

// Notifier posts and edits messages in the requester's DM channel.
type Notifier interface {
	Post(ctx context.Context, text string) (ts string, err error)
	Update(ctx context.Context, ts, text string) error
}

// StatusFetcher is the slice of the answer client the poller needs.
type StatusFetcher interface {
	IngestStatus(ctx context.Context, jobID string) (answer.JobStatus, error)
}

type Poller struct {
	Fetcher  StatusFetcher
	Logger   *slog.Logger
	Interval time.Duration
}

// Run posts the initial status message and then polls the job until a
// terminal state, editing the status message in place and pinging on
// stage changes. On done/error it always posts a final summary with
// URLs stripped, then the target URL alone so exactly one link preview
// appears below all status text. Five consecutive transient errors end
// polling silently. The loop also stops when ctx is cancelled, which
// covers both shutdown and the error-threshold abort with one
// mechanism.
func (p *Poller) Run(ctx context.Context, jobID, targetURL string, n Notifier) error {
	if p == nil || p.Fetcher == nil {
		return fmt.Errorf("poller is not initialized")
	}
	if n == nil {
		return fmt.Errorf("notifier is required")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := p.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	// The URL is deliberately absent here so Slack does not unfurl it
	// above the status messages that follow.
	mainTS, err := n.Post(ctx, "Accepted ingest\njob_id="+jobID+"\nStage: queued")
	if err != nil {
		return fmt.Errorf("initial status post: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastStatus, lastStage string
	transientErrors := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		st, err := p.Fetcher.IngestStatus(ctx, jobID)
		if err != nil {
			transientErrors++
			logger.Warn("ingest_poll_error", "job_id", jobID, "attempt", transientErrors, "error", err.Error())
			if transientErrors >= maxTransientPolls {
				logger.Warn("ingest_poll_abandoned", "job_id", jobID)
				return nil
			}
			continue
		}
		transientErrors = 0
		stage := strings.TrimSpace(st.Stage)
		logger.Debug("ingest_poll_tick", "job_id", jobID, "status", st.Status, "stage", stage)

		if st.Status != lastStatus || stage != lastStage {
			if stage != "" && stage != lastStage && !st.Terminal() {
				if _, err := n.Post(ctx, "Stage: "+stage); err != nil {
					logger.Warn("ingest_stage_ping_error", "job_id", jobID, "error", err.Error())
				}
			}
			lastStatus = st.Status
			lastStage = stage
			// Terminal states get a fresh summary below instead of an
			// edit, so the completion lands under earlier pings.
			if !st.Terminal() {
				if err := n.Update(ctx, mainTS, progressText(jobID, st)); err != nil {
					logger.Warn("ingest_status_update_error", "job_id", jobID, "error", err.Error())
				}
			}
		}

		if st.Terminal() {
			if _, err := n.Post(ctx, finalText(st)); err != nil {
				logger.Warn("ingest_final_post_error", "job_id", jobID, "error", err.Error())
			}
			if target := strings.TrimSpace(targetURL); target != "" {
				if _, err := n.Post(ctx, target); err != nil {
					logger.Warn("ingest_url_post_error", "job_id", jobID, "error", err.Error())
				}
			}
			logger.Info("ingest_poll_done", "job_id", jobID, "status", st.Status)
			return nil
		}
	}
}

func progressText(jobID string, st answer.JobStatus) string {
	text := "job_id=" + jobID + "\nStatus: " + st.Status
	if stage := strings.TrimSpace(st.Stage); stage != "" {
		text += "\nStage: " + stage
	}
	if detail := strings.TrimSpace(st.Detail); detail != "" {
		text += "\n" + detail
	}
	if counts := countsLine(st); counts != "" {
		text += "\n" + counts
	}
	return text
}

func finalText(st answer.JobStatus) string {
	text := "----------------\nStatus: " + st.Status
	if stage := strings.TrimSpace(st.Stage); stage != "" {
		text += "\nStage: " + stage
	}
	// URLs are dropped from the detail so the separate URL message is
	// the only unfurl trigger.
	safeDetail := strings.TrimSpace(urlRe.ReplaceAllString(st.Detail, ""))
	if safeDetail != "" {
		text += "\n" + safeDetail
	}
	if counts := countsLine(st); counts != "" {
		text += "\n" + counts
	}
	return text
}

func countsLine(st answer.JobStatus) string {
	if st.ChunksInserted == 0 && st.EmbeddingsInserted == 0 {
		return ""
	}
	return "chunks=" + countOrUnknown(st.ChunksInserted) + ", embeddings=" + countOrUnknown(st.EmbeddingsInserted)
}

func countOrUnknown(n int) string {
	if n == 0 {
		return "?"
	}
	return fmt.Sprintf("%d", n)
}

// FormatSyncResult renders the specs-sync outcome for the DM notice.
func FormatSyncResult(res answer.SyncResult) string {
	text := fmt.Sprintf("iPhone specs sync status: %s\nRows written: %d", res.Status, res.RowsWritten)
	if len(res.DuplicateSlugs) > 0 {
		text += "\nDuplicate slugs (fix in sheet and retry): " + strings.Join(res.DuplicateSlugs, ", ")
	}
	if len(res.SlugsAllMissing) > 0 {
		text += "\nNo prices set for slugs: " + strings.Join(res.SlugsAllMissing, ", ")
	}
	if len(res.SlugsSomeMissing) > 0 {
		text += "\nSome prices missing for slugs: " + strings.Join(res.SlugsSomeMissing, ", ")
	}
	return text
}
