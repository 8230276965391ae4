// Package botcmd runs the Slack bot: Socket Mode event loop, mention
// answering, and the admin shortcuts.
package botcmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grestlabs/racenbot/adminflow"
	"github.com/grestlabs/racenbot/allowlist"
	"github.com/grestlabs/racenbot/answer"
	"github.com/grestlabs/racenbot/convo"
	"github.com/grestlabs/racenbot/ingest"
	"github.com/grestlabs/racenbot/internal/configutil"
	"github.com/grestlabs/racenbot/internal/healthcheck"
	"github.com/grestlabs/racenbot/internal/slackclient"
	"github.com/grestlabs/racenbot/mentionflow"
	"github.com/grestlabs/racenbot/reply"
)

func newBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Slack support bot with Socket Mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
			if botToken == "" {
				return fmt.Errorf("missing slack.bot_token (set via --slack-bot-token or RACENBOT_SLACK_BOT_TOKEN)")
			}
			appToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-app-token", "slack.app_token"))
			if appToken == "" {
				return fmt.Errorf("missing slack.app_token (set via --slack-app-token or RACENBOT_SLACK_APP_TOKEN)")
			}

			allowedTeams := toAllowlist(configutil.FlagOrViperStringArray(cmd, "slack-allowed-team-id", "slack.allowed_team_ids"))

			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			baseURL := strings.TrimSpace(configutil.FlagOrViperString(cmd, "answer-base-url", "answer.base_url"))
			adminToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "admin-token", "admin.token"))
			if adminToken == "" {
				// Older deployments configured the token under the sync key.
				adminToken = strings.TrimSpace(viper.GetString("sync.iphone_specs_token"))
			}

			siteDomain := strings.TrimSpace(configutil.FlagOrViperString(cmd, "site-domain", "site.domain"))
			if siteDomain == "" {
				siteDomain = "grest.in"
			}

			resolver := allowlist.NewResolver(siteDomain)
			if presetsFile := strings.TrimSpace(configutil.FlagOrViperString(cmd, "allowlist-presets-file", "allowlist.presets_file")); presetsFile != "" {
				if err := resolver.LoadPresets(presetsFile); err != nil {
					return fmt.Errorf("load allowlist presets: %w", err)
				}
			}

			httpClient := &http.Client{Timeout: 30 * time.Second}
			api := slackclient.New(httpClient, slackclient.DefaultBaseURL, botToken, appToken)
			auth, err := api.AuthTest(cmd.Context())
			if err != nil {
				return fmt.Errorf("slack auth.test: %w", err)
			}
			botUserID := strings.TrimSpace(auth.UserID)
			if botUserID == "" {
				return fmt.Errorf("slack auth.test returned empty user_id")
			}
			if len(allowedTeams) == 0 && strings.TrimSpace(auth.TeamID) != "" {
				allowedTeams[strings.TrimSpace(auth.TeamID)] = true
			}

			backend := answer.NewClient(httpClient, baseURL, adminToken)

			store := convo.NewStore(convo.Options{
				MaxThreads: configutil.FlagOrViperInt(cmd, "context-max-threads", "context.max_threads"),
				TTL:        configutil.FlagOrViperDuration(cmd, "context-ttl", "context.ttl"),
			})

			shaper := reply.NewShaper(reply.Options{
				Domain:        siteDomain,
				SupportPhone:  configutil.FlagOrViperString(cmd, "support-phone", "support.phone"),
				SupportEmail:  configutil.FlagOrViperString(cmd, "support-email", "support.email"),
				ShowCitations: configutil.FlagOrViperBool(cmd, "show-citations", "show.citations"),
				ShowRibbon:    configutil.FlagOrViperBool(cmd, "show-ribbon", "show.ribbon"),
			})

			mentions := &mentionflow.Runtime{
				Store:        store,
				Resolver:     resolver,
				Answerer:     backend,
				Messenger:    api,
				Shaper:       shaper,
				Logger:       logger,
				Preset:       configutil.FlagOrViperString(cmd, "allowlist-preset", "allowlist.preset"),
				Override:     configutil.FlagOrViperString(cmd, "allowlist-override", "allowlist.override"),
				ShowThinking: configutil.FlagOrViperBool(cmd, "show-thinking", "show.thinking"),
			}

			admin := &adminflow.Flow{
				Slack:      api,
				Backend:    backend,
				Poller:     &ingest.Poller{Fetcher: backend, Logger: logger},
				Logger:     logger,
				SiteDomain: siteDomain,
				Background: cmd.Context(),
			}

			healthListen := healthcheck.NormalizeListen(configutil.FlagOrViperString(cmd, "health-listen", "health.listen"))
			if healthListen != "" {
				healthServer, err := healthcheck.StartServer(cmd.Context(), logger, healthListen, "bot")
				if err != nil {
					logger.Warn("bot_health_server_start_error", "addr", healthListen, "error", err.Error())
				} else {
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
						_ = healthServer.Shutdown(shutdownCtx)
						cancel()
					}()
				}
			}

			logger.Info("bot_start",
				"bot_user_id", botUserID,
				"allowed_team_ids", len(allowedTeams),
				"answer_base_url", baseURL,
				"site_domain", siteDomain,
				"allowlist_preset", mentions.Preset,
			)

			onEnvelope := func(envelope slackclient.SocketEnvelope) error {
				event, ok, err := slackclient.ParseMentionEvent(envelope, botUserID)
				if err != nil {
					logger.Warn("bot_event_parse_error", "error", err.Error())
					return nil
				}
				if ok {
					if len(allowedTeams) > 0 && !allowedTeams[event.TeamID] {
						return nil
					}
					go mentions.HandleMention(cmd.Context(), mentionflow.Mention{
						ChannelID: event.ChannelID,
						UserID:    event.UserID,
						MessageTS: event.MessageTS,
						ThreadTS:  event.ThreadTS,
						Text:      event.Text,
					})
					return nil
				}

				interaction, ok, err := slackclient.ParseInteraction(envelope)
				if err != nil {
					logger.Warn("bot_interaction_parse_error", "error", err.Error())
					return nil
				}
				if !ok {
					return nil
				}
				go func() {
					defer func() {
						if rec := recover(); rec != nil {
							logger.Error("bot_interaction_panic", "callback_id", interaction.CallbackID, "panic", fmt.Sprint(rec))
						}
					}()
					if !admin.HandleInteraction(cmd.Context(), interaction) {
						logger.Debug("bot_interaction_ignored", "kind", interaction.Kind, "callback_id", interaction.CallbackID)
					}
				}()
				return nil
			}

			reconnectWait := backoff.NewExponentialBackOff()
			reconnectWait.InitialInterval = 2 * time.Second
			reconnectWait.MaxInterval = time.Minute
			reconnectWait.MaxElapsedTime = 0

			for {
				if cmd.Context().Err() != nil {
					logger.Info("bot_stop", "reason", "context_canceled")
					return nil
				}
				conn, err := api.ConnectSocket(cmd.Context())
				if err != nil {
					if cmd.Context().Err() != nil {
						logger.Info("bot_stop", "reason", "context_canceled")
						return nil
					}
					wait := reconnectWait.NextBackOff()
					logger.Warn("bot_socket_connect_error", "retry_in", wait.String(), "error", err.Error())
					if err := sleepWithContext(cmd.Context(), wait); err != nil {
						return nil
					}
					continue
				}
				reconnectWait.Reset()
				logger.Info("bot_socket_connected")
				readErr := slackclient.ConsumeSocket(cmd.Context(), conn, onEnvelope)
				_ = conn.Close()
				if readErr != nil && !errors.Is(readErr, context.Canceled) && !errors.Is(readErr, context.DeadlineExceeded) {
					logger.Warn("bot_socket_read_error", "error", readErr.Error())
				}
			}
		},
	}

	cmd.Flags().String("slack-bot-token", "", "Slack bot token (xoxb-...).")
	cmd.Flags().String("slack-app-token", "", "Slack app-level token for Socket Mode (xapp-...).")
	cmd.Flags().StringArray("slack-allowed-team-id", nil, "Allowed Slack team id(s). If empty, defaults to the bot's home team.")
	cmd.Flags().String("answer-base-url", "http://127.0.0.1:8011", "Base URL of the answer backend.")
	cmd.Flags().String("admin-token", "", "Shared token for ingest and specs-sync admin calls.")
	cmd.Flags().String("site-domain", "grest.in", "Site domain used for allowlists, URL validation and product links.")
	cmd.Flags().String("allowlist-preset", "faqs", "Retrieval allowlist preset: all|shipping|faqs_shipping|faqs_warranty_policies|all_subset|faqs.")
	cmd.Flags().String("allowlist-override", "", "Explicit allowlist value; overrides the preset and URL detection.")
	cmd.Flags().String("allowlist-presets-file", "", "YAML file with extra allowlist presets (optional).")
	cmd.Flags().String("support-phone", "", "Support phone shown in the escalation notice.")
	cmd.Flags().String("support-email", "", "Support email shown in the escalation notice.")
	cmd.Flags().Bool("show-citations", true, "Append the citations block and debug ribbon to answers.")
	cmd.Flags().Bool("show-ribbon", false, "Append the debug ribbon even without citations.")
	cmd.Flags().Bool("show-thinking", true, "Post a Thinking… placeholder and edit it with the answer.")
	cmd.Flags().Duration("context-ttl", 0, "Conversation state retention (0 uses the built-in default).")
	cmd.Flags().Int("context-max-threads", 0, "Max tracked threads (0 uses the built-in default).")
	cmd.Flags().String("health-listen", "", "Liveness listen address, e.g. :8091 (empty disables).")

	return cmd
}

func toAllowlist(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out[v] = true
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
