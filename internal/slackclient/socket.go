package slackclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type SocketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ConsumeSocket reads envelopes off a Socket Mode connection, acking
// each one, and hands them to onEnvelope. Returns on read error or
// context cancellation; the caller owns reconnecting.
func ConsumeSocket(ctx context.Context, conn *websocket.Conn, onEnvelope func(envelope SocketEnvelope) error) error {
	if conn == nil {
		return fmt.Errorf("slack websocket connection is nil")
	}
	for {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var envelope SocketEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		if strings.TrimSpace(envelope.EnvelopeID) != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": envelope.EnvelopeID}); err != nil {
				return err
			}
		}
		if onEnvelope == nil {
			continue
		}
		if err := onEnvelope(envelope); err != nil {
			return err
		}
	}
}

type eventsAPIPayload struct {
	TeamID    string          `json:"team_id,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	EventTime int64           `json:"event_time,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

type rawEvent struct {
	Type     string `json:"type,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	User     string `json:"user,omitempty"`
	Text     string `json:"text,omitempty"`
	Channel  string `json:"channel,omitempty"`
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
	Team     string `json:"team,omitempty"`
}

// MentionEvent is an app_mention addressed to the bot.
type MentionEvent struct {
	TeamID    string
	ChannelID string
	MessageTS string
	ThreadTS  string
	UserID    string
	Text      string
	EventID   string
	SentAt    time.Time
}

// ParseMentionEvent extracts an app_mention from an events_api
// envelope. The second return is false for anything else, including
// bot echoes and subtyped messages.
func ParseMentionEvent(envelope SocketEnvelope, botUserID string) (MentionEvent, bool, error) {
	if strings.TrimSpace(envelope.Type) != "events_api" || len(envelope.Payload) == 0 {
		return MentionEvent{}, false, nil
	}
	var payload eventsAPIPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return MentionEvent{}, false, err
	}
	var event rawEvent
	if err := json.Unmarshal(payload.Event, &event); err != nil {
		return MentionEvent{}, false, err
	}
	if strings.TrimSpace(event.Type) != "app_mention" {
		return MentionEvent{}, false, nil
	}
	if strings.TrimSpace(event.Subtype) != "" || strings.TrimSpace(event.BotID) != "" {
		return MentionEvent{}, false, nil
	}
	userID := strings.TrimSpace(event.User)
	if userID == "" || userID == strings.TrimSpace(botUserID) {
		return MentionEvent{}, false, nil
	}
	channelID := strings.TrimSpace(event.Channel)
	messageTS := strings.TrimSpace(event.TS)
	if channelID == "" || messageTS == "" {
		return MentionEvent{}, false, nil
	}
	teamID := strings.TrimSpace(payload.TeamID)
	if teamID == "" {
		teamID = strings.TrimSpace(event.Team)
	}
	sentAt := time.Now().UTC()
	if payload.EventTime > 0 {
		sentAt = time.Unix(payload.EventTime, 0).UTC()
	}
	return MentionEvent{
		TeamID:    teamID,
		ChannelID: channelID,
		MessageTS: messageTS,
		ThreadTS:  strings.TrimSpace(event.ThreadTS),
		UserID:    userID,
		Text:      strings.TrimSpace(event.Text),
		EventID:   strings.TrimSpace(payload.EventID),
		SentAt:    sentAt,
	}, true, nil
}

const (
	InteractionShortcut       = "shortcut"
	InteractionViewSubmission = "view_submission"
)

type interactivePayload struct {
	Type       string `json:"type,omitempty"`
	CallbackID string `json:"callback_id,omitempty"`
	TriggerID  string `json:"trigger_id,omitempty"`
	User       struct {
		ID string `json:"id,omitempty"`
	} `json:"user"`
	View struct {
		CallbackID string `json:"callback_id,omitempty"`
		State      struct {
			Values map[string]map[string]struct {
				Value string `json:"value,omitempty"`
			} `json:"values,omitempty"`
		} `json:"state"`
	} `json:"view"`
}

// Interaction is a global shortcut trigger or a modal submission.
type Interaction struct {
	Kind       string
	CallbackID string
	TriggerID  string
	UserID     string
	values     map[string]map[string]string
}

// InputValue returns the submitted value of one modal input.
func (i Interaction) InputValue(blockID, actionID string) string {
	if i.values == nil {
		return ""
	}
	return strings.TrimSpace(i.values[blockID][actionID])
}

// ParseInteraction extracts a shortcut or view_submission from an
// interactive envelope; anything else returns false.
func ParseInteraction(envelope SocketEnvelope) (Interaction, bool, error) {
	if strings.TrimSpace(envelope.Type) != "interactive" || len(envelope.Payload) == 0 {
		return Interaction{}, false, nil
	}
	var payload interactivePayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return Interaction{}, false, err
	}
	kind := strings.TrimSpace(payload.Type)
	switch kind {
	case InteractionShortcut:
		return Interaction{
			Kind:       kind,
			CallbackID: strings.TrimSpace(payload.CallbackID),
			TriggerID:  strings.TrimSpace(payload.TriggerID),
			UserID:     strings.TrimSpace(payload.User.ID),
		}, true, nil
	case InteractionViewSubmission:
		values := make(map[string]map[string]string, len(payload.View.State.Values))
		for blockID, actions := range payload.View.State.Values {
			inner := make(map[string]string, len(actions))
			for actionID, v := range actions {
				inner[actionID] = v.Value
			}
			values[blockID] = inner
		}
		return Interaction{
			Kind:       kind,
			CallbackID: strings.TrimSpace(payload.View.CallbackID),
			UserID:     strings.TrimSpace(payload.User.ID),
			values:     values,
		}, true, nil
	default:
		return Interaction{}, false, nil
	}
}
