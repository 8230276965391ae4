package slackclient

import (
	"encoding/json"
	"testing"
)

func mentionEnvelope(t *testing.T, event map[string]any) SocketEnvelope {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"team_id":    "T1",
		"event_id":   "Ev1",
		"event_time": 1700000000,
		"event":      event,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return SocketEnvelope{EnvelopeID: "env1", Type: "events_api", Payload: payload}
}

func TestParseMentionEvent(t *testing.T) {
	t.Parallel()

	env := mentionEnvelope(t, map[string]any{
		"type":      "app_mention",
		"user":      "U1",
		"text":      "<@UBOT> when does it ship?",
		"channel":   "C1",
		"ts":        "111.000",
		"thread_ts": "100.000",
	})
	event, ok, err := ParseMentionEvent(env, "UBOT")
	if err != nil {
		t.Fatalf("ParseMentionEvent() error = %v", err)
	}
	if !ok {
		t.Fatalf("ok mismatch: got false want true")
	}
	if event.TeamID != "T1" || event.ChannelID != "C1" || event.MessageTS != "111.000" {
		t.Fatalf("event mismatch: %+v", event)
	}
	if event.ThreadTS != "100.000" {
		t.Fatalf("thread_ts mismatch: got %q", event.ThreadTS)
	}
	if event.SentAt.Unix() != 1700000000 {
		t.Fatalf("sent_at mismatch: got %v", event.SentAt)
	}
}

func TestParseMentionEventIgnores(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		event map[string]any
	}{
		{"plain message", map[string]any{"type": "message", "user": "U1", "text": "x", "channel": "C1", "ts": "1.0"}},
		{"bot echo", map[string]any{"type": "app_mention", "user": "U1", "bot_id": "B1", "text": "x", "channel": "C1", "ts": "1.0"}},
		{"self mention", map[string]any{"type": "app_mention", "user": "UBOT", "text": "x", "channel": "C1", "ts": "1.0"}},
		{"subtyped", map[string]any{"type": "app_mention", "subtype": "message_changed", "user": "U1", "text": "x", "channel": "C1", "ts": "1.0"}},
	}
	for _, tc := range cases {
		_, ok, err := ParseMentionEvent(mentionEnvelope(t, tc.event), "UBOT")
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if ok {
			t.Fatalf("%s: accepted but should be ignored", tc.name)
		}
	}
}

func TestParseInteractionShortcut(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"type":"shortcut","callback_id":"racen_ingest_url","trigger_id":"tr1","user":{"id":"U1"}}`)
	got, ok, err := ParseInteraction(SocketEnvelope{Type: "interactive", Payload: payload})
	if err != nil {
		t.Fatalf("ParseInteraction() error = %v", err)
	}
	if !ok || got.Kind != InteractionShortcut {
		t.Fatalf("interaction mismatch: ok=%v %+v", ok, got)
	}
	if got.CallbackID != "racen_ingest_url" || got.TriggerID != "tr1" || got.UserID != "U1" {
		t.Fatalf("interaction fields mismatch: %+v", got)
	}
}

func TestParseInteractionViewSubmission(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"type":"view_submission",
		"user":{"id":"U1"},
		"view":{
			"callback_id":"racen_ingest_url_submit",
			"state":{"values":{"url_block":{"url_value":{"value":" https://grest.in/products/x "}}}}
		}
	}`)
	got, ok, err := ParseInteraction(SocketEnvelope{Type: "interactive", Payload: payload})
	if err != nil {
		t.Fatalf("ParseInteraction() error = %v", err)
	}
	if !ok || got.Kind != InteractionViewSubmission {
		t.Fatalf("interaction mismatch: ok=%v %+v", ok, got)
	}
	if got.CallbackID != "racen_ingest_url_submit" {
		t.Fatalf("callback mismatch: %q", got.CallbackID)
	}
	if v := got.InputValue("url_block", "url_value"); v != "https://grest.in/products/x" {
		t.Fatalf("input value mismatch: got %q", v)
	}
	if v := got.InputValue("missing", "missing"); v != "" {
		t.Fatalf("missing input mismatch: got %q want empty", v)
	}
}

func TestParseInteractionIgnoresOtherKinds(t *testing.T) {
	t.Parallel()

	_, ok, err := ParseInteraction(SocketEnvelope{Type: "interactive", Payload: []byte(`{"type":"block_actions"}`)})
	if err != nil {
		t.Fatalf("ParseInteraction() error = %v", err)
	}
	if ok {
		t.Fatalf("block_actions accepted but should be ignored")
	}
	_, ok, _ = ParseInteraction(SocketEnvelope{Type: "events_api"})
	if ok {
		t.Fatalf("events_api accepted as interaction")
	}
}
