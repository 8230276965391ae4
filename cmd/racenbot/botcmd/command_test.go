package botcmd

import "testing"

func TestToAllowlist(t *testing.T) {
	t.Parallel()

	got := toAllowlist([]string{" T1 ", "", "T2", "T1"})
	if len(got) != 2 || !got["T1"] || !got["T2"] {
		t.Fatalf("allowlist mismatch: %v", got)
	}
}

func TestBotCmdFlagDefaults(t *testing.T) {
	t.Parallel()

	cmd := newBotCmd()
	base, err := cmd.Flags().GetString("answer-base-url")
	if err != nil {
		t.Fatalf("answer-base-url flag: %v", err)
	}
	if base != "http://127.0.0.1:8011" {
		t.Fatalf("answer-base-url default mismatch: got %q", base)
	}
	preset, err := cmd.Flags().GetString("allowlist-preset")
	if err != nil {
		t.Fatalf("allowlist-preset flag: %v", err)
	}
	if preset != "faqs" {
		t.Fatalf("allowlist-preset default mismatch: got %q", preset)
	}
	domain, err := cmd.Flags().GetString("site-domain")
	if err != nil {
		t.Fatalf("site-domain flag: %v", err)
	}
	if domain != "grest.in" {
		t.Fatalf("site-domain default mismatch: got %q", domain)
	}
}
