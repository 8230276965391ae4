package answer

import "testing"

func TestRibbonFallback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ribbon string
		want   bool
	}{
		{"mode=short fallback=1 intent=faq", true},
		{"mode=short fallback=0 intent=faq", false},
		{"fallback=10", false},
		{"", false},
		{"prefix fallback=1", true},
	}
	for _, tc := range cases {
		if got := Ribbon(tc.ribbon).Fallback(); got != tc.want {
			t.Fatalf("Fallback(%q) mismatch: got %v want %v", tc.ribbon, got, tc.want)
		}
	}
}

func TestRibbonIntentAndTone(t *testing.T) {
	t.Parallel()

	r := Ribbon("mode=short fallback=0 intent=Product tone=UPSET")
	if got := r.Intent(); got != "product" {
		t.Fatalf("intent mismatch: got %q want %q", got, "product")
	}
	if got := r.Tone(); got != "upset" {
		t.Fatalf("tone mismatch: got %q want %q", got, "upset")
	}

	empty := Ribbon("mode=short")
	if got := empty.Intent(); got != "" {
		t.Fatalf("intent mismatch: got %q want empty", got)
	}
	if got := empty.Tone(); got != "neutral" {
		t.Fatalf("tone default mismatch: got %q want %q", got, "neutral")
	}
}
