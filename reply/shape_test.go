package reply

import (
	"strings"
	"testing"

	"github.com/grestlabs/racenbot/answer"
)

func newTestShaper(showCitations, showRibbon bool) *Shaper {
	return NewShaper(Options{
		Domain:        "grest.in",
		SupportPhone:  "+91 90000 00000",
		SupportEmail:  "care@grest.in",
		ShowCitations: showCitations,
		ShowRibbon:    showRibbon,
	})
}

func TestIsFallback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		answer string
		ribbon string
		want   bool
	}{
		{"ribbon flag", "Here is the info.", "mode=short fallback=1", true},
		{"english prefix", "I couldn’t find the exact info on that.", "fallback=0", true},
		{"hinglish prefix", "Exact info nahi mila, par yeh dekho.", "", true},
		{"clean answer", "Ships in 2 days.", "mode=short fallback=0", false},
	}
	for _, tc := range cases {
		if got := IsFallback(tc.answer, answer.Ribbon(tc.ribbon)); got != tc.want {
			t.Fatalf("%s mismatch: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestShapeCitationsBlock(t *testing.T) {
	t.Parallel()

	s := newTestShaper(true, false)
	cites := make([]answer.Citation, 0, 8)
	for i := 0; i < 8; i++ {
		cites = append(cites, answer.Citation{URL: "https://grest.in/pages/faqs", StartLine: i + 1, EndLine: i + 2})
	}
	got := s.Shape(Input{Answer: "Ships in 2 days.", Citations: cites})
	if !strings.Contains(got, "*Citations:*") {
		t.Fatalf("citations header missing: %q", got)
	}
	if !strings.Contains(got, "[1] https://grest.in/pages/faqs (lines 1-2)") {
		t.Fatalf("first citation missing: %q", got)
	}
	if strings.Contains(got, "[7]") {
		t.Fatalf("citations not truncated to 6: %q", got)
	}

	off := newTestShaper(false, false)
	if got := off.Shape(Input{Answer: "Ships in 2 days.", Citations: cites}); strings.Contains(got, "Citations") {
		t.Fatalf("citations rendered while disabled: %q", got)
	}
}

func TestShapeEscalationReplacesAnswer(t *testing.T) {
	t.Parallel()

	s := newTestShaper(true, false)
	got := s.Shape(Input{
		Answer:   "Exact info nahi mila",
		Ribbon:   answer.Ribbon("fallback=1 tone=neutral"),
		Escalate: true,
	})
	if strings.Contains(got, "Exact info nahi mila") {
		t.Fatalf("fallback body not replaced: %q", got)
	}
	if !strings.Contains(got, "connect you to our support team. 🙂") {
		t.Fatalf("handoff line missing: %q", got)
	}
	if !strings.Contains(got, "Phone: +91 90000 00000") || !strings.Contains(got, "Email: care@grest.in") {
		t.Fatalf("contact lines missing: %q", got)
	}
	if !strings.Contains(got, "Contact link: https://grest.in/pages/contact-us") {
		t.Fatalf("contact link missing: %q", got)
	}
}

func TestShapeEscalationUpsetToneDropsEmoji(t *testing.T) {
	t.Parallel()

	s := newTestShaper(false, false)
	got := s.Shape(Input{
		Answer:   "Exact info nahi mila",
		Ribbon:   answer.Ribbon("fallback=1 tone=upset"),
		Escalate: true,
	})
	if strings.Contains(got, "🙂") {
		t.Fatalf("emoji present for upset tone: %q", got)
	}
	if !strings.Contains(got, "connect you to our support team.") {
		t.Fatalf("handoff line missing: %q", got)
	}
}

func TestShapeProductLinkAugmentation(t *testing.T) {
	t.Parallel()

	s := newTestShaper(false, false)
	cites := []answer.Citation{
		{URL: "https://grest.in/pages/faqs", StartLine: 1, EndLine: 1},
		{URL: "https://grest.in/products/iphone-13?variant=42", StartLine: 4, EndLine: 9},
		{URL: "https://grest.in/products/iphone-13-pro?variant=7", StartLine: 1, EndLine: 1},
	}
	got := s.Shape(Input{
		Answer:    "The 13 Pro is in stock.",
		Citations: cites,
		Ribbon:    answer.Ribbon("intent=product"),
	})
	// The [1,1] product citation wins, query stripped, converted to
	// Slack link syntax by the later rewrite pass.
	if !strings.Contains(got, "<https://grest.in/products/iphone-13-pro|Product page>") {
		t.Fatalf("product link missing: %q", got)
	}
}

func TestShapeProductLinkSkippedCases(t *testing.T) {
	t.Parallel()

	s := newTestShaper(false, false)
	cites := []answer.Citation{{URL: "https://grest.in/products/iphone-13", StartLine: 1, EndLine: 1}}

	got := s.Shape(Input{
		Answer:    "Browse https://grest.in/collections/iphones for all models.",
		Citations: cites,
		Ribbon:    answer.Ribbon("intent=product"),
	})
	if strings.Contains(got, "Product page") {
		t.Fatalf("link added despite collection link: %q", got)
	}

	bullets := "- [A](https://grest.in/products/a)\n- [B](https://grest.in/products/b)"
	got = s.Shape(Input{
		Answer:    bullets,
		Citations: cites,
		Ribbon:    answer.Ribbon("intent=product"),
	})
	if strings.Contains(got, "Product page") {
		t.Fatalf("link added despite product bullets: %q", got)
	}

	got = s.Shape(Input{
		Answer:    "Not a product question.",
		Citations: cites,
		Ribbon:    answer.Ribbon("intent=faq"),
	})
	if strings.Contains(got, "Product page") {
		t.Fatalf("link added for non-product intent: %q", got)
	}
}

func TestShapeRibbonAppendedLast(t *testing.T) {
	t.Parallel()

	s := newTestShaper(false, true)
	got := s.Shape(Input{
		Answer: "Ships in 2 days.",
		Ribbon: answer.Ribbon("mode=short fallback=0"),
	})
	if !strings.HasSuffix(got, "\n\n_mode=short fallback=0_") {
		t.Fatalf("ribbon suffix mismatch: %q", got)
	}

	off := newTestShaper(false, false)
	if got := off.Shape(Input{Answer: "x", Ribbon: answer.Ribbon("mode=short")}); strings.Contains(got, "mode=short") {
		t.Fatalf("ribbon rendered while disabled: %q", got)
	}
}

func TestConvertMarkdownLinks(t *testing.T) {
	t.Parallel()

	in := "See [FAQs](https://grest.in/pages/faqs) and [](https://grest.in/x) here."
	want := "See <https://grest.in/pages/faqs|FAQs> and [](https://grest.in/x) here."
	got := ConvertMarkdownLinks(in)
	if got != want {
		t.Fatalf("convert mismatch: got %q want %q", got, want)
	}
}

func TestConvertMarkdownLinksIdempotent(t *testing.T) {
	t.Parallel()

	in := "Check [Product page](https://grest.in/products/iphone-13)\nand plain text."
	once := ConvertMarkdownLinks(in)
	twice := ConvertMarkdownLinks(once)
	if once != twice {
		t.Fatalf("idempotence mismatch: once %q twice %q", once, twice)
	}
}
