// Package reply turns a structured backend answer into the final
// Slack mrkdwn text: citation block, fallback detection, escalation
// handoff, product-link augmentation, link rewriting, and the debug
// ribbon. Everything here is a pure string transform; state lives in
// convo and is consulted by the orchestrator.
package reply

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/grestlabs/racenbot/answer"
)

const maxCitations = 6

// fallbackPrefixes are the known "couldn't find" openers the backend
// produces, in both registers. The apostrophe is the typographic one.
var fallbackPrefixes = []string{
	"I couldn’t find an exact line on that",
	"I couldn’t find the exact info",
	"Exact info nahi mila",
	"Exact line nahi mila",
}

var markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)

type Shaper struct {
	domain        string
	supportPhone  string
	supportEmail  string
	showCitations bool
	showRibbon    bool

	collectionRe    *regexp.Regexp
	productBulletRe *regexp.Regexp
}

type Options struct {
	Domain        string
	SupportPhone  string
	SupportEmail  string
	ShowCitations bool
	ShowRibbon    bool
}

func NewShaper(opts Options) *Shaper {
	domain := strings.TrimSpace(opts.Domain)
	quoted := regexp.QuoteMeta(domain)
	return &Shaper{
		domain:          domain,
		supportPhone:    strings.TrimSpace(opts.SupportPhone),
		supportEmail:    strings.TrimSpace(opts.SupportEmail),
		showCitations:   opts.ShowCitations,
		showRibbon:      opts.ShowRibbon,
		collectionRe:    regexp.MustCompile(`(?i)https?://(?:www\.)?` + quoted + `/collections/iphones\b`),
		productBulletRe: regexp.MustCompile(`- \[[^\]]+\]\(https?://(?:www\.)?` + quoted + `/products/`),
	}
}

type Input struct {
	Answer    string
	Citations []answer.Citation
	Ribbon    answer.Ribbon
	// Escalate replaces the answer with the human handoff block. The
	// orchestrator sets it from the convo store so the block goes out
	// at most once per thread.
	Escalate bool
}

// IsFallback classifies an answer as a fallback from either the
// ribbon flag or a known answer prefix.
func IsFallback(answerText string, ribbon answer.Ribbon) bool {
	if ribbon.Fallback() {
		return true
	}
	ans := strings.TrimSpace(answerText)
	for _, prefix := range fallbackPrefixes {
		if strings.HasPrefix(ans, prefix) {
			return true
		}
	}
	return false
}

func (s *Shaper) Shape(in Input) string {
	text := in.Answer
	if s.showCitations {
		if block := citationsBlock(in.Citations); block != "" {
			text += "\n\n*Citations:*\n" + block
		}
	}

	if in.Escalate {
		text = s.escalationBlock(in.Ribbon.Tone())
	}

	text = s.ensureProductLink(text, in.Ribbon, in.Citations)
	text = ConvertMarkdownLinks(text)

	// The ribbon goes last so escalation and product links stay above it.
	if (s.showCitations || s.showRibbon) && !in.Ribbon.Empty() {
		text = text + "\n\n_" + in.Ribbon.String() + "_"
	}
	return text
}

func citationsBlock(citations []answer.Citation) string {
	if len(citations) == 0 {
		return ""
	}
	if len(citations) > maxCitations {
		citations = citations[:maxCitations]
	}
	lines := make([]string, 0, len(citations))
	for i, c := range citations {
		lines = append(lines, fmt.Sprintf("[%d] %s (lines %d-%d)", i+1, c.URL, c.StartLine, c.EndLine))
	}
	return strings.Join(lines, "\n")
}

func (s *Shaper) escalationBlock(tone string) string {
	emoji := " 🙂"
	if tone == "upset" {
		emoji = ""
	}
	lines := []string{
		"If you want, I can connect you to our support team." + emoji,
	}
	if s.supportPhone != "" {
		lines = append(lines, "Phone: "+s.supportPhone)
	}
	if s.supportEmail != "" {
		lines = append(lines, "Email: "+s.supportEmail)
	}
	lines = append(lines, "Contact link: https://"+s.domain+"/pages/contact-us")
	return strings.Join(lines, "\n")
}

// ensureProductLink appends a clean product link for product-intent
// answers so Slack unfurls exactly one card. Skipped when the text
// already carries a collection-browse link or two or more product
// bullets.
func (s *Shaper) ensureProductLink(text string, ribbon answer.Ribbon, citations []answer.Citation) string {
	if ribbon.Intent() != "product" || len(citations) == 0 {
		return text
	}
	if s.collectionRe.MatchString(text) {
		return text
	}
	if len(s.productBulletRe.FindAllString(text, -1)) >= 2 {
		return text
	}
	primary, ok := s.primaryProductCitation(citations)
	if !ok {
		return text
	}
	u, err := url.Parse(primary.URL)
	if err != nil {
		return text
	}
	clean := u.Scheme + "://" + u.Host + u.Path
	if strings.Contains(text, clean) {
		return text
	}
	return text + "\n\n[Product page](" + clean + ")"
}

// primaryProductCitation prefers a [1,1] line range, which the
// backend uses for the canonical page citation, else the last product
// citation in order.
func (s *Shaper) primaryProductCitation(citations []answer.Citation) (answer.Citation, bool) {
	var products []answer.Citation
	for _, c := range citations {
		u, err := url.Parse(c.URL)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if host != s.domain && !strings.HasSuffix(host, "."+s.domain) {
			continue
		}
		if !strings.HasPrefix(u.Path, "/products/") {
			continue
		}
		products = append(products, c)
	}
	if len(products) == 0 {
		return answer.Citation{}, false
	}
	for _, c := range products {
		if c.StartLine == 1 && c.EndLine == 1 {
			return c, true
		}
	}
	return products[len(products)-1], true
}

// ConvertMarkdownLinks rewrites [label](url) pairs into Slack's
// <url|label> syntax, line by line. Malformed or empty pairs are left
// alone, and already-converted text round-trips unchanged.
func ConvertMarkdownLinks(text string) string {
	if text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = markdownLinkRe.ReplaceAllStringFunc(line, func(m string) string {
			sub := markdownLinkRe.FindStringSubmatch(m)
			label := strings.TrimSpace(sub[1])
			target := strings.TrimSpace(sub[2])
			if label == "" || target == "" {
				return m
			}
			return "<" + target + "|" + label + ">"
		})
	}
	return strings.Join(lines, "\n")
}
