// Package allowlist derives the retrieval-scope string the answer
// backend is restricted to when grounding a reply.
package allowlist

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultPreset = "faqs"

// builtinPresets maps preset names to comma-joined source paths. An
// empty value means full-site retrieval with no source filter.
var builtinPresets = map[string]string{
	"all":           "",
	"shipping":      "/policies/shipping/policy,/policies/refund/policy",
	"faqs_shipping": "/pages/faqs,/policies/shipping/policy,/policies/refund/policy",
	"faqs_warranty_policies": "/pages/faqs,/pages/warranty,/policies/terms/of/service," +
		"/policies/refund/policy,/policies/shipping/policy",
	"all_subset": "/pages/faqs,/policies/shipping/policy,/policies/refund/policy",
	"faqs":       "/pages/faqs",
}

type Resolver struct {
	presets map[string]string
	siteRe  *regexp.Regexp
}

// NewResolver builds a resolver for the given product-site domain
// (e.g. "grest.in"). URLs on that domain pasted into a mention narrow
// retrieval to the exact page.
func NewResolver(siteDomain string) *Resolver {
	siteDomain = strings.TrimSpace(siteDomain)
	presets := make(map[string]string, len(builtinPresets))
	for k, v := range builtinPresets {
		presets[k] = v
	}
	return &Resolver{
		presets: presets,
		siteRe:  regexp.MustCompile(`(?i)https?://(?:www\.)?` + regexp.QuoteMeta(siteDomain) + `/\S+`),
	}
}

// LoadPresets merges a YAML preset table over the built-in one. The
// file is a flat map of preset name to comma-joined paths.
func (r *Resolver) LoadPresets(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read presets file: %w", err)
	}
	extra := map[string]string{}
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return fmt.Errorf("parse presets file: %w", err)
	}
	for k, v := range extra {
		name := strings.ToLower(strings.TrimSpace(k))
		if name == "" {
			continue
		}
		r.presets[name] = strings.TrimSpace(v)
	}
	return nil
}

// Resolve is total: it always returns a scope string (possibly empty,
// which means unscoped). Precedence, highest first: explicit override,
// a product-site URL found in the mention text (path only, query
// dropped), then the named preset with "faqs" as the fallback.
func (r *Resolver) Resolve(preset, override, mentionText string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	if path, ok := r.productPath(mentionText); ok {
		return path
	}
	return r.forPreset(preset)
}

func (r *Resolver) forPreset(preset string) string {
	p := strings.ToLower(strings.TrimSpace(preset))
	if v, ok := r.presets[p]; ok {
		return v
	}
	return r.presets[DefaultPreset]
}

// productPath extracts the path component of the first product-site
// URL in the text. The query string is dropped so the scope stays
// stable across tracking parameters.
func (r *Resolver) productPath(text string) (string, bool) {
	m := r.siteRe.FindString(text)
	if m == "" {
		return "", false
	}
	u, err := url.Parse(m)
	if err != nil {
		return "", false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return path, true
}
