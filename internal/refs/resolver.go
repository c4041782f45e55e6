// Package refs resolves documentation request paths to canonical
// language/ref locations and keeps the list of known refs per repository.
package refs

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/quantmind-br/docgate/internal/domain"
	"golang.org/x/text/language"
)

// DefaultBranch is the ref used when no released tag applies
const DefaultBranch = "main"

// Params are the leading segments of a documentation request path
type Params struct {
	Lang  string
	Ref   string
	Splat string
}

// ParsePath splits "en/v1.0.0/guide/intro" into its first two segments and
// the remainder.
func ParsePath(p string) Params {
	parts := strings.SplitN(strings.Trim(p, "/"), "/", 3)
	var params Params
	params.Lang = parts[0]
	if len(parts) > 1 {
		params.Ref = parts[1]
	}
	if len(parts) > 2 {
		params.Splat = parts[2]
	}
	return params
}

// IsLanguageCode reports whether s is a lowercase ISO 639-1 code
func IsLanguageCode(s string) bool {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'z' || s[1] < 'a' || s[1] > 'z' {
		return false
	}
	base, err := language.ParseBase(s)
	return err == nil && base.String() == s
}

// ResolveRedirect returns the canonical path for p, or false when p already
// names a language and a known ref.
//
// Tags that are not valid versions are ignored for range matching.
// Prerelease tags only match ranges that name a prerelease. When no released
// tag exists, "latest" is the default branch.
func ResolveRedirect(set domain.RefSet, p Params, defaultLang string) (string, bool, error) {
	if p.Lang == "" {
		return "", false, domain.NewValidationError("lang", "first path segment is required")
	}

	tags := parseTags(set.Tags)

	if IsLanguageCode(p.Lang) {
		if p.Ref == "" {
			return join(p.Lang, latest(tags)), true, nil
		}

		if !set.Has(p.Ref) {
			if matched, ok := maxSatisfying(tags, p.Ref); ok {
				return join(p.Lang, matched, p.Splat), true, nil
			}
			if isVersion(p.Ref) {
				// an unknown version most likely means a stale ref list
				return join(p.Lang, DefaultBranch, p.Splat), true, nil
			}
			target := latest(tags)
			if target == DefaultBranch && p.Ref == DefaultBranch {
				// no release and no default branch: the missing ref surfaces
				// as not found when content is fetched
				return "", false, nil
			}
			return join(p.Lang, target, p.Ref, p.Splat), true, nil
		}

		return "", false, nil
	}

	ref, ok := p.Lang, set.Has(p.Lang)
	if !ok {
		ref, ok = maxSatisfying(tags, p.Lang)
	}
	if ok {
		return join(defaultLang, ref, p.Ref, p.Splat), true, nil
	}

	return join(defaultLang, DefaultBranch, p.Lang, p.Ref, p.Splat), true, nil
}

// tag is a repository tag with its parsed version
type tag struct {
	name    string
	version *semver.Version
}

func parseTags(names []string) []tag {
	tags := make([]tag, 0, len(names))
	for _, name := range names {
		v, err := parseVersion(name)
		if err != nil {
			continue
		}
		tags = append(tags, tag{name: name, version: v})
	}
	return tags
}

func parseVersion(s string) (*semver.Version, error) {
	return semver.StrictNewVersion(strings.TrimPrefix(s, "v"))
}

func isVersion(s string) bool {
	_, err := parseVersion(s)
	return err == nil
}

// latest returns the highest released tag, or the default branch
func latest(tags []tag) string {
	var best *tag
	for i := range tags {
		t := &tags[i]
		if t.version.Prerelease() != "" {
			continue
		}
		if best == nil || t.version.GreaterThan(best.version) {
			best = t
		}
	}
	if best == nil {
		return DefaultBranch
	}
	return best.name
}

// maxSatisfying returns the highest tag matching the range r
func maxSatisfying(tags []tag, r string) (string, bool) {
	c, err := semver.NewConstraint(r)
	if err != nil {
		return "", false
	}

	var best *tag
	for i := range tags {
		t := &tags[i]
		if !c.Check(t.version) {
			continue
		}
		if best == nil || t.version.GreaterThan(best.version) {
			best = t
		}
	}
	if best == nil {
		return "", false
	}
	return best.name, true
}

func join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}
