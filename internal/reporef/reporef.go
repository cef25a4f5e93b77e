// Package reporef implements the total parser for the repo source DSL
// described in spec.md §6: every input string maps to exactly one of
// {GitHub shorthand, HTTPS/SSH URL, local path} or a parse error.
package reporef

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind tags the resolved variant of a RepoRef.
type Kind string

const (
	KindGitHub Kind = "github"
	KindURL    Kind = "url"
	KindLocal  Kind = "local"
)

// Ref is the parsed, total representation of a repo source string.
type Ref struct {
	Kind Kind

	// Populated for KindGitHub and KindURL.
	CanonicalURL string // e.g. "https://github.com/owner/repo.git"
	Ref          string // branch or tag; defaults to "main" when unspecified

	// Populated for KindLocal.
	Path string // absolute path

	// Raw is the original input string, kept for diagnostics.
	Raw string
}

var (
	ghShorthand   = regexp.MustCompile(`^gh:([^/@]+)/([^/@]+)(?:@(.+))?$`)
	sshGitHub     = regexp.MustCompile(`^git@github\.com:([^/]+)/([^/@]+?)(?:\.git)?(?:@(.+))?$`)
	bareGitHubURL = regexp.MustCompile(`^github\.com[:/]([^/]+)/([^/@]+?)(?:\.git)?(?:@(.+))?$`)
	httpGitHubURL = regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/]+)/([^/@]+?)(?:\.git)?(?:@(.+))?$`)
	bareOwnerRepo = regexp.MustCompile(`^([A-Za-z0-9_-]+)/([A-Za-z0-9_-]+)$`)
	httpScheme    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
)

const defaultRef = "main"

// Parse is total over strings: every input returns either a Ref or a
// descriptive error, per the rules in spec.md §6.
func Parse(s string) (Ref, error) {
	if strings.TrimSpace(s) == "" {
		return Ref{}, fmt.Errorf("reporef: empty source string")
	}

	body, explicitRef, hasExplicitRef := splitTrailingRef(s)

	// gh:OWNER/REPO[@REF]
	if m := ghShorthand.FindStringSubmatch(s); m != nil {
		return githubRef(s, m[1], m[2], m[3]), nil
	}

	// git@github.com:OWNER/REPO[.git][@REF]
	if m := sshGitHub.FindStringSubmatch(s); m != nil {
		return githubRef(s, m[1], m[2], m[3]), nil
	}

	// github.com:OWNER/REPO[.git] and github.com/OWNER/REPO[.git]
	if m := bareGitHubURL.FindStringSubmatch(s); m != nil {
		return githubRef(s, m[1], m[2], m[3]), nil
	}

	// https?://... github or otherwise
	if httpScheme.MatchString(body) {
		if m := httpGitHubURL.FindStringSubmatch(s); m != nil {
			return githubRef(s, m[1], m[2], m[3]), nil
		}
		url := body
		if !strings.HasSuffix(url, ".git") {
			url += ".git"
		}
		ref := defaultRef
		if hasExplicitRef {
			ref = explicitRef
		}
		return Ref{Kind: KindURL, CanonicalURL: url, Ref: ref, Raw: s}, nil
	}

	// Absolute or relative existing local path.
	if looksLikePath(body) {
		abs, err := filepath.Abs(body)
		if err == nil {
			if info, statErr := os.Stat(abs); statErr == nil {
				_ = info
				return Ref{Kind: KindLocal, Path: abs, Raw: s}, nil
			}
		}
	}

	// Bare OWNER/REPO (no dots, no colons) -> github.
	if m := bareOwnerRepo.FindStringSubmatch(body); m != nil && !strings.Contains(body, ".") {
		ref := defaultRef
		if hasExplicitRef {
			ref = explicitRef
		}
		return githubRefWithRef(s, m[1], m[2], ref), nil
	}

	// Still allow an existing local path even without a leading ./ or /.
	if abs, err := filepath.Abs(body); err == nil {
		if _, statErr := os.Stat(abs); statErr == nil {
			return Ref{Kind: KindLocal, Path: abs, Raw: s}, nil
		}
	}

	return Ref{}, fmt.Errorf("reporef: cannot parse repo source %q", s)
}

func looksLikePath(s string) bool {
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || s == "." || s == ".."
}

// splitTrailingRef splits "@REF" off the end of s, but only when:
//   - it is the last "@" in the string,
//   - the prefix is not an SSH git URL (git@host:...), and
//   - the prefix does not contain "://".
func splitTrailingRef(s string) (prefix, ref string, ok bool) {
	idx := strings.LastIndex(s, "@")
	if idx <= 0 {
		return s, "", false
	}
	prefix = s[:idx]
	candidateRef := s[idx+1:]
	if candidateRef == "" {
		return s, "", false
	}
	if strings.HasPrefix(prefix, "git@") {
		return s, "", false
	}
	if strings.Contains(prefix, "://") {
		return s, "", false
	}
	return prefix, candidateRef, true
}

func githubRef(raw, owner, repo, ref string) Ref {
	if ref == "" {
		ref = defaultRef
	}
	return githubRefWithRef(raw, owner, repo, ref)
}

func githubRefWithRef(raw, owner, repo, ref string) Ref {
	repo = strings.TrimSuffix(repo, ".git")
	return Ref{
		Kind:         KindGitHub,
		CanonicalURL: fmt.Sprintf("https://github.com/%s/%s.git", owner, repo),
		Ref:          ref,
		Raw:          raw,
	}
}

// String renders the canonical form of a Ref, used for round-trip testing
// (spec.md §8: stringify(parse(s)) round-trips to the canonical URL form).
func (r Ref) String() string {
	switch r.Kind {
	case KindGitHub, KindURL:
		return r.CanonicalURL
	case KindLocal:
		return r.Path
	default:
		return r.Raw
	}
}
