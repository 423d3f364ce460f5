package gitutil

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	httpsRepoRegex = regexp.MustCompile(`^(?:https?://)?(?:www\.)?github\.com/([^/]+)/([^/]+?)(?:\.git)?(?:/.*)?$`)
	sshRepoRegex   = regexp.MustCompile(`^git@github\.com:([^/]+)/([^/]+?)(?:\.git)?$`)
	nameRegex      = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// ParseRepositoryRef extracts owner and repo from a repository reference.
// Supported forms: owner/repo, https://github.com/{owner}/{repo}[.git][/...]
// and git@github.com:{owner}/{repo}.git.
func ParseRepositoryRef(ref string) (owner, repo string, err error) {
	ref = strings.TrimSuffix(strings.TrimSpace(ref), "/")

	var matches []string
	switch {
	case strings.HasPrefix(ref, "git@"):
		matches = sshRepoRegex.FindStringSubmatch(ref)
	case strings.Contains(ref, "github.com"):
		matches = httpsRepoRegex.FindStringSubmatch(ref)
	default:
		parts := strings.Split(ref, "/")
		if len(parts) == 2 {
			matches = []string{ref, parts[0], parts[1]}
		}
	}
	if len(matches) != 3 {
		return "", "", fmt.Errorf("invalid repository reference %q, expected owner/repo or a GitHub URL", ref)
	}

	owner, repo = matches[1], matches[2]
	if !nameRegex.MatchString(owner) || !nameRegex.MatchString(repo) {
		return "", "", fmt.Errorf("invalid repository reference %q", ref)
	}
	return owner, repo, nil
}

// FullName formats owner and repo as "owner/repo".
func FullName(owner, repo string) string {
	return owner + "/" + repo
}
