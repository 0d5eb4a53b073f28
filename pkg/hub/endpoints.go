package hub

import (
	"fmt"
	"net/url"
	"strings"

	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
)

const (
	// DefaultEndpoint is the public Hugging Face Hub endpoint.
	DefaultEndpoint = "https://huggingface.co"

	// DefaultRevision is the revision used when a URI does not name one.
	DefaultRevision = "main"

	// URIPrefix is the scheme for hub URIs, e.g.
	// huggingface://Doubiiu/DynamiCrafter/model.ckpt
	URIPrefix = "huggingface://"
)

// URI identifies a single file in a hub repository.
type URI struct {
	Owner    string
	Repo     string
	Revision string
	File     string
}

// RepoID returns the owner/repo pair.
func (u URI) RepoID() string {
	return u.Owner + "/" + u.Repo
}

func (u URI) String() string {
	if u.Revision != DefaultRevision {
		return fmt.Sprintf("%s%s/%s@%s/%s", URIPrefix, u.Owner, u.Repo, u.Revision, u.File)
	}
	return fmt.Sprintf("%s%s/%s/%s", URIPrefix, u.Owner, u.Repo, u.File)
}

// ParseURI parses a huggingface:// URI into its parts. The accepted forms are
// owner/repo/path... and owner/repo@revision/path...
func ParseURI(raw string) (URI, error) {
	if !strings.HasPrefix(raw, URIPrefix) {
		return URI{}, errs.New(errs.ErrorTypeUnknown, fmt.Sprintf("not a hub URI: %s", raw))
	}

	rest := strings.TrimPrefix(raw, URIPrefix)
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return URI{}, errs.New(errs.ErrorTypeUnknown, fmt.Sprintf("malformed hub URI: %s", raw))
	}

	u := URI{
		Owner:    parts[0],
		Repo:     parts[1],
		Revision: DefaultRevision,
		File:     parts[2],
	}

	if idx := strings.Index(u.Repo, "@"); idx >= 0 {
		u.Revision = u.Repo[idx+1:]
		u.Repo = u.Repo[:idx]
		if u.Revision == "" || u.Repo == "" {
			return URI{}, errs.New(errs.ErrorTypeUnknown, fmt.Sprintf("malformed hub URI: %s", raw))
		}
	}

	return u, nil
}

// ResolveURL constructs the download URL for a file in a repository, e.g.
// https://huggingface.co/Doubiiu/DynamiCrafter/resolve/main/model.ckpt
func ResolveURL(endpoint, repoID, revision, file string) string {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if revision == "" {
		revision = DefaultRevision
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	escaped := make([]string, 0, 4)
	for _, seg := range strings.Split(file, "/") {
		escaped = append(escaped, url.PathEscape(seg))
	}

	return fmt.Sprintf("%s/%s/resolve/%s/%s",
		endpoint, repoID, url.PathEscape(revision), strings.Join(escaped, "/"))
}
