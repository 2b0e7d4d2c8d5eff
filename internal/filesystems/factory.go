package filesystems

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// NewFileSystem opens a build context from the given URI.
// Supports:
// - /path/to/local/dir or file:///path/to/local/dir
// - github://owner/repo[/tree/ref]
// - git://github.com/owner/repo[#ref] or git://owner/repo
//
// Remote contexts are cloned; callers should release them with Cleanup
// when the returned FileSystem implements Cleaner.
func NewFileSystem(ctx context.Context, uri string) (FileSystem, error) {
	if !strings.Contains(uri, "://") {
		if _, err := filepath.Abs(uri); err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", uri, err)
		}
		return NewLocalFS(), nil
	}

	parsedURL, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid URI %s: %w", uri, err)
	}

	switch parsedURL.Scheme {
	case "file":
		return NewLocalFS(), nil

	case "github":
		return openGitHubURL(ctx, parsedURL)

	case "git":
		return openGitURL(ctx, parsedURL)

	default:
		return nil, fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
}

// openGitHubURL clones github://owner/repo[/tree/ref] URLs
func openGitHubURL(ctx context.Context, u *url.URL) (FileSystem, error) {
	owner := u.Host
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if owner == "" || len(parts) < 1 || parts[0] == "" {
		return nil, fmt.Errorf("invalid GitHub URL format, expected: github://owner/repo[/tree/ref]")
	}

	ref := ""
	if len(parts) >= 3 && parts[1] == "tree" {
		ref = parts[2]
	}

	gitFS, err := NewGitFS(ctx, fmt.Sprintf("https://github.com/%s/%s", owner, parts[0]), ref)
	if err != nil {
		return nil, fmt.Errorf("failed to create git filesystem: %w", err)
	}
	return gitFS, nil
}

// openGitURL clones git://owner/repo or git://host/owner/repo URLs
func openGitURL(ctx context.Context, u *url.URL) (FileSystem, error) {
	var gitURL string

	switch {
	case u.Host != "" && u.Host != "github.com" && strings.Count(u.Path, "/") == 1:
		// git://owner/repo shorthand for GitHub
		gitURL = fmt.Sprintf("https://github.com/%s/%s", u.Host, strings.Trim(u.Path, "/"))
	case u.Host == "":
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid git URL format, expected: git://owner/repo or git://github.com/owner/repo")
		}
		gitURL = fmt.Sprintf("https://github.com/%s/%s", parts[0], parts[1])
	default:
		gitURL = fmt.Sprintf("https://%s%s", u.Host, u.Path)
	}

	gitFS, err := NewGitFS(ctx, gitURL, u.Fragment)
	if err != nil {
		return nil, fmt.Errorf("failed to create git filesystem: %w", err)
	}
	return gitFS, nil
}

// GetBasePath returns the context root to use with the filesystem returned
// by NewFileSystem for the same URI.
func GetBasePath(uri string) string {
	if !strings.Contains(uri, "://") {
		return uri
	}

	parsedURL, err := url.Parse(uri)
	if err != nil {
		return uri
	}

	switch parsedURL.Scheme {
	case "file":
		return parsedURL.Path
	case "github":
		// github://owner/repo/tree/ref/sub/dir selects a subdirectory
		parts := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
		if len(parts) > 3 && parts[1] == "tree" {
			return strings.Join(parts[3:], "/")
		}
		return "."
	case "git":
		return "."
	default:
		return uri
	}
}
