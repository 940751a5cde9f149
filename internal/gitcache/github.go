package gitcache

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const githubAPIBase = "https://api.github.com"

// githubContent is one item returned by the GitHub contents API.
type githubContent struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int    `json:"size"`
	DownloadURL string `json:"download_url"`
}

// GitHubFetcher fetches git refs through the GitHub contents API.
type GitHubFetcher struct {
	restyClient *resty.Client
	baseURL     string
}

// NewGitHubFetcher creates a fetcher. The token can be empty for public
// repositories.
func NewGitHubFetcher(token string) *GitHubFetcher {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(2 * time.Second)
	if token != "" {
		client.SetHeader("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	client.SetHeader("User-Agent", "ai-toolbox/1.0")

	return &GitHubFetcher{
		restyClient: client,
		baseURL:     githubAPIBase,
	}
}

// SetBaseURL overrides the API endpoint. Intended for tests.
func (f *GitHubFetcher) SetBaseURL(base string) {
	f.baseURL = strings.TrimSuffix(base, "/")
}

// refParts is the decomposition of a supported git ref.
type refParts struct {
	Owner  string
	Repo   string
	Branch string
	Path   string
}

// parseRef understands GitHub URLs ("https://github.com/owner/repo",
// optionally with "/tree/<branch>[/<path>]") and the short
// "owner/repo[@branch]" form.
func parseRef(ref string) (*refParts, error) {
	raw := strings.TrimSpace(ref)

	if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "github.com/") {
		// Short form: owner/repo[@branch]
		branch := ""
		if at := strings.LastIndex(raw, "@"); at >= 0 {
			branch = raw[at+1:]
			raw = raw[:at]
		}
		parts := strings.Split(strings.Trim(raw, "/"), "/")
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return &refParts{Owner: parts[0], Repo: parts[1], Branch: branch}, nil
		}
		return nil, fmt.Errorf("unsupported git ref '%s'", ref)
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid git ref '%s': %w", ref, err)
	}
	if !strings.Contains(parsed.Host, "github.com") {
		return nil, fmt.Errorf("unsupported git host '%s'", parsed.Host)
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 {
		return nil, fmt.Errorf("git ref '%s' is missing owner/repo", ref)
	}
	out := &refParts{Owner: parts[0], Repo: parts[1]}
	if len(parts) >= 4 && parts[2] == "tree" {
		out.Branch = parts[3]
		out.Path = strings.Join(parts[4:], "/")
	}
	return out, nil
}

// RefWithSubpath narrows ref to one of its subtrees. Used when a
// repository hosts several skills and only one of them gets installed;
// the stored source ref must re-fetch just that bundle.
func RefWithSubpath(ref, subpath string) (string, error) {
	sub := path.Clean(strings.TrimSpace(subpath))
	if sub == "" || sub == "." {
		return ref, nil
	}
	parts, err := parseRef(ref)
	if err != nil {
		return "", err
	}
	branch := parts.Branch
	if branch == "" {
		branch = "HEAD"
	}
	if parts.Path != "" {
		sub = path.Join(parts.Path, sub)
	}
	return fmt.Sprintf("https://github.com/%s/%s/tree/%s/%s", parts.Owner, parts.Repo, branch, sub), nil
}

// Fetch materializes the ref's content tree into dest.
func (f *GitHubFetcher) Fetch(ctx context.Context, ref, dest string) error {
	parts, err := parseRef(ref)
	if err != nil {
		return err
	}

	contents, err := f.listContents(ctx, parts, parts.Path)
	if err != nil {
		return err
	}
	return f.downloadRecursive(ctx, parts, contents, dest)
}

func (f *GitHubFetcher) listContents(ctx context.Context, parts *refParts, path string) ([]githubContent, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/contents/%s", f.baseURL, parts.Owner, parts.Repo, path)
	if parts.Branch != "" {
		apiURL += "?ref=" + url.QueryEscape(parts.Branch)
	}

	var contents []githubContent
	resp, err := f.restyClient.R().
		SetContext(ctx).
		SetResult(&contents).
		Get(apiURL)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}

	if resp.StatusCode() == http.StatusForbidden && strings.Contains(resp.String(), "rate limit") {
		return nil, fmt.Errorf("GitHub API rate limit exceeded; configure a token via 'ai-toolbox config set github_token <token>'")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("API returned %d for %s/%s/%s", resp.StatusCode(), parts.Owner, parts.Repo, path)
	}
	return contents, nil
}

func (f *GitHubFetcher) downloadRecursive(ctx context.Context, parts *refParts, contents []githubContent, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	for _, content := range contents {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(destDir, content.Name)

		switch content.Type {
		case "dir":
			sub, err := f.listContents(ctx, parts, content.Path)
			if err != nil {
				return err
			}
			if err := f.downloadRecursive(ctx, parts, sub, target); err != nil {
				return err
			}
		case "file":
			if err := f.downloadFile(ctx, content.DownloadURL, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *GitHubFetcher) downloadFile(ctx context.Context, downloadURL, dest string) error {
	resp, err := f.restyClient.R().
		SetContext(ctx).
		Get(downloadURL)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("download returned %d for %s", resp.StatusCode(), downloadURL)
	}
	if err := os.WriteFile(dest, resp.Body(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}
