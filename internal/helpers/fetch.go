package helpers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anacrolix/torrent"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/go-github/v57/github"
	"go.starlark.net/starlark"
	"golang.org/x/oauth2"

	"github.com/levitate-pkg/recipe-core/internal/httputil"
)

const fetchTimeout = 5 * time.Minute

// download(url, dest) fetches url into a build_dir-relative path using the
// SSRF-hardened client, refusing redirects off HTTPS or into private address
// space.
func (h *helperSet) download(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	var url, dest string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "url", &url, "dest", &dest); err != nil {
		return nil, err
	}

	destPath := dest
	if !filepath.IsAbs(destPath) {
		destPath = filepath.Join(ctx.BuildDir, dest)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, fmt.Errorf("download: creating parent of %s: %w", dest, err)
	}

	client := httputil.NewSecureClient(httputil.DefaultOptions())

	reqCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download: building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: %s: HTTP %d", url, resp.StatusCode)
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("download: creating %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return nil, fmt.Errorf("download: writing %s: %w", dest, err)
	}
	return starlark.None, nil
}

// http_get(url) returns the body of a GET request as a string, using the
// same hardened client as download.
func (h *helperSet) httpGet(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if _, err := contextFrom(thread); err != nil {
		return nil, err
	}
	url, err := unpackArgs1(b.Name(), args, kwargs, "url")
	if err != nil {
		return nil, err
	}

	client := httputil.NewSecureClient(httputil.DefaultOptions())
	reqCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("http_get: building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http_get: %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http_get: %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http_get: reading response: %w", err)
	}
	return starlark.String(body), nil
}

// git_clone(url, dest, ref = "") clones a git repository into a
// build_dir-relative directory. When ref is given it is checked out first
// as a commit hash, then as a local branch name; tag names are not
// resolved.
func (h *helperSet) gitClone(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	var url, dest, ref string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "url", &url, "dest", &dest, "ref?", &ref); err != nil {
		return nil, err
	}

	destPath := dest
	if !filepath.IsAbs(destPath) {
		destPath = filepath.Join(ctx.BuildDir, dest)
	}

	cloneCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, destPath, false, &gogit.CloneOptions{
		URL:   url,
		Depth: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("git_clone: %s: %w", url, err)
	}

	if ref != "" {
		worktree, err := repo.Worktree()
		if err != nil {
			return nil, fmt.Errorf("git_clone: opening worktree: %w", err)
		}
		if err := worktree.Checkout(&gogit.CheckoutOptions{
			Hash: plumbing.NewHash(ref),
		}); err != nil {
			if err := worktree.Checkout(&gogit.CheckoutOptions{
				Branch: plumbing.NewBranchReferenceName(ref),
			}); err != nil {
				return nil, fmt.Errorf("git_clone: checking out %s: %w", ref, err)
			}
		}
	}

	return starlark.None, nil
}

// torrent(source, dest, timeout_seconds = 300) downloads a torrent's
// content, given source as a magnet link or a .torrent file path, into a
// build_dir-relative directory and returns once all files have completed.
func (h *helperSet) torrentFetch(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ctx, err := contextFrom(thread)
	if err != nil {
		return nil, err
	}
	var source, dest string
	timeoutSeconds := 300
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"source", &source, "dest", &dest, "timeout_seconds?", &timeoutSeconds); err != nil {
		return nil, err
	}

	destPath := dest
	if !filepath.IsAbs(destPath) {
		destPath = filepath.Join(ctx.BuildDir, dest)
	}
	if err := os.MkdirAll(destPath, 0o755); err != nil {
		return nil, fmt.Errorf("torrent: creating %s: %w", dest, err)
	}

	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = destPath
	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("torrent: starting client: %w", err)
	}
	defer client.Close()

	var t *torrent.Torrent
	if strings.HasPrefix(source, "magnet:") {
		t, err = client.AddMagnet(source)
	} else {
		t, err = client.AddTorrentFromFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("torrent: adding %s: %w", source, err)
	}

	select {
	case <-t.GotInfo():
	case <-time.After(time.Duration(timeoutSeconds) * time.Second):
		return nil, fmt.Errorf("torrent: timed out waiting for metadata for %s", source)
	}

	t.DownloadAll()

	deadline := time.After(time.Duration(timeoutSeconds) * time.Second)
	for {
		if t.BytesMissing() == 0 {
			return starlark.None, nil
		}
		select {
		case <-deadline:
			return nil, fmt.Errorf("torrent: timed out downloading %s (%d bytes remaining)", source, t.BytesMissing())
		case <-time.After(time.Second):
		}
	}
}

// githubLatestRelease(repo) returns the tag name of the latest GitHub
// release for "owner/repo", authenticating with GITHUB_TOKEN when set to
// avoid the stricter unauthenticated rate limit.
func (h *helperSet) githubLatestRelease(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if _, err := contextFrom(thread); err != nil {
		return nil, err
	}
	repo, err := unpackArgs1(b.Name(), args, kwargs, "repo")
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("github_latest_release: invalid repo %q, expected owner/repo", repo)
	}

	var httpClient *http.Client
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	client := github.NewClient(httpClient)

	reqCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	release, _, err := client.Repositories.GetLatestRelease(reqCtx, parts[0], parts[1])
	if err != nil {
		return nil, fmt.Errorf("github_latest_release: %s: %w", repo, err)
	}
	if release.TagName == nil {
		return nil, fmt.Errorf("github_latest_release: %s: release has no tag name", repo)
	}
	return starlark.String(*release.TagName), nil
}
