package vcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitClient implements Client backed by go-git.
type GitClient struct{}

// NewGitClient constructs a go-git backed VCS client.
func NewGitClient() *GitClient {
	return &GitClient{}
}

// Materialize clones url at ref into dir, or opens and refreshes an existing
// working copy.
func (c *GitClient) Materialize(ctx context.Context, url, ref, dir string) (Repository, error) {
	if _, err := os.Stat(dir); err == nil {
		repo, err := goGit.PlainOpen(dir)
		if err == nil {
			r := &gitRepository{repo: repo, dir: dir}
			if err := r.FetchCheckout(ctx, ref); err != nil {
				return nil, err
			}
			return r, nil
		}
	}

	repo, err := goGit.PlainCloneContext(ctx, dir, false, &goGit.CloneOptions{
		URL:           url,
		ReferenceName: plumbing.NewBranchReferenceName(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", url, err)
	}
	return &gitRepository{repo: repo, dir: dir}, nil
}

type gitRepository struct {
	repo *goGit.Repository
	dir  string
}

func (r *gitRepository) Dir() string {
	return r.dir
}

func (r *gitRepository) ResolveRef(ctx context.Context, ref string) (string, error) {
	candidates := []string{
		ref,
		fmt.Sprintf("refs/heads/%s", ref),
		fmt.Sprintf("refs/remotes/origin/%s", ref),
	}
	var lastErr error
	for _, candidate := range candidates {
		hash, err := r.repo.ResolveRevision(plumbing.Revision(candidate))
		if err != nil {
			lastErr = err
			continue
		}
		return hash.String(), nil
	}
	return "", fmt.Errorf("resolve ref %s: %w", ref, lastErr)
}

func (r *gitRepository) ReadFile(ctx context.Context, revision, path string) ([]byte, error) {
	commit, err := r.commitAt(revision)
	if err != nil {
		return nil, err
	}
	file, err := commit.File(path)
	if err != nil {
		return nil, fmt.Errorf("file %s at %s: %w", path, revision, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open %s at %s: %w", path, revision, err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", path, revision, err)
	}
	return content, nil
}

func (r *gitRepository) CommitsBetween(ctx context.Context, from, to string) ([]Commit, error) {
	toCommit, err := r.commitAt(to)
	if err != nil {
		return nil, err
	}
	// Everything reachable from "from" is excluded, not only "from" itself.
	excluded := map[plumbing.Hash]bool{}
	if fromCommit, ferr := r.commitAt(from); from != "" && ferr == nil {
		if fromIter, ferr := r.repo.Log(&goGit.LogOptions{From: fromCommit.Hash}); ferr == nil {
			_ = fromIter.ForEach(func(c *object.Commit) error {
				excluded[c.Hash] = true
				return nil
			})
			fromIter.Close()
		}
	}
	iter, err := r.repo.Log(&goGit.LogOptions{From: toCommit.Hash})
	if err != nil {
		return nil, fmt.Errorf("log from %s: %w", to, err)
	}
	defer iter.Close()

	var commits []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if excluded[c.Hash] {
			return nil
		}
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Email:   c.Author.Email,
			Message: c.Message,
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk commits: %w", err)
	}
	// Log walks newest first; callers want oldest first.
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

func (r *gitRepository) FetchCheckout(ctx context.Context, ref string) error {
	err := r.repo.FetchContext(ctx, &goGit.FetchOptions{})
	if err != nil && err != goGit.NoErrAlreadyUpToDate {
		return fmt.Errorf("fetch: %w", err)
	}
	hash, err := r.ResolveRef(ctx, fmt.Sprintf("refs/remotes/origin/%s", ref))
	if err != nil {
		// A ref that only exists locally (fresh repository) is fine.
		hash, err = r.ResolveRef(ctx, ref)
		if err != nil {
			return err
		}
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	if err := wt.Reset(&goGit.ResetOptions{
		Commit: plumbing.NewHash(hash),
		Mode:   goGit.HardReset,
	}); err != nil {
		return fmt.Errorf("reset to %s: %w", hash, err)
	}
	return nil
}

func (r *gitRepository) CommitAll(ctx context.Context, message, authorName, authorEmail string) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	if err := wt.AddWithOptions(&goGit.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}
	hash, err := wt.Commit(message, &goGit.CommitOptions{
		Author: &object.Signature{Name: authorName, Email: authorEmail},
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return hash.String(), nil
}

func (r *gitRepository) Push(ctx context.Context) error {
	err := r.repo.PushContext(ctx, &goGit.PushOptions{})
	if err == nil || err == goGit.NoErrAlreadyUpToDate {
		return nil
	}
	if strings.Contains(err.Error(), "non-fast-forward") {
		return fmt.Errorf("push: %w", ErrNonFastForward)
	}
	return fmt.Errorf("push: %w", err)
}

func (r *gitRepository) commitAt(revision string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", revision, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", revision, err)
	}
	return commit, nil
}
