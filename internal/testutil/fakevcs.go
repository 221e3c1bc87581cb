// Package testutil holds in-memory fakes of the bridge's collaborator
// interfaces for use in tests.
package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bkyoung/review-bridge/internal/vcs"
)

// FakeRemote is the shared "server side" of a fake repository. Multiple
// working copies materialized from it race against the same tree, which is
// how tests provoke non-fast-forward pushes.
type FakeRemote struct {
	mu       sync.Mutex
	files    map[string][]byte
	version  int
	Messages []string

	// PushHook, when set, runs once at the start of the next push, before
	// the stale check. Tests use it to interleave a competing commit.
	PushHook func(r *FakeRemote)
}

// NewFakeRemote returns an empty remote.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{files: map[string][]byte{}}
}

// Seed writes a file directly into the remote tree, as if a prior commit
// created it.
func (r *FakeRemote) Seed(path string, content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = content
	r.version++
}

// File returns the remote content of path.
func (r *FakeRemote) File(path string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.files[path]
	return c, ok
}

// Files returns a copy of the remote tree.
func (r *FakeRemote) Files() map[string][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]byte, len(r.files))
	for k, v := range r.files {
		out[k] = v
	}
	return out
}

// CommitDirect applies a competing commit straight to the remote.
func (r *FakeRemote) CommitDirect(message string, files map[string][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitLocked(message, files)
}

func (r *FakeRemote) commitLocked(message string, files map[string][]byte) {
	for k, v := range files {
		r.files[k] = v
	}
	r.version++
	r.Messages = append(r.Messages, message)
}

// FakeVCS implements vcs.Client over a FakeRemote.
type FakeVCS struct {
	Remote *FakeRemote

	// RefHashes scripts ResolveRef answers.
	RefHashes map[string]string

	// FileAt scripts ReadFile answers: revision -> path -> content.
	FileAt map[string]map[string][]byte

	// Commits scripts CommitsBetween answers keyed "from..to".
	Commits map[string][]vcs.Commit
}

// NewFakeVCS returns a client over a fresh remote.
func NewFakeVCS() *FakeVCS {
	return &FakeVCS{
		Remote:    NewFakeRemote(),
		RefHashes: map[string]string{},
		FileAt:    map[string]map[string][]byte{},
		Commits:   map[string][]vcs.Commit{},
	}
}

// Materialize checks the remote tree out into dir.
func (c *FakeVCS) Materialize(ctx context.Context, url, ref, dir string) (vcs.Repository, error) {
	repo := &fakeRepo{client: c, dir: dir}
	if err := repo.FetchCheckout(ctx, ref); err != nil {
		return nil, err
	}
	return repo, nil
}

type fakeRepo struct {
	client         *FakeVCS
	dir            string
	fetchedVersion int
	pendingMessage string
	pendingFiles   map[string][]byte
	commitCount    int
}

func (r *fakeRepo) Dir() string { return r.dir }

func (r *fakeRepo) ResolveRef(ctx context.Context, ref string) (string, error) {
	if hash, ok := r.client.RefHashes[ref]; ok {
		return hash, nil
	}
	return "", fmt.Errorf("unknown ref %s", ref)
}

func (r *fakeRepo) ReadFile(ctx context.Context, revision, path string) ([]byte, error) {
	files, ok := r.client.FileAt[revision]
	if !ok {
		return nil, fmt.Errorf("unknown revision %s", revision)
	}
	content, ok := files[path]
	if !ok {
		return nil, fmt.Errorf("no file %s at %s", path, revision)
	}
	return content, nil
}

func (r *fakeRepo) CommitsBetween(ctx context.Context, from, to string) ([]vcs.Commit, error) {
	return r.client.Commits[from+".."+to], nil
}

func (r *fakeRepo) FetchCheckout(ctx context.Context, ref string) error {
	remote := r.client.Remote
	remote.mu.Lock()
	files := make(map[string][]byte, len(remote.files))
	for k, v := range remote.files {
		files[k] = v
	}
	r.fetchedVersion = remote.version
	remote.mu.Unlock()

	if err := os.RemoveAll(r.dir); err != nil {
		return err
	}
	for path, content := range files {
		full := filepath.Join(r.dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return err
		}
	}
	return os.MkdirAll(r.dir, 0o755)
}

func (r *fakeRepo) CommitAll(ctx context.Context, message, authorName, authorEmail string) (string, error) {
	files := map[string][]byte{}
	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(r.dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = content
		return nil
	})
	if err != nil {
		return "", err
	}
	r.pendingMessage = message
	r.pendingFiles = files
	r.commitCount++
	return fmt.Sprintf("fake%04d", r.commitCount), nil
}

func (r *fakeRepo) Push(ctx context.Context) error {
	remote := r.client.Remote
	remote.mu.Lock()
	if hook := remote.PushHook; hook != nil {
		remote.PushHook = nil
		remote.mu.Unlock()
		hook(remote)
		remote.mu.Lock()
	}
	defer remote.mu.Unlock()
	if remote.version != r.fetchedVersion {
		return fmt.Errorf("remote moved: %w", vcs.ErrNonFastForward)
	}
	remote.commitLocked(r.pendingMessage, r.pendingFiles)
	r.fetchedVersion = remote.version
	return nil
}
