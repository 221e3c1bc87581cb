// Package webrev publishes point-in-time patch snapshots to the
// archive-storage repository and hands out their public URLs.
package webrev

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bkyoung/review-bridge/internal/domain"
	"github.com/bkyoung/review-bridge/internal/vcs"
)

// Renderer produces the webrev artifact tree for a revision pair. The HTML
// renderer itself is an external collaborator; the publisher only owns
// placement and publication.
type Renderer interface {
	Render(ctx context.Context, baseHash, headHash, outDir string) error
}

// Config locates the archive-storage repository and the public mirror.
type Config struct {
	RepositoryURL string
	Ref           string
	WorkDir       string
	BaseURL       string
	BasePath      string
	LargeBlobMax  int64
	PushRetries   int
	AuthorName    string
	AuthorEmail   string
}

// Publisher pushes artifacts with optimistic concurrency.
type Publisher struct {
	cfg      Config
	client   vcs.Client
	renderer Renderer
	log      *logrus.Logger

	mu   sync.Mutex
	repo vcs.Repository
}

// New constructs a publisher.
func New(cfg Config, client vcs.Client, renderer Renderer, log *logrus.Logger) *Publisher {
	if cfg.PushRetries <= 0 {
		cfg.PushRetries = 3
	}
	return &Publisher{cfg: cfg, client: client, renderer: renderer, log: log}
}

// Generate renders the (base, head) artifact into scratch and publishes it
// under <base>/<pr-id>/<label>/, where the label is the conventional
// webrev.NN (or webrev.MM-NN) name for the ordinal. Re-invoking with the
// same inputs leaves the archive unchanged.
func (p *Publisher) Generate(ctx context.Context, pr domain.PullRequestID, baseHash, headHash string, ordinal int, kind, scratch string) (domain.WebrevArtifact, error) {
	artifact := domain.WebrevArtifact{
		PR:       pr,
		Ordinal:  ordinal,
		BaseHash: baseHash,
		HeadHash: headHash,
		Kind:     kind,
	}

	outDir := filepath.Join(scratch, "webrev")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return artifact, fmt.Errorf("webrev scratch: %w", err)
	}
	if err := p.renderer.Render(ctx, baseHash, headHash, outDir); err != nil {
		return artifact, fmt.Errorf("render webrev: %w", err)
	}
	if err := p.replaceLargeBlobs(outDir); err != nil {
		return artifact, err
	}

	rel := path.Join(p.cfg.BasePath, pr.Repository, strconv.Itoa(pr.Number), artifact.Label())
	artifact.URL = p.cfg.BaseURL + rel + "/"

	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < p.cfg.PushRetries; attempt++ {
		if err := p.refresh(ctx); err != nil {
			return artifact, err
		}
		target := filepath.Join(p.repo.Dir(), filepath.FromSlash(rel))
		same, err := treesEqual(outDir, target)
		if err != nil {
			return artifact, err
		}
		if same {
			// Already published, nothing to commit.
			return artifact, nil
		}
		if err := copyTree(outDir, target); err != nil {
			return artifact, err
		}
		message := fmt.Sprintf("Added webrev for %s ordinal %02d", pr, ordinal)
		if _, err := p.repo.CommitAll(ctx, message, p.cfg.AuthorName, p.cfg.AuthorEmail); err != nil {
			return artifact, err
		}
		err = p.repo.Push(ctx)
		if err == nil {
			return artifact, nil
		}
		if !errors.Is(err, vcs.ErrNonFastForward) {
			return artifact, err
		}
		p.log.WithFields(logrus.Fields{"pr": pr.String(), "ordinal": ordinal}).
			Info("webrev push lost a race, retrying")
		lastErr = err
	}
	return artifact, fmt.Errorf("webrev push lost after %d attempts: %w (%v)",
		p.cfg.PushRetries, domain.ErrConflict, lastErr)
}

// ArtifactURL returns the public URL an artifact with the given label is
// (or will be) served from.
func (p *Publisher) ArtifactURL(pr domain.PullRequestID, label string) string {
	return p.cfg.BaseURL + path.Join(p.cfg.BasePath, pr.Repository, strconv.Itoa(pr.Number), label) + "/"
}

// VerifyMirror checks once at startup that the public mirror answers,
// following redirects to the archive repository.
func (p *Publisher) VerifyMirror(ctx context.Context, client *http.Client) error {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL, nil)
	if err != nil {
		return fmt.Errorf("mirror request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("mirror unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mirror answered %d for %s", resp.StatusCode, p.cfg.BaseURL)
	}
	return nil
}

func (p *Publisher) refresh(ctx context.Context) error {
	if p.repo == nil {
		repo, err := p.client.Materialize(ctx, p.cfg.RepositoryURL, p.cfg.Ref, p.cfg.WorkDir)
		if err != nil {
			return err
		}
		p.repo = repo
		return nil
	}
	return p.repo.FetchCheckout(ctx, p.cfg.Ref)
}

// replaceLargeBlobs swaps any file above the configured threshold for a
// short human-readable notice.
func (p *Publisher) replaceLargeBlobs(dir string) error {
	if p.cfg.LargeBlobMax <= 0 {
		return nil
	}
	return filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() <= p.cfg.LargeBlobMax {
			return nil
		}
		notice := fmt.Sprintf("This file was too large to display (%d bytes).\n", info.Size())
		return os.WriteFile(file, []byte(notice), 0o644)
	})
}

// copyTree mirrors src into dst, replacing what was there.
func copyTree(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, file)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		return os.WriteFile(target, content, 0o644)
	})
}

// treesEqual reports whether dst already contains exactly the files of src.
func treesEqual(src, dst string) (bool, error) {
	if _, err := os.Stat(dst); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	equal := true
	err := filepath.WalkDir(src, func(file string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !equal {
			return err
		}
		rel, err := filepath.Rel(src, file)
		if err != nil {
			return err
		}
		want, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		got, err := os.ReadFile(filepath.Join(dst, rel))
		if err != nil || !bytes.Equal(want, got) {
			equal = false
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !equal {
		return false, nil
	}
	// Extra files in dst also break equality.
	err = filepath.WalkDir(dst, func(file string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !equal {
			return err
		}
		rel, err := filepath.Rel(dst, file)
		if err != nil {
			return err
		}
		if _, err := os.Stat(filepath.Join(src, rel)); err != nil {
			equal = false
		}
		return nil
	})
	return equal, err
}
