// Package vcs is the version-control surface the bridge consumes: local
// working copies of remote repositories with resolve, read-at-revision,
// commit and optimistic push.
package vcs

import (
	"context"
	"errors"
	"time"
)

// ErrNonFastForward reports a push rejected because the remote ref moved.
// Callers re-fetch, re-apply and retry a bounded number of times.
var ErrNonFastForward = errors.New("non-fast-forward push")

// Commit is the metadata of one commit.
type Commit struct {
	Hash    string
	Author  string
	Email   string
	Message string
	When    time.Time
}

// Repository is a materialized working copy.
type Repository interface {
	// Dir returns the working copy's path on disk.
	Dir() string

	// ResolveRef resolves a ref name to a commit hash.
	ResolveRef(ctx context.Context, ref string) (string, error)

	// ReadFile returns a file's content at the given revision.
	ReadFile(ctx context.Context, revision, path string) ([]byte, error)

	// CommitsBetween lists the commits reachable from "to" but not from
	// "from", oldest first.
	CommitsBetween(ctx context.Context, from, to string) ([]Commit, error)

	// FetchCheckout fetches from origin and hard-resets the working copy
	// to the remote state of the given ref.
	FetchCheckout(ctx context.Context, ref string) error

	// CommitAll stages every change in the working copy and commits it,
	// returning the new commit hash.
	CommitAll(ctx context.Context, message, authorName, authorEmail string) (string, error)

	// Push publishes local commits. A rejected update returns an error
	// wrapping ErrNonFastForward.
	Push(ctx context.Context) error
}

// Client materializes working copies.
type Client interface {
	// Materialize clones url at ref into dir, or refreshes an existing
	// working copy in dir.
	Materialize(ctx context.Context, url, ref, dir string) (Repository, error)
}
