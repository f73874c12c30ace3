// Package vcs is the versioned-file repository backend dumps are committed
// through.
package vcs

import (
	"errors"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

type Backend interface {
	Commit(message string, push bool) error
}

// NopBackend discards commits; used when the output directory is not a
// versioned repository and in tests.
type NopBackend struct{}

func (NopBackend) Commit(string, bool) error { return nil }

type GitConfig struct {
	Path string
	// URL, when set, is cloned into Path if no repository exists there yet.
	URL         string
	AuthorName  string
	AuthorEmail string
}

type GitBackend struct {
	cfg GitConfig
}

func NewGitBackend(cfg GitConfig) *GitBackend {
	if cfg.AuthorName == "" {
		cfg.AuthorName = "gitversions"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "gitversions@localhost"
	}
	return &GitBackend{cfg: cfg}
}

// Repo opens the backing repository, cloning or initializing it on first
// use.
func (b *GitBackend) Repo() (*git.Repository, error) {
	repo, err := git.PlainOpen(b.cfg.Path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, err
	}
	if b.cfg.URL != "" {
		return git.PlainClone(b.cfg.Path, false, &git.CloneOptions{URL: b.cfg.URL})
	}
	return git.PlainInit(b.cfg.Path, false)
}

func (b *GitBackend) Commit(message string, push bool) error {
	repo, err := b.Repo()
	if err != nil {
		return fmt.Errorf("open backup repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return err
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  b.cfg.AuthorName,
			Email: b.cfg.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return err
	}

	if !push {
		return nil
	}
	if err := repo.Push(&git.PushOptions{}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}
