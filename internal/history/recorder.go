// Package history keeps a git log of checklist snapshots.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"reconbook/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	authorName  = "reconbook"
	authorEmail = "reconbook@localhost"
	mainBranch  = "main"
)

// Entry is one commit that touched a checklist.
type Entry struct {
	Hash        string    `json:"hash"`
	Message     string    `json:"message"`
	Author      string    `json:"author"`
	CommittedAt time.Time `json:"committedAt"`
}

// Recorder commits checklist snapshots into a single repository, one file
// per target under checklists/. All targets share one worktree, so every
// operation holds mu.
type Recorder struct {
	repo *git.Repository
	root string
	mu   sync.Mutex
	now  func() time.Time
}

// Open opens the repository at dir, initialising it when missing.
func Open(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("init history repo: %w", err)
		}
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
			return nil, fmt.Errorf("set HEAD to main: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open history repo: %w", err)
	}

	return &Recorder{repo: repo, root: dir, now: time.Now}, nil
}

// Record writes the checklist snapshot and commits it. A snapshot identical
// to the committed one produces no commit and a zero Entry.
func (r *Recorder) Record(checklist store.Checklist, message string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, err := json.MarshalIndent(checklist, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	rel := snapshotPath(checklist.Target)
	abs := filepath.Join(r.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Entry{}, fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(abs, append(payload, '\n'), 0o644); err != nil {
		return Entry{}, fmt.Errorf("write snapshot: %w", err)
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return Entry{}, fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Add(rel); err != nil {
		return Entry{}, fmt.Errorf("git add snapshot: %w", err)
	}
	return r.commit(worktree, message)
}

// Remove commits the deletion of a target's snapshot. Targets that were
// never recorded are a no-op.
func (r *Recorder) Remove(target, message string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rel := snapshotPath(target)
	if _, err := os.Stat(filepath.Join(r.root, filepath.FromSlash(rel))); errors.Is(err, os.ErrNotExist) {
		return Entry{}, nil
	} else if err != nil {
		return Entry{}, fmt.Errorf("stat snapshot: %w", err)
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return Entry{}, fmt.Errorf("open worktree: %w", err)
	}
	if _, err := worktree.Remove(rel); err != nil {
		return Entry{}, fmt.Errorf("git rm snapshot: %w", err)
	}
	return r.commit(worktree, message)
}

// History lists commits that touched target, newest first. limit <= 0 means
// no limit.
func (r *Recorder) History(target string, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []Entry{}
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// nothing committed yet
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	rel := snapshotPath(target)
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash(), FileName: &rel})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	err = iter.ForEach(func(commitObj *object.Commit) error {
		entries = append(entries, toEntry(commitObj))
		if limit > 0 && len(entries) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return entries, nil
}

func (r *Recorder) commit(worktree *git.Worktree, message string) (Entry, error) {
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  r.now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return Entry{}, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := r.repo.CommitObject(hash)
	if err != nil {
		return Entry{}, fmt.Errorf("read commit object: %w", err)
	}
	return toEntry(commitObj), nil
}

// snapshotPath maps a target onto a single path segment; '/' in URL targets
// is escaped so each target stays one file.
func snapshotPath(target string) string {
	return path.Join("checklists", url.PathEscape(target)+".json")
}

func toEntry(commitObj *object.Commit) Entry {
	return Entry{
		Hash:        commitObj.Hash.String()[:7],
		Message:     strings.TrimSpace(commitObj.Message),
		Author:      commitObj.Author.Name,
		CommittedAt: commitObj.Author.When,
	}
}
