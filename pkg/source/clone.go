// Package source fetches the application template a deployment starts
// from.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/systemstart/launchpad/pkg/logging"
)

// Options describes the repository to clone. Exactly one of URL and Path
// is set.
type Options struct {
	URL string
	// Path is a local template directory copied instead of cloning.
	Path string
	// Ref is a branch name. Empty means the remote HEAD.
	Ref string
	// Depth limits history; 0 clones everything.
	Depth int
	// Token, when set, is sent as HTTP basic auth password.
	Token string
}

// Result reports what Clone did.
type Result struct {
	Cloned bool
	Head   string
}

// Cloner clones repositories with go-git.
type Cloner struct {
	logger *slog.Logger
}

func NewCloner() *Cloner {
	return &Cloner{logger: logging.Component("source")}
}

// Clone clones opts.URL, or copies opts.Path, into dir. A dir that already
// has content is left untouched and reported with Cloned=false.
func (c *Cloner) Clone(ctx context.Context, dir string, opts Options) (Result, error) {
	if opts.URL == "" && opts.Path == "" {
		return Result{}, errors.New("no repository URL or template path")
	}

	empty, err := isEmptyDir(dir)
	if err != nil {
		return Result{}, err
	}
	if !empty {
		c.logger.Info("work directory not empty, skipping clone", "dir", dir)
		return Result{}, nil
	}

	if opts.Path != "" {
		c.logger.Info("copying template", "path", opts.Path, "dir", dir)
		if err := copyTree(opts.Path, dir); err != nil {
			return Result{}, err
		}
		return Result{Cloned: true}, nil
	}

	cloneOpts := &git.CloneOptions{
		URL:          opts.URL,
		Depth:        opts.Depth,
		SingleBranch: opts.Depth > 0 || opts.Ref != "",
	}
	if opts.Ref != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Ref)
	}
	if opts.Token != "" {
		cloneOpts.Auth = &http.BasicAuth{Username: "x-access-token", Password: opts.Token}
	}

	c.logger.Info("cloning template", "url", opts.URL, "ref", opts.Ref, "dir", dir)
	repo, err := git.PlainCloneContext(ctx, dir, false, cloneOpts)
	if err != nil {
		return Result{}, fmt.Errorf("cloning %s: %w", opts.URL, err)
	}

	head, err := repo.Head()
	if err != nil {
		return Result{}, fmt.Errorf("resolving HEAD: %w", err)
	}
	return Result{Cloned: true, Head: head.Hash().String()}, nil
}

func isEmptyDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", dir, err)
	}
	return len(entries) == 0, nil
}
