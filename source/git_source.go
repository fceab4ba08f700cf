package source

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sardine-ai/go-remote-flags/model"
	"github.com/sirupsen/logrus"
)

// GitSource is a Source that reads the flag listing from a file in a Git
// repository kept as an in-memory clone. The HEAD commit hash is the
// validator, so a pull that brings no new commit yields NotModified.
//
// Prefer a bucket source for production use: every fetch is a request
// against the Git host and counts toward its rate limits.
type GitSource struct {
	Name   string          // Name of the source
	URL    string          // Git repository URL
	Path   string          // File path inside the repository; may contain EnvPlaceholder. Defaults to "{env}.json"
	Branch string          // Branch to track; the remote HEAD when empty
	Auth   *http.BasicAuth // BasicAuth to use when cloning the Git repository

	mu            sync.Mutex       // Serializes clone/pull against the in-memory clone
	gitRepository *git.Repository  // Go-Git repository instance for the in-memory clone
	fs            billy.Filesystem // Filesystem to store the in-memory clone of the repository
}

// GetName returns the name of the source.
func (g *GitSource) GetName() string {
	if g.Name == "" {
		return "git"
	}
	return g.Name
}

func (g *GitSource) update(ctx context.Context) error {
	// If the in-memory clone of the Git repository does not exist, create it.
	if g.gitRepository == nil {
		fs := memfs.New()
		opts := &git.CloneOptions{URL: g.URL, Auth: g.Auth}
		if g.Branch != "" {
			opts.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
			opts.SingleBranch = true
		}
		logrus.Debugf("Cloning %s into memory", g.URL)
		r, err := git.CloneContext(ctx, memory.NewStorage(), fs, opts)
		if err != nil {
			return err
		}
		g.gitRepository = r
		g.fs = fs
		return nil
	}

	w, err := g.gitRepository.Worktree()
	if err != nil {
		return err
	}
	pullOptions := &git.PullOptions{Auth: g.Auth, Force: true}
	if g.Branch != "" {
		pullOptions.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
		pullOptions.SingleBranch = true
	}
	err = w.PullContext(ctx, pullOptions)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		logrus.Debug("Already up to date")
		return nil
	}
	return err
}

// Fetch clones or pulls the repository and reads the flag file when HEAD
// moved past req.Validator.
func (g *GitSource) Fetch(ctx context.Context, req Request) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.update(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return Result{}, transportError(g.GetName(), model.ReasonNetwork, err)
	}

	head, err := g.gitRepository.Head()
	if err != nil {
		return Result{}, transportError(g.GetName(), model.ReasonRead, err)
	}
	validator := head.Hash().String()
	if req.Validator != "" && req.Validator == validator {
		return NotModified(), nil
	}

	name := g.Path
	if name == "" {
		name = EnvPlaceholder + ".json"
	}
	name = strings.ReplaceAll(name, EnvPlaceholder, req.Config.Environment)

	// Open the flag file from the in-memory filesystem.
	file, err := g.fs.Open(name)
	if err != nil {
		return Result{}, transportError(g.GetName(), model.ReasonRead, err)
	}
	defer func(file billy.File) {
		err := file.Close()
		if err != nil {
			logrus.WithError(err).Error("error closing file")
		}
	}(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return Result{}, transportError(g.GetName(), model.ReasonRead, err)
	}
	return Updated(data, validator), nil
}
