package baseline

import (
	"errors"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	pkgerrors "github.com/pkg/errors"
)

// Git uses the content of the file in the commit at HEAD of the
// repository containing it. Files outside repositories, untracked files
// and files in repositories without commits have no baseline.
type Git struct{}

func (Git) Baseline(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", pkgerrors.WithStack(err)
	}
	repo, err := git.PlainOpenWithOptions(filepath.Dir(abs), &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", pkgerrors.Wrapf(ErrNoBaseline, "%s: not in a git repository", path)
	}
	if err != nil {
		return "", pkgerrors.Wrapf(err, "%s: open repository", path)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return "", pkgerrors.Wrapf(err, "%s: open worktree", path)
	}
	rel, err := filepath.Rel(worktree.Filesystem.Root(), abs)
	if err != nil {
		return "", pkgerrors.WithStack(err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", pkgerrors.Wrapf(ErrNoBaseline, "%s: no commits", path)
	}
	if err != nil {
		return "", pkgerrors.Wrapf(err, "%s: resolve HEAD", path)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return "", pkgerrors.Wrapf(err, "%s: load commit %v", path, head.Hash())
	}
	file, err := commit.File(filepath.ToSlash(rel))
	if errors.Is(err, object.ErrFileNotFound) {
		return "", pkgerrors.Wrapf(ErrNoBaseline, "%s: not tracked", path)
	}
	if err != nil {
		return "", pkgerrors.Wrapf(err, "%s: look up in commit %v", path, head.Hash())
	}
	contents, err := file.Contents()
	if err != nil {
		return "", pkgerrors.Wrapf(err, "%s: read blob", path)
	}
	return contents, nil
}
