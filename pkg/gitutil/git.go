// Package gitutil shells out to git for dependency checkouts.
package gitutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/matzehuels/depstack/pkg/errors"
)

// RefKind selects how a git reference is interpreted.
type RefKind int

const (
	// RefDefault checks out the remote HEAD.
	RefDefault RefKind = iota
	// RefBranch checks out a named branch.
	RefBranch
	// RefTag checks out a named tag.
	RefTag
	// RefRevision checks out an exact commit.
	RefRevision
)

// Ref is a git reference: a kind plus its value (empty for RefDefault).
type Ref struct {
	Kind  RefKind
	Value string
}

// String returns the fetch spec for the reference.
func (r Ref) String() string {
	switch r.Kind {
	case RefBranch, RefTag, RefRevision:
		return r.Value
	default:
		return "HEAD"
	}
}

// Git runs git subprocesses. The zero value is usable.
type Git struct{}

// New returns a Git collaborator.
func New() *Git { return &Git{} }

// Checkout materializes url at ref into dir. The directory is created if
// absent. A shallow fetch of the single reference is used, so dir is a
// detached working tree rather than a full clone.
func (g *Git) Checkout(dir, url string, ref Ref) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeGit, err, "create %s", dir)
	}
	if err := run(dir, "init"); err != nil {
		return err
	}
	if err := run(dir, "fetch", "--depth", "1", url, ref.String()); err != nil {
		return err
	}
	return run(dir, "checkout", "-qf", "FETCH_HEAD")
}

// CurrentRevision returns the commit hash checked out in dir.
func (g *Git) CurrentRevision(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = filepath.Clean(dir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeGit, err, "git rev-parse in %s: %s", dir, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

func run(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = filepath.Clean(dir)
	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrap(errors.ErrCodeGit, err, "git %s in %s: %s", args[0], dir, strings.TrimSpace(string(output)))
	}
	return nil
}
