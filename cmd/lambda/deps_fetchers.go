package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"lambda/interpreter-go/pkg/driver"
)

// gitFetcher clones git dependencies into <cache>/git/<name>/<commit>.
type gitFetcher struct {
	cacheDir string
}

func newGitFetcher(cacheDir string) *gitFetcher {
	if cacheDir == "" {
		return nil
	}
	return &gitFetcher{cacheDir: cacheDir}
}

// gitSourcePrefix is the part of a locked Source that identifies the pin
// without the resolved commit.
func gitSourcePrefix(url, ref string) string {
	return fmt.Sprintf("git+%s#%s@", url, ref)
}

func (g *gitFetcher) Fetch(name string, spec *driver.DependencySpec) (*driver.LockedPackage, error) {
	if g == nil {
		return nil, errors.New("git fetcher unavailable")
	}
	url := strings.TrimSpace(spec.Git)
	if url == "" {
		return nil, fmt.Errorf("dependency %q: git URL required", name)
	}
	revision, ref := gitRevisionFromSpec(spec)

	baseDir := filepath.Join(g.cacheDir, "git", driver.SanitizeName(name))
	commit, err := ensureGitCheckout(baseDir, url, revision)
	if err != nil {
		return nil, fmt.Errorf("dependency %q: %w", name, err)
	}
	checkoutDir := filepath.Join(baseDir, commit)
	checksum, err := dirChecksum(checkoutDir)
	if err != nil {
		return nil, fmt.Errorf("dependency %q: checksum %s: %w", name, checkoutDir, err)
	}
	return &driver.LockedPackage{
		Name:     driver.SanitizeName(name),
		Version:  commit,
		Source:   gitSourcePrefix(url, ref) + commit,
		Dir:      checkoutDir,
		Checksum: checksum,
	}, nil
}

// ensureGitCheckout makes sure baseDir/<commit> holds the tree revision
// resolves to and returns the commit.
func ensureGitCheckout(baseDir, url string, revision plumbing.Revision) (string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", err
	}
	if rev := string(revision); plumbing.IsHash(rev) {
		if info, err := os.Stat(filepath.Join(baseDir, rev)); err == nil && info.IsDir() {
			return rev, nil
		}
	}

	tmpDir, err := os.MkdirTemp(baseDir, "fetch-*")
	if err != nil {
		return "", err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }
	// PlainClone wants to create the directory itself.
	cleanup()

	repo, err := git.PlainClone(tmpDir, false, &git.CloneOptions{URL: url})
	if err != nil {
		cleanup()
		return "", fmt.Errorf("git clone %s: %w", url, err)
	}
	hash, err := repo.ResolveRevision(revision)
	if err != nil {
		cleanup()
		return "", fmt.Errorf("resolve revision %s: %w", revision, err)
	}
	commit := hash.String()
	targetDir := filepath.Join(baseDir, commit)
	if _, err := os.Stat(targetDir); err == nil {
		cleanup()
		return commit, nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		cleanup()
		return "", err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		cleanup()
		return "", fmt.Errorf("git checkout %s: %w", revision, err)
	}
	if err := os.Rename(tmpDir, targetDir); err != nil {
		cleanup()
		return "", err
	}
	return commit, nil
}

// gitRevisionFromSpec maps the manifest pin to a revision and the ref label
// recorded in the lockfile. Branches resolve through the clone's remote refs.
func gitRevisionFromSpec(spec *driver.DependencySpec) (plumbing.Revision, string) {
	switch {
	case strings.TrimSpace(spec.Rev) != "":
		rev := strings.TrimSpace(spec.Rev)
		return plumbing.Revision(rev), "rev=" + rev
	case strings.TrimSpace(spec.Tag) != "":
		tag := strings.TrimSpace(spec.Tag)
		return plumbing.Revision("refs/tags/" + tag), "tag=" + tag
	case strings.TrimSpace(spec.Branch) != "":
		branch := strings.TrimSpace(spec.Branch)
		return plumbing.Revision("refs/remotes/origin/" + branch), "branch=" + branch
	default:
		return plumbing.Revision("HEAD"), "HEAD"
	}
}

// dirChecksum hashes every file under path except git metadata, in walk order.
func dirChecksum(path string) (string, error) {
	h := sha256.New()
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		h.Write([]byte(filepath.ToSlash(rel)))
		h.Write([]byte{0})
		h.Write(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
