// Package registry acquires registry-origin packages.
//
// Acquisition follows a three-way decision: a configured local filesystem
// registry is consulted first; otherwise, when a version is requested, the
// per-user download cache is checked; otherwise the remote registry HTTP
// protocol is spoken and the downloaded archive is unpacked into the cache
// unless the version the registry names is already there.
package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/depstack/pkg/errors"
	"github.com/matzehuels/depstack/pkg/manifest"
)

// Client resolves registry coordinates to local package directories.
type Client struct {
	settings Settings
	dl       Downloader
	log      *log.Logger
}

// NewClient creates a Client. logger may be nil, in which case the default
// logger is used.
func NewClient(settings Settings, dl Downloader, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{settings: settings, dl: dl, log: logger}
}

// Fetch returns the directory containing the package's sources, acquiring
// them if necessary.
func (c *Client) Fetch(ctx context.Context, namespace, name string, requested *semver.Version) (string, error) {
	if c.settings.Path != "" {
		return c.fetchLocal(namespace, name, requested)
	}
	return c.fetchRemote(ctx, namespace, name, requested)
}

// fetchLocal looks the package up under the local registry directory. No
// network access occurs on this path.
func (c *Client) fetchLocal(namespace, name string, requested *semver.Version) (string, error) {
	base := filepath.Join(c.settings.Path, namespace, name)

	if requested != nil {
		dir := filepath.Join(base, requested.String())
		if !hasManifest(dir) {
			return "", errors.New(errors.ErrCodeLocalRegistryMiss,
				"%s/%s@%s not found in local registry %s", namespace, name, requested, c.settings.Path)
		}
		c.log.Debug("local registry hit", "package", namespace+"/"+name, "version", requested)
		return dir, nil
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeNoVersions, err,
			"no versions of %s/%s in local registry %s", namespace, name, c.settings.Path)
	}

	var best *semver.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := semver.NewVersion(e.Name())
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeVersionParse, err,
				"local registry entry %s is not a version", filepath.Join(base, e.Name()))
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return "", errors.New(errors.ErrCodeNoVersions,
			"no versions of %s/%s in local registry %s", namespace, name, c.settings.Path)
	}

	dir := filepath.Join(base, best.String())
	if !hasManifest(dir) {
		return "", errors.New(errors.ErrCodeLocalRegistryMiss, "%s has no %s", dir, manifest.Filename)
	}
	c.log.Debug("local registry hit", "package", namespace+"/"+name, "version", best)
	return dir, nil
}

// fetchRemote speaks the registry HTTP protocol, using the per-user cache
// to avoid repeated downloads.
func (c *Client) fetchRemote(ctx context.Context, namespace, name string, requested *semver.Version) (string, error) {
	cacheDir := filepath.Join(c.settings.CachePath, namespace, name)

	if requested != nil {
		dir := filepath.Join(cacheDir, requested.String())
		if hasManifest(dir) {
			c.log.Debug("registry cache hit", "package", namespace+"/"+name, "version", requested)
			return dir, nil
		}
	}

	endpoint := joinURL(c.settings.URL, "packages", namespace, name)
	resp, err := c.dl.GetPkgData(ctx, endpoint, requested)
	if err != nil {
		return "", err
	}
	downloadURL, version, err := resp.Verify(requested != nil)
	if err != nil {
		return "", err
	}

	final := filepath.Join(cacheDir, version.String())
	if hasManifest(final) {
		c.log.Debug("registry cache hit", "package", namespace+"/"+name, "version", version)
		return final, nil
	}

	// A partial unpack from an earlier failed run is discarded wholesale.
	if err := os.RemoveAll(final); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "clear %s", final)
	}
	if err := os.MkdirAll(final, 0755); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create %s", final)
	}

	tmp := filepath.Join(os.TempDir(), "depstack-"+uuid.NewString()+".tar.gz")
	f, err := os.Create(tmp)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeTempFile, err, "create temporary download file")
	}
	f.Close()
	defer os.Remove(tmp)

	if !isAbsoluteURL(downloadURL) {
		downloadURL = joinURL(c.settings.URL, downloadURL)
	}
	c.log.Info("downloading", "package", namespace+"/"+name, "version", version)
	if err := c.dl.GetFile(ctx, downloadURL, tmp); err != nil {
		return "", err
	}
	if err := c.dl.Unpack(tmp, final); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "unpack %s/%s@%s", namespace, name, version)
	}
	return final, nil
}

func hasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, manifest.Filename))
	return err == nil && info.Mode().IsRegular()
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func joinURL(base string, parts ...string) string {
	out := strings.TrimSuffix(base, "/")
	for _, p := range parts {
		out += "/" + strings.Trim(p, "/")
	}
	return out
}
