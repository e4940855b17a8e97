package registry

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/depstack/pkg/errors"
)

const httpTimeout = 60 * time.Second

// Downloader abstracts the network and archive operations used during
// registry acquisition, so tests can run without a live registry.
type Downloader interface {
	// GetPkgData fetches package metadata from the given endpoint,
	// optionally constrained to a requested version.
	GetPkgData(ctx context.Context, endpoint string, requested *semver.Version) (Response, error)
	// GetFile downloads the resource at rawurl into dest.
	GetFile(ctx context.Context, rawurl, dest string) error
	// Unpack extracts the gzipped tarball at archive into dest.
	Unpack(archive, dest string) error
}

// HTTPDownloader is the production Downloader backed by net/http.
type HTTPDownloader struct {
	http *http.Client
}

// NewHTTPDownloader creates a Downloader with a standard request timeout.
func NewHTTPDownloader() *HTTPDownloader {
	return &HTTPDownloader{http: &http.Client{Timeout: httpTimeout}}
}

// GetPkgData performs the package metadata request and decodes the JSON
// response. A requested version is passed as a query parameter.
func (d *HTTPDownloader) GetPkgData(ctx context.Context, endpoint string, requested *semver.Version) (Response, error) {
	if requested != nil {
		u, err := url.Parse(endpoint)
		if err != nil {
			return Response{}, errors.Wrap(errors.ErrCodeNetwork, err, "invalid registry url %s", endpoint)
		}
		q := u.Query()
		q.Set("version", requested.String())
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	body, err := d.get(ctx, endpoint)
	if err != nil {
		return Response{}, err
	}
	defer body.Close()

	var resp Response
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return Response{}, errors.Wrap(errors.ErrCodeNetwork, err, "decode registry response from %s", endpoint)
	}
	return resp, nil
}

// GetFile streams the resource at rawurl into dest.
func (d *HTTPDownloader) GetFile(ctx context.Context, rawurl, dest string) error {
	body, err := d.get(ctx, rawurl)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTempFile, err, "create %s", dest)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "download %s", rawurl)
	}
	return nil
}

func (d *HTTPDownloader) get(ctx context.Context, rawurl string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "build request for %s", rawurl)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "GET %s", rawurl)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.New(errors.ErrCodeNetwork, "GET %s: unexpected status %d", rawurl, resp.StatusCode)
	}
	return resp.Body, nil
}

// Unpack extracts a gzipped tarball into dest. Entries escaping dest are
// rejected.
func (d *HTTPDownloader) Unpack(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open %s: %w", archive, err)
	}
	defer f.Close()
	return untar(f, dest)
}

func untar(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		target, err := securePath(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		default:
			// Symlinks and special files are not part of package archives.
		}
	}
}

func securePath(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) && target != filepath.Clean(dest) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}

var _ Downloader = (*HTTPDownloader)(nil)
