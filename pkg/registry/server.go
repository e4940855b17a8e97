package registry

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
)

// Server exposes a local filesystem registry over the registry HTTP
// protocol. The directory layout is the same one fetchLocal consumes:
// <root>/<namespace>/<name>/<version>/ with a manifest per version.
//
// This allows a team to host an offline registry that the standard remote
// acquisition path can talk to.
type Server struct {
	root string
	log  *log.Logger
}

// NewServer creates a Server rooted at dir. logger may be nil.
func NewServer(dir string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{root: dir, log: logger}
}

// Handler returns the chi router implementing the protocol.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/packages/{namespace}/{name}", s.handlePackage)
	r.Get("/download/{namespace}/{name}/{archive}", s.handleDownload)
	return r
}

func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	name := chi.URLParam(r, "name")
	requested := r.URL.Query().Get("version")

	version, err := s.selectVersion(namespace, name, requested)
	if err != nil {
		s.writeError(w, http.StatusOK, err.Error())
		return
	}

	vd := VersionData{
		DownloadURL: ptr(joinURL("/download", namespace, name, version+".tar.gz")),
		Version:     ptr(version),
	}
	data := &ResponseData{}
	if requested != "" {
		data.VersionData = &vd
	} else {
		data.LatestVersionData = &vd
	}
	s.writeJSON(w, Response{Code: ptr(200), Data: data})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	name := chi.URLParam(r, "name")
	version := strings.TrimSuffix(chi.URLParam(r, "archive"), ".tar.gz")

	dir := filepath.Join(s.root, namespace, name, version)
	if !hasManifest(dir) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	if err := writeTarball(w, dir); err != nil {
		s.log.Error("tarball stream failed", "dir", dir, "err", err)
	}
}

// selectVersion picks the requested version, or the maximum available one
// when requested is empty.
func (s *Server) selectVersion(namespace, name, requested string) (string, error) {
	base := filepath.Join(s.root, namespace, name)

	if requested != "" {
		if _, err := semver.NewVersion(requested); err != nil {
			return "", errInvalidVersion(requested)
		}
		if !hasManifest(filepath.Join(base, requested)) {
			return "", errNotFound(namespace, name, requested)
		}
		return requested, nil
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return "", errNotFound(namespace, name, "")
	}
	var best *semver.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if v, err := semver.NewVersion(e.Name()); err == nil && hasManifest(filepath.Join(base, e.Name())) {
			if best == nil || v.GreaterThan(best) {
				best = v
			}
		}
	}
	if best == nil {
		return "", errNotFound(namespace, name, "")
	}
	return best.String(), nil
}

func (s *Server) writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("encode response failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Code: ptr(404), Message: msg})
}

// writeTarball streams dir as a gzipped tarball with paths relative to dir.
func writeTarball(w io.Writer, dir string) error {
	gz := gzip.NewWriter(w)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

type serverError string

func (e serverError) Error() string { return string(e) }

func errNotFound(namespace, name, version string) error {
	if version != "" {
		return serverError("package " + namespace + "/" + name + "@" + version + " not found")
	}
	return serverError("package " + namespace + "/" + name + " not found")
}

func errInvalidVersion(v string) error {
	return serverError("invalid version " + v)
}

func ptr[T any](v T) *T { return &v }
