package registry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/depstack/pkg/errors"
	"github.com/matzehuels/depstack/pkg/manifest"
)

func localClient(t *testing.T, versions map[string]string) *Client {
	t.Helper()
	return NewClient(Settings{Path: registryDir(t, versions)}, nil, log.New(io.Discard))
}

func TestFetchLocalRequested(t *testing.T) {
	c := localClient(t, map[string]string{
		"fpm/lib/1.0.0": `name = "lib"`,
		"fpm/lib/2.0.0": `name = "lib"`,
	})

	dir, err := c.Fetch(context.Background(), "fpm", "lib", semver.MustParse("1.0.0"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Base(dir) != "1.0.0" {
		t.Errorf("dir = %q, want the requested version", dir)
	}

	_, err = c.Fetch(context.Background(), "fpm", "lib", semver.MustParse("9.9.9"))
	if !errors.Is(err, errors.ErrCodeLocalRegistryMiss) {
		t.Errorf("missing version: got %v, want LOCAL_REGISTRY_MISS", err)
	}
}

func TestFetchLocalLatest(t *testing.T) {
	c := localClient(t, map[string]string{
		"fpm/lib/1.0.0":  `name = "lib"`,
		"fpm/lib/2.1.0":  `name = "lib"`,
		"fpm/lib/0.10.0": `name = "lib"`,
	})

	dir, err := c.Fetch(context.Background(), "fpm", "lib", nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Base(dir) != "2.1.0" {
		t.Errorf("dir = %q, want maximum version 2.1.0", dir)
	}
}

func TestFetchLocalErrors(t *testing.T) {
	c := localClient(t, map[string]string{"fpm/lib/1.0.0": `name = "lib"`})
	_, err := c.Fetch(context.Background(), "fpm", "nosuch", nil)
	if !errors.Is(err, errors.ErrCodeNoVersions) {
		t.Errorf("unknown package: got %v, want NO_VERSIONS", err)
	}

	// A stray non-version directory poisons latest selection.
	bad := localClient(t, map[string]string{
		"fpm/lib/1.0.0":      `name = "lib"`,
		"fpm/lib/not-semver": `name = "lib"`,
	})
	_, err = bad.Fetch(context.Background(), "fpm", "lib", nil)
	if !errors.Is(err, errors.ErrCodeVersionParse) {
		t.Errorf("non-version entry: got %v, want VERSION_PARSE", err)
	}
}

func remoteClient(t *testing.T, versions map[string]string) (*Client, *int64) {
	t.Helper()
	srv := NewServer(registryDir(t, versions), log.New(io.Discard))

	var requests int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		srv.Handler().ServeHTTP(w, r)
	})
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	settings := Settings{URL: ts.URL, CachePath: t.TempDir()}
	return NewClient(settings, NewHTTPDownloader(), log.New(io.Discard)), &requests
}

func TestFetchRemote(t *testing.T) {
	c, requests := remoteClient(t, map[string]string{
		"fpm/lib/1.0.0": `name = "lib"`,
		"fpm/lib/2.0.0": `name = "lib"`,
	})

	dir, err := c.Fetch(context.Background(), "fpm", "lib", nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Base(dir) != "2.0.0" {
		t.Errorf("dir = %q, want latest 2.0.0", dir)
	}
	data, err := os.ReadFile(filepath.Join(dir, manifest.Filename))
	if err != nil {
		t.Fatalf("unpacked manifest missing: %v", err)
	}
	if string(data) != `name = "lib"` {
		t.Errorf("manifest = %q", data)
	}
	if *requests != 2 { // metadata + archive
		t.Errorf("requests = %d, want 2", *requests)
	}
}

func TestFetchRemoteCacheHit(t *testing.T) {
	c, requests := remoteClient(t, map[string]string{"fpm/lib/1.0.0": `name = "lib"`})

	v := semver.MustParse("1.0.0")
	if _, err := c.Fetch(context.Background(), "fpm", "lib", v); err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	after := *requests

	dir, err := c.Fetch(context.Background(), "fpm", "lib", v)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if *requests != after {
		t.Errorf("cache hit still made %d network requests", *requests-after)
	}
	if filepath.Base(dir) != "1.0.0" {
		t.Errorf("dir = %q", dir)
	}
}

func TestFetchRemoteUnknown(t *testing.T) {
	c, _ := remoteClient(t, map[string]string{"fpm/lib/1.0.0": `name = "lib"`})

	_, err := c.Fetch(context.Background(), "fpm", "nosuch", nil)
	if !errors.Is(err, errors.ErrCodeRegistryHTTP) {
		t.Errorf("got %v, want REGISTRY_HTTP_ERROR", err)
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base  string
		parts []string
		want  string
	}{
		{"http://x", []string{"packages", "ns", "pkg"}, "http://x/packages/ns/pkg"},
		{"http://x/", []string{"/download/a"}, "http://x/download/a"},
		{"/download", []string{"ns", "pkg", "1.0.0.tar.gz"}, "/download/ns/pkg/1.0.0.tar.gz"},
	}
	for _, tt := range tests {
		if got := joinURL(tt.base, tt.parts...); got != tt.want {
			t.Errorf("joinURL(%q, %v) = %q, want %q", tt.base, tt.parts, got, tt.want)
		}
	}
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[registry]
path = "/srv/registry"
url = "https://registry.internal"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.Path != "/srv/registry" || s.URL != "https://registry.internal" {
		t.Errorf("settings = %+v", s)
	}
	if s.CachePath == "" {
		t.Error("cache path should default")
	}

	missing, err := LoadSettings(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing config must yield defaults: %v", err)
	}
	if missing.URL != DefaultURL {
		t.Errorf("URL = %q, want default", missing.URL)
	}
}
