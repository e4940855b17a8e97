package registry

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depstack/pkg/manifest"
)

func registryDir(t *testing.T, versions map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for coord, content := range versions {
		dir := filepath.Join(root, filepath.FromSlash(coord))
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, manifest.Filename), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func testServer(t *testing.T, versions map[string]string) *httptest.Server {
	t.Helper()
	srv := NewServer(registryDir(t, versions), log.New(io.Discard))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getResponse(t *testing.T, url string) Response {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var resp Response
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestServerLatestVersion(t *testing.T) {
	ts := testServer(t, map[string]string{
		"fpm/lib/1.0.0": `name = "lib"`,
		"fpm/lib/2.1.0": `name = "lib"`,
		"fpm/lib/0.9.0": `name = "lib"`,
	})

	resp := getResponse(t, ts.URL+"/packages/fpm/lib")
	url, v, err := resp.Verify(false)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.String() != "2.1.0" {
		t.Errorf("latest = %v, want 2.1.0", v)
	}
	if url != "/download/fpm/lib/2.1.0.tar.gz" {
		t.Errorf("download url = %q", url)
	}
}

func TestServerRequestedVersion(t *testing.T) {
	ts := testServer(t, map[string]string{
		"fpm/lib/1.0.0": `name = "lib"`,
		"fpm/lib/2.1.0": `name = "lib"`,
	})

	resp := getResponse(t, ts.URL+"/packages/fpm/lib?version=1.0.0")
	_, v, err := resp.Verify(true)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.String() != "1.0.0" {
		t.Errorf("version = %v, want 1.0.0", v)
	}
}

func TestServerErrors(t *testing.T) {
	ts := testServer(t, map[string]string{"fpm/lib/1.0.0": `name = "lib"`})

	tests := []struct {
		name string
		path string
	}{
		{"unknown package", "/packages/fpm/nosuch"},
		{"unknown version", "/packages/fpm/lib?version=9.9.9"},
		{"invalid version", "/packages/fpm/lib?version=banana"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := getResponse(t, ts.URL+tt.path)
			if resp.Code == nil || *resp.Code != 404 {
				t.Errorf("code = %v, want 404", resp.Code)
			}
			if resp.Message == "" {
				t.Error("error response should carry a message")
			}
		})
	}
}

func TestServerDownload(t *testing.T) {
	ts := testServer(t, map[string]string{"fpm/lib/1.0.0": `name = "lib"`})

	res, err := http.Get(ts.URL + "/download/fpm/lib/1.0.0.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}

	gz, err := gzip.NewReader(res.Body)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	tr := tar.NewReader(gz)

	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar: %v", err)
		}
		if hdr.Name == manifest.Filename {
			found = true
			data, err := io.ReadAll(tr)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != `name = "lib"` {
				t.Errorf("manifest content = %q", data)
			}
		}
	}
	if !found {
		t.Error("tarball missing the manifest")
	}
}

func TestServerDownloadUnknown(t *testing.T) {
	ts := testServer(t, map[string]string{"fpm/lib/1.0.0": `name = "lib"`})

	res, err := http.Get(ts.URL + "/download/fpm/lib/9.9.9.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
}
