package install

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const fakeBinary = "#!/bin/sh\necho rust-analyzer\n"

func gzipped(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zipped(t *testing.T, name string, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("README.md")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("readme"))
	w, err = zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(b); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// releaseServer serves archives keyed by URL path.
func releaseServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(b)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestArch(t *testing.T) {
	for _, tc := range []struct {
		goarch string
		want   string
		ok     bool
	}{
		{"amd64", "x86_64", true},
		{"arm64", "aarch64", true},
		{"386", "", false},
		{"riscv64", "", false},
	} {
		got, err := Arch(tc.goarch)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("Arch(%q) = %q, %v", tc.goarch, got, err)
		}
	}
	if _, err := Arch("386"); err == nil || err.Error() != "unsupported platform: 32-bit is not supported" {
		t.Errorf("Arch(386) error is %v", err)
	}
}

func TestPlatform(t *testing.T) {
	for goos, want := range map[string]string{
		"windows": "pc-windows-msvc",
		"darwin":  "apple-darwin",
		"linux":   "unknown-linux-gnu",
		"freebsd": "unknown-linux-gnu",
	} {
		if got := Platform(goos); got != want {
			t.Errorf("Platform(%q) is %q; want %q", goos, got, want)
		}
	}
}

func TestDownloadURL(t *testing.T) {
	in := &Installer{GOOS: "darwin", GOARCH: "arm64"}
	got, err := in.DownloadURL()
	if err != nil {
		t.Fatalf("DownloadURL failed: %v", err)
	}
	want := "https://github.com/rust-analyzer/rust-analyzer/releases/download/2024-12-02/rust-analyzer-aarch64-apple-darwin.gz"
	if got != want {
		t.Errorf("URL is %v; want %v", got, want)
	}

	in = &Installer{Tag: "2023-05-15", GOOS: "windows", GOARCH: "amd64"}
	got, err = in.DownloadURL()
	if err != nil {
		t.Fatalf("DownloadURL failed: %v", err)
	}
	want = "https://github.com/rust-analyzer/rust-analyzer/releases/download/2023-05-15/rust-analyzer-x86_64-pc-windows-msvc.zip"
	if got != want {
		t.Errorf("URL is %v; want %v", got, want)
	}
}

func TestInstallGzip(t *testing.T) {
	srv := releaseServer(t, map[string][]byte{
		"/2024-12-02/rust-analyzer-x86_64-unknown-linux-gnu.gz": gzipped(t, []byte(fakeBinary)),
	})
	in := &Installer{
		Dir:    filepath.Join(t.TempDir(), "rust-analyzer"),
		URL:    srv.URL + "/{tag}/rust-analyzer-{arch}-{platform}.{ext}",
		GOOS:   "linux",
		GOARCH: "amd64",
		Client: srv.Client(),
	}
	if !in.NeedsInstall() {
		t.Errorf("NeedsInstall is false before install")
	}
	if err := in.Install(context.Background()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	b, err := os.ReadFile(in.BinaryPath())
	if err != nil {
		t.Fatalf("binary not installed: %v", err)
	}
	if string(b) != fakeBinary {
		t.Errorf("binary content is %q", b)
	}
	if runtime.GOOS != "windows" {
		fi, err := os.Stat(in.BinaryPath())
		if err != nil {
			t.Fatal(err)
		}
		if fi.Mode().Perm() != 0744 {
			t.Errorf("binary mode is %v; want 0744", fi.Mode().Perm())
		}
	}
	if _, err := os.Stat(filepath.Join(in.Dir, "rust-analyzer.gz")); !os.IsNotExist(err) {
		t.Errorf("archive not removed: %v", err)
	}
	if v, err := in.InstalledVersion(); err != nil || v != DefaultTag {
		t.Errorf("InstalledVersion = %q, %v", v, err)
	}
	if in.NeedsInstall() {
		t.Errorf("NeedsInstall is true after install")
	}
	in.Tag = "2025-01-06"
	if !in.NeedsInstall() {
		t.Errorf("NeedsInstall is false for a different tag")
	}
}

func TestInstallZip(t *testing.T) {
	srv := releaseServer(t, map[string][]byte{
		"/2024-12-02/rust-analyzer-x86_64-pc-windows-msvc.zip": zipped(t, "rust-analyzer.exe", []byte("MZ")),
	})
	in := &Installer{
		Dir:    filepath.Join(t.TempDir(), "rust-analyzer"),
		URL:    srv.URL + "/{tag}/rust-analyzer-{arch}-{platform}.{ext}",
		GOOS:   "windows",
		GOARCH: "amd64",
		Client: srv.Client(),
	}
	if err := in.Install(context.Background()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if filepath.Base(in.BinaryPath()) != "rust-analyzer.exe" {
		t.Errorf("binary path is %v", in.BinaryPath())
	}
	b, err := os.ReadFile(in.BinaryPath())
	if err != nil || string(b) != "MZ" {
		t.Errorf("binary content is %q, %v", b, err)
	}
}

func TestInstallFailureRemovesDir(t *testing.T) {
	for _, tc := range []struct {
		name  string
		files map[string][]byte
	}{
		{"not found", nil},
		{"corrupt archive", map[string][]byte{
			"/2024-12-02/rust-analyzer-x86_64-unknown-linux-gnu.gz": []byte("not gzip"),
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := releaseServer(t, tc.files)
			dir := filepath.Join(t.TempDir(), "rust-analyzer")
			if err := os.MkdirAll(dir, 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(dir, "VERSION"), []byte("2023-05-15"), 0644); err != nil {
				t.Fatal(err)
			}
			in := &Installer{
				Dir:    dir,
				URL:    srv.URL + "/{tag}/rust-analyzer-{arch}-{platform}.{ext}",
				GOOS:   "linux",
				GOARCH: "amd64",
				Client: srv.Client(),
			}
			if err := in.Install(context.Background()); err == nil {
				t.Fatalf("Install succeeded")
			}
			if _, err := os.Stat(dir); !os.IsNotExist(err) {
				t.Errorf("installation directory left behind: %v", err)
			}
		})
	}
}

func TestInstallUnsupportedArch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rust-analyzer")
	in := &Installer{Dir: dir, GOOS: "linux", GOARCH: "386"}
	if err := in.Install(context.Background()); err == nil {
		t.Fatalf("Install succeeded on 32-bit")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("installation directory left behind: %v", err)
	}
}
