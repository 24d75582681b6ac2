// Package install downloads rust-analyzer release binaries.
package install

import (
	"archive/zip"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTag is the rust-analyzer release installed by default.
const DefaultTag = "2024-12-02"

// DefaultURL is the release download URL template.
const DefaultURL = "https://github.com/rust-analyzer/rust-analyzer/releases/download/{tag}/rust-analyzer-{arch}-{platform}.{ext}"

const versionFile = "VERSION"

// Installer installs a rust-analyzer release into Dir.
type Installer struct {
	Dir string // installation directory, owned by the installer
	Tag string // release tag; default DefaultTag

	// URL is the download URL template; default DefaultURL.
	URL string

	GOOS, GOARCH string // target platform; default the running one

	// Client downloads the release. Nil uses a client that traces
	// requests with OpenTelemetry.
	Client *http.Client
}

func (in *Installer) tag() string {
	if in.Tag == "" {
		return DefaultTag
	}
	return in.Tag
}

func (in *Installer) goos() string {
	if in.GOOS == "" {
		return runtime.GOOS
	}
	return in.GOOS
}

func (in *Installer) goarch() string {
	if in.GOARCH == "" {
		return runtime.GOARCH
	}
	return in.GOARCH
}

func (in *Installer) client() *http.Client {
	if in.Client != nil {
		return in.Client
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Arch returns the release name of a Go architecture.
func Arch(goarch string) (string, error) {
	switch goarch {
	case "amd64":
		return "x86_64", nil
	case "arm64":
		return "aarch64", nil
	case "386", "arm", "mips", "mipsle":
		return "", errors.New("unsupported platform: 32-bit is not supported")
	}
	return "", errors.Errorf("unknown architecture: %v", goarch)
}

// Platform returns the release name of a Go operating system.
func Platform(goos string) string {
	switch goos {
	case "windows":
		return "pc-windows-msvc"
	case "darwin":
		return "apple-darwin"
	}
	return "unknown-linux-gnu"
}

func (in *Installer) windows() bool {
	return in.goos() == "windows"
}

func (in *Installer) ext() string {
	if in.windows() {
		return "zip"
	}
	return "gz"
}

func (in *Installer) binaryName() string {
	if in.windows() {
		return "rust-analyzer.exe"
	}
	return "rust-analyzer"
}

// DownloadURL returns the URL of the release archive.
func (in *Installer) DownloadURL() (string, error) {
	arch, err := Arch(in.goarch())
	if err != nil {
		return "", err
	}
	tmpl := in.URL
	if tmpl == "" {
		tmpl = DefaultURL
	}
	r := strings.NewReplacer(
		"{tag}", in.tag(),
		"{arch}", arch,
		"{platform}", Platform(in.goos()),
		"{ext}", in.ext(),
	)
	return r.Replace(tmpl), nil
}

// BinaryPath returns the path of the installed executable.
func (in *Installer) BinaryPath() string {
	return filepath.Join(in.Dir, in.binaryName())
}

// InstalledVersion returns the tag of the installed release.
func (in *Installer) InstalledVersion() (string, error) {
	b, err := os.ReadFile(filepath.Join(in.Dir, versionFile))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NeedsInstall reports whether the configured release is missing.
func (in *Installer) NeedsInstall() bool {
	v, err := in.InstalledVersion()
	return err != nil || v != in.tag()
}

// Install replaces the contents of Dir with the configured release.
// If it fails, Dir is removed.
func (in *Installer) Install(ctx context.Context) (err error) {
	if in.Dir == "" {
		return errors.New("no installation directory")
	}
	defer func() {
		if err != nil {
			os.RemoveAll(in.Dir)
		}
	}()
	if err := os.RemoveAll(in.Dir); err != nil {
		return err
	}
	if err := os.MkdirAll(in.Dir, 0755); err != nil {
		return err
	}
	url, err := in.DownloadURL()
	if err != nil {
		return err
	}
	archive := filepath.Join(in.Dir, "rust-analyzer."+in.ext())
	if err := in.download(ctx, url, archive); err != nil {
		return err
	}
	if in.windows() {
		err = extractZip(archive, in.binaryName(), in.BinaryPath())
	} else {
		err = extractGzip(archive, in.BinaryPath())
	}
	if err != nil {
		return errors.Wrapf(err, "failed to extract %v", archive)
	}
	if err := os.Remove(archive); err != nil {
		return err
	}
	if err := os.Chmod(in.BinaryPath(), 0744); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(in.Dir, versionFile), []byte(in.tag()), 0644)
}

func (in *Installer) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := in.client().Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to download %v", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("failed to download %v: %v", url, resp.Status)
	}
	return writeFile(dst, resp.Body)
}

func writeFile(name string, r io.Reader) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func extractGzip(archive, dst string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()
	return writeFile(dst, zr)
}

func extractZip(archive, name, dst string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		return writeFile(dst, rc)
	}
	return errors.Errorf("%v not found in archive", name)
}
