package pdf2md

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

var pdfMagic = [4]byte{'%', 'P', 'D', 'F'}

// isURL reports whether the input should be fetched over HTTP.
func isURL(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

// resolveInput stages the input onto a local filesystem path. URL inputs
// are downloaded to a temp file; local paths are validated in place. The
// returned cleanup func removes the temp file (a no-op for local inputs)
// and must be called on every exit path.
func resolveInput(ctx context.Context, input string, cfg *Config) (string, func(), error) {
	if isURL(input) {
		return downloadPDF(ctx, input, cfg.DownloadTimeout)
	}
	path, err := resolveLocal(input)
	return path, func() {}, err
}

// resolveLocal validates that the path exists, is readable, and carries the
// PDF magic bytes.
func resolveLocal(input string) (string, error) {
	path, err := filepath.Abs(input)
	if err != nil {
		return "", &InvalidInputError{Input: input}
	}

	f, err := os.Open(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return "", &FileNotFoundError{Path: path}
		case errors.Is(err, fs.ErrPermission):
			return "", &PermissionDeniedError{Path: path}
		default:
			return "", &FileNotFoundError{Path: path}
		}
	}
	defer f.Close()

	if err := checkMagic(f, path); err != nil {
		return "", err
	}

	log.WithField("path", path).Debug("resolved local PDF")
	return path, nil
}

// downloadPDF streams a URL into a temp file under the OS scratch directory.
// The context carries the total wall-clock budget: connection, redirects and
// body transfer all share it.
func downloadPDF(ctx context.Context, url string, timeout time.Duration) (string, func(), error) {
	log.WithFields(logrus.Fields{"url": url, "timeout": timeout}).Info("downloading PDF")

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, &DownloadFailedError{URL: url, Reason: err.Error(), Err: err}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if dctx.Err() == context.DeadlineExceeded {
			return "", nil, &DownloadTimeoutError{URL: url, Timeout: timeout}
		}
		return "", nil, &DownloadFailedError{URL: url, Reason: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, &DownloadFailedError{URL: url, Reason: "HTTP " + resp.Status}
	}

	tmp, err := os.CreateTemp("", "pdf2md-*.pdf")
	if err != nil {
		return "", nil, &DownloadFailedError{URL: url, Reason: "create temp file: " + err.Error(), Err: err}
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	// Stream the body to disk; large documents never fully buffer in memory.
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		if dctx.Err() == context.DeadlineExceeded {
			return "", nil, &DownloadTimeoutError{URL: url, Timeout: timeout}
		}
		return "", nil, &DownloadFailedError{URL: url, Reason: err.Error(), Err: err}
	}

	if err := verifyStagedPDF(tmp.Name()); err != nil {
		cleanup()
		return "", nil, err
	}

	log.WithFields(logrus.Fields{"url": url, "bytes": n, "path": tmp.Name()}).Debug("download complete")
	return tmp.Name(), cleanup, nil
}

// verifyStagedPDF checks the magic bytes and content sniff of a staged file.
func verifyStagedPDF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &FileNotFoundError{Path: path}
	}
	defer f.Close()
	if err := checkMagic(f, path); err != nil {
		return err
	}

	// mimetype catches files that fake the magic but are not parseable as
	// PDF containers (e.g. truncated HTML error pages with a %PDF prefix
	// survive checkMagic alone).
	mtype, err := mimetype.DetectFile(path)
	if err == nil && !mtype.Is("application/pdf") {
		var magic [4]byte
		f.Seek(0, io.SeekStart)
		io.ReadFull(f, magic[:])
		return &NotAPDFError{Path: path, Magic: magic}
	}
	return nil
}

// checkMagic reads the first four bytes and requires the %PDF magic.
func checkMagic(r io.Reader, path string) error {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return &NotAPDFError{Path: path, Magic: magic}
	}
	if magic != pdfMagic {
		return &NotAPDFError{Path: path, Magic: magic}
	}
	return nil
}
