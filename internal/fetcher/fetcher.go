// Package fetcher downloads the model checkpoint from Google Drive and moves
// it to where the server looks for it.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/wheat-api/internal/config"
)

// MinSize is the smallest file accepted as a checkpoint. Anything at or
// below it is almost certainly an HTML error page.
const MinSize = 1024

var (
	ErrNoIdentifier   = errors.New("GDRIVE_ID not provided or not valid")
	ErrDownloadFailed = errors.New("failed to download model from Google Drive")
)

type Outcome int

const (
	// Moved means the file is at the destination and the temp file is gone.
	Moved Outcome = iota
	// Copied means the move was denied and the file was copied instead.
	Copied
	// KeptTemp means the file could only be left at the temp path.
	KeptTemp
)

func (o Outcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case Copied:
		return "copied"
	default:
		return "kept-temp"
	}
}

type Result struct {
	ID      string
	Path    string
	Size    int64
	Outcome Outcome
}

type Fetcher struct {
	cfg    config.FetcherConfig
	client *DriveClient

	rename func(oldpath, newpath string) error
	copy   func(src, dst string) error
}

func New(cfg config.FetcherConfig, client *DriveClient) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		client: client,
		rename: os.Rename,
		copy:   copyFile,
	}
}

// Run downloads the checkpoint and relocates it. Only a missing identifier
// or a failed download are errors; relocation always yields a usable path.
func (f *Fetcher) Run(ctx context.Context) (*Result, error) {
	id := ExtractID(f.cfg.ID)
	if id == "" {
		return nil, fmt.Errorf("%w (value was %q)", ErrNoIdentifier, f.cfg.ID)
	}

	rawURL := f.client.DownloadURL(id)
	log.WithFields(log.Fields{"id": id, "url": rawURL}).Info("attempting to download Google Drive file")

	size, err := f.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	res := &Result{ID: id, Size: size}
	res.Path, res.Outcome = f.relocate()
	return res, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) (int64, error) {
	tmp := f.cfg.TmpPath
	if err := os.MkdirAll(filepath.Dir(tmp), 0o755); err != nil {
		return 0, fmt.Errorf("%w: create temp dir: %v", ErrDownloadFailed, err)
	}
	log.WithField("path", tmp).Info("temporary download path")

	for attempt := 1; attempt <= f.cfg.Attempts; attempt++ {
		entry := log.WithFields(log.Fields{"attempt": attempt, "of": f.cfg.Attempts})
		entry.Info("download attempt")

		_, err := f.fetchOnce(ctx, rawURL, tmp)

		if err != nil {
			entry.Warnf("download failed: %v", err)
		} else if size, ok := checkSize(tmp); ok {
			log.WithFields(log.Fields{"path": tmp, "size": humanize.Bytes(uint64(size))}).Info("downloaded to temp path")
			return size, nil
		} else {
			entry.Warnf("downloaded file missing or too small (%d bytes)", size)
			f.discard(tmp)
		}

		if attempt == f.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %v", ErrDownloadFailed, ctx.Err())
		case <-time.After(f.cfg.Backoff):
		}
	}

	return 0, fmt.Errorf("%w after %d attempts", ErrDownloadFailed, f.cfg.Attempts)
}

// discard removes a rejected download so the server cannot pick it up from
// the temp path.
func (f *Fetcher) discard(tmp string) {
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithField("path", tmp).Warnf("remove rejected download: %v", err)
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL, tmp string) (int64, error) {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}
	return f.client.Download(ctx, rawURL, tmp)
}

// checkSize reports the size of path and whether it exceeds MinSize. A
// missing file reports -1.
func checkSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return -1, false
	}
	return info.Size(), info.Size() > MinSize
}

// relocate moves the temp file to the destination, falling back to a copy on
// permission errors and to leaving the file in place otherwise.
func (f *Fetcher) relocate() (string, Outcome) {
	tmp, dest := f.cfg.TmpPath, f.cfg.Dest
	log.WithField("path", dest).Info("requested final path")

	err := os.MkdirAll(filepath.Dir(dest), 0o755)
	if err == nil {
		err = f.move(tmp, dest)
	}
	if err == nil {
		log.WithField("path", dest).Info("moved model")
		return dest, Moved
	}

	if !errors.Is(err, os.ErrPermission) {
		log.Warnf("unexpected error while moving model: %v", err)
		log.WithField("path", tmp).Warn("keeping temp file")
		return tmp, KeptTemp
	}

	log.Warnf("permission denied moving to final path: %v", err)
	if cerr := f.copy(tmp, dest); cerr != nil {
		log.Warnf("copy also failed: %v", cerr)
		log.WithField("path", tmp).Warn("keeping model at temp path")
		log.Warnf("set MODEL_PATH=%s in the service environment and redeploy so the server uses it", tmp)
		return tmp, KeptTemp
	}
	log.WithField("path", dest).Info("copied model to final path")
	return dest, Copied
}

// move renames src to dst, copying across filesystems when needed.
func (f *Fetcher) move(src, dst string) error {
	err := f.rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := f.copy(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFile copies src to dst, keeping the permission bits and modification
// time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
