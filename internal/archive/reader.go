// Package archive provides utilities for reading the containers ReqIF
// documents travel in: .reqifz (zip) archives and plain, gzip or xz
// compressed tar archives.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/internal/validation"
)

// ErrEntryTooLarge is returned when an entry exceeds validation.MaxFileSize.
var ErrEntryTooLarge = errors.New("archive entry too large")

// Kind identifies a container format.
type Kind string

// Supported container kinds.
const (
	KindZip   Kind = "zip"
	KindTar   Kind = "tar"
	KindTarGz Kind = "tar.gz"
	KindTarXz Kind = "tar.xz"
)

// KindOf returns the container kind implied by a file name, or "" when
// the name is not a supported archive.
func KindOf(path string) Kind {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".reqifz"), strings.HasSuffix(lower, ".zip"):
		return KindZip
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return KindTarXz
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return KindTarGz
	case strings.HasSuffix(lower, ".tar"):
		return KindTar
	}
	return ""
}

// IsArchive reports whether path names a supported container.
func IsArchive(path string) bool {
	return KindOf(path) != ""
}

// Entry describes one archive member.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Visitor is a callback function for iterating archive entries.
// Return true to stop iteration, false to continue.
type Visitor func(entry Entry, content io.Reader) (stop bool, err error)

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// NewReader creates a new tar reader for the given path, handling
// gzip and xz compression by extension.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var reader io.Reader = f
	var decompressor io.Closer

	switch KindOf(path) {
	case KindTarXz:
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		reader = xzr
	case KindTarGz:
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		reader = gzr
		decompressor = gzr
	case KindTar:
	default:
		f.Close()
		return nil, rerrors.NewUnsupported("archive format", path)
	}

	return &Reader{
		Reader:       tar.NewReader(reader),
		file:         f,
		decompressor: decompressor,
	}, nil
}

// Close closes the archive reader and any underlying decompressors.
func (r *Reader) Close() error {
	var errs []error
	if r.decompressor != nil {
		if err := r.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Iterate walks through all tar entries in order, calling the visitor for each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		entry := Entry{
			Name:  header.Name,
			IsDir: header.Typeflag == tar.TypeDir || strings.HasSuffix(header.Name, "/"),
			Size:  header.Size,
		}
		stop, err := visitor(entry, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// Walk opens any supported container and visits its entries in archive
// enumeration order.
func Walk(path string, visitor Visitor) error {
	if KindOf(path) == KindZip {
		return walkZip(path, visitor)
	}
	r, err := NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Iterate(visitor)
}

func walkZip(path string, visitor Visitor) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		entry := Entry{
			Name:  f.Name,
			IsDir: f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/"),
			Size:  int64(f.UncompressedSize64),
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		stop, err := visitor(entry, rc)
		rc.Close()
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// ReadAll reads an entry's content, refusing anything larger than
// validation.MaxFileSize.
func ReadAll(r io.Reader) ([]byte, error) {
	return readLimited(r, validation.MaxFileSize)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrEntryTooLarge
	}
	return data, nil
}

// ReadFile reads a specific entry from the archive.
func ReadFile(archivePath, name string) ([]byte, error) {
	var content []byte
	found := false
	err := Walk(archivePath, func(entry Entry, r io.Reader) (bool, error) {
		if entry.Name != name {
			return false, nil
		}
		found = true
		var err error
		content, err = ReadAll(r)
		return true, err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("file not found: %s", name)
	}
	return content, nil
}
