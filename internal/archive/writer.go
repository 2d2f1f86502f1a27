package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
)

// Pack archives the contents of srcDir into dstPath, choosing the
// container from dstPath's extension. Entry names are relative to srcDir
// and use forward slashes.
func Pack(srcDir, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	switch KindOf(dstPath) {
	case KindZip:
		return createZip(srcDir, dstPath)
	case KindTarGz, KindTarXz, KindTar:
		return createTar(srcDir, dstPath)
	}
	return rerrors.NewUnsupported("archive format", dstPath)
}

// walkFiles visits srcDir in lexical order, skipping the root itself.
func walkFiles(srcDir string, fn func(rel string, info os.FileInfo, path string) error) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		return fn(filepath.ToSlash(rel), info, path)
	})
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func createTar(srcDir, dstPath string) (err error) {
	outFile, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if cerr := outFile.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	var compressor io.WriteCloser
	var sink io.Writer = outFile
	switch KindOf(dstPath) {
	case KindTarGz:
		compressor = gzip.NewWriter(outFile)
	case KindTarXz:
		xw, err := xz.NewWriter(outFile)
		if err != nil {
			return fmt.Errorf("xz writer: %w", err)
		}
		compressor = xw
	}
	if compressor != nil {
		sink = compressor
	}

	tw := tar.NewWriter(sink)
	now := time.Now()

	err = walkFiles(srcDir, func(rel string, info os.FileInfo, path string) error {
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = rel
		if info.IsDir() {
			header.Name += "/"
		}
		header.ModTime = now

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return copyFile(tw, path)
	})
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if compressor != nil {
		return compressor.Close()
	}
	return nil
}

func createZip(srcDir, dstPath string) (err error) {
	outFile, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if cerr := outFile.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(outFile)
	err = walkFiles(srcDir, func(rel string, info os.FileInfo, path string) error {
		if info.IsDir() {
			_, err := zw.Create(rel + "/")
			return err
		}
		w, err := zw.Create(rel)
		if err != nil {
			return err
		}
		return copyFile(w, path)
	})
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return zw.Close()
}
