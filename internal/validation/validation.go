// Package validation guards the filesystem edges of the normalizer:
// attachment names taken from archives, input paths handed to the CLI,
// and the sniffing of input files before they are parsed.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
)

// Security limits to prevent DoS attacks (CWE-400).
const (
	// MaxFileSize is the maximum allowed size of a single input or
	// archive entry (256 MB).
	MaxFileSize = 256 << 20
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
)

// SanitizePath validates an archive-supplied relative path and ensures it
// cannot escape baseDir. It returns the cleaned relative path.
func SanitizePath(baseDir, userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}
	if len(userPath) > MaxPathLength {
		return "", ErrPathTooLong
	}
	if err := ValidatePath(userPath); err != nil {
		return "", err
	}

	// Archives written on Windows use backslashes.
	cleanPath := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(userPath, "\\", "/")))

	for _, seg := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if seg == ".." {
			return "", ErrPathTraversal
		}
	}
	if filepath.IsAbs(cleanPath) || filepath.VolumeName(cleanPath) != "" {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}
	if cleanPath == "." {
		return "", ErrEmptyPath
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(baseDir, cleanPath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	relPath, err := filepath.Rel(absBase, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	return cleanPath, nil
}

// ValidateFilename checks that a bare file name is safe to create.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	return nil
}

// ValidatePath checks length and character limits without a base directory.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// FileType is the container or document type of an input.
type FileType string

const (
	FileTypeTarXZ   FileType = "tar.xz"
	FileTypeTarGZ   FileType = "tar.gz"
	FileTypeTar     FileType = "tar"
	FileTypeZip     FileType = "zip"
	FileTypeGzip    FileType = "gzip"
	FileTypeXZ      FileType = "xz"
	FileTypeXML     FileType = "xml"
	FileTypeUnknown FileType = "unknown"
)

var magicBytes = []struct {
	fileType FileType
	magic    []byte
	offset   int
}{
	{FileTypeTar, []byte("ustar"), 257},
	{FileTypeGzip, []byte{0x1f, 0x8b}, 0},
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, 0},
	{FileTypeZip, []byte{0x50, 0x4b, 0x03, 0x04}, 0},
	{FileTypeZip, []byte{0x50, 0x4b, 0x05, 0x06}, 0}, // empty zip
}

// ValidateFileType checks that content matches the type implied by the
// file name and returns the type to process it as. A .reqifz that is not
// a zip, or a .reqif that is a zip, is reported as a mismatch.
func ValidateFileType(reader io.Reader, filename string) (FileType, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]

	detected := detectFileTypeFromMagic(buf)
	expected := detectFileTypeFromExtension(filename)

	switch {
	case expected == FileTypeTarXZ && detected == FileTypeXZ:
		return FileTypeTarXZ, nil
	case expected == FileTypeTarGZ && detected == FileTypeGzip:
		return FileTypeTarGZ, nil
	case detected == expected:
		return detected, nil
	case detected == FileTypeUnknown && expected == FileTypeXML:
		// UTF-16 documents carry NUL bytes; let the decoder judge them.
		if isLikelyText(buf) || hasUTF16BOM(buf) {
			return FileTypeXML, nil
		}
		return FileTypeUnknown, fmt.Errorf("file type mismatch: %s does not look like XML", filename)
	case detected != FileTypeUnknown && expected != FileTypeUnknown:
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is %s", expected, detected)
	case detected == FileTypeUnknown:
		return expected, nil
	}
	return detected, nil
}

func detectFileTypeFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if sig.offset+len(sig.magic) <= len(buf) {
			if bytes.Equal(buf[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
				return sig.fileType
			}
		}
	}
	return FileTypeUnknown
}

func detectFileTypeFromExtension(filename string) FileType {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".tar.xz") || strings.HasSuffix(lower, ".txz") {
		return FileTypeTarXZ
	}
	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		return FileTypeTarGZ
	}

	switch filepath.Ext(lower) {
	case ".tar":
		return FileTypeTar
	case ".xz":
		return FileTypeXZ
	case ".gz":
		return FileTypeGzip
	case ".zip", ".reqifz":
		return FileTypeZip
	case ".xml", ".reqif":
		return FileTypeXML
	default:
		return FileTypeUnknown
	}
}

func hasUTF16BOM(buf []byte) bool {
	return bytes.HasPrefix(buf, []byte{0xFF, 0xFE}) || bytes.HasPrefix(buf, []byte{0xFE, 0xFF})
}

// isLikelyText reports whether more than 95% of the buffer is printable.
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}

	printable := 0
	control := 0
	for _, b := range buf {
		if b >= 0x20 && b <= 0x7e || b == '\t' || b == '\n' || b == '\r' {
			printable++
		} else if b < 0x20 {
			control++
		}
		// UTF-8 continuation and start bytes are neutral.
	}
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
