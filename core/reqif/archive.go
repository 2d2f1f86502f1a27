package reqif

import (
	"io"
	"path/filepath"
	"strings"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/internal/archive"
	"github.com/FocuswithJustin/reqifnorm/internal/logging"
)

// IsDocumentName reports whether an archive entry holds a ReqIF document.
func IsDocumentName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".reqif")
}

// LoadArchive reads a .reqifz (or tar) container. Every .reqif entry
// becomes a Member in enumeration order; a member that fails to parse
// keeps its error and does not stop the load. All other entries become
// Attachments. Only failures to open or read the container itself are
// returned as errors.
func (p Parser) LoadArchive(path string) (*Archive, error) {
	a := &Archive{Name: filepath.Base(path)}

	err := archive.Walk(path, func(e archive.Entry, r io.Reader) (bool, error) {
		if IsDocumentName(e.Name) && !e.IsDir {
			a.Members = append(a.Members, p.loadMember(e.Name, r))
			return false, nil
		}

		if e.IsDir {
			a.Attachments = append(a.Attachments, Attachment{Name: e.Name})
			return false, nil
		}
		data, err := archive.ReadAll(r)
		if err != nil {
			logging.Warn("attachment skipped", "archive", a.Name, "attachment", e.Name, "error", err)
			return false, nil
		}
		a.Attachments = append(a.Attachments, Attachment{Name: e.Name, Data: data})
		return false, nil
	})
	if err != nil {
		return nil, rerrors.NewMalformed("", "", err)
	}
	return a, nil
}

func (p Parser) loadMember(name string, r io.Reader) *Member {
	m := &Member{Name: name}
	data, err := archive.ReadAll(r)
	if err != nil {
		m.Err = rerrors.NewMalformed("", "", err)
		return m
	}
	m.Bundle, m.Err = p.Parse(data)
	return m
}

// LoadArchive reads an archive with default parser settings.
func LoadArchive(path string) (*Archive, error) {
	return Parser{}.LoadArchive(path)
}
