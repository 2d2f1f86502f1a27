package aggregate

import (
	"os"
	"path/filepath"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/core/reqif"
	"github.com/FocuswithJustin/reqifnorm/internal/logging"
	"github.com/FocuswithJustin/reqifnorm/internal/validation"
)

// AttachmentsDir is the folder under the output directory that receives
// extracted attachments.
const AttachmentsDir = "attachments"

// ExtractAttachments writes every file attachment to
// <outDir>/attachments/<entry path>, creating directories as needed and
// overwriting files left by earlier runs. Directory markers and empty
// entries are skipped. It returns the written paths relative to outDir,
// with forward slashes, and one AttachmentIOError per entry that could
// not be written; a failed entry never stops the rest.
func ExtractAttachments(atts []reqif.Attachment, outDir string) ([]string, []error) {
	base := filepath.Join(outDir, AttachmentsDir)
	paths := []string{}
	var errs []error

	for _, a := range atts {
		if a.IsDir() || len(a.Data) == 0 {
			continue
		}

		rel, err := validation.SanitizePath(base, a.Name)
		if err != nil {
			errs = append(errs, &rerrors.AttachmentIOError{Name: a.Name, Err: err})
			continue
		}
		dst := filepath.Join(base, rel)

		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			errs = append(errs, &rerrors.AttachmentIOError{Name: a.Name, Path: dst, Err: err})
			continue
		}
		if err := os.WriteFile(dst, a.Data, 0644); err != nil {
			errs = append(errs, &rerrors.AttachmentIOError{Name: a.Name, Path: dst, Err: err})
			continue
		}

		logging.AttachmentExtracted(a.Name, dst, len(a.Data))
		paths = append(paths, filepath.ToSlash(filepath.Join(AttachmentsDir, rel)))
	}
	return paths, errs
}
