package reqif

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
)

func writeZip(t *testing.T, entries [][2]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.reqifz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(e[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestLoadArchive(t *testing.T) {
	path := writeZip(t, [][2]string{
		{"one.reqif", `<REQ-IF><CORE-CONTENT><REQ-IF-CONTENT><SPEC-OBJECTS><SPEC-OBJECT IDENTIFIER="A"/></SPEC-OBJECTS></REQ-IF-CONTENT></CORE-CONTENT></REQ-IF>`},
		{"files/", ""},
		{"files/diagram.png", "\x89PNG"},
		{"two.REQIF", "<not-closed>"},
		{"three.reqif", `<REQ-IF/>`},
	})

	a, err := LoadArchive(path)
	require.NoError(t, err)
	assert.Equal(t, "bundle.reqifz", a.Name)

	require.Len(t, a.Members, 3)
	assert.Equal(t, []string{"one.reqif", "two.REQIF", "three.reqif"},
		[]string{a.Members[0].Name, a.Members[1].Name, a.Members[2].Name})

	require.NoError(t, a.Members[0].Err)
	require.NotNil(t, a.Members[0].Bundle)
	assert.NotNil(t, a.Members[0].Bundle.SpecObject("A"))

	assert.Nil(t, a.Members[1].Bundle)
	assert.ErrorIs(t, a.Members[1].Err, rerrors.ErrMalformedInput)

	require.NoError(t, a.Members[2].Err)

	require.Len(t, a.Attachments, 2)
	assert.Equal(t, "files/", a.Attachments[0].Name)
	assert.True(t, a.Attachments[0].IsDir())
	assert.Equal(t, "files/diagram.png", a.Attachments[1].Name)
	assert.False(t, a.Attachments[1].IsDir())
	assert.Equal(t, []byte("\x89PNG"), a.Attachments[1].Data)
}

func TestLoadArchiveErrors(t *testing.T) {
	_, err := LoadArchive(filepath.Join(t.TempDir(), "missing.reqifz"))
	require.Error(t, err)
	assert.ErrorIs(t, err, rerrors.ErrMalformedInput)

	broken := filepath.Join(t.TempDir(), "broken.reqifz")
	require.NoError(t, os.WriteFile(broken, []byte("not a zip"), 0644))
	_, err = LoadArchive(broken)
	assert.ErrorIs(t, err, rerrors.ErrMalformedInput)
}

func TestIsDocumentName(t *testing.T) {
	assert.True(t, IsDocumentName("a.reqif"))
	assert.True(t, IsDocumentName("dir/B.ReqIF"))
	assert.False(t, IsDocumentName("a.reqifz"))
	assert.False(t, IsDocumentName("a.xml"))
	assert.False(t, IsDocumentName("reqif"))
}

func TestAttachmentIsDir(t *testing.T) {
	assert.True(t, Attachment{Name: "a/"}.IsDir())
	assert.True(t, Attachment{Name: `a\`}.IsDir())
	assert.False(t, Attachment{Name: "a"}.IsDir())
	assert.False(t, Attachment{}.IsDir())
}
