package uploads

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

func newStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(config.UploadsConfig{
		Dir:        t.TempDir(),
		PublicPath: "uploads/",
		MaxFileMB:  1,
		MaxFiles:   3,
	})
	require.NoError(t, err)
	store.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return store
}

func fileHeaders(t *testing.T, files map[string][]byte) []*multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(10<<20))
	return req.MultipartForm.File["images"]
}

func TestSaveImagesWritesTimestampPrefixedFiles(t *testing.T) {
	store := newStore(t)

	urls, err := store.SaveImages(fileHeaders(t, map[string][]byte{"my photo.png": pngBytes}))
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, "/uploads/1700000000000-my_photo.png", urls[0])

	_, err = os.Stat(filepath.Join(store.Dir(), "1700000000000-my_photo.png"))
	assert.NoError(t, err)
}

func TestSaveImagesRejectsNonImages(t *testing.T) {
	store := newStore(t)

	_, err := store.SaveImages(fileHeaders(t, map[string][]byte{"notes.png": []byte("just some text")}))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = store.SaveImages(fileHeaders(t, map[string][]byte{"photo.exe": pngBytes}))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSaveImagesRejectsTooManyFiles(t *testing.T) {
	store := newStore(t)
	files := map[string][]byte{"a.png": pngBytes, "b.png": pngBytes, "c.png": pngBytes, "d.png": pngBytes}

	_, err := store.SaveImages(fileHeaders(t, files))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSaveImagesCleansUpOnFailure(t *testing.T) {
	store := newStore(t)
	headers := fileHeaders(t, map[string][]byte{"good.png": pngBytes})
	headers = append(headers, fileHeaders(t, map[string][]byte{"bad.gif": []byte("nope")})...)

	_, err := store.SaveImages(headers)
	require.Error(t, err)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemoveIgnoresForeignAndMissingPaths(t *testing.T) {
	store := newStore(t)
	urls, err := store.SaveImages(fileHeaders(t, map[string][]byte{"keep.png": pngBytes}))
	require.NoError(t, err)

	require.NoError(t, store.Remove([]string{"https://cdn.example.com/x.png", "/uploads/missing.png", "/uploads/../../etc/passwd"}))
	require.NoError(t, store.Remove(urls))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "evil.png", sanitizeName(`..\..\evil.png`))
	assert.Equal(t, "image", sanitizeName("..."))
	assert.False(t, strings.Contains(sanitizeName("a b/c d.png"), " "))
}
