package util

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecureFilename(t *testing.T) {
	cases := map[string]string{
		"ch1_intro.ipynb":        "ch1_intro.ipynb",
		"My Chapter.ipynb":       "My_Chapter.ipynb",
		"../../etc/passwd":       "etc_passwd",
		"..\\windows\\cover.png": "windows_cover.png",
		"ünïcode ch2.ipynb":      "unicode_ch2.ipynb",
		"café.ipynb":             "cafe.ipynb",
		"ｆｕｌｌｗｉｄｔｈ.png":          "fullwidth.png",
		"日本語.ipynb":              "ipynb",
		"...":                    "",
	}
	for in, want := range cases {
		require.Equal(t, want, SecureFilename(in), in)
	}
}

func TestExt(t *testing.T) {
	require.Equal(t, "ipynb", Ext("a.IPYNB"))
	require.Equal(t, "jpeg", Ext("cover.tar.JPEG"))
	require.Equal(t, "", Ext("README"))
}

func TestMoveFileCrossDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "book.mbook")
	dst := filepath.Join(dir, "out.mbook")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	t.Cleanup(func() { renameFunc = os.Rename })

	require.NoError(t, MoveFile(src, dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "payload", string(b))
	require.False(t, Exists(src))
}

func TestWriteJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.json")
	require.NoError(t, WriteJSONAtomic(path, map[string]any{"title": "<b>"}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\n    \"title\": \"<b>\"\n}\n", string(b))
}
