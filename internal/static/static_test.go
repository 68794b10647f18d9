package static

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"login.html": "<h1>login</h1>",
		"chat.html":  "<h1>chat</h1>",
		"404.html":   "<h1>nope</h1>",
		"style.css":  "body{}",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	table, err := Load(dir, RequiredPages...)
	require.NoError(t, err)

	assert.Equal(t, 4, table.Len())
	assert.Equal(t, []string{"404.html", "chat.html", "login.html", "style.css"}, table.Names())

	content, ok := table.Get("style.css")
	assert.True(t, ok)
	assert.Equal(t, "body{}", content)

	_, ok = table.Get("nested")
	assert.False(t, ok)
}

func TestLoadMissingRequired(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"login.html": "x"})

	_, err := Load(dir, RequiredPages...)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingFile)
	assert.Contains(t, err.Error(), "chat.html")
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestNewCopiesInput(t *testing.T) {
	files := map[string]string{"a.txt": "a"}
	table := New(files)
	files["a.txt"] = "changed"

	content, _ := table.Get("a.txt")
	assert.Equal(t, "a", content)
}

func TestLoadFollowsSymlinks(t *testing.T) {
	assets := t.TempDir()
	writeFiles(t, assets, map[string]string{"app.js": "console.log(1)"})

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"login.html": "l", "chat.html": "c"})
	require.NoError(t, os.Symlink(filepath.Join(assets, "app.js"), filepath.Join(dir, "app.js")))
	require.NoError(t, os.Symlink(filepath.Join(assets, "gone.html"), filepath.Join(dir, "404.html")))
	require.NoError(t, os.Symlink(assets, filepath.Join(dir, "assets")))

	table, err := Load(dir, LoginPage, ChatPage)
	require.NoError(t, err)

	content, ok := table.Get("app.js")
	assert.True(t, ok, "symlinked file should be loaded")
	assert.Equal(t, "console.log(1)", content)

	_, ok = table.Get("404.html")
	assert.False(t, ok, "dangling symlink is skipped")
	_, ok = table.Get("assets")
	assert.False(t, ok, "symlinked directory is skipped")
}
