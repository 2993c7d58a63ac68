package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfenderov/patent-novelty/internal/scraper"
)

func TestWritePages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fetched")
	pages := []scraper.Page{
		{URL: "https://patents.example.com/US1.html", Filename: "US1.html", Body: []byte("<p>one</p>")},
		{URL: "https://mirror.example.com/US1.html", Filename: "US1.html", Body: []byte("<p>mirror</p>")},
		{URL: "https://patents.example.com/", Filename: "", Body: []byte("<p>root</p>")},
	}

	names, err := writePages(dir, pages)
	require.NoError(t, err)
	assert.Equal(t, []string{"US1.html", "US1-2.html", "page.html"}, names)

	data, err := os.ReadFile(filepath.Join(dir, "US1-2.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>mirror</p>", string(data))
}

func TestWritePages_StripsDirectories(t *testing.T) {
	dir := t.TempDir()

	names, err := writePages(dir, []scraper.Page{{Filename: "../../escape.html", Body: []byte("x")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"escape.html"}, names)
	assert.FileExists(t, filepath.Join(dir, "escape.html"))
}
