package util

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"book-job-42.pdf", "book-job-42.pdf"},
		{"book-a/b:c.pdf", "book-a_b_c.pdf"},
		{"  spaced  name ", "spaced_name"},
		{"///", "untitled"},
		{"", "untitled"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), tt.in)
	}
	assert.Equal(t, 200, len([]rune(SanitizeFilename(strings.Repeat("é", 300)))))
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "book.pdf")

	n, err := WriteAtomic(path, func(w io.Writer) (int64, error) {
		m, err := io.WriteString(w, "%PDF-1.4")
		return int64(m), err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 8, n)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(got))
}

func TestWriteAtomic_FailureKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.pdf")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	_, err := WriteAtomic(path, func(w io.Writer) (int64, error) {
		_, _ = io.WriteString(w, "partial")
		return 7, errors.New("connection reset")
	})
	require.Error(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
