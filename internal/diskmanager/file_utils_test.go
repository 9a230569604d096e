package diskmanager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFileInfo struct {
	name string
	size int64
}

func (m mockFileInfo) Name() string       { return m.name }
func (m mockFileInfo) Size() int64        { return m.size }
func (m mockFileInfo) Mode() os.FileMode  { return 0o644 }
func (m mockFileInfo) ModTime() time.Time { return time.Time{} }
func (m mockFileInfo) IsDir() bool        { return false }
func (m mockFileInfo) Sys() any           { return nil }

func TestParseFileInfo(t *testing.T) {
	info, err := parseFileInfo("/clips/2026/03/golden_apple_snail_87p_20260314T092653Z.jpg",
		mockFileInfo{name: "golden_apple_snail_87p_20260314T092653Z.jpg", size: 2048})
	require.NoError(t, err)

	assert.Equal(t, "golden_apple_snail", info.PestType)
	assert.Equal(t, 87, info.Confidence)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC), info.Timestamp)
	assert.Equal(t, int64(2048), info.Size)
}

func TestParseFileInfoErrors(t *testing.T) {
	testCases := []struct {
		filename        string
		expectedErrText string
	}{
		{"snail.jpg", "invalid file name format"},
		{"golden_apple_snail_87p.jpg", "invalid confidence value"},
		{"golden_apple_snail_XXp_20260314T092653Z.jpg", "invalid confidence value"},
		{"golden_apple_snail_87p_notatime.jpg", "invalid timestamp format"},
		{"golden_apple_snail_87p_20260314T092653Z.txt", "file type not eligible"},
		{"golden_apple_snail_87p_20260314T092653Z.db", "file type not eligible"},
	}

	for _, tc := range testCases {
		t.Run(tc.filename, func(t *testing.T) {
			_, err := parseFileInfo("/clips/"+tc.filename, mockFileInfo{name: tc.filename, size: 64})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedErrText)
		})
	}
}

func TestGetSnapshotFilesSkipsUnparseable(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "rice_black_bug_93p_20260102T150405Z.jpg")
	invalid := filepath.Join(dir, "holiday-photo.jpg")
	require.NoError(t, os.WriteFile(valid, []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(invalid, []byte("data"), 0o644))

	files, err := GetSnapshotFiles(dir, true)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "rice_black_bug", files[0].PestType)
}

func TestGetSnapshotFilesAllUnparseable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "holiday-photo.jpg"), []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "another.png"), []byte("data"), 0o644))

	_, err := GetSnapshotFiles(dir, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse any files")
}

func TestGetSnapshotFilesIgnoresNonImages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sweep.log"), []byte("data"), 0o644))

	files, err := GetSnapshotFiles(dir, false)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestBuildPestSubDirCountMap(t *testing.T) {
	files := []FileInfo{
		{Path: "/clips/2026/01/rice_bug_90p_20260102T100000Z.jpg", PestType: "rice_bug"},
		{Path: "/clips/2026/01/rice_bug_91p_20260103T100000Z.jpg", PestType: "rice_bug"},
		{Path: "/clips/2026/02/rice_bug_92p_20260202T100000Z.jpg", PestType: "rice_bug"},
		{Path: "/clips/2026/02/stem_borer_92p_20260202T100000Z.jpg", PestType: "stem_borer"},
	}

	counts := buildPestSubDirCountMap(files)

	assert.Equal(t, 2, counts["rice_bug"]["/clips/2026/01"])
	assert.Equal(t, 1, counts["rice_bug"]["/clips/2026/02"])
	assert.Equal(t, 1, counts["stem_borer"]["/clips/2026/02"])
}
