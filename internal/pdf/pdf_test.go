package pdf

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"3", []int{3}, false},
		{"1-3", []int{1, 2, 3}, false},
		{"5, 1-2,2", []int{1, 2, 5}, false},
		{"3-1", nil, true},
		{"0", nil, true},
		{"a", nil, true},
		{"1-b", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePageRange(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePageFromFilename(t *testing.T) {
	n, err := parsePageFromFilename("page_7_image_1.png")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = parsePageFromFilename("scan_2_Im0.jpg")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = parsePageFromFilename("readme.txt")
	require.Error(t, err)
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, img))
}

func TestCollectExtractedImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "page_2_image_1.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "page_1_image_1.png"), 3, 3)
	writePNG(t, filepath.Join(dir, "page_1_image_2.png"), 5, 5)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page_3_image_1.png"), []byte("broken"), 0o600))

	pages, err := collectExtractedImages(dir)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Page)
	assert.Len(t, pages[0].Images, 2)
	assert.Equal(t, 3, pages[0].Images[0].Bounds().Dx())
	assert.Equal(t, 2, pages[1].Page)
}

func TestExtractPagesErrors(t *testing.T) {
	_, err := ExtractPages("", Options{})
	require.Error(t, err)

	_, err = ExtractPages("missing.pdf", Options{PageRange: "x"})
	require.Error(t, err)

	_, err = ExtractPages(filepath.Join(t.TempDir(), "missing.pdf"), Options{})
	require.Error(t, err)
}

func TestIsPasswordError(t *testing.T) {
	assert.False(t, IsPasswordError(nil))
	assert.True(t, IsPasswordError(ErrEncrypted))
	assert.True(t, IsPasswordError(errors.New("pdfcpu: please provide the correct password")))
	assert.False(t, IsPasswordError(errors.New("unexpected EOF")))
}

func TestConfiguration(t *testing.T) {
	assert.Nil(t, configuration(""))
	conf := configuration("secret")
	require.NotNil(t, conf)
	assert.Equal(t, "secret", conf.UserPW)
}

func TestPageCountMissingFile(t *testing.T) {
	_, err := PageCount(filepath.Join(t.TempDir(), "none.pdf"))
	require.Error(t, err)
	_, err = TextLayer(filepath.Join(t.TempDir(), "none.pdf"), nil)
	require.Error(t, err)
}
