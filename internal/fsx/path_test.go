package fsx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSplitsDirNameExtension(t *testing.T) {
	p, err := Normalize("/docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "/docs/readme.md", p.Full)
	assert.Equal(t, "/docs", p.Dir)
	assert.Equal(t, "readme", p.Name)
	assert.Equal(t, "md", p.Extension)
}

func TestNormalizeRootLevelFile(t *testing.T) {
	p, err := Normalize("/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "/", p.Dir)
}

func TestNormalizeDotfileHasNoExtension(t *testing.T) {
	p, err := Normalize("/.gitignore")
	require.NoError(t, err)
	assert.Equal(t, ".gitignore", p.Name)
	assert.Equal(t, "", p.Extension)
}

func TestNormalizeRejectsMissingLeadingSlash(t *testing.T) {
	_, err := Normalize("docs/readme.md")
	assert.Error(t, err)
}

func TestNormalizeRejectsTrailingSlash(t *testing.T) {
	_, err := Normalize("/docs/")
	assert.Error(t, err)
}

func TestNormalizeRejectsAncestorEscape(t *testing.T) {
	_, err := Normalize("/docs/../../etc/passwd")
	assert.Error(t, err)
}

func TestNormalizeRejectsNUL(t *testing.T) {
	_, err := Normalize("/docs/read\x00me.md")
	assert.Error(t, err)
}

func TestNormalizeDecodesPercentEncoding(t *testing.T) {
	p, err := Normalize("/docs/a%20b.txt")
	require.NoError(t, err)
	assert.Equal(t, "a b", p.Name)
}

func TestAncestorDirsIncludesDirItself(t *testing.T) {
	assert.Equal(t, []string{"/docs"}, AncestorDirs("/docs"))
	assert.Equal(t, []string{"/docs", "/docs/sub"}, AncestorDirs("/docs/sub"))
}

func TestAncestorDirsRootIsNil(t *testing.T) {
	assert.Nil(t, AncestorDirs("/"))
}
