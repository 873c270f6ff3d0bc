package fsname_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tsdfx/tsdfx/internal/fsname"
)

func TestIsPortable(t *testing.T) {
	cases := map[string]bool{
		"report.csv":     true,
		"my file.txt":    true,
		"a_b-c.d":        true,
		"":                false,
		"bad\tname":      false,
		"emoji😀":         false,
		"tab\tseparated": false,
	}
	for name, want := range cases {
		assert.Equalf(t, want, fsname.IsPortable(name), "name=%q", name)
	}
}

func TestIsDotOrDotDot(t *testing.T) {
	assert.True(t, fsname.IsDotOrDotDot("."))
	assert.True(t, fsname.IsDotOrDotDot(".."))
	assert.False(t, fsname.IsDotOrDotDot(".hidden"))
	assert.False(t, fsname.IsDotOrDotDot("a"))
}

func TestIsHidden(t *testing.T) {
	assert.True(t, fsname.IsHidden(".hidden"))
	assert.False(t, fsname.IsHidden("visible"))
}

func TestHasNewline(t *testing.T) {
	assert.True(t, fsname.HasNewline("bad\nname"))
	assert.False(t, fsname.HasNewline("good-name"))
}

func TestValidateLine(t *testing.T) {
	cases := []struct {
		line    string
		relpath string
		isDir   bool
		ok      bool
	}{
		{"/a", "a", false, true},
		{"/dir/", "dir", true, true},
		{"/a/b/c.txt", "a/b/c.txt", false, true},
		{"/my file.txt", "my file.txt", false, true},
		{"/.hidden", "", false, false},
		{"/bad\tname", "", false, false},
		{"no-leading-slash", "", false, false},
		{"/", "", false, false},
		{"/a/./b", "", false, false},
		{"/trailing space ", "", false, false},
		{"/ leading-space", "", false, false},
	}

	for _, tc := range cases {
		relpath, isDir, ok := fsname.ValidateLine(tc.line)
		assert.Equalf(t, tc.ok, ok, "line=%q", tc.line)
		if tc.ok {
			assert.Equal(t, tc.relpath, relpath)
			assert.Equal(t, tc.isDir, isDir)
		}
	}
}
