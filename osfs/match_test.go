package osfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    Path
		wantErr bool
	}{
		{"root", "/", Path{}, false},
		{"bucket with slash", "/bkt/", Path{Bucket: "bkt"}, false},
		{"bucket without slash", "/bkt", Path{Bucket: "bkt"}, false},
		{"file in bucket", "/bkt/file.txt", Path{Bucket: "bkt", Name: "file.txt"}, false},
		{"nested file", "/bkt/a/b/file.txt", Path{Bucket: "bkt", Prefix: "a/b/", Name: "file.txt"}, false},
		{"directory", "/bkt/a/b/", Path{Bucket: "bkt", Prefix: "a/b/"}, false},
		{"relative", "file.txt", Path{}, true},
		{"empty", "", Path{}, true},
		{"double slash", "/bkt//file", Path{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPath_Predicates(t *testing.T) {
	root, err := Parse("/")
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	assert.True(t, root.IsDir())

	bucket, err := Parse("/bkt/")
	require.NoError(t, err)
	assert.True(t, bucket.IsBucket())
	assert.True(t, bucket.IsDir())
	assert.False(t, bucket.IsRoot())

	file, err := Parse("/bkt/a/f.txt")
	require.NoError(t, err)
	assert.False(t, file.IsDir())
	assert.Equal(t, "a/f.txt", file.Key())
	assert.Equal(t, "/bkt/a/f.txt", file.String())
	assert.Equal(t, "f.txt", file.Base())

	dir, err := Parse("/bkt/a/b/")
	require.NoError(t, err)
	assert.Equal(t, "a/b/", dir.Key())
	assert.Equal(t, "b/", dir.Base())
}

func TestPath_Join(t *testing.T) {
	dir, err := Parse("/bkt/a/")
	require.NoError(t, err)

	file := dir.Join("f.txt")
	assert.Equal(t, "a/f.txt", file.Key())

	sub := dir.Join("b/")
	assert.Equal(t, "a/b/", sub.Key())
	assert.True(t, sub.IsDir())

	nested := dir.Join("b/c.txt")
	assert.Equal(t, "a/b/c.txt", nested.Key())
}

func TestDestination(t *testing.T) {
	file, err := Parse("/src/a/f.txt")
	require.NoError(t, err)
	dir, err := Parse("/dst/x/")
	require.NoError(t, err)
	otherFile, err := Parse("/dst/x/renamed.txt")
	require.NoError(t, err)
	srcDir, err := Parse("/src/a/")
	require.NoError(t, err)

	// File into directory keeps its name.
	got, err := destination(file, dir)
	require.NoError(t, err)
	assert.Equal(t, "x/f.txt", got.Key())
	assert.Equal(t, "dst", got.Bucket)

	// File onto file renames.
	got, err = destination(file, otherFile)
	require.NoError(t, err)
	assert.Equal(t, "x/renamed.txt", got.Key())

	// Directory into directory.
	got, err = destination(srcDir, dir)
	require.NoError(t, err)
	assert.Equal(t, "x/", got.Key())

	// Directory onto file is invalid.
	_, err = destination(srcDir, file)
	assert.Error(t, err)
}
