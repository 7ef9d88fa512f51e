package gominio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeCopySource(t *testing.T) {
	tests := []struct {
		name   string
		bucket string
		key    string
		want   string
	}{
		{"plain key", "bkt", "folder/file.txt", "/bkt/folder/file.txt"},
		{"space", "bkt", "my file.txt", "/bkt/my%20file.txt"},
		{"plus stays literal after decode", "bkt", "a+b.txt", "/bkt/a%2Bb.txt"},
		{"percent escaped", "bkt", "a%2Fb.txt", "/bkt/a%252Fb.txt"},
		{"unicode", "bkt", "fichier-été.txt", "/bkt/fichier-%C3%A9t%C3%A9.txt"},
		{"query metacharacters", "bkt", "report?v=1&x.txt", "/bkt/report%3Fv%3D1%26x.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeCopySource(tt.bucket, tt.key))
		})
	}
}
