package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	oserrors "gominio/errors"
)

func TestValidateBucketName(t *testing.T) {
	tests := []struct {
		name    string
		bucket  string
		wantErr bool
	}{
		{"valid simple", "my-bucket", false},
		{"valid with numbers", "bucket123", false},
		{"valid with dots", "my.bucket.name", false},
		{"minimum length", "abc", false},
		{"maximum length", strings.Repeat("a", 63), false},
		{"empty", "", true},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", 64), true},
		{"uppercase", "MyBucket", true},
		{"underscore", "my_bucket", true},
		{"leading hyphen", "-bucket", true},
		{"trailing hyphen", "bucket-", true},
		{"leading dot", ".bucket", true},
		{"trailing dot", "bucket.", true},
		{"adjacent dots", "my..bucket", true},
		{"adjacent hyphens", "my--bucket", true},
		{"ip address", "192.168.1.1", true},
		{"spaces", "my bucket", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucketName(tt.bucket)
			if tt.wantErr {
				assert.ErrorIs(t, err, oserrors.ErrInvalidBucketName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateObjectKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid simple", "file.txt", false},
		{"valid nested", "folder/subfolder/file.txt", false},
		{"valid trailing slash", "folder/", false},
		{"valid unicode", "fichier-été.txt", false},
		{"maximum length", strings.Repeat("a", 1024), false},
		{"empty", "", true},
		{"path traversal", "folder/../secret", true},
		{"absolute path", "/file.txt", true},
		{"too long", strings.Repeat("a", 1025), true},
		{"newline", "file\n.txt", true},
		{"null byte", "file\x00.txt", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, oserrors.ErrInvalidObjectKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		wantErr  bool
	}{
		{"nil", nil, false},
		{"valid", map[string]string{"owner": "team-storage", "trace-id": "abc123"}, false},
		{"empty key", map[string]string{"": "value"}, true},
		{"key with space", map[string]string{"my key": "value"}, true},
		{"key too long", map[string]string{strings.Repeat("k", 129): "value"}, true},
		{"value too long", map[string]string{"key": strings.Repeat("v", 2049)}, true},
		{"value with newline", map[string]string{"key": "line1\nline2"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetadata(tt.metadata)
			if tt.wantErr {
				assert.ErrorIs(t, err, oserrors.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
