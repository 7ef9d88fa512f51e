// Package validation provides centralized input validation logic.
// Bucket names and object keys are validated before any network call so
// malformed input fails fast and never reaches the wire.
package validation

import (
	"strings"
	"unicode"

	"gominio/errors"
)

// ValidateBucketName validates that a bucket name satisfies the DNS-safe
// naming rules S3-compatible servers enforce.
// Returns ErrInvalidBucketName if the bucket name is invalid.
func ValidateBucketName(bucket string) error {
	if bucket == "" {
		return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
			WithBucket(bucket).
			WithMessage("bucket name cannot be empty")
	}

	if len(bucket) < 3 || len(bucket) > 63 {
		return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
			WithBucket(bucket).
			WithMessage("bucket name must be between 3 and 63 characters long")
	}

	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
				WithBucket(bucket).
				WithMessage("bucket name can only contain lowercase letters, numbers, dots, and hyphens")
		}
	}

	if bucket[0] == '-' || bucket[0] == '.' || bucket[len(bucket)-1] == '-' || bucket[len(bucket)-1] == '.' {
		return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
			WithBucket(bucket).
			WithMessage("bucket name cannot start or end with a hyphen or dot")
	}

	if isIPAddress(bucket) {
		return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
			WithBucket(bucket).
			WithMessage("bucket name cannot be formatted as an IP address")
	}

	if hasAdjacentSpecialChars(bucket) {
		return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
			WithBucket(bucket).
			WithMessage("bucket name cannot contain two adjacent periods or hyphens")
	}

	return nil
}

// ValidateObjectKey validates that an object key is acceptable: non-empty,
// within the length limit, and free of control characters and traversal
// sequences.
func ValidateObjectKey(key string) error {
	if key == "" {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot be empty")
	}

	if strings.Contains(key, "..") {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot contain path traversal sequences")
	}

	if strings.HasPrefix(key, "/") {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot be an absolute path")
	}

	// S3 supports keys up to 1024 bytes.
	if len(key) > 1024 {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot exceed 1024 characters")
	}

	if hasControlCharacters(key) {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot contain control characters")
	}

	return nil
}

// ValidateMetadata validates user metadata keys and values before they are
// placed into request headers.
func ValidateMetadata(metadata map[string]string) error {
	for key, value := range metadata {
		if key == "" {
			return errors.NewError("validateMetadata", errors.ErrInvalidInput).
				WithMessage("metadata key cannot be empty")
		}
		if len(key) > 128 {
			return errors.NewError("validateMetadata", errors.ErrInvalidInput).
				WithMessage("metadata key cannot exceed 128 characters")
		}
		for _, char := range key {
			if char < 33 || char > 126 {
				return errors.NewError("validateMetadata", errors.ErrInvalidInput).
					WithMessage("metadata key can only contain printable ASCII characters without spaces")
			}
		}
		if len(value) > 2048 {
			return errors.NewError("validateMetadata", errors.ErrInvalidInput).
				WithMessage("metadata value cannot exceed 2048 characters")
		}
		for _, char := range value {
			if !unicode.IsPrint(char) {
				return errors.NewError("validateMetadata", errors.ErrInvalidInput).
					WithMessage("metadata value can only contain printable characters")
			}
		}
	}
	return nil
}

// isValidBucketChar checks if a character is valid in a bucket name.
func isValidBucketChar(char rune) bool {
	return (char >= '0' && char <= '9') || (char >= 'a' && char <= 'z') || char == '.' || char == '-'
}

// hasAdjacentSpecialChars checks for adjacent special characters.
func hasAdjacentSpecialChars(bucket string) bool {
	for i := 0; i < len(bucket)-1; i++ {
		if (bucket[i] == '.' && bucket[i+1] == '.') || (bucket[i] == '-' && bucket[i+1] == '-') {
			return true
		}
	}
	return false
}

// isIPAddress checks if a string is formatted as an IPv4 address.
func isIPAddress(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}

	for _, part := range parts {
		if len(part) == 0 {
			return true
		}
		num := 0
		for _, char := range part {
			if char < '0' || char > '9' {
				return false
			}
			num = num*10 + int(char-'0')
		}
		if num > 255 {
			return false
		}
	}

	return true
}

// hasControlCharacters checks for control characters in the key.
func hasControlCharacters(key string) bool {
	for _, char := range key {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}
