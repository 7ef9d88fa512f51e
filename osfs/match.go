package osfs

import (
	"strings"

	oserrors "gominio/errors"
)

// Path is a parsed absolute storage path of the form
// /bucket/prefix/name. A trailing slash marks a directory.
type Path struct {
	// Bucket is the first path segment; empty only for the root "/".
	Bucket string

	// Prefix is the directory part inside the bucket, "" or ending in "/".
	Prefix string

	// Name is the file name, empty for directory paths.
	Name string
}

// Parse splits an absolute path into bucket, prefix and name.
//
//	/                  -> root
//	/bucket/           -> bucket directory
//	/bucket/a/b/       -> directory
//	/bucket/a/b.txt    -> file
//
// A bucket path without a trailing slash ("/bucket") is treated as a
// directory, since a bucket can never be a file.
func Parse(path string) (Path, error) {
	if !strings.HasPrefix(path, "/") {
		return Path{}, oserrors.NewError("parse", oserrors.ErrInvalidInput).
			WithMessage("path must be absolute: " + path)
	}
	if strings.Contains(path, "//") {
		return Path{}, oserrors.NewError("parse", oserrors.ErrInvalidInput).
			WithMessage("path contains empty segment: " + path)
	}

	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return Path{}, nil
	}

	bucket, rest, _ := strings.Cut(trimmed, "/")
	p := Path{Bucket: bucket}
	if rest == "" {
		return p, nil
	}

	if idx := strings.LastIndex(rest, "/"); idx >= 0 {
		p.Prefix = rest[:idx+1]
		p.Name = rest[idx+1:]
	} else {
		p.Name = rest
	}
	return p, nil
}

// IsRoot reports whether the path is "/".
func (p Path) IsRoot() bool {
	return p.Bucket == ""
}

// IsBucket reports whether the path names a bucket with no key.
func (p Path) IsBucket() bool {
	return p.Bucket != "" && p.Prefix == "" && p.Name == ""
}

// IsDir reports whether the path is a directory path.
func (p Path) IsDir() bool {
	return p.Name == ""
}

// Key returns the object key inside the bucket: prefix plus name for a
// file, the prefix itself for a directory.
func (p Path) Key() string {
	return p.Prefix + p.Name
}

// String reassembles the absolute path.
func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}
	return "/" + p.Bucket + "/" + p.Key()
}

// Base returns the last path element: the file name, or the final
// directory segment followed by "/".
func (p Path) Base() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Prefix == "" {
		return p.Bucket + "/"
	}
	segs := strings.Split(strings.TrimSuffix(p.Prefix, "/"), "/")
	return segs[len(segs)-1] + "/"
}

// Join appends a child name to a directory path. Appending to a file
// path is a programming error and returns the path unchanged.
func (p Path) Join(name string) Path {
	if !p.IsDir() {
		return p
	}
	child := p
	if strings.HasSuffix(name, "/") {
		child.Prefix = p.Prefix + name
	} else if idx := strings.LastIndex(name, "/"); idx >= 0 {
		child.Prefix = p.Prefix + name[:idx+1]
		child.Name = name[idx+1:]
	} else {
		child.Name = name
	}
	return child
}

// destination resolves where src lands when copied or moved to dst,
// mirroring shell cp semantics: copying a file into a directory keeps the
// file's name.
func destination(src, dst Path) (Path, error) {
	switch {
	case src.IsDir() && !dst.IsDir():
		return Path{}, oserrors.NewError("destination", oserrors.ErrInvalidInput).
			WithMessage("cannot copy directory " + src.String() + " onto file " + dst.String())
	case !src.IsDir() && dst.IsDir():
		return dst.Join(src.Name), nil
	default:
		return dst, nil
	}
}
