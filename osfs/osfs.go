// Package osfs layers an os-like, path-oriented API over an object storage
// client. Paths are absolute, "/bucket/prefix/name"; directories are
// zero-byte marker objects whose key ends in "/".
package osfs

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gominio"
	oserrors "gominio/errors"
	"gominio/storetypes"
)

// ErrDirectoryNotEmpty is returned by Remove on a directory that still
// has children. Use RemoveAll to delete recursively.
var ErrDirectoryNotEmpty = errors.New("gominio: directory not empty")

// batchSize is the server-imposed maximum for one batch delete call.
const batchSize = 1000

// Client is the slice of the storage client the filesystem drives.
type Client interface {
	MakeBucket(ctx context.Context, bucket string, opts ...storetypes.BucketOption) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	ListBuckets(ctx context.Context) ([]storetypes.BucketInfo, error)
	RemoveBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, data []byte, opts ...storetypes.PutOption) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts ...storetypes.PutOption) (*storetypes.PutResult, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	StatObject(ctx context.Context, bucket, key string) (*storetypes.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string) error
	RemoveObjects(ctx context.Context, bucket string, keys []string) (*storetypes.RemoveResult, error)
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	ListObjects(ctx context.Context, bucket, prefix string, opts ...storetypes.ListOption) (*storetypes.ListPage, error)
}

// FS is a path-oriented view over a Client. It holds no state of its own;
// every call goes to the server.
type FS struct {
	client Client
}

// New creates a filesystem over client.
func New(client Client) *FS {
	return &FS{client: client}
}

// File is a regular object fetched through Get.
type File struct {
	// Name is the file name without any directory part.
	Name string

	// Path is the absolute path the file was fetched from.
	Path string

	// Data is the object content.
	Data []byte

	// Size, LastModified and ContentType mirror the object metadata.
	Size         int64
	LastModified time.Time
	ContentType  string

	// Metadata holds user metadata with the wire prefix stripped.
	Metadata map[string]string
}

// Folder is a directory entry fetched through Get.
type Folder struct {
	// Name is the final directory segment, with a trailing slash.
	Name string

	// Path is the absolute directory path.
	Path string

	// Metadata holds user metadata of the directory marker, if one exists.
	Metadata map[string]string
}

// MkdirAll creates the directory path along with any missing parents,
// like os.MkdirAll. Creating an existing directory is not an error.
// The bucket is created if it does not exist.
func (f *FS) MkdirAll(ctx context.Context, path string) error {
	p, err := Parse(path)
	if err != nil {
		return err
	}
	if p.IsRoot() {
		return nil
	}
	if !p.IsDir() {
		return oserrors.NewError("mkdirAll", oserrors.ErrInvalidInput).
			WithMessage("not a directory path: " + path)
	}

	if err := f.client.MakeBucket(ctx, p.Bucket); err != nil &&
		!errors.Is(err, oserrors.ErrBucketAlreadyExists) {
		return err
	}

	// One marker per level so intermediate directories list correctly.
	segs := strings.Split(strings.TrimSuffix(p.Prefix, "/"), "/")
	marker := ""
	for _, seg := range segs {
		if seg == "" {
			continue
		}
		marker += seg + "/"
		if err := f.client.Put(ctx, p.Bucket, marker, nil); err != nil {
			return err
		}
	}
	return nil
}

// ReadDir lists the immediate children of a directory, sorted by name.
// Directory children carry a trailing slash; with onlyFiles they are
// filtered out. Reading the root lists bucket names.
func (f *FS) ReadDir(ctx context.Context, path string, onlyFiles bool) ([]string, error) {
	p, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if !p.IsDir() {
		return nil, oserrors.NewError("readDir", oserrors.ErrInvalidInput).
			WithMessage("not a directory path: " + path)
	}

	if p.IsRoot() {
		if onlyFiles {
			return nil, nil
		}
		buckets, err := f.client.ListBuckets(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(buckets))
		for _, b := range buckets {
			names = append(names, b.Name+"/")
		}
		sort.Strings(names)
		return names, nil
	}

	var names []string
	token := ""
	for {
		opts := []storetypes.ListOption{gominio.WithDelimiter("/")}
		if token != "" {
			opts = append(opts, gominio.WithContinuationToken(token))
		}
		page, err := f.client.ListObjects(ctx, p.Bucket, p.Prefix, opts...)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			name := strings.TrimPrefix(obj.Key, p.Prefix)
			if name == "" {
				// The directory's own marker.
				continue
			}
			names = append(names, name)
		}
		if !onlyFiles {
			for _, cp := range page.CommonPrefixes {
				names = append(names, strings.TrimPrefix(cp, p.Prefix))
			}
		}
		if !page.IsTruncated {
			break
		}
		token = page.NextContinuationToken
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether path refers to an existing bucket, directory or
// file.
func (f *FS) Exists(ctx context.Context, path string) (bool, error) {
	p, err := Parse(path)
	if err != nil {
		return false, err
	}
	if p.IsRoot() {
		return true, nil
	}
	if p.IsBucket() {
		return f.client.BucketExists(ctx, p.Bucket)
	}
	if p.IsDir() {
		return f.dirExists(ctx, p)
	}

	_, err = f.client.StatObject(ctx, p.Bucket, p.Key())
	if oserrors.IsObjectNotFound(err) || oserrors.IsBucketNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// dirExists checks for the directory marker or any object under the
// prefix.
func (f *FS) dirExists(ctx context.Context, p Path) (bool, error) {
	page, err := f.client.ListObjects(ctx, p.Bucket, p.Prefix, gominio.WithMaxKeys(1))
	if oserrors.IsBucketNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(page.Objects) > 0 || len(page.CommonPrefixes) > 0, nil
}

// IsDir reports whether path exists and is a directory. A file path
// returns false without error.
func (f *FS) IsDir(ctx context.Context, path string) (bool, error) {
	p, err := Parse(path)
	if err != nil {
		return false, err
	}
	if !p.IsDir() {
		return false, nil
	}
	return f.Exists(ctx, path)
}

// Remove deletes a file, an empty directory, or an empty bucket.
// Deleting a non-empty directory fails with ErrDirectoryNotEmpty.
func (f *FS) Remove(ctx context.Context, path string) error {
	p, err := Parse(path)
	if err != nil {
		return err
	}
	if p.IsRoot() {
		return oserrors.NewError("remove", oserrors.ErrInvalidInput).
			WithMessage("cannot remove root")
	}
	if !p.IsDir() {
		return f.client.RemoveObject(ctx, p.Bucket, p.Key())
	}

	children, err := f.ReadDir(ctx, path, false)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return ErrDirectoryNotEmpty
	}
	if p.IsBucket() {
		return f.client.RemoveBucket(ctx, p.Bucket)
	}
	return f.client.RemoveObject(ctx, p.Bucket, p.Prefix)
}

// RemoveAll deletes path and everything under it. Removing a bucket path
// deletes the bucket too. Removing a missing path is not an error.
func (f *FS) RemoveAll(ctx context.Context, path string) error {
	p, err := Parse(path)
	if err != nil {
		return err
	}
	if p.IsRoot() {
		return oserrors.NewError("removeAll", oserrors.ErrInvalidInput).
			WithMessage("cannot remove root; use Truncate")
	}
	if !p.IsDir() {
		return f.client.RemoveObject(ctx, p.Bucket, p.Key())
	}

	if err := f.removePrefix(ctx, p.Bucket, p.Prefix); err != nil {
		if oserrors.IsBucketNotFound(err) {
			return nil
		}
		return err
	}
	if p.IsBucket() {
		err := f.client.RemoveBucket(ctx, p.Bucket)
		if oserrors.IsBucketNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

// removePrefix batch-deletes every object under prefix.
func (f *FS) removePrefix(ctx context.Context, bucket, prefix string) error {
	token := ""
	for {
		opts := []storetypes.ListOption{gominio.WithMaxKeys(batchSize)}
		if token != "" {
			opts = append(opts, gominio.WithContinuationToken(token))
		}
		page, err := f.client.ListObjects(ctx, bucket, prefix, opts...)
		if err != nil {
			return err
		}
		if len(page.Objects) > 0 {
			keys := make([]string, 0, len(page.Objects))
			for _, obj := range page.Objects {
				keys = append(keys, obj.Key)
			}
			result, err := f.client.RemoveObjects(ctx, bucket, keys)
			if err != nil {
				return err
			}
			if len(result.Errors) > 0 {
				first := result.Errors[0]
				return oserrors.NewObjectError("removeAll", bucket, first.Key, oserrors.ErrAccessDenied).
					WithMessage(first.Code + ": " + first.Message)
			}
		}
		if !page.IsTruncated {
			return nil
		}
		token = page.NextContinuationToken
	}
}

// Copy copies a file or a directory tree. Copying a file into a directory
// path keeps the file's name, like shell cp. All copies are server-side.
func (f *FS) Copy(ctx context.Context, src, dst string) error {
	srcPath, err := Parse(src)
	if err != nil {
		return err
	}
	dstPath, err := Parse(dst)
	if err != nil {
		return err
	}
	target, err := destination(srcPath, dstPath)
	if err != nil {
		return err
	}

	if !srcPath.IsDir() {
		return f.client.CopyObject(ctx, srcPath.Bucket, srcPath.Key(), target.Bucket, target.Key())
	}
	if srcPath.IsRoot() || target.IsRoot() {
		return oserrors.NewError("copy", oserrors.ErrInvalidInput).
			WithMessage("cannot copy the root")
	}

	token := ""
	for {
		opts := []storetypes.ListOption{}
		if token != "" {
			opts = append(opts, gominio.WithContinuationToken(token))
		}
		page, err := f.client.ListObjects(ctx, srcPath.Bucket, srcPath.Prefix, opts...)
		if err != nil {
			return err
		}
		for _, obj := range page.Objects {
			rel := strings.TrimPrefix(obj.Key, srcPath.Prefix)
			if err := f.client.CopyObject(ctx, srcPath.Bucket, obj.Key, target.Bucket, target.Prefix+rel); err != nil {
				return err
			}
		}
		if !page.IsTruncated {
			return nil
		}
		token = page.NextContinuationToken
	}
}

// Move copies src to dst and then deletes src.
func (f *FS) Move(ctx context.Context, src, dst string) error {
	if err := f.Copy(ctx, src, dst); err != nil {
		return err
	}
	return f.RemoveAll(ctx, src)
}

// Get fetches the entry at path: a *File with its content for a file
// path, a *Folder for a directory path.
func (f *FS) Get(ctx context.Context, path string) (*File, *Folder, error) {
	p, err := Parse(path)
	if err != nil {
		return nil, nil, err
	}

	if p.IsDir() {
		exists, err := f.Exists(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			return nil, nil, oserrors.NewBucketError("get", p.Bucket, oserrors.ErrObjectNotFound).
				WithMessage("no such directory: " + path)
		}
		folder := &Folder{Name: p.Base(), Path: p.String()}
		// Metadata lives on the marker when one was created.
		if !p.IsBucket() {
			if info, err := f.client.StatObject(ctx, p.Bucket, p.Prefix); err == nil {
				folder.Metadata = info.Metadata
			}
		}
		return nil, folder, nil
	}

	info, err := f.client.StatObject(ctx, p.Bucket, p.Key())
	if err != nil {
		return nil, nil, err
	}
	data, err := f.client.Get(ctx, p.Bucket, p.Key())
	if err != nil {
		return nil, nil, err
	}
	return &File{
		Name:         p.Name,
		Path:         p.String(),
		Data:         data,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		Metadata:     info.Metadata,
	}, nil, nil
}

// PutData writes data to a file path, creating parent directories and the
// bucket as needed.
func (f *FS) PutData(ctx context.Context, path string, data []byte, opts ...storetypes.PutOption) error {
	p, err := Parse(path)
	if err != nil {
		return err
	}
	if p.IsDir() {
		return oserrors.NewError("putData", oserrors.ErrInvalidInput).
			WithMessage("not a file path: " + path)
	}
	if err := f.MkdirAll(ctx, "/"+p.Bucket+"/"+p.Prefix); err != nil {
		return err
	}
	return f.client.Put(ctx, p.Bucket, p.Key(), data, opts...)
}

// PutFile uploads a local file to a file path. With a directory path the
// local file's base name is appended.
func (f *FS) PutFile(ctx context.Context, path, localPath string, opts ...storetypes.PutOption) error {
	p, err := Parse(path)
	if err != nil {
		return err
	}
	if p.IsDir() {
		base := localPath
		if idx := strings.LastIndexByte(base, os.PathSeparator); idx >= 0 {
			base = base[idx+1:]
		}
		p = p.Join(base)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return oserrors.NewError("putFile", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return oserrors.NewError("putFile", err)
	}

	if err := f.MkdirAll(ctx, "/"+p.Bucket+"/"+p.Prefix); err != nil {
		return err
	}
	_, err = f.client.PutObject(ctx, p.Bucket, p.Key(), file, stat.Size(), opts...)
	return err
}

// LastModified returns the newest modification time of any object under a
// directory path.
func (f *FS) LastModified(ctx context.Context, path string) (time.Time, error) {
	p, err := Parse(path)
	if err != nil {
		return time.Time{}, err
	}
	if !p.IsDir() || p.IsRoot() {
		return time.Time{}, oserrors.NewError("lastModified", oserrors.ErrInvalidInput).
			WithMessage("not a directory path: " + path)
	}

	var newest time.Time
	found := false
	token := ""
	for {
		opts := []storetypes.ListOption{}
		if token != "" {
			opts = append(opts, gominio.WithContinuationToken(token))
		}
		page, err := f.client.ListObjects(ctx, p.Bucket, p.Prefix, opts...)
		if err != nil {
			return time.Time{}, err
		}
		for _, obj := range page.Objects {
			if obj.IsDir() {
				continue
			}
			found = true
			if obj.LastModified.After(newest) {
				newest = obj.LastModified
			}
		}
		if !page.IsTruncated {
			break
		}
		token = page.NextContinuationToken
	}
	if !found {
		return time.Time{}, oserrors.NewBucketError("lastModified", p.Bucket, oserrors.ErrObjectNotFound).
			WithMessage("no objects under " + path)
	}
	return newest, nil
}

// Truncate deletes every bucket and everything in it.
func (f *FS) Truncate(ctx context.Context) error {
	buckets, err := f.client.ListBuckets(ctx)
	if err != nil {
		return err
	}
	for _, b := range buckets {
		if err := f.RemoveAll(ctx, "/"+b.Name+"/"); err != nil {
			return err
		}
	}
	return nil
}
