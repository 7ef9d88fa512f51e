package testutil

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FakeServer is an in-memory S3-compatible server for tests. It implements
// the bucket, object, listing, batch-delete and multipart operations over
// path-style addressing, with enough fidelity for client round-trip tests.
// It is safe for concurrent use.
type FakeServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	buckets  map[string]*fakeBucket
	failures []injectedFailure
	requests int
}

type fakeBucket struct {
	created time.Time
	objects map[string]*fakeObject
	uploads map[string]*fakeUpload
}

type fakeObject struct {
	data        []byte
	etag        string
	contentType string
	metadata    map[string]string
	modified    time.Time
}

type fakeUpload struct {
	key   string
	parts map[int][]byte
	etags map[int]string
}

type injectedFailure struct {
	status    int
	code      string
	remaining int
}

// NewFakeServer starts a fake server. Callers must Close it.
func NewFakeServer() *FakeServer {
	f := &FakeServer{buckets: make(map[string]*fakeBucket)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// Endpoint returns the host:port the fake listens on.
func (f *FakeServer) Endpoint() string {
	return strings.TrimPrefix(f.srv.URL, "http://")
}

// Close shuts the server down.
func (f *FakeServer) Close() {
	f.srv.Close()
}

// RequestCount returns how many requests the server has handled.
func (f *FakeServer) RequestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// FailNext makes the next n requests fail with the given status and S3
// error code before normal handling resumes.
func (f *FakeServer) FailNext(n, status int, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, injectedFailure{status: status, code: code, remaining: n})
}

// ObjectData returns the stored bytes for bucket/key, or nil.
func (f *FakeServer) ObjectData(bucket, key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buckets[bucket]
	if !ok {
		return nil
	}
	obj, ok := b.objects[key]
	if !ok {
		return nil
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out
}

// UploadCount returns the number of in-flight multipart uploads in bucket.
func (f *FakeServer) UploadCount(bucket string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buckets[bucket]
	if !ok {
		return 0
	}
	return len(b.uploads)
}

func (f *FakeServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests++
	for i := range f.failures {
		if f.failures[i].remaining > 0 {
			f.failures[i].remaining--
			status, code := f.failures[i].status, f.failures[i].code
			f.mu.Unlock()
			writeS3Error(w, status, code, "injected failure")
			return
		}
	}
	f.mu.Unlock()

	bucket, key := splitPath(r.URL.Path)

	switch {
	case bucket == "":
		f.handleService(w, r)
	case key == "":
		f.handleBucket(w, r, bucket)
	default:
		f.handleObject(w, r, bucket, key)
	}
}

func splitPath(p string) (bucket, key string) {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "", ""
	}
	bucket, key, _ = strings.Cut(p, "/")
	return bucket, key
}

func (f *FakeServer) handleService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "unsupported service call")
		return
	}

	f.mu.Lock()
	type entry struct {
		name    string
		created time.Time
	}
	entries := make([]entry, 0, len(f.buckets))
	for name, b := range f.buckets {
		entries = append(entries, entry{name, b.created})
	}
	f.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	var doc struct {
		XMLName xml.Name `xml:"ListAllMyBucketsResult"`
		Buckets struct {
			Bucket []struct {
				Name         string    `xml:"Name"`
				CreationDate time.Time `xml:"CreationDate"`
			} `xml:"Bucket"`
		} `xml:"Buckets"`
	}
	for _, e := range entries {
		doc.Buckets.Bucket = append(doc.Buckets.Bucket, struct {
			Name         string    `xml:"Name"`
			CreationDate time.Time `xml:"CreationDate"`
		}{e.name, e.created})
	}
	writeXML(w, http.StatusOK, doc)
}

func (f *FakeServer) handleBucket(w http.ResponseWriter, r *http.Request, bucket string) {
	query := r.URL.Query()

	switch {
	case r.Method == http.MethodPut:
		f.mu.Lock()
		_, exists := f.buckets[bucket]
		if !exists {
			f.buckets[bucket] = &fakeBucket{
				created: time.Now().UTC(),
				objects: make(map[string]*fakeObject),
				uploads: make(map[string]*fakeUpload),
			}
		}
		f.mu.Unlock()
		if exists {
			writeS3Error(w, http.StatusConflict, "BucketAlreadyOwnedByYou", "bucket exists")
			return
		}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodHead:
		f.mu.Lock()
		_, exists := f.buckets[bucket]
		f.mu.Unlock()
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodDelete:
		f.mu.Lock()
		b, exists := f.buckets[bucket]
		var empty bool
		if exists {
			empty = len(b.objects) == 0
			if empty {
				delete(f.buckets, bucket)
			}
		}
		f.mu.Unlock()
		if !exists {
			writeS3Error(w, http.StatusNotFound, "NoSuchBucket", "no such bucket")
			return
		}
		if !empty {
			writeS3Error(w, http.StatusConflict, "BucketNotEmpty", "bucket not empty")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodGet && query.Get("list-type") == "2":
		f.handleList(w, r, bucket)

	case r.Method == http.MethodPost && query.Has("delete"):
		f.handleBatchDelete(w, r, bucket)

	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "unsupported bucket call")
	}
}

func (f *FakeServer) handleList(w http.ResponseWriter, r *http.Request, bucket string) {
	query := r.URL.Query()
	prefix := query.Get("prefix")
	delimiter := query.Get("delimiter")
	startAfter := query.Get("start-after")
	if token := query.Get("continuation-token"); token != "" {
		startAfter = token
	}
	maxKeys := 1000
	if mk := query.Get("max-keys"); mk != "" {
		if n, err := strconv.Atoi(mk); err == nil && n > 0 {
			maxKeys = n
		}
	}

	f.mu.Lock()
	b, exists := f.buckets[bucket]
	if !exists {
		f.mu.Unlock()
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", "no such bucket")
		return
	}
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) && k > startAfter {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	type content struct {
		Key          string    `xml:"Key"`
		LastModified time.Time `xml:"LastModified"`
		ETag         string    `xml:"ETag"`
		Size         int64     `xml:"Size"`
		StorageClass string    `xml:"StorageClass"`
	}
	var doc struct {
		XMLName               xml.Name `xml:"ListBucketResult"`
		Name                  string   `xml:"Name"`
		Prefix                string   `xml:"Prefix"`
		KeyCount              int      `xml:"KeyCount"`
		IsTruncated           bool     `xml:"IsTruncated"`
		NextContinuationToken string   `xml:"NextContinuationToken,omitempty"`
		Contents              []content
		CommonPrefixes        []struct {
			Prefix string `xml:"Prefix"`
		}
	}
	doc.Name = bucket
	doc.Prefix = prefix

	seenPrefixes := make(map[string]bool)
	count := 0
	lastKey := ""
	for _, k := range keys {
		if count >= maxKeys {
			doc.IsTruncated = true
			doc.NextContinuationToken = lastKey
			break
		}
		if delimiter != "" {
			rest := strings.TrimPrefix(k, prefix)
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				cp := prefix + rest[:idx+len(delimiter)]
				if !seenPrefixes[cp] {
					seenPrefixes[cp] = true
					doc.CommonPrefixes = append(doc.CommonPrefixes, struct {
						Prefix string `xml:"Prefix"`
					}{cp})
					count++
					lastKey = k
				}
				continue
			}
		}
		obj := b.objects[k]
		doc.Contents = append(doc.Contents, content{
			Key:          k,
			LastModified: obj.modified,
			ETag:         `"` + obj.etag + `"`,
			Size:         int64(len(obj.data)),
			StorageClass: "STANDARD",
		})
		count++
		lastKey = k
	}
	doc.KeyCount = count
	f.mu.Unlock()

	writeXML(w, http.StatusOK, doc)
}

func (f *FakeServer) handleBatchDelete(w http.ResponseWriter, r *http.Request, bucket string) {
	var req struct {
		XMLName xml.Name `xml:"Delete"`
		Objects []struct {
			Key string `xml:"Key"`
		} `xml:"Object"`
	}
	data, _ := io.ReadAll(r.Body)
	if err := xml.Unmarshal(data, &req); err != nil {
		writeS3Error(w, http.StatusBadRequest, "MalformedXML", "cannot parse delete request")
		return
	}

	type deleted struct {
		Key string `xml:"Key"`
	}
	var doc struct {
		XMLName xml.Name  `xml:"DeleteResult"`
		Deleted []deleted `xml:"Deleted"`
	}

	f.mu.Lock()
	b, exists := f.buckets[bucket]
	if exists {
		for _, o := range req.Objects {
			delete(b.objects, o.Key)
			doc.Deleted = append(doc.Deleted, deleted{Key: o.Key})
		}
	}
	f.mu.Unlock()
	if !exists {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", "no such bucket")
		return
	}
	writeXML(w, http.StatusOK, doc)
}

func (f *FakeServer) handleObject(w http.ResponseWriter, r *http.Request, bucket, key string) {
	query := r.URL.Query()

	f.mu.Lock()
	b, exists := f.buckets[bucket]
	f.mu.Unlock()
	if !exists {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", "no such bucket")
		return
	}

	switch {
	case r.Method == http.MethodPost && query.Has("uploads"):
		f.handleInitiate(w, r, b, bucket, key)
	case r.Method == http.MethodPut && query.Get("uploadId") != "":
		f.handleUploadPart(w, r, b, key, query.Get("uploadId"), query.Get("partNumber"))
	case r.Method == http.MethodPost && query.Get("uploadId") != "":
		f.handleComplete(w, r, b, bucket, key, query.Get("uploadId"))
	case r.Method == http.MethodDelete && query.Get("uploadId") != "":
		f.handleAbort(w, b, query.Get("uploadId"))
	case r.Method == http.MethodPut:
		f.handlePut(w, r, b, key)
	case r.Method == http.MethodGet, r.Method == http.MethodHead:
		f.handleGet(w, r, b, key)
	case r.Method == http.MethodDelete:
		f.mu.Lock()
		delete(b.objects, key)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "unsupported object call")
	}
}

func (f *FakeServer) handlePut(w http.ResponseWriter, r *http.Request, b *fakeBucket, key string) {
	// Server-side copy. The copy source arrives percent-encoded.
	if src := r.Header.Get("x-amz-copy-source"); src != "" {
		if decoded, err := url.PathUnescape(src); err == nil {
			src = decoded
		}
		srcBucket, srcKey := splitPath(src)
		f.mu.Lock()
		sb, ok := f.buckets[srcBucket]
		var srcObj *fakeObject
		if ok {
			srcObj = sb.objects[srcKey]
		}
		if srcObj != nil {
			b.objects[key] = &fakeObject{
				data:        append([]byte(nil), srcObj.data...),
				etag:        srcObj.etag,
				contentType: srcObj.contentType,
				metadata:    srcObj.metadata,
				modified:    time.Now().UTC(),
			}
		}
		f.mu.Unlock()
		if srcObj == nil {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey", "no such copy source")
			return
		}
		writeXML(w, http.StatusOK, struct {
			XMLName xml.Name `xml:"CopyObjectResult"`
			ETag    string   `xml:"ETag"`
		}{ETag: `"copied"`})
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeS3Error(w, http.StatusBadRequest, "IncompleteBody", "read failed")
		return
	}
	obj := &fakeObject{
		data:        data,
		etag:        md5Hex(data),
		contentType: r.Header.Get("Content-Type"),
		metadata:    collectMeta(r.Header),
		modified:    time.Now().UTC(),
	}
	f.mu.Lock()
	b.objects[key] = obj
	f.mu.Unlock()

	w.Header().Set("ETag", `"`+obj.etag+`"`)
	w.WriteHeader(http.StatusOK)
}

func (f *FakeServer) handleGet(w http.ResponseWriter, r *http.Request, b *fakeBucket, key string) {
	f.mu.Lock()
	obj, ok := b.objects[key]
	f.mu.Unlock()
	if !ok {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeS3Error(w, http.StatusNotFound, "NoSuchKey", "no such key")
		return
	}

	w.Header().Set("Content-Type", obj.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
	w.Header().Set("ETag", `"`+obj.etag+`"`)
	w.Header().Set("Last-Modified", obj.modified.Format(http.TimeFormat))
	for k, v := range obj.metadata {
		w.Header().Set("x-amz-meta-"+k, v)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(obj.data)
	}
}

func (f *FakeServer) handleInitiate(w http.ResponseWriter, r *http.Request, b *fakeBucket, bucket, key string) {
	uploadID := uuid.New().String()
	f.mu.Lock()
	b.uploads[uploadID] = &fakeUpload{
		key:   key,
		parts: make(map[int][]byte),
		etags: make(map[int]string),
	}
	f.mu.Unlock()

	writeXML(w, http.StatusOK, struct {
		XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
		Bucket   string   `xml:"Bucket"`
		Key      string   `xml:"Key"`
		UploadID string   `xml:"UploadId"`
	}{Bucket: bucket, Key: key, UploadID: uploadID})
}

func (f *FakeServer) handleUploadPart(w http.ResponseWriter, r *http.Request, b *fakeBucket, key, uploadID, partNumber string) {
	num, err := strconv.Atoi(partNumber)
	if err != nil || num < 1 {
		writeS3Error(w, http.StatusBadRequest, "InvalidArgument", "bad part number")
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeS3Error(w, http.StatusBadRequest, "IncompleteBody", "read failed")
		return
	}

	f.mu.Lock()
	up, ok := b.uploads[uploadID]
	if ok {
		up.parts[num] = data
		up.etags[num] = md5Hex(data)
	}
	var etag string
	if ok {
		etag = up.etags[num]
	}
	f.mu.Unlock()
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchUpload", "no such upload")
		return
	}

	w.Header().Set("ETag", `"`+etag+`"`)
	w.WriteHeader(http.StatusOK)
}

func (f *FakeServer) handleComplete(w http.ResponseWriter, r *http.Request, b *fakeBucket, bucket, key, uploadID string) {
	var req struct {
		XMLName xml.Name `xml:"CompleteMultipartUpload"`
		Parts   []struct {
			PartNumber int    `xml:"PartNumber"`
			ETag       string `xml:"ETag"`
		} `xml:"Part"`
	}
	data, _ := io.ReadAll(r.Body)
	if err := xml.Unmarshal(data, &req); err != nil {
		writeS3Error(w, http.StatusBadRequest, "MalformedXML", "cannot parse complete request")
		return
	}

	f.mu.Lock()
	up, ok := b.uploads[uploadID]
	if !ok {
		f.mu.Unlock()
		writeS3Error(w, http.StatusNotFound, "NoSuchUpload", "no such upload")
		return
	}

	var assembled []byte
	for i, p := range req.Parts {
		if p.PartNumber != i+1 {
			f.mu.Unlock()
			writeS3Error(w, http.StatusBadRequest, "InvalidPartOrder", "parts out of order")
			return
		}
		chunk, have := up.parts[p.PartNumber]
		if !have || strings.Trim(p.ETag, `"`) != up.etags[p.PartNumber] {
			f.mu.Unlock()
			writeS3Error(w, http.StatusBadRequest, "InvalidPart", "missing or mismatched part")
			return
		}
		assembled = append(assembled, chunk...)
	}

	// The assembled object's tag is the MD5 of the binary part digests,
	// suffixed with the part count, matching real S3 servers.
	digests := md5.New()
	for i := range req.Parts {
		raw, _ := hex.DecodeString(up.etags[i+1])
		digests.Write(raw)
	}
	etag := fmt.Sprintf("%s-%d", hex.EncodeToString(digests.Sum(nil)), len(req.Parts))
	b.objects[key] = &fakeObject{
		data:     assembled,
		etag:     etag,
		modified: time.Now().UTC(),
	}
	delete(b.uploads, uploadID)
	f.mu.Unlock()

	writeXML(w, http.StatusOK, struct {
		XMLName xml.Name `xml:"CompleteMultipartUploadResult"`
		Bucket  string   `xml:"Bucket"`
		Key     string   `xml:"Key"`
		ETag    string   `xml:"ETag"`
	}{Bucket: bucket, Key: key, ETag: `"` + etag + `"`})
}

func (f *FakeServer) handleAbort(w http.ResponseWriter, b *fakeBucket, uploadID string) {
	f.mu.Lock()
	_, ok := b.uploads[uploadID]
	delete(b.uploads, uploadID)
	f.mu.Unlock()
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchUpload", "no such upload")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func collectMeta(header http.Header) map[string]string {
	var meta map[string]string
	for name, vals := range header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-amz-meta-") && len(vals) > 0 {
			if meta == nil {
				meta = make(map[string]string)
			}
			meta[strings.TrimPrefix(lower, "x-amz-meta-")] = vals[0]
		}
	}
	return meta
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func writeXML(w http.ResponseWriter, status int, doc any) {
	out, err := xml.Marshal(doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

func writeS3Error(w http.ResponseWriter, status int, code, message string) {
	doc := struct {
		XMLName   xml.Name `xml:"Error"`
		Code      string   `xml:"Code"`
		Message   string   `xml:"Message"`
		RequestID string   `xml:"RequestId"`
	}{Code: code, Message: message, RequestID: uuid.New().String()}
	writeXML(w, status, doc)
}
