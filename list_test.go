package gominio_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gominio"
	oserrors "gominio/errors"
	"gominio/internal/testutil"
	"gominio/storetypes"
)

func seedObjects(t *testing.T, client *gominio.Client, bucket string, n int) []string {
	t.Helper()
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("data/obj-%03d.txt", i)
		require.NoError(t, client.Put(context.Background(), bucket, key, []byte("x")))
		keys = append(keys, key)
	}
	return keys
}

func TestListObjects_SinglePage(t *testing.T) {
	client, _, bucket := setupBucket(t)
	keys := seedObjects(t, client, bucket, 5)

	page, err := client.ListObjects(context.Background(), bucket, "data/")
	require.NoError(t, err)
	assert.False(t, page.IsTruncated)
	require.Len(t, page.Objects, 5)

	// Key order is lexicographic.
	for i, obj := range page.Objects {
		assert.Equal(t, keys[i], obj.Key)
		assert.Equal(t, int64(1), obj.Size)
		assert.NotEmpty(t, obj.ETag)
	}
}

func TestListObjects_PrefixFilter(t *testing.T) {
	client, _, bucket := setupBucket(t)
	ctx := context.Background()

	require.NoError(t, client.Put(ctx, bucket, "logs/a.log", []byte("x")))
	require.NoError(t, client.Put(ctx, bucket, "data/b.txt", []byte("x")))

	page, err := client.ListObjects(ctx, bucket, "logs/")
	require.NoError(t, err)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, "logs/a.log", page.Objects[0].Key)
}

func TestListObjects_Delimiter(t *testing.T) {
	client, _, bucket := setupBucket(t)
	ctx := context.Background()

	require.NoError(t, client.Put(ctx, bucket, "root.txt", []byte("x")))
	require.NoError(t, client.Put(ctx, bucket, "a/one.txt", []byte("x")))
	require.NoError(t, client.Put(ctx, bucket, "a/two.txt", []byte("x")))
	require.NoError(t, client.Put(ctx, bucket, "b/three.txt", []byte("x")))

	page, err := client.ListObjects(ctx, bucket, "", gominio.WithDelimiter("/"))
	require.NoError(t, err)

	require.Len(t, page.Objects, 1)
	assert.Equal(t, "root.txt", page.Objects[0].Key)
	assert.ElementsMatch(t, []string{"a/", "b/"}, page.CommonPrefixes)
}

func TestListObjects_MissingBucket(t *testing.T) {
	srv := testutil.NewFakeServer()
	defer srv.Close()
	client := newTestClient(t, srv)

	_, err := client.ListObjects(context.Background(), "no-such-bucket", "")
	assert.ErrorIs(t, err, oserrors.ErrBucketNotFound)
}

func TestPaginator_VisitsEveryKeyOnce(t *testing.T) {
	client, _, bucket := setupBucket(t)
	keys := seedObjects(t, client, bucket, 10)

	p := client.NewPaginator(bucket, "data/", gominio.WithMaxKeys(3))

	var seen []string
	pages := 0
	for p.HasMorePages() {
		page, err := p.NextPage(context.Background())
		require.NoError(t, err)
		pages++
		for _, obj := range page.Objects {
			seen = append(seen, obj.Key)
		}
	}

	// ceil(10/3) pages, no duplicates, no losses.
	assert.Equal(t, 4, pages)
	assert.Equal(t, keys, seen)

	_, err := p.NextPage(context.Background())
	assert.ErrorIs(t, err, oserrors.ErrInvalidInput)
}

func TestPaginator_ResumesFromToken(t *testing.T) {
	client, _, bucket := setupBucket(t)
	keys := seedObjects(t, client, bucket, 6)

	first := client.NewPaginator(bucket, "data/", gominio.WithMaxKeys(2))
	page, err := first.NextPage(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Objects, 2)
	token := first.ContinuationToken()
	require.NotEmpty(t, token)

	// A fresh paginator picks up where the first stopped.
	resumed := client.NewPaginator(bucket, "data/",
		gominio.WithMaxKeys(10), gominio.WithContinuationToken(token))

	var rest []string
	for resumed.HasMorePages() {
		page, err := resumed.NextPage(context.Background())
		require.NoError(t, err)
		for _, obj := range page.Objects {
			rest = append(rest, obj.Key)
		}
	}
	assert.Equal(t, keys[2:], rest)
}

func TestListAll_StreamsEverything(t *testing.T) {
	client, _, bucket := setupBucket(t)
	keys := seedObjects(t, client, bucket, 7)

	var seen []string
	for r := range client.ListAll(context.Background(), bucket, "data/", gominio.WithMaxKeys(2)) {
		require.NoError(t, r.Err)
		seen = append(seen, r.Object.Key)
	}
	assert.Equal(t, keys, seen)
}

func TestListAll_ReportsError(t *testing.T) {
	srv := testutil.NewFakeServer()
	defer srv.Close()
	client := newTestClient(t, srv)

	var last gominio.ObjectResult
	count := 0
	for r := range client.ListAll(context.Background(), "no-such-bucket", "") {
		last = r
		count++
	}
	require.Equal(t, 1, count)
	assert.ErrorIs(t, last.Err, oserrors.ErrBucketNotFound)
}

func TestListAll_CancellationStopsStream(t *testing.T) {
	client, _, bucket := setupBucket(t)
	seedObjects(t, client, bucket, 20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := client.ListAll(ctx, bucket, "data/", gominio.WithMaxKeys(5))

	var received []storetypes.Object
	for r := range ch {
		if r.Err != nil {
			// The in-flight page fetch observes the cancellation.
			break
		}
		received = append(received, r.Object)
		if len(received) == 3 {
			cancel()
		}
	}
	assert.GreaterOrEqual(t, len(received), 3)
	assert.Less(t, len(received), 20)
}
