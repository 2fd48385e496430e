package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/JakeFAU/ccslice/internal/ccindex"
	"github.com/JakeFAU/ccslice/internal/metrics"
)

// Object is a remote file exposed as io.ReaderAt. Every ReadAt is one ranged
// GET bound to the context the object was opened with.
type Object struct {
	client *Client
	ctx    context.Context
	path   string
	size   int64
	kind   string

	requests atomic.Int64
	bytes    atomic.Int64
}

// Object opens path for random access; the size comes from a HEAD request.
func (c *Client) Object(ctx context.Context, path, kind string) (*Object, error) {
	size, err := c.Size(ctx, path, kind)
	if err != nil {
		return nil, err
	}
	return &Object{client: c, ctx: ctx, path: path, size: size, kind: kind}, nil
}

// Open implements ccindex.ShardOpener for columnar index shards.
func (c *Client) Open(ctx context.Context, shard ccindex.IndexShardRef) (io.ReaderAt, int64, error) {
	obj, err := c.Object(ctx, shard.Path, metrics.KindShard)
	if err != nil {
		return nil, 0, err
	}
	return obj, obj.Size(), nil
}

// Size returns the object length in bytes.
func (o *Object) Size() int64 {
	return o.size
}

// Requests returns the number of ranged reads issued so far.
func (o *Object) Requests() int64 {
	return o.requests.Load()
}

// BytesRead returns the number of body bytes received so far.
func (o *Object) BytesRead() int64 {
	return o.bytes.Load()
}

// ReadAt implements io.ReaderAt.
func (o *Object) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read %s: negative offset %d", o.path, off)
	}
	if off >= o.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	want := int64(len(p))
	truncated := false
	if off+want > o.size {
		want = o.size - off
		truncated = true
	}

	o.requests.Add(1)
	resp, err := o.client.GetRange(o.ctx, o.path, off, want, o.kind)
	if err != nil {
		return 0, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusPartialContent {
		return 0, &StatusError{Method: http.MethodGet, URL: o.client.URL(o.path), StatusCode: resp.StatusCode}
	}
	n, err := io.ReadFull(resp.Body, p[:want])
	o.bytes.Add(int64(n))
	if err != nil {
		return n, fmt.Errorf("read %s [%d+%d]: %w", o.path, off, want, err)
	}
	if truncated {
		return n, io.EOF
	}
	return n, nil
}
