package s3

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // S3 ETags are MD5 digests
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NewMock returns a Store whose client talks to an in-process fake of the
// handful of S3 calls the store makes. Intended for tests.
func NewMock(ctx context.Context) (*Store, error) {
	return newStore(ctx, Config{
		Bucket:          "scenes",
		Endpoint:        "https://s3.mock.invalid",
		PathStyle:       true,
		AccessKeyID:     "AKIDMOCK",
		SecretAccessKey: "mock-secret",
	}, &http.Client{Transport: &fakeBucket{objects: make(map[string]fakeObject)}})
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    http.Header
	modified    time.Time
}

// fakeBucket answers path-style requests of the form /<bucket>/<key>.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return b.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			body = dechunk(body)
		}
		meta := http.Header{}
		for name, values := range req.Header {
			if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") {
				meta[name] = values
			}
		}
		b.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: meta, modified: time.Now().UTC()}
		return respond(http.StatusOK, http.Header{"Etag": {etag(body)}}, nil), nil
	case http.MethodHead, http.MethodGet:
		obj, ok := b.objects[key]
		if !ok {
			return respond(http.StatusNotFound, http.Header{"Content-Type": {"application/xml"}},
				[]byte("<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>")), nil
		}
		h := obj.metadata.Clone()
		h.Set("Content-Type", obj.contentType)
		h.Set("Content-Length", strconv.Itoa(len(obj.body)))
		h.Set("Etag", etag(obj.body))
		h.Set("Last-Modified", obj.modified.Format(http.TimeFormat))
		if req.Method == http.MethodHead {
			return respond(http.StatusOK, h, nil), nil
		}
		return respond(http.StatusOK, h, obj.body), nil
	case http.MethodDelete:
		delete(b.objects, key)
		return respond(http.StatusNoContent, http.Header{}, nil), nil
	}
	return respond(http.StatusNotImplemented, http.Header{}, nil), nil
}

func (b *fakeBucket) list(prefix string) *http.Response {
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		obj := b.objects[k]
		fmt.Fprintf(&buf, "<Contents><Key>%s</Key><Size>%d</Size><ETag>%s</ETag><LastModified>%s</LastModified></Contents>",
			k, len(obj.body), etag(obj.body), obj.modified.Format(time.RFC3339))
	}
	buf.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, buf.Bytes())
}

func respond(status int, h http.Header, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func etag(body []byte) string {
	sum := md5.Sum(body) //nolint:gosec
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// dechunk strips aws-chunked framing: hex size lines followed by data,
// terminated by a zero sized chunk and optional trailers.
func dechunk(raw []byte) []byte {
	var out []byte
	for len(raw) > 0 {
		line, rest, ok := bytes.Cut(raw, []byte("\r\n"))
		if !ok {
			break
		}
		sizeField, _, _ := bytes.Cut(line, []byte(";"))
		size, err := strconv.ParseInt(string(sizeField), 16, 64)
		if err != nil || size == 0 || int64(len(rest)) < size {
			break
		}
		out = append(out, rest[:size]...)
		raw = bytes.TrimPrefix(rest[size:], []byte("\r\n"))
	}
	return out
}
