// Package s3test provides an in-memory S3 endpoint for provider tests,
// served through an http.RoundTripper so no listener is needed.
package s3test

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Endpoint is the base URL clients should use with path-style addressing.
const Endpoint = "https://s3.test.local"

// Fake holds the objects of a single bucket.
type Fake struct {
	Bucket    string
	AccessKey string

	mu      sync.Mutex
	objects map[string][]byte
}

// New returns a fake bucket that accepts requests signed with accessKey.
func New(bucket, accessKey string) *Fake {
	return &Fake{Bucket: bucket, AccessKey: accessKey, objects: make(map[string][]byte)}
}

// Client returns an HTTP client routed to the fake.
func (f *Fake) Client() *http.Client {
	return &http.Client{Transport: f}
}

// Object returns the stored object for key.
func (f *Fake) Object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	return b, ok
}

// Keys returns all object keys, sorted.
func (f *Fake) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func response(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func s3Error(status int, code string) *http.Response {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
	return response(status, []byte(body), http.Header{"Content-Type": {"application/xml"}})
}

func xmlResponse(v any) *http.Response {
	b, _ := xml.Marshal(v)
	return response(http.StatusOK, append([]byte(xml.Header), b...), http.Header{"Content-Type": {"application/xml"}})
}

// RoundTrip serves HeadObject, GetObject, PutObject, CopyObject, DeleteObject
// and ListObjectsV2.
func (f *Fake) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		defer req.Body.Close()
	}
	if !strings.Contains(req.Header.Get("Authorization"), "Credential="+f.AccessKey+"/") {
		return s3Error(http.StatusForbidden, "InvalidAccessKeyId"), nil
	}

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	if parts[0] != f.Bucket {
		return s3Error(http.StatusNotFound, "NoSuchBucket"), nil
	}
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case req.Method == http.MethodGet && key == "":
		return f.list(req.URL.Query()), nil
	case req.Method == http.MethodHead:
		b, ok := f.objects[key]
		if !ok {
			return response(http.StatusNotFound, nil, nil), nil
		}
		return response(http.StatusOK, nil, http.Header{
			"Content-Type": {"application/octet-stream"},
			"ETag":         {`"etag"`},
			"X-Size":       {strconv.Itoa(len(b))},
		}), nil
	case req.Method == http.MethodGet:
		b, ok := f.objects[key]
		if !ok {
			return s3Error(http.StatusNotFound, "NoSuchKey"), nil
		}
		return response(http.StatusOK, append([]byte(nil), b...), http.Header{
			"Content-Type": {"application/octet-stream"},
			"ETag":         {`"etag"`},
		}), nil
	case req.Method == http.MethodPut && req.Header.Get("X-Amz-Copy-Source") != "":
		src, err := url.PathUnescape(req.Header.Get("X-Amz-Copy-Source"))
		if err != nil {
			return s3Error(http.StatusBadRequest, "InvalidArgument"), nil
		}
		srcParts := strings.SplitN(strings.TrimPrefix(src, "/"), "/", 2)
		if len(srcParts) != 2 || srcParts[0] != f.Bucket {
			return s3Error(http.StatusNotFound, "NoSuchBucket"), nil
		}
		b, ok := f.objects[srcParts[1]]
		if !ok {
			return s3Error(http.StatusNotFound, "NoSuchKey"), nil
		}
		f.objects[key] = append([]byte(nil), b...)
		return xmlResponse(struct {
			XMLName      xml.Name `xml:"CopyObjectResult"`
			ETag         string   `xml:"ETag"`
			LastModified string   `xml:"LastModified"`
		}{ETag: `"etag"`, LastModified: "2024-01-01T00:00:00.000Z"}), nil
	case req.Method == http.MethodPut:
		var body []byte
		if req.Body != nil {
			b, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			body = b
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			dec, err := decodeChunked(body)
			if err != nil {
				return s3Error(http.StatusBadRequest, "InvalidChunk"), nil
			}
			body = dec
		}
		f.objects[key] = body
		return response(http.StatusOK, nil, http.Header{"ETag": {`"etag"`}}), nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return response(http.StatusNoContent, nil, nil), nil
	}
	return s3Error(http.StatusNotImplemented, "NotImplemented"), nil
}

type listResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Name                  string         `xml:"Name"`
	Prefix                string         `xml:"Prefix"`
	KeyCount              int            `xml:"KeyCount"`
	MaxKeys               int            `xml:"MaxKeys"`
	IsTruncated           bool           `xml:"IsTruncated"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	Contents              []listObject   `xml:"Contents"`
	CommonPrefixes        []commonPrefix `xml:"CommonPrefixes"`
}

type listObject struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

func (f *Fake) list(q url.Values) *http.Response {
	prefix, delim := q.Get("prefix"), q.Get("delimiter")
	maxKeys := 1000
	if v, err := strconv.Atoi(q.Get("max-keys")); err == nil && v > 0 {
		maxKeys = v
	}
	start := q.Get("continuation-token")

	// With a delimiter, keys with another delimiter after the prefix roll up
	// into a common prefix.
	isPrefix := make(map[string]bool)
	for k := range f.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if delim != "" {
			if i := strings.Index(k[len(prefix):], delim); i >= 0 {
				isPrefix[k[:len(prefix)+i+len(delim)]] = true
				continue
			}
		}
		if _, ok := isPrefix[k]; !ok {
			isPrefix[k] = false
		}
	}
	entries := make([]string, 0, len(isPrefix))
	for e := range isPrefix {
		entries = append(entries, e)
	}
	sort.Strings(entries)

	res := listResult{Name: f.Bucket, Prefix: prefix, MaxKeys: maxKeys}
	for _, e := range entries {
		if start != "" && e < start {
			continue
		}
		if res.KeyCount == maxKeys {
			res.IsTruncated = true
			res.NextContinuationToken = e
			break
		}
		res.KeyCount++
		if isPrefix[e] {
			res.CommonPrefixes = append(res.CommonPrefixes, commonPrefix{Prefix: e})
			continue
		}
		res.Contents = append(res.Contents, listObject{Key: e, Size: len(f.objects[e]), LastModified: "2024-01-01T00:00:00.000Z"})
	}
	return xmlResponse(res)
}

// decodeChunked strips aws-chunked framing: "<hex>[;ext]\r\n<data>\r\n" repeated
// until a zero-length chunk, followed by optional trailers.
func decodeChunked(b []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(b))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		n, err := strconv.ParseInt(line, 16, 64)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, n); err != nil {
			return nil, err
		}
		if _, err := r.Discard(2); err != nil {
			return nil, err
		}
	}
}
