// Package s3 implements filesystem.FileSystem on an S3-compatible bucket.
//
// Directories are key prefixes. CreateDir writes a zero-length "dir/" marker
// so empty directories exist; everything else only looks at prefixes.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/atinyakov/BudgetKeeper/internal/filesystem"
)

// Credential keys accepted by SetAuthentication.
const (
	KeyBucket       = "bucket"
	KeyRegion       = "region"
	KeyEndpoint     = "endpoint"
	KeyAccessKey    = "app_key"
	KeySecretKey    = "app_secret"
	KeySessionToken = "session_token"
	KeyPathStyle    = "path_style"
	KeyPrefix       = "prefix"
)

const defaultRegion = "us-east-1"

// Options carries construction parameters that are not credentials.
type Options struct {
	// HTTPClient replaces the SDK's client, mostly for tests.
	HTTPClient s3.HTTPClient
}

var _ filesystem.FileSystem = (*FS)(nil)

// FS stores files as objects of one bucket.
type FS struct {
	opts Options

	mu     sync.RWMutex
	client *s3.Client
	bucket string
	prefix string
}

// New returns an unauthenticated provider.
func New(opts Options) *FS {
	return &FS{opts: opts}
}

func (f *FS) Kind() filesystem.Kind { return filesystem.KindS3 }

// SetAuthentication builds the S3 client. Without an access key the default
// AWS credential chain is used.
func (f *FS) SetAuthentication(creds map[string]string) error {
	bucket := creds[KeyBucket]
	if bucket == "" {
		return filesystem.Wrap(filesystem.KindS3, "auth", "", fmt.Errorf("%s is required", KeyBucket))
	}
	prefix, err := filesystem.Clean(creds[KeyPrefix])
	if err != nil {
		return filesystem.Wrap(filesystem.KindS3, "auth", "", err)
	}
	region := creds[KeyRegion]
	if region == "" {
		region = defaultRegion
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if ak := creds[KeyAccessKey]; ak != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak, creds[KeySecretKey], creds[KeySessionToken])))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return filesystem.Wrap(filesystem.KindS3, "auth", "", err)
	}
	pathStyle, _ := strconv.ParseBool(creds[KeyPathStyle])
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if ep := creds[KeyEndpoint]; ep != "" {
			o.BaseEndpoint = aws.String(ep)
		}
		if f.opts.HTTPClient != nil {
			o.HTTPClient = f.opts.HTTPClient
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	f.mu.Lock()
	f.client, f.bucket, f.prefix = client, bucket, prefix
	f.mu.Unlock()
	return nil
}

func (f *FS) fail(op, name string, err error) error {
	if isNotFound(err) {
		err = fmt.Errorf("%w: %v", filesystem.ErrNotFound, err)
	}
	return filesystem.Wrap(filesystem.KindS3, op, name, err)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == 404
}

type conn struct {
	client *s3.Client
	bucket string
	prefix string
}

func (f *FS) conn(op, name string) (conn, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.client == nil {
		return conn{}, f.fail(op, name, filesystem.ErrNotAuthenticated)
	}
	return conn{client: f.client, bucket: f.bucket, prefix: f.prefix}, nil
}

// key maps a provider path to an object key.
func (c conn) key(name string) (string, error) {
	clean, err := filesystem.Clean(name)
	if err != nil {
		return "", err
	}
	if clean == "" {
		return "", errors.New("empty file name")
	}
	return path.Join(c.prefix, clean), nil
}

// dirPrefix maps a provider directory to a key prefix ending in "/", or ""
// for the bucket root.
func (c conn) dirPrefix(dir string) (string, error) {
	clean, err := filesystem.Clean(dir)
	if err != nil {
		return "", err
	}
	p := path.Join(c.prefix, clean)
	if p == "" || p == "." {
		return "", nil
	}
	return p + "/", nil
}

func (f *FS) prepare(op, name string) (conn, string, error) {
	c, err := f.conn(op, name)
	if err != nil {
		return conn{}, "", err
	}
	k, err := c.key(name)
	if err != nil {
		return conn{}, "", f.fail(op, name, err)
	}
	return c, k, nil
}

// Verify checks the bucket can be listed with the configured credentials.
func (f *FS) Verify(ctx context.Context) error {
	c, err := f.conn("verify", "")
	if err != nil {
		return err
	}
	_, err = c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &c.bucket, MaxKeys: aws.Int32(1)})
	if err != nil {
		return f.fail("verify", "", err)
	}
	return nil
}

func (f *FS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	c, k, err := f.prepare("read", name)
	if err != nil {
		return nil, err
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &c.bucket, Key: &k})
	if err != nil {
		return nil, f.fail("read", name, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, f.fail("read", name, err)
	}
	return b, nil
}

func (f *FS) WriteFile(ctx context.Context, name string, data []byte) error {
	c, k, err := f.prepare("write", name)
	if err != nil {
		return err
	}
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           &k,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return f.fail("write", name, err)
	}
	return nil
}

func (f *FS) head(ctx context.Context, c conn, k string) (bool, error) {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &c.bucket, Key: &k})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (f *FS) FileExists(ctx context.Context, name string) (bool, error) {
	c, k, err := f.prepare("stat", name)
	if err != nil {
		return false, err
	}
	ok, err := f.head(ctx, c, k)
	if err != nil {
		return false, f.fail("stat", name, err)
	}
	return ok, nil
}

func (f *FS) DeleteFile(ctx context.Context, name string) error {
	c, k, err := f.prepare("delete", name)
	if err != nil {
		return err
	}
	if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &c.bucket, Key: &k}); err != nil && !isNotFound(err) {
		return f.fail("delete", name, err)
	}
	return nil
}

func (f *FS) copyObject(ctx context.Context, c conn, src, dst string) error {
	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &c.bucket,
		Key:        &dst,
		CopySource: aws.String(url.PathEscape(c.bucket + "/" + src)),
	})
	return err
}

func (f *FS) transfer(ctx context.Context, op, src, dst string, overwrite, move bool) error {
	c, sk, err := f.prepare(op, src)
	if err != nil {
		return err
	}
	dk, err := c.key(dst)
	if err != nil {
		return f.fail(op, dst, err)
	}
	if !overwrite {
		exists, err := f.head(ctx, c, dk)
		if err != nil {
			return f.fail(op, dst, err)
		}
		if exists {
			return f.fail(op, dst, filesystem.ErrExists)
		}
	}
	if err := f.copyObject(ctx, c, sk, dk); err != nil {
		return f.fail(op, src, err)
	}
	if move {
		if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &c.bucket, Key: &sk}); err != nil {
			return f.fail(op, src, err)
		}
	}
	return nil
}

func (f *FS) CopyFile(ctx context.Context, src, dst string, overwrite bool) error {
	return f.transfer(ctx, "copy", src, dst, overwrite, false)
}

func (f *FS) MoveFile(ctx context.Context, src, dst string, overwrite bool) error {
	return f.transfer(ctx, "move", src, dst, overwrite, true)
}

func (f *FS) CreateDir(ctx context.Context, dir string) error {
	c, err := f.conn("mkdir", dir)
	if err != nil {
		return err
	}
	p, err := c.dirPrefix(dir)
	if err != nil {
		return f.fail("mkdir", dir, err)
	}
	if p == "" {
		return nil
	}
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           &p,
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return f.fail("mkdir", dir, err)
	}
	return nil
}

// keys lists object keys under prefix. With delim set it also returns the
// immediate sub-prefixes.
func (f *FS) keys(ctx context.Context, c conn, prefix string, delim bool, limit int32) (keys, prefixes []string, err error) {
	in := &s3.ListObjectsV2Input{Bucket: &c.bucket, Prefix: &prefix}
	if delim {
		in.Delimiter = aws.String("/")
	}
	if limit > 0 {
		in.MaxKeys = aws.Int32(limit)
	}
	p := s3.NewListObjectsV2Paginator(c.client, in)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, nil, err
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		for _, cp := range out.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(cp.Prefix))
		}
		if limit > 0 {
			break
		}
	}
	return keys, prefixes, nil
}

func (f *FS) DirExists(ctx context.Context, dir string) (bool, error) {
	c, err := f.conn("stat", dir)
	if err != nil {
		return false, err
	}
	p, err := c.dirPrefix(dir)
	if err != nil {
		return false, f.fail("stat", dir, err)
	}
	if p == "" {
		return true, nil
	}
	keys, _, err := f.keys(ctx, c, p, false, 1)
	if err != nil {
		return false, f.fail("stat", dir, err)
	}
	return len(keys) > 0, nil
}

func (f *FS) list(ctx context.Context, dir, pattern string, wantDirs bool) ([]string, error) {
	c, err := f.conn("list", dir)
	if err != nil {
		return nil, err
	}
	p, err := c.dirPrefix(dir)
	if err != nil {
		return nil, f.fail("list", dir, err)
	}
	keys, prefixes, err := f.keys(ctx, c, p, true, 0)
	if err != nil {
		return nil, f.fail("list", dir, err)
	}
	var names []string
	if wantDirs {
		for _, cp := range prefixes {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(cp, p), "/"))
		}
	} else {
		for _, k := range keys {
			if k != p {
				names = append(names, strings.TrimPrefix(k, p))
			}
		}
	}
	return filesystem.Filter(names, pattern), nil
}

func (f *FS) ListFiles(ctx context.Context, dir, pattern string) ([]string, error) {
	return f.list(ctx, dir, pattern, false)
}

func (f *FS) ListDirs(ctx context.Context, dir, pattern string) ([]string, error) {
	return f.list(ctx, dir, pattern, true)
}

func (f *FS) DeleteDir(ctx context.Context, dir string, recursive bool) error {
	c, err := f.conn("rmdir", dir)
	if err != nil {
		return err
	}
	p, err := c.dirPrefix(dir)
	if err != nil {
		return f.fail("rmdir", dir, err)
	}
	if p == "" {
		return f.fail("rmdir", dir, errors.New("refusing to delete the root"))
	}
	keys, _, err := f.keys(ctx, c, p, false, 0)
	if err != nil {
		return f.fail("rmdir", dir, err)
	}
	if !recursive {
		for _, k := range keys {
			if k != p {
				return f.fail("rmdir", dir, filesystem.ErrNotEmpty)
			}
		}
	}
	for _, k := range keys {
		if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &c.bucket, Key: &k}); err != nil {
			return f.fail("rmdir", dir, err)
		}
	}
	return nil
}

func (f *FS) MoveDir(ctx context.Context, src, dst string) error {
	c, err := f.conn("move", src)
	if err != nil {
		return err
	}
	sp, err := c.dirPrefix(src)
	if err != nil {
		return f.fail("move", src, err)
	}
	dp, err := c.dirPrefix(dst)
	if err != nil {
		return f.fail("move", dst, err)
	}
	if sp == "" || dp == "" {
		return f.fail("move", src, errors.New("cannot move the root"))
	}
	existing, _, err := f.keys(ctx, c, dp, false, 1)
	if err != nil {
		return f.fail("move", dst, err)
	}
	if len(existing) > 0 {
		return f.fail("move", dst, filesystem.ErrExists)
	}
	keys, _, err := f.keys(ctx, c, sp, false, 0)
	if err != nil {
		return f.fail("move", src, err)
	}
	if len(keys) == 0 {
		return f.fail("move", src, filesystem.ErrNotFound)
	}
	for _, k := range keys {
		if err := f.copyObject(ctx, c, k, dp+strings.TrimPrefix(k, sp)); err != nil {
			return f.fail("move", src, err)
		}
	}
	for _, k := range keys {
		if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &c.bucket, Key: &k}); err != nil {
			return f.fail("move", src, err)
		}
	}
	return nil
}
