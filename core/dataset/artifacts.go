package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"listing-harvester/core/storage"

	"github.com/minio/minio-go/v7"
)

// ArtifactStore keeps named blobs. Names use forward slashes.
type ArtifactStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, names []string) error
}

// Dir stores artifacts under a local directory.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Put(ctx context.Context, name string, data []byte, contentType string) error {
	return writeFileAtomic(filepath.Join(d.root, filepath.FromSlash(name)), data)
}

func (d *Dir) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	return data, nil
}

func (d *Dir) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if entry.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes the named files and any directories left empty.
func (d *Dir) Delete(ctx context.Context, names []string) error {
	dirs := make(map[string]struct{})
	for _, name := range names {
		p := filepath.Join(d.root, filepath.FromSlash(name))
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete artifact %s: %w", name, err)
		}
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		for dir != d.root && strings.HasPrefix(dir, d.root) {
			if os.Remove(dir) != nil {
				break
			}
			dir = filepath.Dir(dir)
		}
	}
	return nil
}

// Bucket stores artifacts as objects in an S3-compatible bucket.
type Bucket struct {
	client storage.Client
	bucket string
	region string
}

func NewBucket(client storage.Client, bucket, region string) *Bucket {
	return &Bucket{client: client, bucket: bucket, region: region}
}

// EnsureBucket creates the bucket if it does not exist.
func (b *Bucket) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", b.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: b.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", b.bucket, err)
	}
	return nil
}

func (b *Bucket) Put(ctx context.Context, name string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return nil
}

func (b *Bucket) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, b.wrapGetError(name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, b.wrapGetError(name, err)
	}
	return data, nil
}

func (b *Bucket) wrapGetError(name string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("artifact %s: %w", name, ErrNotFound)
	}
	return fmt.Errorf("failed to download %s: %w", name, err)
}

func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, obj.Err)
		}
		out = append(out, obj.Key)
	}
	sort.Strings(out)
	return out, nil
}

func (b *Bucket) Delete(ctx context.Context, names []string) error {
	objects := make(chan minio.ObjectInfo, len(names))
	for _, n := range names {
		objects <- minio.ObjectInfo{Key: n}
	}
	close(objects)

	var errs []error
	for rerr := range b.client.RemoveObjects(ctx, b.bucket, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("failed to delete %s: %w", rerr.ObjectName, rerr.Err))
	}
	return errors.Join(errs...)
}

// joinName builds an artifact name from slash-separated parts.
func joinName(parts ...string) string {
	return path.Join(parts...)
}
