package memstore

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
)

// ObjectGetter is the part of the S3 client the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Open returns a reader for a snapshot. The location is either a local path or an "s3://bucket/key" url.
// A ".gz" suffix on either means the snapshot is gzip compressed. The getter may be nil if no S3 location is
// used.
func Open(ctx context.Context, location string, getter ObjectGetter) (io.ReadCloser, error) {
	rc, err := openRaw(ctx, location, getter)
	if err != nil {
		return nil, err
	}

	if !strings.HasSuffix(location, ".gz") {
		return rc, nil
	}

	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, errors.Wrapf(err, "open gzip stream of %q", location)
	}

	return &gzipReadCloser{Reader: zr, under: rc}, nil
}

// Load opens the snapshot at location and decodes it into the store.
func (s *Store) Load(ctx context.Context, location string, getter ObjectGetter) error {
	rc, err := Open(ctx, location, getter)
	if err != nil {
		return err
	}
	defer rc.Close()

	return errors.Wrapf(s.Decode(rc), "load %q", location)
}

func openRaw(ctx context.Context, location string, getter ObjectGetter) (io.ReadCloser, error) {
	rest, isS3 := strings.CutPrefix(location, "s3://")
	if !isS3 {
		f, err := os.Open(location)
		if err != nil {
			return nil, errors.Wrap(err, "open snapshot file")
		}
		return f, nil
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return nil, errors.Newf("invalid s3 location %q, expected s3://bucket/key", location)
	}

	if getter == nil {
		return nil, errors.Newf("no s3 client configured to load %q", location)
	}

	out, err := getter.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, errors.Wrapf(err, "get object %q", location)
	}

	return out.Body, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	under io.Closer
}

func (r *gzipReadCloser) Close() error {
	return errors.CombineErrors(r.Reader.Close(), r.under.Close())
}
