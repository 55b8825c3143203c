package blob

import (
	"context"
	"strings"

	"github.com/anotherai/gateway/runtime/apierror"
)

// Open builds a Store from the FILE_STORAGE_DSN / FILE_STORAGE_CONTAINER_NAME
// environment variables (spec §6). A "s3://" dsn selects S3Store, using
// container as the bucket name when dsn carries no host; any other dsn is
// treated as a local filesystem base directory and container is ignored.
func Open(ctx context.Context, dsn, container string) (Store, error) {
	if rest, ok := strings.CutPrefix(dsn, "s3://"); ok {
		bucket := strings.Trim(rest, "/")
		if bucket == "" {
			bucket = container
		}
		if bucket == "" {
			return nil, apierror.New(apierror.KindInternal, "s3 blob store requires a bucket name")
		}
		return NewS3StoreFromEnv(ctx, bucket)
	}
	return NewLocalStore(dsn)
}
