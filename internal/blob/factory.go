package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects a blob Store implementation using environment variables.
//
//	CHANTIERCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	CHANTIERCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 variables documented in the s3 package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("CHANTIERCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("CHANTIERCORE_BLOB_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
