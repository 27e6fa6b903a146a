package config

// Snapshot storage backends.
const (
	BackendLocal    = "local"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

// SnapshotConfig selects and configures the snapshot store.
type SnapshotConfig struct {
	Backend string `env:"SNAPSHOT_BACKEND" envDefault:"local"`

	Dir string `env:"SNAPSHOT_DIR" envDefault:"./snapshots"`

	AWSRegion string `env:"AWS_REGION"         envDefault:"us-east-1"`
	AWSBucket string `env:"AWS_BUCKET"`
	S3Prefix  string `env:"SNAPSHOT_S3_PREFIX" envDefault:"snapshots"`

	DatabaseURL string `env:"DATABASE_URL"`
}

func (c SnapshotConfig) validate() error {
	switch c.Backend {
	case BackendLocal:
		if c.Dir == "" {
			return invalid("SNAPSHOT_DIR", "required for the local backend")
		}
	case BackendS3:
		if c.AWSBucket == "" {
			return invalid("AWS_BUCKET", "required for the s3 backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return invalid("DATABASE_URL", "required for the postgres backend")
		}
	default:
		return invalid("SNAPSHOT_BACKEND", "must be local, s3 or postgres")
	}
	return nil
}
