package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/hupe1980/vecsync/config"
	"github.com/hupe1980/vecsync/remote"
	"github.com/hupe1980/vecsync/remote/gdrive"
	vsminio "github.com/hupe1980/vecsync/remote/minio"
	vss3 "github.com/hupe1980/vecsync/remote/s3"
	"github.com/hupe1980/vecsync/remotesync"
)

// backend is the remote side selected by the configuration. A nil connector
// means local-only.
type backend struct {
	connector remotesync.Connector
	ledger    remote.Ledger
}

func newBackend(ctx context.Context, cfg config.RemoteConfig) (backend, error) {
	switch cfg.Backend {
	case "", config.BackendNone:
		return backend{}, nil

	case config.BackendLocal:
		return backend{connector: remotesync.StaticConnector(remote.NewLocalStore(cfg.Local.Root))}, nil

	case config.BackendS3:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.S3.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return backend{}, fmt.Errorf("loading AWS config: %w", err)
		}
		b := backend{
			connector: remotesync.StaticConnector(vss3.NewStore(awss3.NewFromConfig(awsCfg), cfg.S3.Bucket, cfg.S3.Prefix)),
		}
		if cfg.S3.LedgerTable != "" {
			b.ledger = vss3.NewDDBLedger(dynamodb.NewFromConfig(awsCfg), cfg.S3.LedgerTable)
		}
		return b, nil

	case config.BackendMinIO:
		mc := cfg.MinIO
		return backend{connector: func(context.Context) (remote.ObjectStore, error) {
			client, err := miniogo.New(mc.Endpoint, &miniogo.Options{
				Creds:  credentials.NewStaticV4(mc.AccessKey, mc.SecretKey, ""),
				Secure: mc.Secure,
			})
			if err != nil {
				return nil, fmt.Errorf("minio client: %w", err)
			}
			return vsminio.NewStore(client, mc.Bucket, mc.Prefix), nil
		}}, nil

	case config.BackendGDrive:
		file := cfg.GDrive.CredentialsFile
		return backend{connector: func(ctx context.Context) (remote.ObjectStore, error) {
			return gdrive.New(ctx, option.WithCredentialsFile(file), option.WithScopes(drive.DriveFileScope))
		}}, nil

	default:
		return backend{}, fmt.Errorf("unknown remote backend %q", cfg.Backend)
	}
}
