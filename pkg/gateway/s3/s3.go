// Package s3 is a gateway.Gateway backed by an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"

	"github.com/fabnet/client/internal/logger"
	"github.com/fabnet/client/pkg/gateway"
)

// Config configures the S3-backed gateway.
type Config struct {
	Bucket   string
	Prefix   string // key prefix within the bucket, e.g. "blocks/"
	Endpoint string // non-empty for S3-compatible (MinIO, etc.) endpoints
	Region   string

	// AccessKeyID/SecretAccessKey, when both set, pin a static credentials
	// provider instead of falling through to the default chain (env vars,
	// shared config, instance role). Left empty, New behaves exactly like
	// before and asks the SDK to resolve credentials itself.
	AccessKeyID     string
	SecretAccessKey string
}

// Gateway is a gateway.Gateway storing each remote key as one S3 object.
type Gateway struct {
	client *s3.Client
	cfg    Config
}

// New loads AWS credentials from the environment/shared config (or the
// static provider, when cfg carries one) and returns a ready Gateway.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	optFns := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token, empty for static credentials
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3 gateway: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Gateway{client: client, cfg: cfg}, nil
}

func (g *Gateway) objectKey(remoteKey string) string {
	return g.cfg.Prefix + remoteKey
}

func (g *Gateway) Put(ctx context.Context, block gateway.BlockReader, replicaCount int, allowRewrite bool) (string, error) {
	h := sha1.New()
	var buf bytes.Buffer
	for {
		chunk, err := block.ReadRaw(1 << 20)
		if err != nil {
			return "", fmt.Errorf("s3 gateway: read block: %w", err)
		}
		if len(chunk) == 0 {
			break
		}
		h.Write(chunk)
		buf.Write(chunk)
	}
	key := hex.EncodeToString(h.Sum(nil))

	if !allowRewrite {
		_, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(g.cfg.Bucket),
			Key:    aws.String(g.objectKey(key)),
		})
		if err == nil {
			return key, nil
		}
		var apiErr smithy.APIError
		if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "NotFound" {
			logger.Debug("s3 gateway head check failed, proceeding to put", logger.RemoteKey(key), logger.Err(err))
		}
	}

	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(g.objectKey(key)),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return "", fmt.Errorf("s3 gateway: put object %s: %w", key, err)
	}
	// replicaCount is advisory for a single-bucket S3 backend; true
	// cross-region replication is configured at the bucket, not per-call.
	_ = replicaCount
	return key, nil
}

func (g *Gateway) Get(ctx context.Context, remoteKey string, replicaCount int, out gateway.BlockWriter) error {
	resp, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(g.objectKey(remoteKey)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return gateway.ErrNotFound
		}
		return fmt.Errorf("s3 gateway: get object %s: %w", remoteKey, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("s3 gateway: read object body %s: %w", remoteKey, err)
	}
	return out.WriteRaw(data)
}

func (g *Gateway) Remove(ctx context.Context, remoteKey string, replicaCount int) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(g.objectKey(remoteKey)),
	})
	if err != nil {
		return fmt.Errorf("s3 gateway: delete object %s: %w", remoteKey, err)
	}
	return nil
}

var _ gateway.Gateway = (*Gateway)(nil)
