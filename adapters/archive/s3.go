// Package archive copies stored calculation runs to an S3-compatible
// bucket (AWS S3 or MinIO).
package archive

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"landed-cost/adapters/sqlite"
	"landed-cost/internal/errors"
	"landed-cost/internal/logging"
)

const contentType = "application/json"

// Config locates the bucket. Credentials come from the default AWS chain.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	PathStyle bool
}

// Object is an archived run
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// S3 is a run archive in one bucket
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// New creates an archive from cfg
func New(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New(errors.TypeConfig, "archive bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "failed to load AWS configuration", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func newWithClient(client *s3.Client, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key of a run: <prefix>/<label>/<yyyy-mm-dd>/<id>.json
func (a *S3) Key(run *sqlite.Run) string {
	label := run.Label
	if label == "" {
		label = "unlabelled"
	}
	return path.Join(a.prefix, label, run.CreatedAt.UTC().Format("2006-01-02"), run.ID+".json")
}

// PutRun uploads the stored result of run and returns its key. An
// existing object with the same key is left untouched.
func (a *S3) PutRun(ctx context.Context, run *sqlite.Run) (string, error) {
	key := a.Key(run)
	if _, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &a.bucket, Key: &key}); err == nil {
		return key, errors.Newf(errors.TypeInput, "run %s already archived", run.ID).WithContext("key", key)
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        bytes.NewReader(run.Payload),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"run-id":        run.ID,
			"base-currency": string(run.BaseCurrency),
		},
	})
	if err != nil {
		return "", errors.Wrap(errors.TypeInternal, "failed to upload run", err).WithContext("key", key)
	}
	logging.Info("run archived", zap.String("run_id", run.ID), zap.String("bucket", a.bucket), zap.String("key", key))
	return key, nil
}

// Get downloads an archived result
func (a *S3) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &a.bucket, Key: &key})
	if err != nil {
		return nil, errors.Wrap(errors.TypeNotFound, "failed to fetch archived run", err).WithContext("key", key)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// List returns every archived run below the prefix, sorted by key
func (a *S3) List(ctx context.Context) ([]Object, error) {
	var (
		objects []Object
		token   *string
	)
	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &a.bucket,
			Prefix:            aws.String(a.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.Wrap(errors.TypeInternal, "failed to list archive", err)
		}
		for _, obj := range out.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}
