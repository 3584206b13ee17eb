// Package archive keeps a copy of every linked game record in object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

type Archive interface {
	Put(ctx context.Context, matchID string, rec types.GameRecord) (string, error)
}

type Options struct {
	Bucket    string
	Endpoint  string // empty for AWS S3, the account endpoint for R2
	Region    string
	AccessKey string
	SecretKey string
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archive struct {
	client objectPutter
	bucket string
}

func NewS3(ctx context.Context, opts Options) (*S3Archive, error) {
	region := opts.Region
	if region == "" {
		region = "auto"
	}
	loaders := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archive{client: client, bucket: opts.Bucket}, nil
}

func Key(matchID string) string { return fmt.Sprintf("matches/%s.json", matchID) }

type archived struct {
	MatchID string           `json:"match_id"`
	Record  types.GameRecord `json:"record"`
}

// Put writes the record as matches/{id}.json and returns the object key.
func (a *S3Archive) Put(ctx context.Context, matchID string, rec types.GameRecord) (string, error) {
	body, err := json.Marshal(archived{MatchID: matchID, Record: rec})
	if err != nil {
		return "", err
	}
	key := Key(matchID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload match %s: %w", matchID, err)
	}
	return key, nil
}

// Noop is used when no bucket is configured.
type Noop struct{}

func (Noop) Put(context.Context, string, types.GameRecord) (string, error) { return "", nil }
