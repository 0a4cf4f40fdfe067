package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3 struct {
	Endpoint string
	Region   string
	Bucket   string
	// PublicURL prefixes object keys to build blob urls, defaults to <endpoint>/<bucket>
	PublicURL string
	ak        string
	sk        string
	pathStyle bool
	cli       *s3.Client
}

type Option func(*S3)

// WithPathStyle 使用 endpoint/bucket 形式的地址，MinIO 需要开启
func WithPathStyle(enable bool) Option {
	return func(s *S3) {
		s.pathStyle = enable
	}
}

func WithPublicURL(url string) Option {
	return func(s *S3) {
		s.PublicURL = url
	}
}

func NewS3Client(endpoint, region, bucket, ak, sk string, opts ...Option) *S3 {
	cli := &S3{
		Endpoint: endpoint,
		Region:   region,
		Bucket:   bucket,
		ak:       ak,
		sk:       sk,
	}
	for _, o := range opts {
		o(cli)
	}
	if cli.PublicURL == "" {
		cli.PublicURL = strings.TrimSuffix(endpoint, "/") + "/" + bucket
	}
	cli.PublicURL = strings.TrimSuffix(cli.PublicURL, "/")

	if err := cli.setupClient(context.Background()); err != nil {
		panic(err)
	}

	return cli
}

func (s *S3) setupClient(ctx context.Context) error {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID: s.ak, SecretAccessKey: s.sk,
			},
		}),
		config.WithRegion(s.Region),
		config.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               s.Endpoint,
				SigningRegion:     s.Region,
				HostnameImmutable: s.pathStyle,
			}, nil
		})))
	if err != nil {
		return err
	}

	s.cli = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = s.pathStyle
	})
	return nil
}

// ObjectURL builds the blob url stored on content items
func (s *S3) ObjectURL(key string) string {
	return s.PublicURL + "/" + strings.TrimPrefix(key, "/")
}

var ErrForeignURL = errors.New("url does not belong to this bucket")

// KeyFromURL reverses ObjectURL. Plain keys are returned unchanged.
func (s *S3) KeyFromURL(url string) (string, error) {
	if !strings.Contains(url, "://") {
		return strings.TrimPrefix(url, "/"), nil
	}
	if !strings.HasPrefix(url, s.PublicURL+"/") {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	return strings.TrimPrefix(url, s.PublicURL+"/"), nil
}

type GetObjectResult struct {
	File     []byte
	FileType string
}

func (s *S3) GetObject(ctx context.Context, key string) (*GetObjectResult, error) {
	resp, err := s.cli.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(strings.TrimPrefix(key, "/")),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	fileContent, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	fileType := aws.ToString(resp.ContentType)
	if fileType == "" || fileType == "application/octet-stream" {
		// 只需要前 512 字节判断 MIME 类型
		fileType = http.DetectContentType(fileContent)
	}

	return &GetObjectResult{
		File:     fileContent,
		FileType: fileType,
	}, nil
}

// Upload stores body under key and returns its blob url
func (s *S3) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	_, err := manager.NewUploader(s.cli).Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return s.ObjectURL(key), nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.cli.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(strings.TrimPrefix(key, "/")),
	})
	return err
}
