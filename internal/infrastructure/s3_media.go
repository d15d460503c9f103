package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"showroom_bot/internal/config"
)

// S3MediaResolver turns stored car photo references into fetchable URLs.
// http(s) references pass through; object keys and s3:// URIs get a presigned GET URL.
type S3MediaResolver struct {
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

func NewS3MediaResolver(cfg config.S3Config) *S3MediaResolver {
	r := &S3MediaResolver{bucket: cfg.Bucket, expiry: 30 * time.Minute}
	if !cfg.Enabled() {
		log.Info().Msg("S3 is not configured. Photo references must be absolute URLs.")
		return r
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	usePathStyle := cfg.PathStyle || strings.Contains(cfg.Bucket, ".")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	r.presign = s3.NewPresignClient(client)

	log.Info().Str("bucket", cfg.Bucket).Str("region", cfg.Region).Bool("pathStyle", usePathStyle).Msg("S3 media resolver configured")
	return r
}

// splitRef returns bucket and key for a non-URL reference.
func (r *S3MediaResolver) splitRef(ref string) (string, string) {
	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, _ := strings.Cut(rest, "/")
		return bucket, key
	}
	return r.bucket, strings.TrimPrefix(ref, "/")
}

func (r *S3MediaResolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty media reference")
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	if r.presign == nil {
		return "", fmt.Errorf("media reference %q needs S3 but S3 is not configured", ref)
	}

	bucket, key := r.splitRef(ref)
	if bucket == "" || key == "" {
		return "", fmt.Errorf("invalid media reference %q", ref)
	}
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}
