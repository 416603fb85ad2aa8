package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"tush00nka/unzipbot/internal/config"
	"tush00nka/unzipbot/internal/model"
)

// S3Service хранит копии исходных архивов в S3/MinIO.
type S3Service struct {
	bucket   string
	uploader *manager.Uploader
	s3Client *s3.Client
	logger   *slog.Logger
}

// NewS3Service берет статические ключи из конфига, а если их нет, то
// стандартную цепочку AWS (переменные окружения, профиль, IAM роль).
func NewS3Service(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*S3Service, error) {
	if cfg.S3BucketName == "" {
		return nil, fmt.Errorf("S3_BUCKET_NAME is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s3Opts := []func(*s3.Options){}
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true // Обязательно для MinIO
		})
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKeyID != "" {
		credsProvider := credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(credsProvider))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, s3Opts...)

	service := &S3Service{
		bucket:   cfg.S3BucketName,
		uploader: manager.NewUploader(s3Client),
		s3Client: s3Client,
		logger:   logger.With("module", "s3"),
	}

	service.logger.Info("S3 service initialized", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3BucketName)
	return service, nil
}

// ObjectKey раскладывает архивы по чатам: chats/<chat>/<uuid>/<name>.
func ObjectKey(chatID int64, fileID, filename string) string {
	return path.Join("chats", strconv.FormatInt(chatID, 10), fileID, path.Base(filename))
}

func (s *S3Service) UploadFile(ctx context.Context, file io.Reader, filename, contentType string, senderID, chatID int64) (*model.FileMetadata, error) {
	fileID := uuid.New().String()
	s3Key := ObjectKey(chatID, fileID, filename)

	s.logger.Debug("uploading archive copy", "file", filename, "key", s3Key)

	counter := &countingReader{r: file}
	result, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Key),
		Body:        counter,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	s.logger.Debug("archive copy uploaded", "location", result.Location)

	return &model.FileMetadata{
		ID:          fileID,
		Filename:    filename,
		Size:        counter.n,
		ContentType: contentType,
		S3Key:       s3Key,
		S3Bucket:    s.bucket,
		SenderID:    senderID,
		ChatID:      chatID,
		CreatedAt:   time.Now(),
	}, nil
}

func (s *S3Service) HealthCheck(ctx context.Context) error {
	_, err := s.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
