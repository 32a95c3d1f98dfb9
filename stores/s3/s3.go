package s3

import (
	"bytes"
	"context"
	"io/ioutil"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stripe/speedtracer"
	"github.com/stripe/speedtracer/stores"
	"github.com/stripe/speedtracer/util"
)

// expiresAtKey is the object metadata entry holding the time a trace
// expires. S3 returns metadata keys canonicalized, so it is compared without
// regard to case.
const expiresAtKey = "expires-at"

const contentType = "application/json; charset=UTF-8"

type S3StoreConfig struct {
	AccessKeyID     util.StringSecret `yaml:"access_key_id"`
	Bucket          string            `yaml:"bucket"`
	Endpoint        string            `yaml:"endpoint"`
	Prefix          string            `yaml:"prefix"`
	Region          string            `yaml:"region"`
	SecretAccessKey util.StringSecret `yaml:"secret_access_key"`
}

// ParseConfig decodes the map config for an S3 store into an S3StoreConfig
// struct.
func ParseConfig(name string, config interface{}) (speedtracer.StoreConfig, error) {
	s3Config := S3StoreConfig{}
	err := util.DecodeConfig(name, config, &s3Config)
	if err != nil {
		return nil, err
	}
	if s3Config.Bucket == "" {
		return nil, errors.Errorf("s3 store %s: bucket is required", name)
	}
	return s3Config, nil
}

// Create creates a new S3 store. This function should match the signature
// of a value in speedtracer.StoreTypes.
func Create(
	name string, logger *logrus.Entry, config speedtracer.Config,
	storeConfig speedtracer.StoreConfig,
) (stores.Store, error) {
	s3Config, ok := storeConfig.(S3StoreConfig)
	if !ok {
		return nil, errors.New("invalid store config type")
	}

	awsConfig := &aws.Config{
		Region: aws.String(s3Config.Region),
	}
	if s3Config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s3Config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	awsID := s3Config.AccessKeyID
	awsSecret := s3Config.SecretAccessKey
	if len(awsID.Value) > 0 && len(awsSecret.Value) > 0 {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			awsID.Value, awsSecret.Value, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		logger.WithError(err).Error("Error getting AWS session")
		return nil, errors.Wrap(err, "creating AWS session")
	}

	logger.WithField("bucket", s3Config.Bucket).Info("Successfully created AWS session")
	return New(name, s3Config.Bucket, s3Config.Prefix, s3.New(sess), logger), nil
}

// S3Store keeps traces as objects in an S3 bucket. S3 cannot expire
// individual objects on a timer, so each object records when it expires and
// expired objects are treated as missing on read; a bucket lifecycle rule
// should delete them eventually.
type S3Store struct {
	name   string
	bucket string
	prefix string
	Svc    s3iface.S3API
	logger *logrus.Entry
	now    func() time.Time
}

var _ stores.Store = &S3Store{}

func New(name, bucket, prefix string, svc s3iface.S3API, logger *logrus.Entry) *S3Store {
	return &S3Store{
		name:   name,
		bucket: bucket,
		prefix: prefix,
		Svc:    svc,
		logger: logger,
		now:    time.Now,
	}
}

func (p *S3Store) Name() string {
	return p.name
}

func (p *S3Store) objectKey(key string) string {
	if p.prefix == "" {
		return key
	}
	return path.Join(p.prefix, key)
}

func (p *S3Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(p.objectKey(key)),
		Body:        bytes.NewReader(value),
		ContentType: aws.String(contentType),
	}
	if ttl > 0 {
		input.Metadata = map[string]*string{
			expiresAtKey: aws.String(p.now().Add(ttl).UTC().Format(time.RFC3339Nano)),
		}
	}
	_, err := p.Svc.PutObjectWithContext(ctx, input)
	if err != nil {
		return errors.Wrapf(err, "putting s3://%s/%s", p.bucket, p.objectKey(key))
	}
	return nil
}

func (p *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := p.Svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(key)),
	})
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
		return nil, stores.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getting s3://%s/%s", p.bucket, p.objectKey(key))
	}
	defer out.Body.Close()

	if p.expired(out.Metadata) {
		return nil, stores.ErrNotFound
	}
	value, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading trace body from s3")
	}
	return value, nil
}

func (p *S3Store) expired(metadata map[string]*string) bool {
	for k, v := range metadata {
		if !strings.EqualFold(k, expiresAtKey) || v == nil {
			continue
		}
		expiresAt, err := time.Parse(time.RFC3339Nano, *v)
		if err != nil {
			p.logger.WithError(err).WithField("expires_at", *v).Warn("Ignoring unparseable trace expiry")
			return false
		}
		return !p.now().Before(expiresAt)
	}
	return false
}

func (p *S3Store) Close() error {
	return nil
}
