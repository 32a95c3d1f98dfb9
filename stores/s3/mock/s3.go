package s3Mock

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// MockS3Client keeps objects in memory. Metadata keys are returned
// canonicalized, the way S3 returns them.
type MockS3Client struct {
	s3iface.S3API

	mtx     sync.Mutex
	objects map[string]*s3.PutObjectInput
	bodies  map[string][]byte
	getErr  error
}

func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: map[string]*s3.PutObjectInput{},
		bodies:  map[string][]byte{},
	}
}

// SetGetError makes every GetObject call fail with err.
func (m *MockS3Client) SetGetError(err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.getErr = err
}

// Object returns the input of the last PutObject call for bucket and key.
func (m *MockS3Client) Object(bucket, key string) (*s3.PutObjectInput, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	input, ok := m.objects[bucket+"/"+key]
	return input, ok
}

func (m *MockS3Client) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	body, err := ioutil.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	id := aws.StringValue(input.Bucket) + "/" + aws.StringValue(input.Key)
	m.objects[id] = input
	m.bodies[id] = body
	return &s3.PutObjectOutput{ETag: aws.String("912ec803b2ce49e4a541068d495ab570")}, nil
}

func (m *MockS3Client) GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	id := aws.StringValue(input.Bucket) + "/" + aws.StringValue(input.Key)
	object, ok := m.objects[id]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	metadata := map[string]*string{}
	for k, v := range object.Metadata {
		metadata[http.CanonicalHeaderKey(k)] = v
	}
	return &s3.GetObjectOutput{
		Body:        ioutil.NopCloser(bytes.NewReader(m.bodies[id])),
		ContentType: object.ContentType,
		Metadata:    metadata,
	}, nil
}
