package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/storage"
)

// fakeS3 keeps objects in memory and fails the way the real service does.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) key(bucket, key *string) string { return aws.ToString(bucket) + "/" + aws.ToString(key) }

func (f *fakeS3) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[f.key(in.Bucket, in.Key)] = data
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[f.key(in.Bucket, in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[f.key(in.Bucket, in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &awss3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, f.key(in.Bucket, in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func TestStorage(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := NewWithClient(fake, storage.Config{Bucket: "results", Prefix: "runs"})

	if _, err := s.Read(ctx, "a.json"); !stderrors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, err := s.Exists(ctx, "a.json"); err != nil || ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	if err := s.Write(ctx, "a.json", []byte("{}")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := fake.objects["results/runs/a.json"]; !ok {
		t.Fatalf("object not stored under prefixed key, have %v", fake.objects)
	}
	data, err := s.Read(ctx, "a.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("Read = %q", data)
	}
	if ok, _ := s.Exists(ctx, "a.json"); !ok {
		t.Error("expected object to exist")
	}
	if err := s.Delete(ctx, "a.json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := s.Exists(ctx, "a.json"); ok {
		t.Error("object still exists after Delete")
	}
}

func TestWriteFailure(t *testing.T) {
	fake := newFakeS3()
	fake.failPut = stderrors.New("throttled")
	s := NewWithClient(fake, storage.Config{Bucket: "results"})

	err := s.Write(context.Background(), "a.json", []byte("{}"))
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeStorage {
		t.Fatalf("expected STORAGE_ERROR, got %v", err)
	}
	if !appErr.Retryable {
		t.Error("storage failures should be retryable")
	}
}
