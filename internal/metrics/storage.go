package metrics

import (
	"context"
	"io"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/storage"
)

// InstrumentedStorage wraps the archive object store with operation metrics.
type InstrumentedStorage struct {
	storage.Storage
}

func NewInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	return &InstrumentedStorage{Storage: s}
}

func trackStorage(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(op, status).Inc()
	StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *InstrumentedStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error {
	start := time.Now()
	err := s.Storage.Upload(ctx, key, reader, contentType, size)
	trackStorage("upload", start, err)
	if err == nil {
		StorageBytesTotal.WithLabelValues("upload").Add(float64(size))
	}
	return err
}

func (s *InstrumentedStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	reader, err := s.Storage.Download(ctx, key)
	trackStorage("download", start, err)
	if err != nil {
		return nil, err
	}
	return &countingReader{ReadCloser: reader}, nil
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Storage.Delete(ctx, key)
	trackStorage("delete", start, err)
	return err
}

func (s *InstrumentedStorage) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.Storage.Exists(ctx, key)
	trackStorage("exists", start, err)
	return ok, err
}

func (s *InstrumentedStorage) GetPresignedURL(ctx context.Context, key string, expirySeconds int) (string, error) {
	start := time.Now()
	url, err := s.Storage.GetPresignedURL(ctx, key, expirySeconds)
	trackStorage("presign", start, err)
	return url, err
}

type countingReader struct {
	io.ReadCloser
	n int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countingReader) Close() error {
	StorageBytesTotal.WithLabelValues("download").Add(float64(r.n))
	return r.ReadCloser.Close()
}
