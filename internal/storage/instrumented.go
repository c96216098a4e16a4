package storage

import (
	"context"

	"caption-service/internal/metrics"
)

// Instrumented counts every operation of the wrapped store by backend and result.
type Instrumented struct {
	inner   AssetStore
	backend string
	metrics *metrics.Metrics
}

func NewInstrumented(inner AssetStore, backend string, m *metrics.Metrics) *Instrumented {
	return &Instrumented{inner: inner, backend: backend, metrics: m}
}

func (s *Instrumented) Put(ctx context.Context, key string, data []byte, contentType string) error {
	err := s.inner.Put(ctx, key, data, contentType)
	s.metrics.RecordAssetOp(s.backend, "put", err)
	return err
}

func (s *Instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.inner.Get(ctx, key)
	s.metrics.RecordAssetOp(s.backend, "get", err)
	return data, err
}

func (s *Instrumented) Delete(ctx context.Context, key string) error {
	err := s.inner.Delete(ctx, key)
	s.metrics.RecordAssetOp(s.backend, "delete", err)
	return err
}

func (s *Instrumented) List(ctx context.Context, prefix string) ([]AssetInfo, error) {
	infos, err := s.inner.List(ctx, prefix)
	s.metrics.RecordAssetOp(s.backend, "list", err)
	return infos, err
}
