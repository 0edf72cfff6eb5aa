// Package memoryblob implements an in-memory blobstore.Store for tests
// and for small single-process deployments.
package memoryblob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"jcrcore/internal/blobstore"
)

type blobEntry struct {
	info blobstore.Info
	data []byte
}

// Store implements blobstore.Store backed by process memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string]blobEntry
}

// New returns an empty in-memory blob store.
func New() *Store { return &Store{objs: make(map[string]blobEntry)} }

func (s *Store) Driver() blobstore.Driver { return blobstore.DriverMemory }

// Put stores a new blob; errors if key exists.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts blobstore.PutOptions) (blobstore.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return blobstore.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	var buf bytes.Buffer
	hr := blobstore.NewHashingReader(r)
	if _, err := io.Copy(&buf, hr); err != nil {
		return blobstore.Info{}, err
	}
	now := time.Now().UTC()
	info := blobstore.Info{Key: key, Size: hr.Size(), ContentType: opts.ContentType, ETag: hr.ETag(), Metadata: blobstore.CloneMetadata(opts.Metadata), LastModified: now}
	s.objs[key] = blobEntry{info: info, data: buf.Bytes()}
	return info.Clone(), nil
}

func (s *Store) Get(_ context.Context, key string) (blobstore.Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return blobstore.Info{}, nil, fmt.Errorf("blob %s not found", key)
	}
	dataCopy := make([]byte, len(obj.data))
	copy(dataCopy, obj.data)
	return obj.info.Clone(), io.NopCloser(bytes.NewReader(dataCopy)), nil
}

func (s *Store) Head(_ context.Context, key string) (blobstore.Info, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return blobstore.Info{}, fmt.Errorf("blob %s not found", key)
	}
	return obj.info.Clone(), nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	if ok {
		delete(s.objs, key)
	}
	return ok, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]blobstore.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]blobstore.Info, 0, len(s.objs))
	for k, v := range s.objs {
		if prefix == "" || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			out = append(out, v.info.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL is unsupported by the memory driver.
func (s *Store) PresignURL(_ context.Context, _ string, _ blobstore.SignedURLOptions) (string, error) {
	return "", blobstore.ErrUnsupported
}

var _ blobstore.Store = (*Store)(nil)
