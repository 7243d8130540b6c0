package export

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// StoreSink delivers documents into an ArtifactStore.
type StoreSink struct {
	Store  ArtifactStore
	Prefix string
	TTL    time.Duration
	Now    func() time.Time
}

// Deliver writes the document under Prefix/<date>/<filename>.
func (s StoreSink) Deliver(ctx context.Context, doc Document) (ArtifactRef, error) {
	if s.Store == nil {
		return ArtifactRef{}, NewError(KindValidation, "store sink requires store", nil)
	}
	if doc.Filename == "" {
		return ArtifactRef{}, NewError(KindValidation, "document filename is required", nil)
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	meta := ArtifactMeta{
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		Pages:       doc.Pages,
		CreatedAt:   now,
	}
	if s.TTL > 0 {
		meta.ExpiresAt = now.Add(s.TTL)
	}
	key := ArtifactKey(s.Prefix, now.UTC().Format("20060102T150405.000000000Z"), doc.Filename)
	return s.Store.Put(ctx, key, bytes.NewReader(doc.Data), meta)
}

// BufferSink keeps the last delivered document in memory. The HTTP adapter
// uses it to stream the PDF back as a download.
type BufferSink struct {
	mu  sync.Mutex
	doc *Document
}

// Deliver records the document.
func (s *BufferSink) Deliver(ctx context.Context, doc Document) (ArtifactRef, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := doc
	copied.Data = append([]byte(nil), doc.Data...)
	s.doc = &copied
	return ArtifactRef{Meta: ArtifactMeta{
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		Size:        int64(len(doc.Data)),
		Pages:       doc.Pages,
	}}, nil
}

// Document returns the delivered document, if any.
func (s *BufferSink) Document() (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return Document{}, false
	}
	return *s.doc, true
}

// MultiSink delivers to each sink in order and returns the first reference
// that carries a storage key.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, doc Document) (ArtifactRef, error) {
	var ref ArtifactRef
	for _, sink := range m {
		if sink == nil {
			continue
		}
		got, err := sink.Deliver(ctx, doc)
		if err != nil {
			return ArtifactRef{}, err
		}
		if ref.Key == "" {
			ref = got
		}
	}
	return ref, nil
}
