package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry TTL
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

const keyPrefix = "riskpilot:emb:v1:"

// EmbeddingKey derives the cache key for a text embedded by a given model.
// The model name is part of the hash so switching backends never mixes vectors.
func EmbeddingKey(modelName, text string) string {
	h := sha256.New()
	h.Write([]byte(modelName))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Embeddings stores float vectors on top of any Cache
type Embeddings struct {
	backend Cache
	ttl     time.Duration
}

// NewEmbeddings wraps backend. ttl 0 uses the backend default.
func NewEmbeddings(backend Cache, ttl time.Duration) *Embeddings {
	return &Embeddings{backend: backend, ttl: ttl}
}

// Lookup returns the cached vector for (modelName, text)
func (e *Embeddings) Lookup(modelName, text string) ([]float32, bool) {
	data, ok := e.backend.Get(EmbeddingKey(modelName, text))
	if !ok {
		return nil, false
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, false
	}
	return vec, true
}

// Store caches vec for (modelName, text)
func (e *Embeddings) Store(modelName, text string, vec []float32) error {
	if err := e.backend.Set(EmbeddingKey(modelName, text), encodeVector(vec), e.ttl); err != nil {
		return fmt.Errorf("cache embedding: %w", err)
	}
	return nil
}

// encodeVector packs float32 values little-endian
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector: %d bytes", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
