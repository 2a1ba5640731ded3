//go:build !onnx

package main

import (
	"github.com/anigma-ai/anigma/memory"
	"github.com/anigma-ai/anigma/memory/embedder/mock"
)

// newEmbedder returns the hash-based embedder. Build with the onnx tag to
// use the ONNX sentence-transformer instead.
func newEmbedder() (memory.Embedder, error) {
	return mock.New(), nil
}
