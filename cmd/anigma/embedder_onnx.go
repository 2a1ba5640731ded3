//go:build onnx

package main

import (
	"os"

	"github.com/anigma-ai/anigma/memory"
	"github.com/anigma-ai/anigma/memory/embedder/onnx"
)

// newEmbedder returns the ONNX sentence-transformer embedder. Model and
// tokenizer paths come from the environment.
func newEmbedder() (memory.Embedder, error) {
	return onnx.New(onnx.Config{
		ModelPath:     os.Getenv("ONNX_MODEL_PATH"),
		TokenizerPath: os.Getenv("ONNX_TOKENIZER_PATH"),
	})
}
