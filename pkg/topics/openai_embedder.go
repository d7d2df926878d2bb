package topics

import (
	"context"
	"fmt"

	"github.com/ddsprasad/data-sense-ai/pkg/llm"
)

// DefaultBatchSize is the number of phrases sent per embeddings request.
const DefaultBatchSize = 64

// RemoteEmbedder embeds through an llm.Embedder (the OpenAI embeddings API),
// splitting large inputs into batches run on a worker pool.
type RemoteEmbedder struct {
	client    llm.Embedder
	model     string
	batchSize int
	pool      *llm.WorkerPool
}

// NewRemoteEmbedder creates an embedder. A nil pool gets the default pool.
func NewRemoteEmbedder(client llm.Embedder, model string, batchSize int, pool *llm.WorkerPool) *RemoteEmbedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if pool == nil {
		pool = llm.NewWorkerPool(llm.DefaultWorkerPoolConfig(), nil)
	}
	return &RemoteEmbedder{client: client, model: model, batchSize: batchSize, pool: pool}
}

// Name implements Embedder.
func (e *RemoteEmbedder) Name() string { return "openai:" + e.model }

// Embed implements Embedder.
func (e *RemoteEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= e.batchSize {
		return e.client.CreateEmbeddings(ctx, texts, e.model)
	}

	var items []llm.WorkItem[[][]float32]
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]
		items = append(items, llm.WorkItem[[][]float32]{
			ID: fmt.Sprintf("embed-%d-%d", start, end),
			Execute: func(ctx context.Context) ([][]float32, error) {
				return e.client.CreateEmbeddings(ctx, batch, e.model)
			},
		})
	}

	out := make([][]float32, 0, len(texts))
	for _, r := range llm.Process(ctx, e.pool, items, nil) {
		if r.Err != nil {
			return nil, fmt.Errorf("embedding batch %s: %w", r.ID, r.Err)
		}
		out = append(out, r.Result...)
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("embedded %d of %d texts", len(out), len(texts))
	}
	return out, nil
}
