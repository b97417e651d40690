package openai_provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	// ErrInference wraps every failure of a chat completion call.
	ErrInference = errors.New("inference failed")
	// ErrEmbedding wraps every failure of an embeddings call.
	ErrEmbedding = errors.New("embedding failed")
)

const systemPrompt = `You are a research assistant working inside a team of software agents.
Answer the problem statement using the retrieved context below as your primary source.
If the context does not contain the answer, say so plainly and give your best reasoning.
Cite the source URL when a context passage names one. Do not invent URLs.`

// Options configures the OpenAI client.
type Options struct {
	APIKey          string
	BaseURL         string
	CompletionModel string
	EmbeddingModel  string
	Temperature     float64
	MaxTokens       int
	MaxRetries      int
	Timeout         time.Duration
}

// client implements inference and embeddings on top of openai-go.
type client struct {
	api             openai.Client
	completionModel string
	embeddingModel  string
	temperature     float64
	maxTokens       int
	timeout         time.Duration
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(opts Options) *client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &client{
		api:             openai.NewClient(reqOpts...),
		completionModel: opts.CompletionModel,
		embeddingModel:  opts.EmbeddingModel,
		temperature:     opts.Temperature,
		maxTokens:       opts.MaxTokens,
		timeout:         opts.Timeout,
	}
}

// Infer answers problem from the retrieved context. The answer is returned as produced by the model.
func (c *client) Infer(ctx context.Context, retrieved, problem string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(retrieved, problem)),
		},
		Model:       openai.ChatModel(c.completionModel),
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}

	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInference, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrInference)
	}
	return completion.Choices[0].Message.Content, nil
}

func userPrompt(retrieved, problem string) string {
	var b strings.Builder
	b.WriteString("RETRIEVED CONTEXT:\n")
	if strings.TrimSpace(retrieved) == "" {
		b.WriteString("(no context available)\n")
	} else {
		b.WriteString(retrieved)
		b.WriteString("\n")
	}
	b.WriteString("\nPROBLEM STATEMENT:\n")
	b.WriteString(problem)
	return b.String()
}

// CreateEmbedding generates one vector per text, in input order.
func (c *client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float32, len(data))
	for i, d := range data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vecs[i] = vec
	}
	return vecs, nil
}
