// Package chatbot answers questions about the listings with retrieval-augmented generation.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/evinsights-cli/internal/ai"
	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/retrieval"
	"github.com/KaramelBytes/evinsights-cli/internal/utils"
)

// SystemPrompt instructs the model; {context} is replaced by the retrieved rows.
const SystemPrompt = "Use the given context to answer the question. " +
	"If you don't know the answer, say you don't know. " +
	"Use three sentence maximum and keep the answer concise. " +
	"Context: {context}"

// DefaultTopK is how many rows are retrieved per question.
const DefaultTopK = 2

// Observer is notified of every model call.
type Observer interface {
	ObserveLLM(kind string, err error)
}

// Options configures a Bot.
type Options struct {
	ChatModel     string
	EmbedModel    string
	EmbedProvider string
	TopK          int
	MinScore      float64
	MaxTokens     int
	Temperature   float64
	MaxDocTokens  int
	// IndexPath persists embeddings between runs. Empty keeps the index in memory only.
	IndexPath string
	// Source names the table in the index metadata and document ids.
	Source   string
	Rebuild  bool
	Logger   *zap.Logger
	Observer Observer
}

// Source is one retrieved row backing an answer.
type Source struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Answer is the reply to one question.
type Answer struct {
	SessionID string   `json:"session_id"`
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	RequestID string   `json:"request_id,omitempty"`
}

// Bot holds an embedded index of table rows and the models used to query it.
type Bot struct {
	chat    ai.ChatModel
	embed   ai.Embedder
	opts    Options
	index   *retrieval.Index
	session string
	logger  *zap.Logger
}

type embedFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f embedFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) { return f(ctx, texts) }

// New embeds every row of t and returns a Bot ready for questions.
func New(ctx context.Context, t *dataset.Table, chat ai.ChatModel, embed ai.Embedder, opts Options) (*Bot, error) {
	if chat == nil || embed == nil {
		return nil, errors.New("chatbot: chat model and embedder are required")
	}
	if t == nil {
		return nil, errors.New("chatbot: no table")
	}
	if opts.ChatModel == "" || opts.EmbedModel == "" {
		return nil, errors.New("chatbot: chat and embedding model names are required")
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Source == "" {
		opts.Source = "listings"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	b := &Bot{
		chat:    chat,
		embed:   embed,
		opts:    opts,
		session: uuid.NewString(),
		logger:  opts.Logger.With(zap.String("component", "chatbot")),
	}

	docs := Documents(t, opts.Source)
	emb := embedFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		v, err := embed.Embed(ctx, opts.EmbedModel, texts)
		b.observe("embed", err)
		return v, err
	})
	start := time.Now()
	var err error
	if opts.IndexPath != "" {
		b.index, err = retrieval.Build(ctx, emb, opts.IndexPath, docs, retrieval.BuildOptions{
			Force:         opts.Rebuild,
			Source:        opts.Source,
			EmbedProvider: opts.EmbedProvider,
			EmbedModel:    opts.EmbedModel,
			MaxDocTokens:  opts.MaxDocTokens,
		})
	} else {
		b.index, err = memoryIndex(ctx, emb, docs)
	}
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	b.logger.Info("index ready",
		zap.Int("documents", len(b.index.Records)),
		zap.Int("dim", b.index.Meta.EmbedDim),
		zap.Duration("took", time.Since(start)))
	return b, nil
}

// NewWithProviders builds the chat and embedding backends from configuration and
// calls New. Remote providers without an API key fail here.
func NewWithProviders(ctx context.Context, t *dataset.Table, chatProvider, embedProvider string, pc ai.ProviderConfig, opts Options) (*Bot, error) {
	chat, err := ai.NewBackend(chatProvider, pc)
	if err != nil {
		return nil, fmt.Errorf("chat provider: %w", err)
	}
	embed, err := ai.NewBackend(embedProvider, pc)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	if opts.EmbedProvider == "" {
		opts.EmbedProvider = embedProvider
	}
	return New(ctx, t, chat, embed, opts)
}

// Documents renders each row of t as "column: value" lines. Ids are stable per
// source and row position.
func Documents(t *dataset.Table, source string) []retrieval.Document {
	n := t.NumRows()
	docs := make([]retrieval.Document, n)
	for i := 0; i < n; i++ {
		docs[i] = retrieval.Document{
			ID:   uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"#"+strconv.Itoa(i))).String(),
			Text: t.RowText(i),
		}
	}
	return docs
}

func memoryIndex(ctx context.Context, emb retrieval.Embedder, docs []retrieval.Document) (*retrieval.Index, error) {
	idx := &retrieval.Index{Records: make([]retrieval.Record, len(docs))}
	if len(docs) == 0 {
		return idx, nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := emb.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(docs) {
		return nil, fmt.Errorf("embed: got %d vectors for %d documents", len(vecs), len(docs))
	}
	for i, d := range docs {
		idx.Records[i] = retrieval.Record{DocID: d.ID, Text: d.Text, Vector: vecs[i]}
	}
	if len(vecs[0]) > 0 {
		idx.Meta.EmbedDim = len(vecs[0])
	}
	return idx, nil
}

// Size returns the number of indexed rows.
func (b *Bot) Size() int { return len(b.index.Records) }

// Ask retrieves the closest rows to query and asks the chat model to answer from them.
func (b *Bot) Ask(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("question cannot be empty")
	}
	qv, err := b.embed.Embed(ctx, b.opts.EmbedModel, []string{query})
	b.observe("embed", err)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(qv) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(qv))
	}
	hits := b.index.Search(qv[0], b.opts.TopK, b.opts.MinScore)

	texts := make([]string, len(hits))
	sources := make([]Source, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
		sources[i] = Source{ID: h.DocID, Text: h.Text, Score: h.Score}
	}
	system := strings.Replace(SystemPrompt, "{context}", strings.Join(texts, "\n\n"), 1)
	b.logger.Debug("prompt assembled",
		zap.Int("sources", len(hits)),
		zap.Any("tokens", utils.PromptTokens(map[string]string{"system": system, "question": query})))

	resp, err := b.chat.Chat(ctx, ai.ChatRequest{
		Model: b.opts.ChatModel,
		Messages: []ai.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: query},
		},
		MaxTokens:   b.opts.MaxTokens,
		Temperature: b.opts.Temperature,
	})
	b.observe("chat", err)
	if err != nil {
		return nil, err
	}
	return &Answer{
		SessionID: b.session,
		Question:  query,
		Answer:    strings.TrimSpace(resp.Text()),
		Sources:   sources,
		RequestID: resp.RequestID,
	}, nil
}

func (b *Bot) observe(kind string, err error) {
	if b.opts.Observer != nil {
		b.opts.Observer.ObserveLLM(kind, err)
	}
}
