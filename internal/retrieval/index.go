package retrieval

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/KaramelBytes/evinsights-cli/internal/utils"
	"golang.org/x/sync/errgroup"
)

// IndexVersion is bumped when the on-disk layout changes.
const IndexVersion = 2

// Document is one unit of retrievable text, e.g. a rendered listing row.
type Document struct {
	ID   string
	Text string
}

// Record is an embedded document.
type Record struct {
	DocID  string    `json:"doc_id"`
	Hash   string    `json:"hash"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

// Hit is a search result.
type Hit struct {
	Record
	Score float64 `json:"score"`
}

type Index struct {
	Records []Record  `json:"records"`
	Meta    IndexMeta `json:"meta"`
}

type IndexMeta struct {
	IndexVersion  int       `json:"index_version"`
	Source        string    `json:"source"`
	EmbedProvider string    `json:"embed_provider"`
	EmbedModel    string    `json:"embed_model"`
	EmbedDim      int       `json:"embed_dim"`
	MaxDocTokens  int       `json:"max_doc_tokens"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Embedder turns texts into vectors, one per text and in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Save writes the index atomically.
func (idx *Index) Save(path string) error {
	if idx == nil {
		return errors.New("nil index")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir index dir: %w", err)
	}
	b, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	return utils.SafeWriteFile(path, b)
}

// Load reads an index written by Save.
func Load(path string) (*Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", path, err)
	}
	return &idx, nil
}

// IndexPath returns the index file for a named source under cacheDir.
func IndexPath(cacheDir, source string) string {
	return filepath.Join(cacheDir, source+".index.json")
}

// metaCompatible reports whether vectors from prev can be reused under cur.
func metaCompatible(prev, cur IndexMeta) bool {
	return prev.IndexVersion == cur.IndexVersion &&
		prev.EmbedProvider == cur.EmbedProvider &&
		prev.EmbedModel == cur.EmbedModel &&
		prev.MaxDocTokens == cur.MaxDocTokens
}

// CosineSim returns the cosine similarity of a and b, or 0 if dimensions mismatch.
func CosineSim(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type BuildOptions struct {
	Force         bool
	Source        string
	EmbedProvider string
	EmbedModel    string
	// MaxDocTokens truncates long documents before embedding. Zero disables.
	MaxDocTokens int
	// BatchSize bounds texts per Embed call.
	BatchSize int
	// Concurrency bounds in-flight Embed calls.
	Concurrency int
}

func hashText(s string) string {
	sum := sha1.Sum([]byte(s))
	return fmt.Sprintf("%x", sum[:])
}

// Build creates or refreshes the index at path for docs. Documents whose text
// hash matches a record in a compatible existing index are not re-embedded.
// Records keep the order of docs.
func Build(ctx context.Context, emb Embedder, path string, docs []Document, opts BuildOptions) (*Index, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	now := time.Now()
	idx := &Index{Meta: IndexMeta{
		IndexVersion:  IndexVersion,
		Source:        opts.Source,
		EmbedProvider: opts.EmbedProvider,
		EmbedModel:    opts.EmbedModel,
		MaxDocTokens:  opts.MaxDocTokens,
		CreatedAt:     now,
		UpdatedAt:     now,
	}}

	reuse := map[string][]float32{}
	if prev, err := Load(path); err == nil && !opts.Force && metaCompatible(prev.Meta, idx.Meta) {
		idx.Meta.CreatedAt = prev.Meta.CreatedAt
		for _, r := range prev.Records {
			if len(r.Vector) > 0 {
				reuse[r.Hash] = r.Vector
			}
		}
	}

	idx.Records = make([]Record, len(docs))
	var pending []int
	for i, d := range docs {
		text := d.Text
		if opts.MaxDocTokens > 0 {
			text = utils.TruncateTokens(text, opts.MaxDocTokens)
		}
		h := hashText(text)
		idx.Records[i] = Record{DocID: d.ID, Hash: h, Text: text, Vector: reuse[h]}
		if idx.Records[i].Vector == nil {
			pending = append(pending, i)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for start := 0; start < len(pending); start += opts.BatchSize {
		batch := pending[start:min(start+opts.BatchSize, len(pending))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, i := range batch {
				texts[j] = idx.Records[i].Text
			}
			vecs, err := emb.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embed: got %d vectors for %d texts", len(vecs), len(batch))
			}
			for j, i := range batch {
				idx.Records[i].Vector = vecs[j]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range idx.Records {
		if len(r.Vector) > 0 {
			idx.Meta.EmbedDim = len(r.Vector)
			break
		}
	}
	if err := idx.Save(path); err != nil {
		return nil, err
	}
	return idx, nil
}

// Search returns the topK records scoring at least minScore, best first.
// Ties keep index order.
func (idx *Index) Search(query []float32, topK int, minScore float64) []Hit {
	hits := make([]Hit, 0, len(idx.Records))
	for _, r := range idx.Records {
		if s := CosineSim(query, r.Vector); s >= minScore {
			hits = append(hits, Hit{Record: r, Score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
