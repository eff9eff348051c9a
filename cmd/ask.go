package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/evinsights-cli/internal/ai"
	"github.com/KaramelBytes/evinsights-cli/internal/chatbot"
	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/retrieval"
	"github.com/KaramelBytes/evinsights-cli/internal/utils"
)

var (
	askRebuild     bool
	askCleaned     bool
	askJSON        bool
	askShowSources bool
	askTopK        int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask questions about the listings, answered from the most similar rows",
	Long: `Ask embeds every listing row, retrieves the rows closest to your question and
has the chat model answer from them. The embeddings are cached under cache_dir and
reused until the rows or the embedding model change.

Without a question, ask starts an interactive session; an empty line or "exit" ends it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, err := newBot(cmd.Context(), askCleaned, askRebuild)
		if err != nil {
			return err
		}
		if q := strings.TrimSpace(strings.Join(args, " ")); q != "" {
			return answerOne(cmd.Context(), os.Stdout, bot, q)
		}
		fmt.Printf("✓ Indexed %d listings. Ask a question (empty line to quit).\n", bot.Size())
		return chatLoop(cmd.Context(), os.Stdin, os.Stdout, bot)
	},
}

// newBot builds a chatbot over the raw or cleaned listings.
func newBot(ctx context.Context, cleaned, rebuild bool) (*chatbot.Bot, error) {
	var (
		t   *dataset.Table
		svc *dataset.Service
		err error
	)
	source := "listings"
	if cleaned {
		_, t, err = cleanedTable()
		source = "listings_clean"
	} else if svc, err = newService(); err == nil {
		t, err = svc.Raw()
	}
	if err != nil {
		return nil, err
	}
	chatProvider, err := ai.NormalizeProvider(cfg.ChatProvider)
	if err != nil {
		return nil, err
	}
	embedProvider, err := ai.NormalizeProvider(cfg.EmbeddingProvider)
	if err != nil {
		return nil, err
	}
	topK := cfg.RetrievalTopK
	if askTopK > 0 {
		topK = askTopK
	}
	done := pipeline.Time("index")
	defer done()
	return chatbot.NewWithProviders(ctx, t, chatProvider, embedProvider, providerConfig(), chatbot.Options{
		ChatModel:   cfg.ChatModel,
		EmbedModel:  cfg.EmbeddingModel,
		TopK:        topK,
		MinScore:    cfg.RetrievalMinScore,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		IndexPath:   retrieval.IndexPath(cfg.CacheDir, source),
		Source:      source,
		Rebuild:     rebuild,
		Logger:      logger,
		Observer:    pipeline,
	})
}

func answerOne(ctx context.Context, w io.Writer, bot *chatbot.Bot, q string) error {
	ans, err := bot.Ask(ctx, q)
	if err != nil {
		return err
	}
	if askJSON {
		b, err := utils.PrettyJSON(ans)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
		return nil
	}
	fmt.Fprintln(w, ans.Answer)
	if askShowSources {
		for i, s := range ans.Sources {
			fmt.Fprintf(w, "\n[source %d · %s · score %.3f]\n%s\n", i+1, s.ID, s.Score, s.Text)
		}
	}
	return nil
}

// chatLoop answers one question per input line until EOF, an empty line or "exit".
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, bot *chatbot.Bot) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		q := strings.TrimSpace(sc.Text())
		if q == "" || q == "exit" || q == "quit" {
			return nil
		}
		if err := answerOne(ctx, out, bot, q); err != nil {
			// Keep the session alive on provider errors.
			reportError(os.Stderr, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askRebuild, "rebuild", false, "re-embed every row even when the cached index is current")
	askCmd.Flags().BoolVar(&askCleaned, "cleaned", false, "index the cleaned table instead of the file as loaded")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the answer and sources as JSON")
	askCmd.Flags().BoolVar(&askShowSources, "sources", false, "print the retrieved rows after the answer")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "rows retrieved per question (overrides retrieval_top_k)")
}
