package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/evinsights-cli/internal/ai"
	"github.com/KaramelBytes/evinsights-cli/internal/chatbot"
	"github.com/KaramelBytes/evinsights-cli/internal/dataset"
	"github.com/KaramelBytes/evinsights-cli/internal/model"
)

const listingsCSV = `Row_ID,title,price-range,battery,0 - 100,Top Speed,Range*,Efficiency*,Fastcharge*,Germany_price_before_incentives,Netherlands_price_before_incentives,UK_price_after_incentives,Drive_Configuration,Tow_Hitch,Towing_capacity_in_kg,Number_of_seats
1,Tesla Model 3 Long Range,50-60k,75,4.4,233,560,139,820,54990,56990,51990,AWD,True,1000,5
2,BMW i4 eDrive40,50-60k,N/A,5.7,190,490,164,660,59200,,,RWD,True,1600,5
3,Kia EV6 GT,60-70k,77.4,3.5,260,420,188,-,65990,,,AWD,False,1600,5
4,Fiat 500e,,42,9,150,235,151,480,,30990,,FWD,False,0,4
5,Hyundai Ioniq 5,40-50k,58,8.5,185,355,160,,43900,,,RWD,True,,5
6,Tesla Model Y Performance,60-70k,75,3.7,250,480,171,750,62990,,,AWD,True,1600,5
7,BMW iX1 xDrive30,50-60k,64.7,5.7,180,385,168,490,55000,,,AWD,True,1200,5
`

// isolate points HOME at a temp dir and writes the listings fixture into it.
func isolate(t *testing.T) (home, data string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	data = filepath.Join(home, "ev.csv")
	require.NoError(t, os.WriteFile(data, []byte(listingsCSV), 0o644))
	return home, data
}

// resetFlags restores every flag to its default so state does not leak between runs.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags(rootCmd)
	cfg = nil
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func mustRun(t *testing.T, args ...string) {
	t.Helper()
	if err := runCmd(t, args...); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
}

func TestCLI_Clean(t *testing.T) {
	_, data := isolate(t)
	mustRun(t, "clean", "--data", data, "--head", "2")
}

func TestCLI_CleanMissingFile(t *testing.T) {
	home, _ := isolate(t)
	err := runCmd(t, "clean", "--data", filepath.Join(home, "nope.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrFileAccess)
}

func TestCLI_DescribeWritesMarkdownAndJSON(t *testing.T) {
	home, data := isolate(t)
	md := filepath.Join(home, "out", "summary.md")
	mustRun(t, "describe", "--data", data, "-o", md)
	b, err := os.ReadFile(md)
	require.NoError(t, err)
	assert.Contains(t, string(b), "[DATASET SUMMARY]")
	assert.Contains(t, string(b), "[CORRELATIONS WITH price_de]")

	js := filepath.Join(home, "summary.json")
	mustRun(t, "describe", "--data", data, "--json", "--raw", "-o", js)
	b, err = os.ReadFile(js)
	require.NoError(t, err)
	var rep struct {
		Rows int `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(b, &rep))
	assert.Equal(t, 7, rep.Rows)
}

func TestCLI_PlotAll(t *testing.T) {
	home, data := isolate(t)
	dir := filepath.Join(home, "plots")
	mustRun(t, "plot", "all", "--data", data, "--out", dir)
	for _, k := range plotKinds {
		_, err := os.Stat(filepath.Join(dir, k+".png"))
		assert.NoError(t, err, k)
	}
	assert.Error(t, runCmd(t, "plot", "pie", "--data", data))
}

func TestCLI_TrainThenPredict(t *testing.T) {
	home, data := isolate(t)
	metricsFile := filepath.Join(home, "metrics.prom")
	mustRun(t, "train", "--data", data, "--trees", "5", "--metrics-out", metricsFile)

	for _, kind := range []string{model.KindLinear, model.KindForest} {
		a, err := model.LoadArtifact(filepath.Join(home, ".evinsights", "cache", "models", kind+".json"))
		require.NoError(t, err, kind)
		assert.Equal(t, "price_de", a.Target)
		assert.Contains(t, a.Metrics, "r2")
	}
	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "evinsights_model_score")
	assert.Contains(t, string(prom), "evinsights_clean_stage_rows_out")

	mustRun(t, "predict", "--data", data, "--make", "Tesla", "--drive-config", "AWD", "--battery", "75", "--seats", "5")
	mustRun(t, "predict", "--data", data, "-m", "linear", "--set", "battery=64.7", "--set", "make=BMW")
	assert.Error(t, runCmd(t, "predict", "--data", data), "no attributes")
	assert.Error(t, runCmd(t, "predict", "--data", data, "-m", "all", "--battery", "60"))
}

func TestCLI_PredictWithoutModel(t *testing.T) {
	_, data := isolate(t)
	err := runCmd(t, "predict", "--data", data, "--battery", "60")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evinsights train --model random_forest")
}

func TestCLI_ExportSQLiteAndCSV(t *testing.T) {
	home, data := isolate(t)
	db := filepath.Join(home, "ev.db")
	mustRun(t, "export", "--data", data, "--format", "sqlite", "--out", db)
	_, err := os.Stat(db)
	require.NoError(t, err)

	out := filepath.Join(home, "clean.csv")
	mustRun(t, "export", "--data", data, "--out", out)
	got, err := dataset.LoadCSV(out, dataset.DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, 6, got.NumRows())
	assert.Equal(t, 0, got.MissingCount())

	assert.Error(t, runCmd(t, "export", "--data", data, "--format", "postgres"), "no dsn configured")
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	home, _ := isolate(t)
	mustRun(t, "config", "set", "chat_provider", "Local")
	mustRun(t, "config", "set", "forest_trees", "20")
	b, err := os.ReadFile(filepath.Join(home, ".evinsights", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "chat_provider: ollama")
	assert.Contains(t, string(b), "forest_trees: 20")
	mustRun(t, "config", "show")

	assert.Error(t, runCmd(t, "config", "set", "test_ratio", "1.5"))
	assert.Error(t, runCmd(t, "config", "set", "log_level", "loud"))
	assert.Error(t, runCmd(t, "config", "set", "nope", "x"))
}

// fakeOllama serves /api/embed and /api/chat.
func fakeOllama(t *testing.T, chats *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/embed":
			var req struct {
				Input []string `json:"input"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			embs := make([][]float64, len(req.Input))
			for i, s := range req.Input {
				v := []float64{0.01, 0.01}
				if strings.Contains(strings.ToLower(s), "tesla") {
					v[0] = 1
				}
				embs[i] = v
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embs})
		case "/api/chat":
			chats.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"role": "assistant", "content": "Tesla listings cost about 55k EUR."},
				"done":    true,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCLI_AskWithOllama(t *testing.T) {
	home, data := isolate(t)
	var chats atomic.Int32
	srv := fakeOllama(t, &chats)
	t.Setenv("EVINSIGHTS_CHAT_PROVIDER", "ollama")
	t.Setenv("EVINSIGHTS_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EVINSIGHTS_OLLAMA_HOST", srv.URL)

	mustRun(t, "ask", "--data", data, "--json", "How much is a Tesla?")
	assert.Equal(t, int32(1), chats.Load())
	_, err := os.Stat(filepath.Join(home, ".evinsights", "cache"))
	assert.NoError(t, err, "index is persisted under cache_dir")
}

type echoChat struct{}

func (echoChat) Chat(_ context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	q := req.Messages[len(req.Messages)-1].Content
	if q == "fail" {
		return nil, &ai.AuthError{APIError: &ai.APIError{StatusCode: 401, Message: "invalid key"}}
	}
	return &ai.ChatResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: "you asked: " + q}}}}, nil
}

type flatEmbedder struct{}

func (flatEmbedder) Embed(_ context.Context, _ string, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestChatLoop(t *testing.T) {
	tab := dataset.MustTable(dataset.Strings("title", "Tesla Model 3", "Kia EV6"))
	bot, err := chatbot.New(context.Background(), tab, echoChat{}, flatEmbedder{}, chatbot.Options{ChatModel: "c", EmbedModel: "e"})
	require.NoError(t, err)

	askJSON, askShowSources = false, false
	var out bytes.Buffer
	in := strings.NewReader("first question\nfail\nsecond\n\nignored\n")
	require.NoError(t, chatLoop(context.Background(), in, &out, bot))
	assert.Contains(t, out.String(), "you asked: first question")
	assert.Contains(t, out.String(), "you asked: second")
	assert.NotContains(t, out.String(), "ignored")
}

func TestToolValues(t *testing.T) {
	v, err := toolValues(map[string]interface{}{"model": "linear", "make": "Kia", "battery": 77.4, "tow_hitch": true, "seats": nil})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"make": "Kia", "battery": "77.4", "tow_hitch": "true"}, v)

	_, err = toolValues(map[string]interface{}{"model": "linear"})
	assert.Error(t, err)
	_, err = toolValues(map[string]interface{}{"make": []any{"x"}})
	assert.Error(t, err)
}

func TestMCPDescribeTool(t *testing.T) {
	_, data := isolate(t)
	resetFlags(rootCmd)
	cfg = nil
	loadConfig()
	require.NotNil(t, cfg)
	cfg.DatasetPath = data
	require.NoError(t, setupRun())

	ts := &toolServer{}
	var req mcp.CallToolRequest
	req.Params.Arguments = map[string]interface{}{"output_format": "markdown"}
	res, err := ts.handleDescribe(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.IsError)
	text := res.Content[0].(mcp.TextContent).Text
	assert.Contains(t, text, "[SCHEMA]")

	req.Params.Arguments = map[string]interface{}{"battery": 60.0}
	res, err = ts.handlePredict(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsError, "no trained model yet")
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, &dataset.StateError{Op: "split", Reason: "not cleaned"})
	assert.True(t, strings.HasPrefix(buf.String(), "✗ Internal error:"))
	assert.NotContains(t, buf.String(), "Hint")

	buf.Reset()
	reportError(&buf, &dataset.SchemaError{Column: "price_de", Reason: "column not found"})
	assert.Contains(t, buf.String(), "✗ Error:")
	assert.Contains(t, buf.String(), "Hint: the listings file does not have the expected columns")

	buf.Reset()
	reportError(&buf, errors.New("plain"))
	assert.Equal(t, "✗ Error: plain\n", buf.String())
}

func TestErrorHint(t *testing.T) {
	assert.Contains(t, errorHint(&dataset.FileAccessError{Path: "x.csv", Err: os.ErrNotExist}), "dataset_path")
	assert.Contains(t, errorHint(&dataset.ParseError{Path: "x.csv", Err: errors.New("bad quote")}), "comma-separated")
	assert.Contains(t, errorHint(ai.ErrMissingAPIKey), "api_key")
	assert.Empty(t, errorHint(errors.New("other")))
}

func TestFormatEuro(t *testing.T) {
	assert.Equal(t, "€54,990.00", formatEuro(54990))
	assert.Equal(t, "€999.50", formatEuro(999.5))
	assert.Equal(t, "€1,234,567.89", formatEuro(1234567.891))
	assert.Equal(t, "-€1,000.00", formatEuro(-1000))
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"make=Tesla", " battery = 75 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"make": "Tesla", "battery": "75"}, got)
	_, err = parseAssignments([]string{"novalue"})
	assert.Error(t, err)
}
