package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/evinsights-cli/internal/chatbot"
	"github.com/KaramelBytes/evinsights-cli/internal/model"
	"github.com/KaramelBytes/evinsights-cli/internal/utils"
)

var mcpCleaned bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve describe, predict and ask as MCP tools over stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout so assistants can query the
listings. Tools: describe_listings, predict_price and ask_listings. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		ts := &toolServer{cleaned: mcpCleaned}
		s := ts.server()
		logger.Info("mcp server starting", zap.String("transport", "stdio"))
		if err := server.ServeStdio(s); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

// toolServer holds state shared across tool calls. The chatbot index is built
// on the first ask_listings call and reused afterwards.
type toolServer struct {
	cleaned bool

	mu  sync.Mutex
	bot *chatbot.Bot
}

func (ts *toolServer) server() *server.MCPServer {
	s := server.NewMCPServer(
		"EVInsights",
		"0.1.0",
		server.WithLogging(),
		server.WithRecovery(),
	)

	describeTool := mcp.NewTool("describe_listings",
		mcp.WithDescription("Summarize the electric vehicle listings: per-column statistics, top categories, correlations with the price and the first rows."),
		mcp.WithBoolean("raw",
			mcp.Description("Summarize the file as loaded instead of the cleaned table."),
		),
		mcp.WithString("output_format",
			mcp.Description("Format of the summary."),
			mcp.DefaultString("markdown"),
			mcp.Enum("markdown", "json"),
		),
	)
	predictTool := mcp.NewTool("predict_price",
		mcp.WithDescription("Predict the German list price before incentives with a model saved by 'evinsights train'. Any other argument is used as a feature value by column name."),
		mcp.WithString("model",
			mcp.Description("Which trained model to use."),
			mcp.DefaultString(model.KindForest),
			mcp.Enum(model.KindLinear, model.KindForest),
		),
		mcp.WithString("make", mcp.Description("Manufacturer, e.g. Tesla.")),
		mcp.WithString("drive_config", mcp.Description("AWD, RWD or FWD.")),
		mcp.WithNumber("battery", mcp.Description("Battery capacity in kWh.")),
		mcp.WithNumber("seats", mcp.Description("Number of seats.")),
	)
	askTool := mcp.NewTool("ask_listings",
		mcp.WithDescription("Answer a question about the listings from the most similar rows."),
		mcp.WithString("question",
			mcp.Description("The question to answer."),
			mcp.Required(),
		),
	)

	s.AddTool(describeTool, ts.handleDescribe)
	s.AddTool(predictTool, ts.handlePredict)
	s.AddTool(askTool, ts.handleAsk)
	return s
}

func (ts *toolServer) handleDescribe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	raw, _ := args["raw"].(bool)
	format, _ := args["output_format"].(string)

	rep, err := buildReport(raw, 5, 5)
	if err != nil {
		return toolError(err), nil
	}
	if format == "json" {
		b, err := utils.PrettyJSON(rep)
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
		return toolText(string(b)), nil
	}
	return toolText(rep.Markdown()), nil
}

func (ts *toolServer) handlePredict(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	kind, _ := args["model"].(string)
	if kind == "" {
		kind = model.KindForest
	}
	values, err := toolValues(args)
	if err != nil {
		return toolError(err), nil
	}
	price, warnings, err := predictWith(kind, values)
	if err != nil {
		return toolError(err), nil
	}
	text := fmt.Sprintf("Predicted Price (Germany, before incentives): %s", formatEuro(price))
	for _, w := range warnings {
		text += "\nwarning: " + w
	}
	return toolText(text), nil
}

func (ts *toolServer) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, ok := request.Params.Arguments["question"].(string)
	if !ok || q == "" {
		return toolError(fmt.Errorf("missing or invalid required argument: question (string)")), nil
	}
	bot, err := ts.chatbot(ctx)
	if err != nil {
		return toolError(err), nil
	}
	ans, err := bot.Ask(ctx, q)
	if err != nil {
		return toolError(err), nil
	}
	b, err := json.Marshal(ans)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: ans.Answer},
			mcp.TextContent{Type: "text", Text: string(b)},
		},
	}, nil
}

func (ts *toolServer) chatbot(ctx context.Context) (*chatbot.Bot, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.bot != nil {
		return ts.bot, nil
	}
	bot, err := newBot(ctx, ts.cleaned, false)
	if err != nil {
		return nil, err
	}
	ts.bot = bot
	return bot, nil
}

// toolValues converts every argument except model into a column=value map.
func toolValues(args map[string]interface{}) (map[string]string, error) {
	keys := make([]string, 0, len(args))
	for k := range args {
		if k != "model" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make(map[string]string, len(keys))
	for _, k := range keys {
		switch v := args[k].(type) {
		case string:
			values[k] = v
		case float64:
			values[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			values[k] = strconv.FormatBool(v)
		case nil:
		default:
			return nil, fmt.Errorf("argument %s: unsupported value %v", k, v)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no vehicle attributes given")
	}
	return values, nil
}

func toolText(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: s}}}
}

// toolError reports a failure to the client as tool output rather than a protocol error.
func toolError(err error) *mcp.CallToolResult {
	msg := "Error: " + err.Error()
	if hint := errorHint(err); hint != "" {
		msg += "\nHint: " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: msg}},
		IsError: true,
	}
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().BoolVar(&mcpCleaned, "cleaned", false, "index the cleaned table for ask_listings")
}
