// Natural-language analytics tool over the music store database.
//
// Information Hiding:
// - Two-call pipeline (write SQL, then phrase the result) hidden behind one tool
// - Prompt templates and JSON extraction hidden
// - Query execution goes through a read-only SQLDatabase

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	jsonutil "github.com/richinex/agentrag/internal/json"
	"github.com/richinex/agentrag/llm"
	"github.com/richinex/agentrag/storage"
)

// SQLDatabase is the read-only database the analytics tool queries.
type SQLDatabase interface {
	Dialect() string
	TableInfo(ctx context.Context) (string, error)
	Query(ctx context.Context, query string) (storage.QueryResult, error)
}

var writeQueryPrompt = prompts.NewPromptTemplate(
	`You are a {{.dialect}} expert. Given an input question, create a syntactically correct {{.dialect}} query to run.
Unless the user specifies in the question a specific number of examples to obtain, query for at most {{.top_k}} results using the LIMIT clause.
Never query for all columns from a table; select only the columns needed to answer the question.
Wrap each column name in double quotes to denote them as delimited identifiers.
Only use the following tables:

{{.table_info}}

Question: {{.question}}

Respond with a JSON object with a single key "query" holding one SELECT statement and nothing else.`,
	[]string{"dialect", "top_k", "table_info", "question"},
)

var answerPrompt = prompts.NewPromptTemplate(
	`You are a helpful assistant analyzing a music store database (Chinook).

Given the following user question, corresponding SQL Query, and SQL Result,
provide a clear, concise answer in business-professional English with specific
details and explanations from the SQL Result.

If the result is empty or null, explain that no data was found.
If there are multiple results, summarize the key findings.

User Question: {{.question}}
SQL Query: {{.query}}
SQL Result: {{.result}}

Answer: `,
	[]string{"question", "query", "result"},
)

// MusicQueryTool answers questions about the music store by asking a model
// to write SQL, running it, then asking the model to phrase the result.
type MusicQueryTool struct {
	BaseTool
	db       SQLDatabase
	provider llm.Provider
	topK     int
	logger   *slog.Logger
}

// NewMusicQueryTool creates the query_music_database tool.
func NewMusicQueryTool(db SQLDatabase, provider llm.Provider, logger *slog.Logger) *MusicQueryTool {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MusicQueryTool{db: db, provider: provider, topK: 5, logger: logger}
}

// Metadata returns the tool metadata.
func (t *MusicQueryTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "query_music_database",
		Description: "Query the Chinook music store database using natural language. Use for analytical " +
			"questions about tracks, albums, artists, genres, customer purchases, invoices, employees, " +
			"sales and revenue, playlists and media types, or anything needing joins or aggregations. " +
			"Returns a professional answer with specific data from the database.",
		Parameters: []ToolParameter{
			{Name: "question", ParamType: "string", Description: "Natural language question about the music store data", Required: true},
		},
	}
}

type questionArgs struct {
	Question string `json:"question"`
}

// Validate validates the arguments.
func (t *MusicQueryTool) Validate(args json.RawMessage) error {
	var a questionArgs
	if err := decodeArgs(args, &a); err != nil {
		return err
	}
	if strings.TrimSpace(a.Question) == "" {
		return errors.New("question cannot be empty")
	}
	return nil
}

// Execute runs the question-to-answer pipeline. Pipeline failures are
// reported as plain output so the model can rephrase and try again.
func (t *MusicQueryTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a questionArgs
	if err := decodeArgs(args, &a); err != nil {
		return FailureResult(err), nil
	}

	answer, err := t.answer(ctx, strings.TrimSpace(a.Question))
	if err != nil {
		if ctx.Err() != nil {
			return FailureResult(err), nil
		}
		t.logger.Error("music database query failed", "question", a.Question, "error", err)
		return SuccessResult(fmt.Sprintf("Error querying music database: %v\n\nPlease try rephrasing your question or make it more specific.", err)), nil
	}
	return SuccessResult(answer), nil
}

func (t *MusicQueryTool) answer(ctx context.Context, question string) (string, error) {
	query, err := t.writeQuery(ctx, question)
	if err != nil {
		return "", err
	}
	t.logger.Debug("generated SQL", "query", query)

	result, err := t.db.Query(ctx, query)
	if err != nil {
		return "", err
	}

	prompt, err := answerPrompt.Format(map[string]any{
		"question": question,
		"query":    query,
		"result":   result.String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render answer prompt: %w", err)
	}
	resp, err := t.provider.Chat(ctx, []llm.ChatMessage{llm.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("failed to phrase answer: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

func (t *MusicQueryTool) writeQuery(ctx context.Context, question string) (string, error) {
	tableInfo, err := t.db.TableInfo(ctx)
	if err != nil {
		return "", err
	}

	prompt, err := writeQueryPrompt.Format(map[string]any{
		"dialect":    t.db.Dialect(),
		"top_k":      t.topK,
		"table_info": tableInfo,
		"question":   question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render query prompt: %w", err)
	}

	resp, err := t.provider.ChatWithFormat(ctx, []llm.ChatMessage{llm.UserMessage(prompt)}, llm.NewJSONObjectFormat())
	if err != nil {
		return "", fmt.Errorf("failed to generate SQL: %w", err)
	}

	out, err := jsonutil.Decode[struct {
		Query string `json:"query"`
	}](resp.Content)
	if err != nil {
		// Some models ignore the format hint and answer with bare SQL.
		if q := jsonutil.StripCodeFence(resp.Content); q != "" {
			return q, nil
		}
		return "", fmt.Errorf("failed to parse generated SQL: %w", err)
	}
	if strings.TrimSpace(out.Query) == "" {
		return "", errors.New("model returned an empty query")
	}
	return strings.TrimSpace(out.Query), nil
}
