// Package ai holds the single LLM-backed helper photon uses: translating
// free-form search queries into English phrases that match the CLIP text
// encoder's training distribution.
package ai

import (
	"context"
	_ "embed"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

//go:embed prompts/query_translate.txt
var queryTranslatePrompt string

// TranslateQuery rewrites a search query into a short English phrase for
// CLIP text embedding. On failure the original text is returned along with
// the error so callers can fall back to the untranslated query.
func TranslateQuery(ctx context.Context, apiKey, query string) (string, error) {
	client := openai.NewClient(option.WithAPIKey(apiKey))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4_1Mini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(queryTranslatePrompt),
			openai.UserMessage(query),
		},
		MaxTokens: openai.Int(100),
	})
	if err != nil {
		return query, err
	}

	if len(resp.Choices) == 0 {
		return query, nil
	}

	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translated == "" {
		return query, nil
	}
	return translated, nil
}
