// Package aiclient wraps the OpenAI API for template analysis and
// embedding generation, with client-side rate limiting so batch
// ingestion cannot exceed the account quota.
package aiclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const analyzePrompt = `You are a meme template curator. The user gives you a link to a short template video, sometimes with an example caption and reviewer feedback. Describe the visual content of the template and how it is typically captioned, then suggest a short memorable name for it.
Respond with exactly two labeled lines:
Name: <suggested name>
Description: <description>`

// Analysis is the result of analyzing a template video.
type Analysis struct {
	Description   string
	SuggestedName string
}

// Client calls OpenAI for analysis and embeddings.
type Client struct {
	api     *openai.Client
	limiter *rate.Limiter
	log     *logrus.Logger
}

// New creates a Client. requestsPerSecond bounds the combined rate of
// chat and embedding calls.
func New(apiKey string, requestsPerSecond int, log *logrus.Logger) *Client {
	return &Client{
		api:     openai.NewClient(apiKey),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		log:     log,
	}
}

// AnalyzeTemplate asks the model to describe a template video and suggest a
// name for it. captionExample and feedback are optional hints; empty strings
// are omitted from the request.
func (c *Client) AnalyzeTemplate(ctx context.Context, videoURL, captionExample, feedback string) (*Analysis, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var content strings.Builder
	content.WriteString(videoURL)
	if captionExample != "" {
		content.WriteString("\n\nExample caption: ")
		content.WriteString(captionExample)
	}
	if feedback != "" {
		content.WriteString("\n\nReviewer feedback: ")
		content.WriteString(feedback)
	}

	c.log.Infof("Requesting analysis for %s", videoURL)
	resp, err := c.api.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT4,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: analyzePrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: content.String(),
				},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch analysis: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("analysis response contained no choices")
	}

	analysis := parseAnalysis(resp.Choices[len(resp.Choices)-1].Message.Content)
	if analysis.Description == "" {
		return nil, fmt.Errorf("analysis response contained no description")
	}
	return analysis, nil
}

// Embed generates an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.AdaEmbeddingV2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

// parseAnalysis extracts the labeled Name and Description lines from the
// model output. A reply without labels is treated as a bare description.
func parseAnalysis(raw string) *Analysis {
	analysis := &Analysis{}
	var descLines []string
	inDescription := false
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Name:"):
			analysis.SuggestedName = strings.TrimSpace(strings.TrimPrefix(trimmed, "Name:"))
			inDescription = false
		case strings.HasPrefix(trimmed, "Description:"):
			descLines = append(descLines, strings.TrimSpace(strings.TrimPrefix(trimmed, "Description:")))
			inDescription = true
		case inDescription && trimmed != "":
			descLines = append(descLines, trimmed)
		}
	}
	analysis.Description = strings.TrimSpace(strings.Join(descLines, "\n"))

	if analysis.Description == "" && analysis.SuggestedName == "" {
		analysis.Description = strings.TrimSpace(raw)
	}
	return analysis
}
