package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// Generator maps a single prompt to generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GeminiService struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	rateChan  chan struct{} // Token bucket
}

func NewGeminiService(ctx context.Context, apiKey, modelName string, concurrentReqs int) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if concurrentReqs <= 0 {
		concurrentReqs = 1
	}

	// Token bucket bounding in-flight calls across all sessions
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:    client,
		model:     client.GenerativeModel(modelName),
		modelName: modelName,
		rateChan:  rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

func (s *GeminiService) ModelName() string {
	return s.modelName
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// Generate sends prompt as the only content of the request. Prior turns
// are not included.
func (s *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	return replyFromResponse(resp)
}

// replyFromResponse returns the response text exactly as generated. Blocked
// or blank responses are ErrEmptyResponse.
func replyFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		log.Warn().Str("block_reason", resp.PromptFeedback.BlockReason.String()).Msg("Gemini blocked the prompt")
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Warn().Int("candidate", i).Str("finish_reason", cand.FinishReason.String()).Msg("Gemini stopped early")
		}
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
