package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"jobharvest-engine/internal/domain"
)

const scoreSystemPrompt = `You are a ruthless executive recruiter. Assess how well the job below fits the candidate profile.

OUTPUT STRICT JSON:
{"score": <0-100 integer>, "reason": "<one short sentence>"}`

// RemoteScorer calls an OpenAI-compatible chat-completions endpoint and
// parses the strict-JSON verdict.
type RemoteScorer struct {
	BaseURL string
	APIKey  string
	Model   string
	hc      *http.Client
}

func NewRemoteScorer(baseURL, apiKey, model string, timeout time.Duration) *RemoteScorer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteScorer{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		hc:      &http.Client{Timeout: timeout},
	}
}

func (s *RemoteScorer) Mode() domain.ScoringMode { return domain.ModeRemote }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *RemoteScorer) Score(ctx context.Context, jobText, profile string) (int, string, error) {
	user := fmt.Sprintf("CANDIDATE PROFILE:\n%s\n\nJOB CONTENT:\n%s", profile, clip(jobText, 12000))

	body := chatRequest{
		Model: s.Model,
		Messages: []chatMessage{
			{Role: "system", Content: scoreSystemPrompt},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}
	body.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, "", fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	res, err := s.hc.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("score request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return 0, "", fmt.Errorf("read score response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("oracle status %d: %s", res.StatusCode, clip(string(raw), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return 0, "", fmt.Errorf("decode score response: %w", err)
	}
	if cr.Error != nil {
		return 0, "", fmt.Errorf("oracle error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return 0, "", fmt.Errorf("oracle returned no choices")
	}

	var verdict struct {
		Score  int    `json:"score"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &verdict); err != nil {
		return 0, "", fmt.Errorf("malformed oracle verdict: %w", err)
	}
	return clamp(verdict.Score), verdict.Reason, nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
