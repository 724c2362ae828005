// Package classify scores code fragments through an external LLM oracle.
//
// The oracle is modeled as the Classifier capability so any scoring backend
// can stand in for the default chat-completions client.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultScore is assigned when the oracle is unreachable or its reply
	// carries no parseable score. The midpoint keeps unscored content from
	// silently passing as safe or failing as malicious.
	DefaultScore = 5
	// DefaultAnalysis is the rationale sentinel for replies with no analysis.
	DefaultAnalysis = "Unable to analyze"

	scoreMarker    = "SCORE:"
	analysisMarker = "ANALYSIS:"

	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4"
	defaultTimeout = 60 * time.Second
)

const systemPrompt = "You are a security analyst specializing in spreadsheet macro and formula analysis. Be concise and precise."

const promptTemplate = `Analyze the following code/macro found in a spreadsheet for security risks.

Location: %s

Code:
` + "```\n%s\n```" + `

Provide:
1. A security score from 1-10 where:
   - 1-3: Definitely malicious (file access, network calls, process execution, obfuscation)
   - 4-6: Suspicious (external references, dynamic execution, questionable patterns)
   - 7-9: Potentially risky but may be legitimate (common functions that could be misused)
   - 10: Safe (simple calculations, harmless formulas)

2. A brief analysis explaining the score (2-3 sentences)

Format your response EXACTLY as:
SCORE: <number>
ANALYSIS: <your analysis here>
`

// Classifier scores one fragment. Implementations never return an error:
// failures resolve to DefaultScore with a rationale describing what happened,
// so one unreachable classification cannot abort a scan.
type Classifier interface {
	Classify(ctx context.Context, code, location string) (score int, analysis string)
}

// Config holds classifier connection settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// LoadConfig reads classifier settings from the environment, loading an
// optional .env file first. Missing values fall back to defaults.
func LoadConfig() Config {
	_ = godotenv.Load()
	cfg := Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("SHEETGUARD_MODEL"),
		BaseURL: os.Getenv("SHEETGUARD_BASE_URL"),
		Timeout: defaultTimeout,
	}
	return cfg
}

// Client is the default Classifier: an OpenAI-compatible chat-completions
// call that demands the strict two-line SCORE/ANALYSIS reply and parses it
// permissively.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a classifier client from config, applying defaults for
// unset fields.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Classify sends one fragment to the oracle. Exactly one request is issued
// per fragment; there is no retry.
func (c *Client) Classify(ctx context.Context, code, location string) (int, string) {
	reply, err := c.complete(ctx, fmt.Sprintf(promptTemplate, location, code))
	if err != nil {
		log.Printf("[Classifier] %s: %v", location, err)
		return DefaultScore, "Error during analysis: " + err.Error()
	}
	return parseAssessment(reply)
}

// complete performs the chat-completions request and returns the reply text.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	reqBody := struct {
		Model    string    `json:"model"`
		Messages []message `json:"messages"`
	}{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("request timeout after %v: %w", c.timeout, err)
		}
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classifier API error (status %d): %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return "", fmt.Errorf("no choices in classifier response")
	}
	return envelope.Choices[0].Message.Content, nil
}

// parseAssessment extracts (score, analysis) from a reply. The first SCORE:
// line wins and the value is clamped into [1,10]; a reply without a parseable
// score yields DefaultScore. The analysis is the ANALYSIS: line, or all text
// after the marker when the rationale spans lines, or DefaultAnalysis.
func parseAssessment(reply string) (int, string) {
	score := DefaultScore
	analysis := DefaultAnalysis

	scored := false
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if !scored && strings.HasPrefix(line, scoreMarker) {
			if v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, scoreMarker))); err == nil {
				score = clampScore(v)
				scored = true
			}
		} else if analysis == DefaultAnalysis && strings.HasPrefix(line, analysisMarker) {
			if text := strings.TrimSpace(strings.TrimPrefix(line, analysisMarker)); text != "" {
				analysis = text
			}
		}
	}
	if analysis == DefaultAnalysis {
		if idx := strings.Index(reply, analysisMarker); idx >= 0 {
			if text := strings.TrimSpace(reply[idx+len(analysisMarker):]); text != "" {
				analysis = text
			}
		}
	}
	return score, analysis
}

func clampScore(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}
