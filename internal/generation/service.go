// Package generation calls the LLM proxy to produce resume content. The
// entitlement ledger decides whether a call is allowed; this package only
// produces text.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/densematrix/resumeforge/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	SectionExperience = "experience"
	SectionSummary    = "summary"
	SectionSkills     = "skills"
	SectionImprove    = "improve"
)

type ResumeRequest struct {
	JobTitle string `json:"job_title"`
	Section  string `json:"section"`
	Context  string `json:"context"`
	Language string `json:"language"`
}

type CoverLetterRequest struct {
	JobTitle      string `json:"job_title"`
	Company       string `json:"company"`
	ResumeSummary string `json:"resume_summary"`
	Language      string `json:"language"`
}

type Service interface {
	GenerateResume(ctx context.Context, req ResumeRequest) (string, error)
	GenerateCoverLetter(ctx context.Context, req CoverLetterRequest) (string, error)
}

// ErrUpstream marks a proxy failure or timeout. Callers must not consume a
// unit when they see it.
var ErrUpstream = errors.New("generation_upstream_failure")

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

type service struct {
	log     *zap.Logger
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewService(p Params) Service {
	return &service{
		log:     p.Log.Named("generation.service"),
		baseURL: strings.TrimRight(p.Cfg.LLMProxyURL, "/"),
		apiKey:  p.Cfg.LLMProxyKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *service) GenerateResume(ctx context.Context, req ResumeRequest) (string, error) {
	if req.Language == "" {
		req.Language = "en"
	}
	return s.complete(ctx, resumePrompt(req))
}

func (s *service) GenerateCoverLetter(ctx context.Context, req CoverLetterRequest) (string, error) {
	if req.Language == "" {
		req.Language = "en"
	}
	return s.complete(ctx, coverLetterPrompt(req))
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (s *service) complete(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model: "gpt-4o-mini",
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.http.Do(httpReq)
	if err != nil {
		s.log.Warn("llm proxy request failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		s.log.Warn("llm proxy error response",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", detail),
		)
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUpstream)
	}
	return out.Choices[0].Message.Content, nil
}

var Module = fx.Module("generation",
	fx.Provide(NewService),
)
