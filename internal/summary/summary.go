// Package summary produces short Chinese summaries of article text through
// an external text-generation API.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/model"
	"github.com/deusflow/technews/internal/ratelimit"
	"github.com/deusflow/technews/internal/retry"
	"github.com/deusflow/technews/internal/textutil"
)

// ErrDisabled is returned when no API credential is configured.
var ErrDisabled = errors.New("summarization disabled: no API credential")

// minInputRunes is the shortest text worth sending to the API.
const minInputRunes = 50

// Request is one prompt sent to a backend.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// Backend is a text-generation provider.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

type Options struct {
	MaxInput   int
	MinLength  int
	MaxLength  int
	Retries    int
	RetryDelay time.Duration
}

type Service struct {
	backend Backend
	opts    Options
	budget  *ratelimit.Budget
	log     *slog.Logger
}

// NewService wraps backend. A nil backend yields a disabled service; a nil
// budget means no pacing.
func NewService(backend Backend, opts Options, budget *ratelimit.Budget) *Service {
	if opts.MaxInput <= 0 {
		opts.MaxInput = 4000
	}
	if opts.MinLength <= 0 {
		opts.MinLength = 100
	}
	if opts.MaxLength < opts.MinLength {
		opts.MaxLength = opts.MinLength
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if budget == nil {
		budget = ratelimit.NewBudget(0, 0)
	}
	return &Service{
		backend: backend,
		opts:    opts,
		budget:  budget,
		log:     logger.With("component", "summary"),
	}
}

func (s *Service) Enabled() bool { return s != nil && s.backend != nil }

// ResetBudget starts a new per-run request allowance.
func (s *Service) ResetBudget() { s.budget.Reset() }

// Stats exposes budget usage.
func (s *Service) Stats() map[string]interface{} { return s.budget.GetStats() }

// TargetLength picks a summary length proportional to the article, clamped
// to the configured bounds.
func (s *Service) TargetLength(text string) int {
	n := textutil.RuneLen(text)
	target := 300
	switch {
	case n < 500:
		target = 100
	case n < 1500:
		target = 200
	case n < 3000:
		target = 250
	}
	return max(s.opts.MinLength, min(target, s.opts.MaxLength))
}

// Summarize returns a summary of text. Very short input is returned
// truncated without calling the API. Failures after retries are reported as
// *model.SummarizationError.
func (s *Service) Summarize(ctx context.Context, text string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}

	text = strings.TrimSpace(text)
	target := s.TargetLength(text)
	if textutil.RuneLen(text) < minInputRunes {
		return textutil.Truncate(text, target), nil
	}

	input := text
	if textutil.RuneLen(input) > s.opts.MaxInput {
		input = textutil.Truncate(input, s.opts.MaxInput) + "..."
	}

	req := Request{
		SystemPrompt: systemPrompt(target),
		UserPrompt:   fmt.Sprintf("新闻内容：\n\n%s\n\n请生成中文摘要：", input),
		// CJK characters often cost more than one token.
		MaxTokens: target * 2,
	}

	if err := s.budget.Wait(ctx); err != nil {
		return "", &model.SummarizationError{Err: err}
	}

	var out string
	err := retry.WithRetry(ctx, retry.RetryConfig{
		MaxAttempts: s.opts.Retries,
		Delay:       s.opts.RetryDelay,
		Backoff:     true,
		OnRetry: func(attempt int, err error) {
			s.log.Warn("summary attempt failed", "backend", s.backend.Name(), "attempt", attempt, "error", err)
		},
	}, func() error {
		resp, err := s.backend.Complete(ctx, req)
		if err != nil {
			return err
		}
		resp = clean(resp)
		if resp == "" {
			return errors.New("empty summary")
		}
		out = resp
		return nil
	})
	if err != nil {
		s.budget.RecordFailure()
		return "", &model.SummarizationError{Err: err}
	}

	s.log.Debug("generated summary", "backend", s.backend.Name(), "chars", textutil.RuneLen(out), "target", target)
	return out, nil
}

func systemPrompt(target int) string {
	return fmt.Sprintf(`你是一个新闻摘要助手。请用中文总结以下新闻内容。
要求：
1. 摘要长度控制在 %d-%d 字
2. 突出新闻的核心信息和要点
3. 使用简洁清晰的语言
4. 不要编造信息，只基于原文总结
5. 直接输出摘要，不要加任何前缀或后缀`, target/2, target)
}

var prefixes = []string{"摘要：", "摘要:", "Summary:"}

func clean(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range prefixes {
		s = strings.TrimSpace(strings.ReplaceAll(s, p, ""))
	}
	return s
}
