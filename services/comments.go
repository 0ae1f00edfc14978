package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"defect-dashboard/models"
	"defect-dashboard/utils"
)

// ErrQuotaExceeded is returned by generators when the API reports a quota
// or rate limit.
var ErrQuotaExceeded = errors.New("generative API quota exceeded")

// Status messages rendered into the report when comments are missing.
const (
	StatusNotConfigured = "Gemini未設定のためAIコメントを生成できません。（.env に GEMINI_API_KEY を設定してください）"
	StatusQuotaExceeded = "Gemini API のクォータ上限に達したため、以降のAIコメント生成を停止しました。"
	StatusDisabled      = "AIコメント生成は無効化されています。"
)

// StatusFailed formats the status for an enrichment that failed as a whole.
func StatusFailed(err error) string {
	return fmt.Sprintf("Gemini コメント生成に失敗しました（%v）。", err)
}

// fallbackModels are tried after the configured models, in order.
var fallbackModels = []string{
	"gemini-1.5-pro-latest",
	"gemini-1.5-flash-latest",
	"gemini-2.0-flash",
}

// CommentGenerator produces text for a prompt with the named model.
type CommentGenerator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// IsQuotaError reports whether err signals an exhausted quota or rate limit.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// quotaMarkers are lower-case fragments of quota errors as the API and its
// client libraries phrase them.
var quotaMarkers = []string{
	"error 429",
	"http 429",
	"status 429",
	"code 429",
	"429 too many requests",
	"resource_exhausted",
	"quota",
	"rate limit",
}

// CandidateModels returns override, envDefault and the built-in fallbacks
// with blanks and repeats removed.
func CandidateModels(override, envDefault string) []string {
	set := utils.NewKeySet()
	for _, m := range append([]string{override, envDefault}, fallbackModels...) {
		if m = strings.TrimSpace(m); m != "" {
			set.Add(m)
		}
	}
	return set.Keys()
}

// CommentOptions tunes a CommentService.
type CommentOptions struct {
	Models  []string
	Delay   time.Duration
	Timeout time.Duration
}

// CommentService asks a generative model for a short comment per part.
// It is built once per run; after the first quota error it stops calling
// the API for the rest of the run.
type CommentService struct {
	gen      CommentGenerator
	registry *WorstRegistry
	terms    *TermResolver
	models   []string
	timeout  time.Duration
	pacer    *utils.Pacer
	logger   *utils.Logger

	quotaExceeded bool
	calls         int
}

// NewCommentService creates a CommentService. A nil gen yields a service
// that only reports StatusNotConfigured.
func NewCommentService(gen CommentGenerator, registry *WorstRegistry, terms *TermResolver, opts CommentOptions, logger *utils.Logger) *CommentService {
	candidates := opts.Models
	if len(candidates) == 0 {
		candidates = CandidateModels("", "")
	}
	return &CommentService{
		gen:      gen,
		registry: registry,
		terms:    terms,
		models:   candidates,
		timeout:  opts.Timeout,
		pacer:    utils.NewPacer(opts.Delay),
		logger:   logger,
	}
}

// QuotaExceeded reports whether the quota latch is set.
func (s *CommentService) QuotaExceeded() bool { return s.quotaExceeded }

// Calls returns how many API calls were attempted.
func (s *CommentService) Calls() int { return s.calls }

// Comment returns the first successful answer among the candidate models.
// A quota error latches the service and yields an empty comment without
// error. When every model fails the last error is returned.
func (s *CommentService) Comment(ctx context.Context, prompt string) (string, error) {
	if s.quotaExceeded {
		return "", nil
	}

	var lastErr error
	for _, model := range s.models {
		text, err := s.call(ctx, model, prompt)
		if err == nil {
			return strings.TrimSpace(text), nil
		}
		if IsQuotaError(err) {
			s.quotaExceeded = true
			s.logger.Warn("[comments] Quota exceeded on %s: %v", model, err)
			return "", nil
		}
		s.logger.Debug("[comments] Model %s failed: %v", model, err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (s *CommentService) call(ctx context.Context, model, prompt string) (string, error) {
	s.calls++
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.gen.Generate(ctx, model, prompt)
}

// Enrich generates a comment for every part of the day. Parts whose call
// fails are left out; the returned status explains any degraded state and
// is empty when all went well.
func (s *CommentService) Enrich(ctx context.Context, parts []models.PartDaySummary, trends *TrendResult) (map[string]string, string) {
	comments := make(map[string]string)
	if s.gen == nil {
		s.logger.Info("[comments] No generator configured; comments disabled")
		return comments, StatusNotConfigured
	}

	sorted := make([]models.PartDaySummary, len(parts))
	copy(sorted, parts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	status := ""
	for _, p := range sorted {
		if s.quotaExceeded {
			break
		}
		if err := s.pacer.Wait(ctx); err != nil {
			return comments, StatusFailed(fmt.Errorf("wait: %w", err))
		}

		comment, err := s.Comment(ctx, s.prompt(p, trends))
		if err != nil {
			s.logger.Warn("[comments] No comment for %s: %v", p.PartNumber, err)
		} else if comment != "" {
			comments[p.PartNumber] = comment
		}
	}
	if s.quotaExceeded {
		status = StatusQuotaExceeded
	}

	s.logger.Info("[comments] Generated %d of %d comments (%d API calls)", len(comments), len(sorted), s.calls)
	return comments, status
}

func (s *CommentService) prompt(p models.PartDaySummary, trends *TrendResult) string {
	in := PromptInput{
		PartNumber:     p.PartNumber,
		PartName:       p.PartName,
		Customer:       p.Customer,
		TrendSummary:   NoHistory,
		KindSummary:    NoKindData,
		TodayQuantity:  p.QuantityTotal,
		TodayDefects:   p.DefectTotal,
		TodayBreakdown: p.Breakdown,
	}
	if trends != nil {
		if v, ok := trends.Summaries[p.PartNumber]; ok {
			in.TrendSummary = v
		}
		if v, ok := trends.KindSummaries[p.PartNumber]; ok {
			in.KindSummary = v
		}
	}

	if s.registry != nil {
		if wp, ok := s.registry.Lookup(p.PartNumber); ok {
			in.PartName = wp.Name
			in.Customer = wp.Customer
			in.MajorDefects = wp.MajorDefects
			return BuildWorstPrompt(s.terms.ByNumber(s.registry.Term()), in)
		}
	}
	return BuildGeneralPrompt(in)
}
