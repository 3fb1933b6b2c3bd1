// Package generate orchestrates the de-identify, transform, re-identify
// pipeline. Raw text enters, de-identified text goes to the upstream model,
// and placeholders are swapped back before the result is returned. The
// upstream never sees an original value and the audit trail never records
// one.
package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elyn-health/phi-shield/internal/audit"
	"github.com/elyn-health/phi-shield/internal/cache"
	"github.com/elyn-health/phi-shield/internal/llm"
	"github.com/elyn-health/phi-shield/internal/logger"
	"github.com/elyn-health/phi-shield/internal/phi"
	"github.com/elyn-health/phi-shield/internal/ws"
)

// TransformFunc turns de-identified text into transformed text. It is the
// only shape of computation the pipeline will run between redaction and
// reinsertion.
type TransformFunc func(ctx context.Context, cleaned string) (string, error)

// Process runs text through the protection pipeline: de-identify, apply the
// transform to the cleaned text only, then re-insert originals into the
// transform's output. If the transform fails, the error propagates before
// any re-identification happens, so raw values never ride along with an
// error path.
func Process(ctx context.Context, text string, transform TransformFunc) (string, error) {
	result := phi.Deidentify(text)

	transformed, err := transform(ctx, result.CleanedText)
	if err != nil {
		return "", err
	}

	return phi.Reidentify(transformed, result.Tokens), nil
}

// Note generation styles.
const (
	StyleSOAP      = "soap"
	StyleNarrative = "narrative"
	StyleDischarge = "discharge"
)

var stylePrompts = map[string]string{
	StyleSOAP:      "You are a clinical documentation assistant. Rewrite the following encounter text as a concise SOAP note.",
	StyleNarrative: "You are a clinical documentation assistant. Rewrite the following encounter text as a narrative progress note.",
	StyleDischarge: "You are a clinical documentation assistant. Rewrite the following encounter text as a discharge summary.",
}

const handoffPrompt = "You are a clinical documentation assistant. Produce a structured shift handoff summary covering every patient below, one section per patient, preserving the patient ordering."

// NoteRequest is one note generation request.
type NoteRequest struct {
	RequestID string
	Text      string
	Style     string
}

// HandoffRequest is a batched handoff generation request. Documents are
// processed in order under one placeholder numbering.
type HandoffRequest struct {
	RequestID string
	Patients  []string
}

// Result is the outcome of a generation pass. Findings carries category
// counts only.
type Result struct {
	Text       string         `json:"text"`
	Findings   map[string]int `json:"findings"`
	TokenCount int            `json:"token_count"`
	GapCount   int            `json:"gap_count"`
	CacheHit   bool           `json:"cache_hit"`
	Duration   time.Duration  `json:"-"`
}

// RedactResult is the outcome of a redaction-only pass. It exposes the
// cleaned text and counts; the token table stays inside the process.
type RedactResult struct {
	CleanedText string         `json:"cleaned_text"`
	Findings    map[string]int `json:"findings"`
	TokenCount  int            `json:"token_count"`
}

// Service runs the pipeline against the configured upstream, with optional
// completion caching, audit recording, and dashboard events.
type Service struct {
	llm    *llm.Client
	cache  *cache.CompletionCache
	audit  *audit.Store
	hub    *ws.Hub
	logger *logger.Logger
}

// NewService creates a pipeline service. cache, auditStore, and hub may be
// nil; the corresponding side effects are skipped.
func NewService(client *llm.Client, completionCache *cache.CompletionCache, auditStore *audit.Store, hub *ws.Hub, log *logger.Logger) *Service {
	return &Service{
		llm:    client,
		cache:  completionCache,
		audit:  auditStore,
		hub:    hub,
		logger: log.WithComponent("generate"),
	}
}

// GenerateNote de-identifies the request text, obtains a completion for the
// cleaned text, and re-inserts the original values.
func (s *Service) GenerateNote(ctx context.Context, req NoteRequest) (*Result, error) {
	system, ok := stylePrompts[req.Style]
	if !ok {
		system = stylePrompts[StyleNarrative]
	}
	system += "\n\n" + llm.TokenPreservationClause

	session := phi.NewSession()
	cleaned := session.Deidentify(req.Text)

	return s.complete(ctx, req.RequestID, "note", system, cleaned, session)
}

// GenerateHandoff de-identifies every patient document under one shared
// placeholder numbering, sends a single combined prompt, and re-inserts all
// originals in one pass. Patients are referenced by position, never by an
// identifier from the source text.
func (s *Service) GenerateHandoff(ctx context.Context, req HandoffRequest) (*Result, error) {
	system := handoffPrompt + "\n\n" + llm.TokenPreservationClause

	session := phi.NewSession()
	var combined strings.Builder
	for i, doc := range req.Patients {
		fmt.Fprintf(&combined, "Patient %d:\n%s\n\n", i+1, session.Deidentify(doc))
	}

	return s.complete(ctx, req.RequestID, "handoff", system, combined.String(), session)
}

// Redact de-identifies text and discards the token table. The mapping never
// leaves the call.
func (s *Service) Redact(ctx context.Context, requestID, text string) *RedactResult {
	start := time.Now()
	result := phi.Deidentify(text)
	findings := toFindings(result.Tokens)

	s.logger.WithRequestID(requestID).LogFindings("redact", findings, 0)
	s.record(ctx, requestID, "redact", findings, len(result.Tokens), 0, false, time.Since(start))

	return &RedactResult{
		CleanedText: result.CleanedText,
		Findings:    findings,
		TokenCount:  len(result.Tokens),
	}
}

func (s *Service) complete(ctx context.Context, requestID, kind, system, cleaned string, session *phi.Session) (*Result, error) {
	start := time.Now()
	tokens := session.Tokens()
	findings := toFindings(tokens)
	log := s.logger.WithRequestID(requestID)

	var completion string
	var cacheHit bool
	var cacheKey string

	if s.cache != nil {
		cacheKey = s.cache.Key(system, cleaned)
		completion, cacheHit = s.cache.Get(ctx, cacheKey)
	}

	if !cacheHit {
		var err error
		completion, err = s.llm.Complete(ctx, system, cleaned)
		if err != nil {
			log.LogFindings(kind, findings, 0)
			s.record(ctx, requestID, kind, findings, len(tokens), 0, false, time.Since(start))
			return nil, fmt.Errorf("%s generation failed: %w", kind, err)
		}
		if s.cache != nil {
			if err := s.cache.Put(ctx, cacheKey, completion); err != nil {
				log.Warn("Failed to cache completion", zap.Error(err))
			}
		}
	}

	// Gaps are measured on the transformed text, before reinsertion: a
	// placeholder the model dropped can never be restored.
	gapCount := phi.MissingPlaceholders(completion, tokens)
	final := phi.Reidentify(completion, tokens)
	duration := time.Since(start)

	log.LogFindings(kind, findings, gapCount)
	s.record(ctx, requestID, kind, findings, len(tokens), gapCount, cacheHit, duration)

	return &Result{
		Text:       final,
		Findings:   findings,
		TokenCount: len(tokens),
		GapCount:   gapCount,
		CacheHit:   cacheHit,
		Duration:   duration,
	}, nil
}

// record persists the audit row and emits the dashboard event. Both carry
// category counts only.
func (s *Service) record(ctx context.Context, requestID, kind string, findings map[string]int, tokenCount, gapCount int, cacheHit bool, duration time.Duration) {
	if s.audit != nil {
		event := &audit.Event{
			RequestID:  requestID,
			Kind:       kind,
			Findings:   audit.FindingCounts(findings),
			GapCount:   gapCount,
			CacheHit:   cacheHit,
			DurationMS: duration.Milliseconds(),
		}
		if err := s.audit.Record(ctx, event); err != nil {
			s.logger.Warn("Failed to record audit event",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ws.Event{
			Type:      ws.EventTypeRedaction,
			Timestamp: time.Now(),
			RequestID: requestID,
			Data: ws.RedactionEvent{
				RequestID:    requestID,
				Kind:         kind,
				Findings:     findings,
				TokenCount:   tokenCount,
				GapCount:     gapCount,
				CacheHit:     cacheHit,
				ProcessingMS: float64(duration.Microseconds()) / 1000.0,
			},
		})
	}
}

func toFindings(tokens []phi.Token) map[string]int {
	counts := phi.CountByCategory(tokens)
	if counts == nil {
		return map[string]int{}
	}
	findings := make(map[string]int, len(counts))
	for category, n := range counts {
		findings[string(category)] = n
	}
	return findings
}
