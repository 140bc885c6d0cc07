// Package services – ClassifierService
//
// This file implements the content classification stage of the trust core.
// It wraps the external classification capability (see aiclient.Provider)
// with a hard timeout, validates the returned verdict, applies the
// confidence-based downgrade, and records every decision in the audit
// ledger.
//
// The component's defining property is fail-open-but-observable: every
// failure mode (unconfigured capability, timeout, transport error, malformed
// verdict) degrades toward PASS, never toward silent rejection, and every
// degradation is logged for asynchronous human follow-up. The failure→PASS
// mapping happens at exactly one site, resolve(), so the policy is auditable
// and not duplicated across call sites.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-forum-backend/internal/aiclient"
	"github.com/tbourn/go-forum-backend/internal/domain"
	"github.com/tbourn/go-forum-backend/internal/repo"
)

// classifierDecisions counts classifier outcomes by final decision and
// whether the result came from the capability or a degradation path.
var classifierDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "classifier_decisions_total",
		Help: "Content classification outcomes by decision and origin.",
	},
	[]string{"decision", "origin"},
)

func init() {
	prometheus.MustRegister(classifierDecisions)
}

// ClassifyInput describes one piece of content to classify.
type ClassifyInput struct {
	// Content is the text under review.
	Content string
	// ContentType is "thread" or "post".
	ContentType string
	// ContentID is the content row ID when known; empty for content that is
	// classified before persistence.
	ContentID string
	// AuthorID identifies the author.
	AuthorID string
	// Context optionally carries surrounding discussion.
	Context string
	// Enrichment selects the longer asynchronous budget instead of the live
	// publishing budget.
	Enrichment bool
}

// Outcome is the resolved classification decision consumed by the authoring
// flow. Unlike the raw wire verdict it is always well-formed: Decision is one
// of PASS, FLAGGED, or BLOCKED.
type Outcome struct {
	Decision   domain.AICheckResult `json:"decision"`
	Confidence float64              `json:"confidence"`
	Reasons    []string             `json:"reasons"`
	Categories []string             `json:"categories"`
	Suggestion string               `json:"suggestion,omitempty"`
}

// ClassifierFailure describes why a classification attempt could not produce
// a usable verdict. It is internal to this file: resolve() maps every failure
// to a PASS outcome.
type ClassifierFailure struct {
	// Stage is one of "timeout", "call", or "malformed".
	Stage string
	Err   error
}

// Error implements the error interface.
func (f *ClassifierFailure) Error() string {
	return fmt.Sprintf("classifier %s failure: %v", f.Stage, f.Err)
}

// Unwrap exposes the underlying cause.
func (f *ClassifierFailure) Unwrap() error { return f.Err }

// ClassifierService coordinates the external capability, the downgrade
// policy, and the audit trail.
type ClassifierService struct {
	// DB is the GORM handle used for audit writes.
	DB *gorm.DB
	// Provider is the external capability; nil means unconfigured, in which
	// case every classification passes.
	Provider aiclient.Provider

	// Timeout is the hard budget for live content checks.
	Timeout time.Duration
	// EnrichTimeout is the larger budget for asynchronous enrichment tasks.
	EnrichTimeout time.Duration
	// MinBlockConfidence is the downgrade boundary: a BLOCKED verdict with
	// confidence strictly below this value becomes FLAGGED.
	MinBlockConfidence float64
}

// NewClassifierService constructs a ClassifierService with the default
// budgets (2s live, 10s enrichment) and the 0.7 downgrade boundary.
func NewClassifierService(db *gorm.DB, p aiclient.Provider) *ClassifierService {
	return &ClassifierService{
		DB:                 db,
		Provider:           p,
		Timeout:            2 * time.Second,
		EnrichTimeout:      10 * time.Second,
		MinBlockConfidence: 0.7,
	}
}

// Classify runs the content through the external capability and returns a
// resolved outcome. It never returns an error: publishing is never blocked by
// missing or failing infrastructure, only by an affirmative high-confidence
// BLOCKED verdict.
func (s *ClassifierService) Classify(ctx context.Context, in ClassifyInput) Outcome {
	tr := otel.Tracer("services/ClassifierService")
	ctx, span := tr.Start(ctx, "Classify",
		trace.WithAttributes(
			attribute.String("content.type", in.ContentType),
			attribute.String("author.id", in.AuthorID),
		),
	)
	defer span.End()

	if s.Provider == nil {
		classifierDecisions.WithLabelValues(string(domain.AIPass), "unconfigured").Inc()
		return Outcome{
			Decision:   domain.AIPass,
			Confidence: 0,
			Reasons:    []string{"classification capability not configured"},
		}
	}

	start := time.Now()
	out, failure := s.invoke(ctx, in)
	latency := time.Since(start)

	if failure != nil {
		return s.resolve(ctx, in, failure)
	}

	classifierDecisions.WithLabelValues(string(out.Decision), "capability").Inc()
	s.appendAudit(ctx, in, "classifier.decision", map[string]any{
		"decision":   out.Decision,
		"confidence": out.Confidence,
		"categories": out.Categories,
		"latency_ms": latency.Milliseconds(),
	})
	return *out
}

// invoke calls the capability under the configured budget and validates the
// verdict. It returns either a well-formed outcome or a failure for resolve()
// to map.
func (s *ClassifierService) invoke(ctx context.Context, in ClassifyInput) (*Outcome, *ClassifierFailure) {
	budget := s.Timeout
	if in.Enrichment {
		budget = s.EnrichTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	v, err := s.Provider.Moderate(cctx, aiclient.Request{
		Content:     in.Content,
		ContentType: in.ContentType,
		AuthorID:    in.AuthorID,
		Context:     in.Context,
	})
	if err != nil {
		stage := "call"
		if cctx.Err() == context.DeadlineExceeded {
			stage = "timeout"
		}
		return nil, &ClassifierFailure{Stage: stage, Err: err}
	}

	decision := domain.AICheckResult(v.Decision)
	switch decision {
	case domain.AIPass, domain.AIFlagged, domain.AIBlocked:
	default:
		return nil, &ClassifierFailure{Stage: "malformed", Err: fmt.Errorf("unknown decision %q", v.Decision)}
	}

	conf := v.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}

	out := &Outcome{
		Decision:   decision,
		Confidence: conf,
		Reasons:    v.Reasons,
		Categories: v.Categories,
		Suggestion: v.Suggestion,
	}

	// Confidence downgrade: a low-confidence BLOCKED verdict must not cause
	// an outright rejection. FLAGGED content goes to human review instead.
	if out.Decision == domain.AIBlocked && out.Confidence < s.MinBlockConfidence {
		out.Decision = domain.AIFlagged
		out.Reasons = append(out.Reasons,
			fmt.Sprintf("downgraded from BLOCKED: confidence %.2f below %.2f", out.Confidence, s.MinBlockConfidence))
	}
	return out, nil
}

// resolve is the single site that maps a classification failure to the
// fail-open PASS outcome. Every degradation is logged at WARN and recorded
// in the audit ledger on a best-effort basis.
func (s *ClassifierService) resolve(ctx context.Context, in ClassifyInput, failure *ClassifierFailure) Outcome {
	log.Warn().
		Err(failure.Err).
		Str("stage", failure.Stage).
		Str("content_type", in.ContentType).
		Str("author_id", in.AuthorID).
		Msg("classifier degraded to PASS")

	classifierDecisions.WithLabelValues(string(domain.AIPass), failure.Stage).Inc()
	s.appendAudit(ctx, in, "classifier.failure", map[string]any{
		"stage": failure.Stage,
		"error": failure.Err.Error(),
	})

	return Outcome{
		Decision:   domain.AIPass,
		Confidence: 0,
		Reasons:    []string{fmt.Sprintf("classification unavailable (%s), defaulting to pass", failure.Stage)},
	}
}

// appendAudit writes a ledger entry for a classifier event. Ledger failures
// on this side-channel path never fail the classification; they are logged
// and swallowed.
func (s *ClassifierService) appendAudit(ctx context.Context, in ClassifyInput, action string, changes map[string]any) {
	if s.DB == nil {
		return
	}
	entityID := in.ContentID
	if entityID == "" {
		entityID = in.AuthorID
	}
	if err := repo.AppendAudit(ctx, s.DB, action, in.ContentType, entityID, in.AuthorID, changes); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("audit write failed on classifier path")
	}
}
