// Package services – ContentService
//
// This file implements the authoring flow for threads and posts. It
// validates and normalizes input, runs new content through the classifier,
// and maps the classification outcome onto the content lifecycle:
//
//   - PASS    -> PUBLISHED
//   - FLAGGED -> QUARANTINED (held for human review, not silently published)
//   - BLOCKED -> rejected, nothing persisted
//
// The classifier itself never fails (see ClassifierService); authoring is
// only rejected by an affirmative high-confidence BLOCKED verdict.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-forum-backend/internal/domain"
	"github.com/tbourn/go-forum-backend/internal/repo"
)

// ContentService coordinates content creation and the classification
// pipeline.
type ContentService struct {
	DB         *gorm.DB
	Classifier *ClassifierService

	// MaxTitleRunes / MaxBodyRunes cap authored content by rune length.
	MaxTitleRunes int
	MaxBodyRunes  int

	// TitleLocale drives casing when a title is derived from the body.
	TitleLocale language.Tag
}

// NewContentService constructs a ContentService with sane defaults.
func NewContentService(db *gorm.DB, cls *ClassifierService) *ContentService {
	return &ContentService{
		DB:            db,
		Classifier:    cls,
		MaxTitleRunes: 120,
		MaxBodyRunes:  20000,
		TitleLocale:   language.English,
	}
}

// CreateThread validates, classifies, and persists a new thread. A blank
// title is derived from the opening words of the body.
func (s *ContentService) CreateThread(ctx context.Context, authorID, title, body string) (*domain.Thread, *Outcome, error) {
	tr := otel.Tracer("services/ContentService")
	ctx, span := tr.Start(ctx, "CreateThread",
		trace.WithAttributes(attribute.String("author.id", authorID)),
	)
	defer span.End()

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil, ErrEmptyContent
	}
	if s.MaxBodyRunes > 0 && utf8.RuneCountInString(body) > s.MaxBodyRunes {
		return nil, nil, ErrTooLong
	}

	title = normalizeText(title)
	if title == "" {
		title = s.deriveTitle(body)
	}
	if s.MaxTitleRunes > 0 && utf8.RuneCountInString(title) > s.MaxTitleRunes {
		title = string([]rune(title)[:s.MaxTitleRunes])
	}

	outcome := s.Classifier.Classify(ctx, ClassifyInput{
		Content:     title + "\n\n" + body,
		ContentType: "thread",
		AuthorID:    authorID,
	})
	status, err := statusFor(outcome.Decision)
	if err != nil {
		return nil, &outcome, err
	}

	t, err := repo.CreateThread(ctx, s.DB, authorID, title, body, status, outcome.Decision)
	if err != nil {
		return nil, &outcome, err
	}
	return t, &outcome, nil
}

// CreatePost validates, classifies, and persists a reply in a thread. The
// parent thread must exist, be published, and not be locked.
func (s *ContentService) CreatePost(ctx context.Context, authorID, threadID, content string) (*domain.Post, *Outcome, error) {
	tr := otel.Tracer("services/ContentService")
	ctx, span := tr.Start(ctx, "CreatePost",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("author.id", authorID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, ErrEmptyContent
	}
	if s.MaxBodyRunes > 0 && utf8.RuneCountInString(content) > s.MaxBodyRunes {
		return nil, nil, ErrTooLong
	}

	thread, err := repo.GetThread(ctx, s.DB, threadID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrTargetNotFound
		}
		return nil, nil, err
	}
	if thread.Status != domain.StatusPublished {
		return nil, nil, ErrTargetNotFound
	}
	if thread.IsLocked {
		return nil, nil, ErrThreadLocked
	}

	outcome := s.Classifier.Classify(ctx, ClassifyInput{
		Content:     content,
		ContentType: "post",
		AuthorID:    authorID,
		Context:     thread.Title,
	})
	status, err := statusFor(outcome.Decision)
	if err != nil {
		return nil, &outcome, err
	}

	p, err := repo.CreatePost(ctx, s.DB, threadID, authorID, content, status, outcome.Decision)
	if err != nil {
		return nil, &outcome, err
	}
	return p, &outcome, nil
}

// statusFor maps a classification decision onto the content lifecycle.
// BLOCKED yields ErrContentBlocked so nothing is persisted.
func statusFor(d domain.AICheckResult) (domain.ContentStatus, error) {
	switch d {
	case domain.AIFlagged:
		return domain.StatusQuarantined, nil
	case domain.AIBlocked:
		return "", ErrContentBlocked
	default:
		return domain.StatusPublished, nil
	}
}

// deriveTitle builds a title from the opening words of the body, title-cased
// for the configured locale.
func (s *ContentService) deriveTitle(body string) string {
	words := strings.Fields(body)
	if len(words) > 8 {
		words = words[:8]
	}
	return cases.Title(s.TitleLocale).String(strings.ToLower(strings.Join(words, " ")))
}

// normalizeText trims whitespace and collapses runs of whitespace to one space.
func normalizeText(v string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(v), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
