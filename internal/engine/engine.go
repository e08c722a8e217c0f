package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/neurolens/lucid/internal/answer"
	"github.com/neurolens/lucid/internal/archive"
	"github.com/neurolens/lucid/internal/conversation"
	"github.com/neurolens/lucid/internal/events"
	"github.com/neurolens/lucid/internal/explain"
	"github.com/neurolens/lucid/internal/intent"
	"github.com/neurolens/lucid/internal/metrics"
	"github.com/neurolens/lucid/internal/session"
)

// ErrBlankQuestion is returned by Ask when the question is empty or
// whitespace.
var ErrBlankQuestion = errors.New("blank question")

// AnalysisRequest is a classifier output submitted for explanation, over
// HTTP or the event bus. SessionID may be omitted over HTTP, where the URL
// names the session.
type AnalysisRequest struct {
	SessionID   uuid.UUID           `json:"session_id"`
	ModelID     string              `json:"model_id,omitempty"`
	Classes     []explain.ClassProb `json:"classes"`
	Attribution explain.Attribution `json:"attribution"`
	ImageStats  map[string]float64  `json:"image_stats,omitempty"`
	Pipeline    []string            `json:"pipeline,omitempty"`
}

// Engine orchestrates the explanation pipeline: it validates classifier
// output into session records and answers questions against them. The
// archive, event bus, and metrics collaborators are optional; nil drops
// that concern.
type Engine struct {
	sessions *session.Registry
	builder  *explain.Builder
	router   *intent.Registry
	synth    *answer.Synthesizer
	archive  *archive.Archive
	bus      *events.Client
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(sessions *session.Registry, builder *explain.Builder, router *intent.Registry, synth *answer.Synthesizer, arch *archive.Archive, bus *events.Client, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		sessions: sessions,
		builder:  builder,
		router:   router,
		synth:    synth,
		archive:  arch,
		bus:      bus,
		metrics:  m,
		logger:   logger,
	}
}

// Analyze validates a classifier output and, on success, installs the
// resulting explanation as the session's current record. Validation
// failure leaves the session untouched: no partial record, no session
// created as a side effect.
func (e *Engine) Analyze(ctx context.Context, req AnalysisRequest) (*explain.Explanation, error) {
	sessionID := req.SessionID
	if sessionID == uuid.Nil {
		sessionID = uuid.New()
	}

	exp, err := e.builder.Build(explain.Input{
		SessionID:   sessionID,
		ModelID:     req.ModelID,
		Classes:     req.Classes,
		Attribution: req.Attribution,
		ImageStats:  req.ImageStats,
		Pipeline:    req.Pipeline,
	})
	if err != nil {
		e.metrics.ObserveAnalysis("rejected")
		e.publish(events.SubjectAnalysisRejected, events.AnalysisRejected{
			SessionID: sessionID.String(),
			Reason:    err.Error(),
		})
		e.logger.Warn("analysis rejected", "session_id", sessionID, "error", err)
		return nil, err
	}

	e.sessions.GetOrCreate(sessionID).SetExplanation(exp)
	e.metrics.ObserveAnalysis("accepted")

	if e.archive != nil {
		if err := e.archive.WriteExplanation(ctx, exp); err != nil {
			e.logger.Error("archive explanation failed", "explanation_id", exp.ID, "error", err)
		}
	}
	e.publish(events.SubjectExplanationCreated, events.ExplanationCreated{
		ExplanationID:    exp.ID.String(),
		SessionID:        sessionID.String(),
		Class:            exp.Decision.ClassName,
		ConfidenceLevel:  exp.Decision.ConfidenceLevel,
		UncertaintyLevel: string(exp.Uncertainty.Level),
	})

	e.logger.Info("explanation created",
		"explanation_id", exp.ID,
		"session_id", sessionID,
		"class", exp.Decision.ClassName,
		"confidence_level", exp.Decision.ConfidenceLevel,
		"uncertainty_level", exp.Uncertainty.Level,
	)
	return exp, nil
}

// Explanation returns the session's current record. ok is false when the
// session is unknown or has no accepted analysis yet.
func (e *Engine) Explanation(sessionID uuid.UUID) (*explain.Explanation, bool) {
	s := e.sessions.Get(sessionID)
	if s == nil {
		return nil, false
	}
	exp := s.Explanation()
	return exp, exp != nil
}

// Ask routes a question, synthesizes a grounded answer from the session's
// current record, and appends the exchange to the conversation log. A
// session is created on demand, so questions asked before any analysis get
// the fallback answer rather than an error. The only error is a blank
// question.
func (e *Engine) Ask(ctx context.Context, sessionID uuid.UUID, question string) (conversation.Turn, error) {
	if strings.TrimSpace(question) == "" {
		return conversation.Turn{}, ErrBlankQuestion
	}

	s := e.sessions.GetOrCreate(sessionID)
	m := e.router.Route(question)
	a := e.synth.Synthesize(m, s.Explanation())
	turn := s.Record(question, m, a)

	e.metrics.ObserveQuestion(string(m.Intent), a.Grounded)
	if e.archive != nil {
		if err := e.archive.WriteTurn(ctx, sessionID, turn); err != nil {
			e.logger.Error("archive turn failed", "session_id", sessionID, "sequence_id", turn.SequenceID, "error", err)
		}
	}
	e.publish(events.SubjectTurnRecorded, events.TurnRecorded{
		SessionID:  sessionID.String(),
		SequenceID: turn.SequenceID,
		Intent:     string(turn.Intent),
		Grounded:   turn.Grounded,
	})

	e.logger.Info("question answered",
		"session_id", sessionID,
		"sequence_id", turn.SequenceID,
		"intent", m.Intent,
		"grounded", a.Grounded,
	)
	return turn, nil
}

// History returns the session's retained turns, oldest first. Unknown
// sessions have an empty history.
func (e *Engine) History(sessionID uuid.UUID) []conversation.Turn {
	s := e.sessions.Get(sessionID)
	if s == nil {
		return []conversation.Turn{}
	}
	return s.History()
}

// ClearHistory drops the session's conversation log. The current
// explanation is kept.
func (e *Engine) ClearHistory(sessionID uuid.UUID) {
	if s := e.sessions.Get(sessionID); s != nil {
		s.ClearHistory()
	}
}

// SessionCount reports how many sessions are live.
func (e *Engine) SessionCount() int {
	return e.sessions.Count()
}

// HandleClassifierResult is the event-bus handler for
// imaging.classifier.result.stored. The payload must carry its session id;
// there is no URL to supply one.
func (e *Engine) HandleClassifierResult(subject string, data []byte) {
	ctx := context.Background()

	var req AnalysisRequest
	if err := json.Unmarshal(data, &req); err != nil {
		e.logger.Error("failed to parse classifier result", "subject", subject, "error", err)
		return
	}
	if req.SessionID == uuid.Nil {
		e.logger.Error("classifier result without session id", "subject", subject)
		return
	}

	e.logger.Info("processing classifier result",
		"session_id", req.SessionID,
		"model_id", req.ModelID,
		"classes", len(req.Classes),
	)

	// Analyze logs and publishes the rejection itself.
	_, _ = e.Analyze(ctx, req)
}

func (e *Engine) publish(subject string, payload any) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(subject, payload); err != nil {
		e.logger.Error("publish failed", "subject", subject, "error", err)
	}
}
