// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/troforte/assist/services/assist/apperr"
	"github.com/troforte/assist/services/assist/conversation"
	"github.com/troforte/assist/services/assist/datatypes"
	"github.com/troforte/assist/services/assist/observability"
	"github.com/troforte/assist/services/assist/prompt"
	"github.com/troforte/assist/services/assist/retriever"
	"github.com/troforte/assist/services/llm"
)

var tracer = otel.Tracer("troforte.assist.relay")

// DefaultPersistTimeout bounds the final save after the stream ends. The
// save runs detached from the request so a disconnect does not cancel it.
const DefaultPersistTimeout = 10 * time.Second

// =============================================================================
// Interfaces
// =============================================================================

// DeltaStream yields content deltas. Recv returns io.EOF after a clean
// end of stream.
type DeltaStream interface {
	Recv() (string, error)
	Close() error
}

// CompletionStreamer opens a streaming chat completion.
type CompletionStreamer interface {
	Stream(ctx context.Context, messages []openai.ChatCompletionMessage) (DeltaStream, error)
}

// Completer runs a one-shot chat completion.
type Completer interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
}

// StreamWriter emits the NDJSON client protocol.
//
// Begin sets and flushes the response headers; it is called once, before
// the completion request is opened. Exactly one of WriteComplete or
// WriteError ends the stream.
type StreamWriter interface {
	Begin(conversationID string) error
	WriteContent(delta string) error
	WriteComplete() error
	WriteError(message string) error
}

// LLMStreamer adapts *llm.Client to CompletionStreamer.
type LLMStreamer struct {
	Client *llm.Client
}

// Stream implements CompletionStreamer.
func (s LLMStreamer) Stream(ctx context.Context, messages []openai.ChatCompletionMessage) (DeltaStream, error) {
	stream, err := s.Client.Stream(ctx, messages)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// =============================================================================
// Relay
// =============================================================================

// Config wires a Relay.
type Config struct {
	Repository     *conversation.Repository
	Retriever      retriever.Retriever
	Personas       prompt.Source
	Streamer       CompletionStreamer
	Completer      Completer
	Metrics        *observability.Metrics
	PersistTimeout time.Duration
}

// Relay runs chat turns: it resolves the conversation, builds the
// grounded prompt, relays the completion stream to the client, and
// persists the outcome.
//
// # Thread Safety
//
// Safe for concurrent use. Each Run keeps its state on the stack.
type Relay struct {
	repo           *conversation.Repository
	retriever      retriever.Retriever
	personas       prompt.Source
	streamer       CompletionStreamer
	completer      Completer
	metrics        *observability.Metrics
	persistTimeout time.Duration
}

// New builds a Relay from cfg.
func New(cfg Config) *Relay {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.Personas == nil {
		cfg.Personas = prompt.Static(prompt.DefaultPersonas())
	}
	return &Relay{
		repo:           cfg.Repository,
		retriever:      cfg.Retriever,
		personas:       cfg.Personas,
		streamer:       cfg.Streamer,
		completer:      cfg.Completer,
		metrics:        cfg.Metrics,
		persistTimeout: cfg.PersistTimeout,
	}
}

// Request is one validated chat turn.
type Request struct {
	ConversationID string
	DeviceID       string
	Query          string
}

// Outcome describes how a streamed turn ended.
type Outcome struct {
	State        State
	Conversation *datatypes.Conversation
	// Created is true when this turn opened the conversation.
	Created bool
	// Incomplete is true when a partial answer was stored.
	Incomplete bool
	Deltas     int
	// Err is the cause of a FAILED stream. It was reported in-band.
	Err error
}

// Run executes one streamed chat turn.
//
// # Description
//
// Errors before the stream headers are returned and nothing is written to
// w; the caller renders them as a JSON error. Once Begin has been called
// every failure is reported in-band, Run returns a nil error, and the
// Outcome carries the cause.
//
// On the error path (provider failure, truncated stream, or client
// disconnect) whatever text was received is stored with the incomplete
// flag. The same applies when the answer outgrows MaxAnswerBytes: the
// client still receives every delta, but the stored text is flagged as
// partial. The save uses a context detached from ctx.
//
// # Outputs
//
//   - *Outcome: final state; nil when error is non-nil
//   - error: validation, ownership, persistence, or retriever failure
func (r *Relay) Run(ctx context.Context, req Request, w StreamWriter) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "relay.Run", trace.WithAttributes(
		attribute.String("conversation.id", req.ConversationID),
	))
	defer span.End()

	run := &turn{relay: r, span: span, writer: w, acc: NewAccumulator()}

	// RESOLVING_CONVERSATION
	run.enter(ResolvingConversation)
	conv, created, err := r.repo.Resolve(ctx, req.ConversationID, req.DeviceID, req.Query)
	if err != nil {
		run.fail(err)
		return nil, err
	}
	run.conv = conv
	run.created = created

	// BUILDING_PROMPT
	run.enter(BuildingPrompt)
	contextText, err := r.retriever.Retrieve(ctx, req.Query)
	if err != nil {
		r.recordUpstream(err)
		run.fail(err)
		return nil, err
	}
	messages := prompt.Assemble(r.personas.Current(), prompt.Conversational, req.Query, contextText)

	// STREAMING
	run.enter(Streaming)
	run.started = time.Now()
	r.metrics.StreamStarted()
	if err := w.Begin(conv.ConversationID); err != nil {
		return run.finalize(ctx, err, observability.ErrorCodeClientDisconnect), nil
	}

	stream, err := r.streamer.Stream(ctx, messages)
	if err != nil {
		r.recordUpstream(err)
		return run.finalize(ctx, err, observability.ErrorCodeUpstream), nil
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			slog.Debug("Closing completion stream", "error", cerr)
		}
	}()

	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return run.finalize(ctx, nil, ""), nil
		}
		if err != nil {
			code := observability.ErrorCodeUpstream
			switch {
			case ctx.Err() != nil:
				code = observability.ErrorCodeClientDisconnect
			case errors.Is(err, llm.ErrStreamTruncated):
				code = observability.ErrorCodeTruncated
			}
			return run.finalize(ctx, err, code), nil
		}
		if run.acc.Deltas() == 0 {
			r.metrics.RecordTimeToFirstDelta(time.Since(run.started).Seconds())
		}
		if err := run.acc.Write(delta); err != nil && !run.truncated {
			run.truncated = true
			run.span.AddEvent("answer truncated")
		}
		if err := w.WriteContent(delta); err != nil {
			return run.finalize(ctx, err, observability.ErrorCodeWrite), nil
		}
	}
}

// Recommend answers query in recommendation mode without persisting
// anything. Reasoning blocks are stripped from the reply.
func (r *Relay) Recommend(ctx context.Context, query string) (string, error) {
	ctx, span := tracer.Start(ctx, "relay.Recommend")
	defer span.End()

	contextText, err := r.retriever.Retrieve(ctx, query)
	if err != nil {
		r.recordUpstream(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve failed")
		return "", err
	}
	messages := prompt.Assemble(r.personas.Current(), prompt.Recommendation, query, contextText)
	answer, err := r.completer.Complete(ctx, messages)
	if err != nil {
		r.recordUpstream(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}
	return StripReasoning(answer), nil
}

func (r *Relay) recordUpstream(err error) {
	if appErr, ok := apperr.As(err); ok && appErr.Kind == apperr.KindUpstream {
		r.metrics.RecordUpstreamError(appErr.Service, appErr.Failure.String())
	}
}

// =============================================================================
// Turn
// =============================================================================

// turn carries the per-request state of Run.
type turn struct {
	relay   *Relay
	span    trace.Span
	writer  StreamWriter
	acc     *Accumulator
	conv    *datatypes.Conversation
	created bool
	state   State

	// truncated is set once the accumulator rejects a delta; the stored
	// answer is then partial even if the stream completes.
	truncated bool
	started time.Time

	finalizeOnce sync.Once
	outcome      *Outcome
}

func (t *turn) enter(s State) {
	if t.state.Terminal() {
		slog.Warn("Ignoring transition out of terminal state",
			"from", t.state.String(), "to", s.String())
		return
	}
	t.state = s
	t.span.AddEvent(s.String())
}

func (t *turn) fail(err error) {
	t.enter(Failed)
	t.span.RecordError(err)
	t.span.SetStatus(codes.Error, err.Error())
}

// finalize persists the answer and writes the terminal envelope. It runs
// at most once per turn; later calls return the first outcome.
func (t *turn) finalize(ctx context.Context, cause error, code observability.ErrorCode) *Outcome {
	t.finalizeOnce.Do(func() {
		t.enter(Finalizing)
		failed := cause != nil
		r := t.relay

		answer := StripReasoning(t.acc.String())
		incomplete := (failed || t.truncated) && answer != ""
		if answer != "" {
			t.conv.AppendAssistant(answer, incomplete, r.repo.Now())
		}

		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
		if err := r.repo.Save(persistCtx, t.conv); err != nil {
			r.metrics.RecordPersistenceFailure("save_turn")
			slog.Error("Failed to persist chat turn",
				"conversation_id", t.conv.ConversationID,
				"answer_bytes", len(answer),
				"error", err)
		}
		cancel()

		final := Complete
		if failed {
			final = Failed
			r.metrics.RecordStreamError(code)
			if incomplete {
				r.metrics.RecordIncomplete()
			}
			slog.Warn("Chat stream failed",
				"conversation_id", t.conv.ConversationID,
				"cause", code,
				"deltas", t.acc.Deltas(),
				"error", cause)
			_ = t.writer.WriteError(datatypes.StreamErrorMessage)
		} else {
			if incomplete {
				r.metrics.RecordIncomplete()
			}
			_ = t.writer.WriteComplete()
		}
		r.metrics.StreamEnded(time.Since(t.started).Seconds(), !failed)

		slog.Info("Chat turn finalized",
			"conversation_id", t.conv.ConversationID,
			"state", final.String(),
			"deltas", t.acc.Deltas(),
			"truncated", t.truncated,
			"accumulator_id", t.acc.ID(),
			"accumulator_age", t.acc.Age().String(),
			"answer_sha256", t.acc.Hash())

		if failed {
			t.fail(cause)
		} else {
			t.enter(Complete)
		}
		t.outcome = &Outcome{
			State:        final,
			Conversation: t.conv,
			Created:      t.created,
			Incomplete:   incomplete,
			Deltas:       t.acc.Deltas(),
			Err:          cause,
		}
	})
	return t.outcome
}
