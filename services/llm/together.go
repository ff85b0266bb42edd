// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/troforte/assist/pkg/restclient"
	"github.com/troforte/assist/services/assist/apperr"
)

var tracer = otel.Tracer("troforte.assist.llm")

const (
	// ServiceName labels errors and metrics for the inference provider.
	ServiceName = "together"

	DefaultBaseURL = "https://api.together.xyz/v1"
	DefaultModel   = "deepseek-ai/DeepSeek-R1-Distill-Llama-70B-free"

	// NoResponse is returned by Complete when the provider sends no content.
	NoResponse = "No response."

	readChunkSize = 4096
)

// ErrStreamTruncated means the provider closed the body before sending the
// done marker.
var ErrStreamTruncated = errors.New("completion stream ended without done marker")

// Config holds the inference endpoint settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client talks to an OpenAI-compatible chat completions endpoint.
//
// Streaming goes through resty with the body left unparsed so bytes reach
// the EventParser as they arrive. One-shot completions go through the
// go-openai client pointed at the same base URL.
type Client struct {
	rest   *resty.Client
	openai *openai.Client
	model  string
}

// NewClient builds a Client, filling unset fields with the Together
// defaults. The streaming client has no timeout; callers bound it with
// their context.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	oaCfg.BaseURL = cfg.BaseURL

	slog.Info("Initializing completion client", "base_url", cfg.BaseURL, "model", cfg.Model)
	return &Client{
		rest: restclient.New(ServiceName, restclient.Options{
			BaseURL:   cfg.BaseURL,
			AuthToken: cfg.APIKey,
		}),
		openai: openai.NewClientWithConfig(oaCfg),
		model:  cfg.Model,
	}, nil
}

// Model returns the model id sent with each request.
func (c *Client) Model() string { return c.model }

// Stream opens a streaming chat completion.
//
// # Description
//
// The returned Stream owns the response body. Cancelling ctx aborts the
// body read and Recv returns the context error.
//
// # Outputs
//
//   - *Stream: delta reader; the caller must Close it
//   - error: *apperr.Error of kind upstream when the request cannot be
//     opened or the provider answers with a non-2xx status
func (c *Client) Stream(ctx context.Context, messages []openai.ChatCompletionMessage) (*Stream, error) {
	ctx, span := tracer.Start(ctx, "llm.Client.Stream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model), attribute.Int("llm.messages", len(messages)))

	body := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Accept-Encoding", "identity").
		SetBody(body).
		SetDoNotParseResponse(true).
		Post("/chat/completions")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, apperr.Upstream(ServiceName, "Failed to reach the assistant", err)
	}

	raw := resp.RawBody()
	if resp.IsError() {
		var details any
		if raw != nil {
			data, _ := io.ReadAll(io.LimitReader(raw, 64*1024))
			_ = raw.Close()
			details = strings.TrimSpace(string(data))
		}
		span.SetStatus(codes.Error, "provider status")
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
		return nil, apperr.UpstreamHTTP(ServiceName, "Assistant request failed", resp.StatusCode(), details)
	}
	if raw == nil {
		return nil, apperr.UpstreamBody(ServiceName, "Assistant returned an empty body", io.ErrUnexpectedEOF)
	}
	return newStream(raw), nil
}

// Complete runs a non-streaming chat completion and returns the first
// choice's content, or NoResponse when there is none.
func (c *Client) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Client.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	resp, err := c.openai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
			return "", apperr.UpstreamHTTP(ServiceName, "Assistant request failed", apiErr.HTTPStatusCode, apiErr.Message)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
			return "", apperr.UpstreamHTTP(ServiceName, "Assistant request failed", reqErr.HTTPStatusCode, nil)
		}
		return "", apperr.Upstream(ServiceName, "Failed to reach the assistant", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		slog.Warn("Completion returned no content", "model", c.model)
		return NoResponse, nil
	}
	slog.Debug("Completion received", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// =============================================================================
// Stream
// =============================================================================

// streamChunk is one data record. Providers report mid-stream failures
// as {"error": {...}} on an otherwise normal record.
type streamChunk struct {
	openai.ChatCompletionStreamResponse
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Stream yields content deltas from an open completion body.
//
// Not safe for concurrent use.
type Stream struct {
	body    io.ReadCloser
	parser  *EventParser
	pending []string
	buf     []byte
	done    bool
	err     error
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{
		body:   body,
		parser: NewEventParser(),
		buf:    make([]byte, readChunkSize),
	}
}

// Recv returns the next non-empty content delta. It returns io.EOF after
// the done marker, ErrStreamTruncated if the body ends early, and the
// read or context error if the connection drops.
func (s *Stream) Recv() (string, error) {
	for {
		if len(s.pending) > 0 {
			delta := s.pending[0]
			s.pending = s.pending[1:]
			return delta, nil
		}
		if s.err != nil {
			return "", s.err
		}
		if s.done {
			return "", io.EOF
		}
		s.fill()
	}
}

// fill reads one chunk from the body and queues any deltas it completes.
func (s *Stream) fill() {
	if s.body == nil {
		s.err = io.ErrClosedPipe
		return
	}
	n, readErr := s.body.Read(s.buf)
	if n > 0 {
		events, err := s.parser.Feed(s.buf[:n])
		s.consume(events)
		if err != nil && !s.done {
			s.err = err
			return
		}
	}
	if s.done || readErr == nil {
		return
	}
	if errors.Is(readErr, io.EOF) {
		s.consume(s.parser.Finish())
		if !s.done {
			s.err = ErrStreamTruncated
		}
		return
	}
	s.err = fmt.Errorf("read completion stream: %w", readErr)
}

func (s *Stream) consume(events []Event) {
	for _, ev := range events {
		if s.done || s.err != nil {
			return
		}
		if ev.Kind == EventDone {
			s.done = true
			return
		}
		var chunk streamChunk
		if err := json.Unmarshal(ev.Data, &chunk); err != nil {
			slog.Warn("Skipping malformed stream record", "error", err, "bytes", len(ev.Data))
			continue
		}
		if chunk.Error != nil {
			s.err = fmt.Errorf("provider stream error: %s", chunk.Error.Message)
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			s.pending = append(s.pending, delta)
		}
	}
}

// Close releases the response body.
func (s *Stream) Close() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}
