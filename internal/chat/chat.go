// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat turns a typed question into a stored exchange with the agent.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jeranaias/arag-cli/internal/apierr"
	"github.com/jeranaias/arag-cli/internal/client"
	"github.com/jeranaias/arag-cli/internal/logging"
	"github.com/jeranaias/arag-cli/internal/storage"
)

// Query defaults.
const (
	DefaultDomain        = "DefaultDocuments"
	DefaultMaxIterations = 2
)

var (
	// ErrEmptyMessage rejects blank input. Nothing is stored.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrBusy rejects a send while another one is in flight.
	ErrBusy = errors.New("a request is already in progress")
)

// Querier asks the agent a question. *client.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, req client.QueryRequest) (*client.QueryResponse, error)
}

// Options configures the query sent for every message.
type Options struct {
	Domain        string
	MaxIterations int
}

// Result is the outcome of one Send.
type Result struct {
	SessionID string
	Message   storage.Message

	// Response is nil when the query failed.
	Response *client.QueryResponse
}

// Orchestrator sends chat messages and records both sides of the exchange.
type Orchestrator struct {
	querier  Querier
	sessions *storage.Manager
	opts     Options
	busy     atomic.Bool
	now      func() time.Time
}

// New creates an orchestrator.
func New(q Querier, sessions *storage.Manager, opts Options) *Orchestrator {
	if opts.Domain == "" {
		opts.Domain = DefaultDomain
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	return &Orchestrator{
		querier:  q,
		sessions: sessions,
		opts:     opts,
		now:      time.Now,
	}
}

// Busy reports whether a Send is in flight.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Sessions returns the session manager.
func (o *Orchestrator) Sessions() *storage.Manager {
	return o.sessions
}

// Send posts text to the agent in the current session, creating one if
// needed. The user message is stored before the query is made, and an
// assistant message is stored for both answers and failures. On failure the
// stored message carries the sanitized error and the error is returned too.
func (o *Orchestrator) Send(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyMessage
	}
	if !o.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer o.busy.Store(false)

	sessionID, err := o.recordQuestion(text)
	if err != nil {
		// The message is still held in memory; keep going.
		logging.Log().Warnf("failed to persist user message: %v", err)
	}

	start := o.now()
	resp, qerr := o.querier.Query(ctx, client.QueryRequest{
		Query:         text,
		Domain:        o.opts.Domain,
		MaxIterations: o.opts.MaxIterations,
	})

	var answer storage.Message
	if qerr != nil {
		answer = storage.NewAssistantMessage(ErrorText(qerr), o.now())
		logging.WithFields("warn", "query failed", logging.Fields{
			"session": sessionID,
			"error":   qerr.Error(),
		})
	} else {
		answer = answerMessage(resp, o.now())
		fields := logging.Fields{
			"session":     sessionID,
			"iterations":  resp.Iterations,
			"duration_ms": o.now().Sub(start).Milliseconds(),
		}
		if resp.SourcesUsed != nil {
			fields["sources_used"] = *resp.SourcesUsed
		}
		logging.WithFields("debug", "query answered", fields)
	}

	if _, err := o.sessions.Append(sessionID, answer); err != nil {
		logging.Log().Warnf("failed to persist answer: %v", err)
	}

	result := Result{SessionID: sessionID, Message: answer, Response: resp}
	if qerr != nil {
		return result, qerr
	}
	return result, nil
}

// recordQuestion appends the user message to the current session in one
// update, creating the session and deriving its title as needed.
func (o *Orchestrator) recordQuestion(text string) (string, error) {
	var sessionID string
	_, err := o.sessions.Update(func(s storage.Store, now time.Time) storage.Store {
		cur, ok := storage.Current(s)
		if !ok {
			s, cur = storage.CreateSession(s, now)
		}
		sessionID = cur.ID
		s = storage.AppendMessage(s, cur.ID, storage.NewUserMessage(text, now), now)
		return storage.RenameIfUntitled(s, cur.ID, text)
	})
	return sessionID, err
}

// answerMessage copies the answer and its metadata into a message.
func answerMessage(resp *client.QueryResponse, now time.Time) storage.Message {
	msg := storage.NewAssistantMessage(resp.Answer, now)
	msg.Confidence = resp.Confidence
	msg.SourcesUsed = resp.SourcesUsed
	if resp.RephrasedQuery != nil {
		msg.RephrasedQuery = *resp.RephrasedQuery
	}
	return msg
}

// ErrorText is the assistant message shown for a failed query.
func ErrorText(err error) string {
	detail := apierr.Sanitize(err)
	if detail == apierr.ServiceUnavailable {
		return detail
	}
	return "Error: " + detail
}
