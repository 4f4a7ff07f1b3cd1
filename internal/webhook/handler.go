package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mattjoyce/reviewsheet/internal/extract"
	"github.com/mattjoyce/reviewsheet/internal/ipallow"
	"github.com/mattjoyce/reviewsheet/internal/log"
	"github.com/mattjoyce/reviewsheet/internal/payload"
	"github.com/mattjoyce/reviewsheet/internal/sink"
)

var tracer = otel.Tracer("github.com/mattjoyce/reviewsheet/internal/webhook")

// Handler validates review deliveries and appends approved ones as rows.
// It holds no per-request state and is safe for concurrent use.
type Handler struct {
	config Config
	gate   EventGate
	rows   sink.RowSink
	ips    ipallow.Checker
	logger *slog.Logger
}

// NewHandler creates a handler. A nil ips disables the sender IP check.
func NewHandler(config Config, rows sink.RowSink, ips ipallow.Checker, logger *slog.Logger) *Handler {
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.SignatureHeader == "" {
		config.SignatureHeader = DefaultSignatureHeader
	}
	if config.EventHeader == "" {
		config.EventHeader = DefaultEventHeader
	}
	if config.DeliveryHeader == "" {
		config.DeliveryHeader = DefaultDeliveryHeader
	}
	if config.Separator == "" {
		config.Separator = extract.DefaultSeparator
	}

	gate := DefaultEventGate()
	if len(config.AcceptedEvents) > 0 {
		gate = NewEventGate(config.AcceptedEvents...)
	}

	return &Handler{
		config: config,
		gate:   gate,
		rows:   rows,
		ips:    ips,
		logger: logger,
	}
}

// Process runs one delivery through the checks in order: sender IP (when
// enabled), signature, event type, payload, approval state, extraction and
// finally the sink append. The returned JSON is the 200 response body.
// Deliveries that are valid but not approvals return a body without writing.
func (h *Handler) Process(ctx context.Context, req Request) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "webhook.process")
	defer span.End()

	logger := log.WithDelivery(h.logger, req.Header.Get(h.config.DeliveryHeader))

	out, err := h.process(ctx, req, logger)
	if err != nil {
		kind := KindOf(err)
		span.SetAttributes(attribute.String("webhook.error_kind", string(kind)))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))

		level := slog.LevelWarn
		if kind == KindSinkFailure || kind == KindInternal {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "webhook delivery rejected", "kind", kind, "error", err)
		return nil, err
	}
	return out, nil
}

func (h *Handler) process(ctx context.Context, req Request, logger *slog.Logger) (json.RawMessage, error) {
	if h.ips != nil {
		allowed, addr, err := h.ips.Allowed(ctx, req.SenderIP)
		if err != nil {
			return nil, newError(KindInvalidIP, err, "IP %s could not be verified", req.SenderIP)
		}
		if !allowed {
			return nil, newError(KindInvalidIP, nil, "IP %s is invalid", addr)
		}
	}

	if err := VerifySignature(h.config.Secret, req.Body, req.Header.Get(h.config.SignatureHeader)); err != nil {
		if errors.Is(err, ErrSignatureMissing) {
			return nil, newError(KindInvalidSignature, err, "signature header %s is missing", h.config.SignatureHeader)
		}
		return nil, newError(KindInvalidSignature, err, "signature is invalid")
	}

	event := req.Header.Get(h.config.EventHeader)
	if !h.gate.Accept(event) {
		return nil, newError(KindInvalidEvent, nil, "event %q is not accepted", event)
	}

	if !isJSONContentType(req.Header.Get("Content-Type")) {
		return nil, newError(KindMalformedPayload, nil, "content type %q is not JSON", req.Header.Get("Content-Type"))
	}
	root, err := payload.Parse(req.Body)
	if err != nil {
		return nil, newError(KindMalformedPayload, err, "payload is not valid JSON")
	}

	if !IsReviewApproved(root) {
		logger.Info("review not approved, skipping", "event", event)
		return notUpdatedBody, nil
	}

	row, err := h.config.Fields.Extract(root, h.config.Separator)
	if err != nil {
		var fe *extract.FieldError
		if errors.As(err, &fe) {
			return nil, newError(KindMissingField, err, "missing field %s", fe.Path)
		}
		return nil, newError(KindMissingField, err, "missing field")
	}

	ack, err := h.rows.AppendRow(ctx, row)
	if err != nil {
		return nil, newError(KindSinkFailure, err, "failed to append row")
	}
	if len(ack) == 0 {
		ack = json.RawMessage(`{}`)
	}

	logger.Info("row appended", "cells", len(row))
	return ack, nil
}

// IsReviewApproved reports whether review.state is the string "approved".
// A missing or non-object review counts as not approved.
func IsReviewApproved(root payload.Value) bool {
	state, err := root.Lookup("review", "state")
	if err != nil {
		return false
	}
	s, ok := state.Str()
	return ok && s == "approved"
}

// isJSONContentType accepts application/json and application/*+json.
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if mediaType == "application/json" {
		return true
	}
	return strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json")
}

// ServeHTTP adapts Process to net/http. Every failure, including a panic,
// answers 500 with {"error": message}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("webhook handler panic",
				"panic", fmt.Sprint(rec),
				"delivery_id", r.Header.Get(h.config.DeliveryHeader),
			)
			respondError(w, "internal error")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, h.config.MaxBodySize+1))
	if err != nil {
		h.reject(w, r, newError(KindMalformedPayload, err, "failed to read request body"))
		return
	}
	if int64(len(body)) > h.config.MaxBodySize {
		h.reject(w, r, newError(KindMalformedPayload, nil, "payload too large"))
		return
	}

	out, err := h.Process(r.Context(), Request{
		Header:   r.Header,
		Body:     body,
		SenderIP: r.RemoteAddr,
	})
	if err != nil {
		respondError(w, publicMessage(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, err *Error) {
	log.WithDelivery(h.logger, r.Header.Get(h.config.DeliveryHeader)).
		Warn("webhook delivery rejected", "kind", err.Kind, "error", err)
	respondError(w, err.Message)
}

// publicMessage returns the part of err that is safe to send back.
func publicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends the JSON error body. Every failure uses 500.
func respondError(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: message})
}
