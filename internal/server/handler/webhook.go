package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/scan-dispatch/internal/core"
	"github.com/sevigo/scan-dispatch/internal/ingest"
	"github.com/sevigo/scan-dispatch/internal/webhook"
)

// maxPayloadBytes matches the largest payload GitHub sends.
const maxPayloadBytes = 25 << 20

// Ingester creates scan jobs from pull request events.
type Ingester interface {
	Ingest(ctx context.Context, ev *core.PullRequestEvent) (*ingest.Result, error)
}

// WebhookHandler processes incoming webhooks from GitHub.
type WebhookHandler struct {
	secret   string
	ingester Ingester
	logger   *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(secret string, ingester Ingester, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:   secret,
		ingester: ingester,
		logger:   logger,
	}
}

type queuedResponse struct {
	JobID  string         `json:"job_id"`
	Status core.JobStatus `json:"status"`
}

// Handle processes GitHub webhook requests. The signature is checked against
// the raw body before anything is decoded.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.logger.Warn("could not read webhook body", "error", err)
		writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	if err := webhook.VerifySignature(payload, r.Header.Get(webhook.SignatureHeader), h.secret); err != nil {
		h.logger.Warn("rejected webhook", "reason", err, "delivery_id", github.DeliveryID(r))
		if errors.Is(err, core.ErrUnauthenticated) {
			writeError(w, http.StatusBadRequest, "Missing signature")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	eventType := github.WebHookType(r)
	if eventType != "pull_request" {
		h.logger.Debug("ignoring unhandled webhook event type", "type", eventType)
		writeJSON(w, http.StatusOK, messageResponse{Message: ingest.SkippedMessage})
		return
	}

	raw, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		h.logger.Error("could not parse webhook", "error", err)
		writeError(w, http.StatusBadRequest, "Could not parse webhook")
		return
	}
	prEvent, ok := raw.(*github.PullRequestEvent)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unexpected event payload")
		return
	}

	// filter before validating the payload shape
	if !core.ActionTriggersScan(prEvent.GetAction()) {
		h.logger.Debug("ignoring pull request action", "action", prEvent.GetAction())
		writeJSON(w, http.StatusOK, messageResponse{Message: ingest.SkippedMessage})
		return
	}

	ev, err := core.EventFromPullRequest(prEvent)
	if err != nil {
		h.logger.Warn("malformed pull request event", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev.DeliveryID = github.DeliveryID(r)

	res, err := h.ingester.Ingest(r.Context(), ev)
	if err != nil {
		h.writeIngestError(w, ev, err)
		return
	}
	if res.Skipped {
		writeJSON(w, http.StatusOK, messageResponse{Message: res.Message})
		return
	}

	writeJSON(w, http.StatusOK, queuedResponse{JobID: res.JobID, Status: res.Status})
}

func (h *WebhookHandler) writeIngestError(w http.ResponseWriter, ev *core.PullRequestEvent, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownRepository):
		h.logger.Info("webhook for unregistered repository", "repo", ev.RepoFullName, "external_id", ev.RepoExternalID)
		writeError(w, http.StatusNotFound, "Repository not found")
	case errors.Is(err, core.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrDispatchFailed):
		h.logger.Error("failed to dispatch scan job", "repo", ev.RepoFullName, "pr", ev.PRNumber, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to dispatch scan job")
	default:
		h.logger.Error("failed to ingest webhook", "repo", ev.RepoFullName, "pr", ev.PRNumber, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}
