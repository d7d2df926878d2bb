package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/ddsprasad/data-sense-ai/pkg/apperrors"
	"github.com/ddsprasad/data-sense-ai/pkg/services"
)

// MaxBatchQuestions caps a single batch request.
const MaxBatchQuestions = 20

// AskRequest is the body of POST /api/questions and /api/questions/follow-up.
type AskRequest struct {
	Question string `json:"question"`
}

// BatchRequest is the body of POST /api/questions/batch.
type BatchRequest struct {
	Questions []string `json:"questions"`
}

// QuestionResponse wraps a resolution with the conversation it belongs to.
type QuestionResponse struct {
	ConversationID string `json:"conversation_id"`
	*services.Resolution
}

// BatchResponse is the body returned by POST /api/questions/batch.
type BatchResponse struct {
	Results []*services.Resolution `json:"results"`
}

// QuestionHandler serves the question endpoints. Follow-up context is kept
// server side, keyed by a conversation id carried in a signed cookie.
type QuestionHandler struct {
	resolver      services.ResolverService
	conversations *ConversationStore
	sessions      sessions.Store
	logger        *zap.Logger
}

// NewQuestionHandler creates a QuestionHandler.
func NewQuestionHandler(resolver services.ResolverService, conversations *ConversationStore, store sessions.Store, logger *zap.Logger) *QuestionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionHandler{
		resolver:      resolver,
		conversations: conversations,
		sessions:      store,
		logger:        logger.Named("questions"),
	}
}

// RegisterRoutes registers the question endpoints.
func (h *QuestionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/questions", h.Ask)
	mux.HandleFunc("POST /api/questions/follow-up", h.FollowUp)
	mux.HandleFunc("POST /api/questions/batch", h.Batch)
	mux.HandleFunc("POST /api/schema/refresh", h.RefreshSchema)
	mux.HandleFunc("DELETE /api/conversation", h.ResetConversation)
}

// Ask handles POST /api/questions. It always starts from a fresh context;
// a success becomes the conversation's prior for the next follow-up.
func (h *QuestionHandler) Ask(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAsk(w, r)
	if !ok {
		return
	}

	session, id := h.session(r)
	res := h.resolver.Resolve(r.Context(), req.Question, nil)
	h.respond(w, r, session, id, res)
}

// FollowUp handles POST /api/questions/follow-up. It returns 400 when the
// conversation has no succeeded question yet.
func (h *QuestionHandler) FollowUp(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAsk(w, r)
	if !ok {
		return
	}

	session, id := h.session(r)
	prior, found := h.conversations.Get(id)
	if !found {
		writeError(h.logger, w, http.StatusBadRequest, "no_prior_question", "Ask a question before asking a follow-up")
		return
	}

	res := h.resolver.Resolve(r.Context(), req.Question, prior)
	h.respond(w, r, session, id, res)
}

// Batch handles POST /api/questions/batch. Questions are resolved
// independently, without conversation context, and returned in input order.
func (h *QuestionHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if len(req.Questions) == 0 || len(req.Questions) > MaxBatchQuestions {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("questions must contain between 1 and %d entries", MaxBatchQuestions))
		return
	}

	items := make([]services.BatchItem, len(req.Questions))
	for i, q := range req.Questions {
		items[i] = services.BatchItem{Question: q}
	}

	results := h.resolver.ResolveBatch(r.Context(), items)
	writeJSON(h.logger, w, http.StatusOK, BatchResponse{Results: results})
}

// RefreshSchema handles POST /api/schema/refresh.
func (h *QuestionHandler) RefreshSchema(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.RefreshSchema(r.Context()); err != nil {
		h.logger.Warn("Schema refresh failed", zap.Error(err))
		writeError(h.logger, w, http.StatusServiceUnavailable, "refresh_failed",
			"Schema refresh failed; the previous catalog is still in use")
		return
	}

	writeJSON(h.logger, w, http.StatusOK, h.resolver.Status())
}

// ResetConversation handles DELETE /api/conversation. The stored context is
// dropped and the cookie gets a new conversation id.
func (h *QuestionHandler) ResetConversation(w http.ResponseWriter, r *http.Request) {
	session, id := h.session(r)
	h.conversations.Delete(id)

	delete(session.Values, sessionKeyConversationID)
	conversationID(session)
	if err := session.Save(r, w); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuestionHandler) decodeAsk(w http.ResponseWriter, r *http.Request) (AskRequest, bool) {
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return req, false
	}
	return req, true
}

// session loads the conversation session. A cookie that fails verification
// yields a fresh session rather than an error.
func (h *QuestionHandler) session(r *http.Request) (*sessions.Session, string) {
	session, err := h.sessions.Get(r, SessionName)
	if err != nil {
		h.logger.Debug("Discarding invalid conversation cookie", zap.Error(err))
	}
	if session == nil {
		session = sessions.NewSession(h.sessions, SessionName)
		session.Options = &sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteStrictMode}
		session.IsNew = true
	}
	id := conversationID(session)
	return session, id
}

func (h *QuestionHandler) respond(w http.ResponseWriter, r *http.Request, session *sessions.Session, id string, res *services.Resolution) {
	if res.Succeeded() {
		h.conversations.Put(id, services.PriorFrom(res))
	}
	if err := session.Save(r, w); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err))
	}

	writeJSON(h.logger, w, StatusForResolution(res), QuestionResponse{ConversationID: id, Resolution: res})
}

// StatusForResolution maps a resolution outcome to an HTTP status.
func StatusForResolution(res *services.Resolution) int {
	switch res.Outcome {
	case services.OutcomeSucceeded:
		return http.StatusOK
	case services.OutcomeExhausted:
		return http.StatusUnprocessableEntity
	}

	switch {
	case res.Diagnostic == services.DiagnosticEmptyQuestion:
		return http.StatusBadRequest
	case errors.Is(res.Err, apperrors.ErrCancelled):
		return http.StatusGatewayTimeout
	case errors.Is(res.Err, apperrors.ErrCatalogUnavailable),
		errors.Is(res.Err, apperrors.ErrTransportFailure):
		return http.StatusServiceUnavailable
	}
	return http.StatusUnprocessableEntity
}
