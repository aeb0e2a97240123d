package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ivangillig/whatsapp-scheduler/internal/status"
	"github.com/ivangillig/whatsapp-scheduler/internal/store"
	"go.uber.org/zap"
)

// Connection is the view of the connection manager the API needs.
type Connection interface {
	Status() status.Snapshot
	Logout(ctx context.Context)
}

type handlers struct {
	db     *store.DB
	conn   Connection
	auth   *Auth
	logger *zap.Logger
}

// --- auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if !h.auth.VerifyCredentials(req.Username, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := h.auth.GenerateToken(req.Username)
	if err != nil {
		h.logger.Error("failed to sign token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"username": req.Username,
		"token":    token,
	})
}

func (h *handlers) authLogout(w http.ResponseWriter, _ *http.Request) {
	// Tokens are stateless; the frontend just discards its copy.
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *handlers) authCheck(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	username, err := h.auth.VerifyToken(token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "username": username})
}

// --- whatsapp ---

func (h *handlers) whatsappStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.conn.Status())
}

func (h *handlers) whatsappLogout(w http.ResponseWriter, r *http.Request) {
	h.conn.Logout(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "session closed"})
}

// --- scheduled messages ---

type createMessageRequest struct {
	ContactJID  string    `json:"contactJid"`
	ContactName string    `json:"contactName"`
	Message     string    `json:"message"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

func (h *handlers) createMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContactJID == "" || req.Message == "" || req.ScheduledAt.IsZero() {
		writeError(w, http.StatusBadRequest, "contactJid, message and scheduledAt are required")
		return
	}
	id, err := h.db.CreateScheduledMessage(&store.ScheduledMessage{
		ContactJID:  req.ContactJID,
		ContactName: req.ContactName,
		Body:        req.Message,
		ScheduledAt: req.ScheduledAt.UnixMilli(),
	})
	if err != nil {
		h.logger.Error("failed to create scheduled message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("status")
	msgs, err := h.db.ListScheduledMessages(filter)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []store.ScheduledMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	if err := h.db.DeleteScheduledMessage(id); err != nil {
		h.logger.Error("failed to delete message", zap.Error(err), zap.Int64("id", id))
		writeError(w, http.StatusInternalServerError, "failed to delete message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- contacts ---

type createContactRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

func (h *handlers) createContact(w http.ResponseWriter, r *http.Request) {
	var req createContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	}
	jid, number := phoneToJID(req.Phone)
	name := req.Name
	if name == "" {
		name = number
	}
	contact := store.Contact{JID: jid, Name: name, PushName: req.Name}
	if err := h.db.UpsertContact(&contact); err != nil {
		h.logger.Error("failed to save contact", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save contact")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "contact": contact})
}

func (h *handlers) listContacts(w http.ResponseWriter, _ *http.Request) {
	contacts, err := h.db.ListContacts()
	if err != nil {
		h.logger.Error("failed to list contacts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}
	if contacts == nil {
		contacts = []store.Contact{}
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *handlers) deleteContact(w http.ResponseWriter, r *http.Request) {
	jid, err := url.PathUnescape(chi.URLParam(r, "jid"))
	if err != nil || jid == "" {
		writeError(w, http.StatusBadRequest, "invalid jid")
		return
	}
	if err := h.db.DeleteContact(jid); err != nil {
		h.logger.Error("failed to delete contact", zap.Error(err), zap.String("jid", jid))
		writeError(w, http.StatusInternalServerError, "failed to delete contact")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- health ---

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"whatsapp": h.conn.Status(),
	})
}

// phoneToJID normalizes a user-entered phone number into a WhatsApp JID.
// Returns the JID and the bare number.
func phoneToJID(phone string) (jid, number string) {
	number = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	return number + "@s.whatsapp.net", number
}
