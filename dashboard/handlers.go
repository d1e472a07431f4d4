package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"whatsapp-session-keeper/types"
)

const maxUploadBytes = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	storeState := "ok"
	if _, err := s.store.List(ctx, s.bot.Identity()); err != nil {
		storeState = "unreachable"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "whatsapp-session-keeper",
		"store":   storeState,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.CurrentSnapshot())
}

func (s *Server) handleGenerateQR(w http.ResponseWriter, r *http.Request) {
	code, err := s.bot.RequestChallenge(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"qr_code": code,
		"message": "Scan this QR code with WhatsApp",
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.RequestManualConnect(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Connection confirmed",
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.bot.Restart(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Bot restarting",
	})
}

func (s *Server) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	// A restart always begins with a restore pass over the store.
	if err := s.bot.Restart(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Session restore initiated",
	})
}

type sendRequest struct {
	Destination string `json:"destination"`
	Message     string `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Destination == "" || req.Message == "" {
		s.writeBadRequest(w, "destination and message are required")
		return
	}
	if err := s.bot.Send(r.Context(), req.Destination, req.Message); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleUploadSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeBadRequest(w, "invalid multipart body")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeBadRequest(w, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		s.writeBadRequest(w, "reading upload")
		return
	}

	res, err := s.store.Put(r.Context(), s.identityParam(r), data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"file_id":   res.ID,
		"file_size": len(data),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.List(r.Context(), s.identityParam(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleDownloadSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := s.store.Get(r.Context(), s.identityParam(r), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id))
	_, _ = w.Write(data)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), s.identityParam(r), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Session deleted",
	})
}

// identityParam falls back to the supervised bot's identity when the
// caller does not scope the request.
func (s *Server) identityParam(r *http.Request) types.BotIdentity {
	if q := r.URL.Query().Get("identity"); q != "" {
		return types.BotIdentity(q)
	}
	return s.bot.Identity()
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, types.ErrNotConnected),
		errors.Is(err, types.ErrInvalidStateTransition):
		code = http.StatusConflict
	case errors.Is(err, types.ErrStoreUnavailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, types.ErrStoreRejected):
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, code, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
