package server

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/sendrec/chaptersync/internal/chapter"
	"github.com/sendrec/chaptersync/internal/httputil"
	"github.com/sendrec/chaptersync/internal/playback"
	"github.com/sendrec/chaptersync/internal/ratelimit"
	"github.com/sendrec/chaptersync/internal/session"
	"github.com/sendrec/chaptersync/internal/validate"
)

const sessionCookie = "chaptersync_session"

type contextKey int

const sessionKey contextKey = iota

func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "missing session token")
			return
		}
		sess, err := s.sessions.Authenticate(token)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				httputil.WriteError(w, http.StatusUnauthorized, "session has ended")
				return
			}
			httputil.WriteError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type chapterEntry struct {
	Index       int     `json:"index"`
	Title       string  `json:"title"`
	StartTime   float64 `json:"startTime"`
	DisplayTime string  `json:"displayTime"`
	Target      string  `json:"target"`
}

func chapterEntries(chapters []chapter.Chapter) []chapterEntry {
	out := make([]chapterEntry, len(chapters))
	for i, ch := range chapters {
		out[i] = chapterEntry{
			Index:       i,
			Title:       ch.Title,
			StartTime:   ch.StartTime,
			DisplayTime: chapter.FormatTime(ch.StartTime),
			Target:      ch.Target,
		}
	}
	return out
}

type pageResponse struct {
	MediaID  string          `json:"mediaId"`
	Variant  chapter.Variant `json:"variant"`
	Chapters []chapterEntry  `json:"chapters"`
	Items    []itemResponse  `json:"items"`
}

func (s *Server) pageResponse(ctx context.Context) pageResponse {
	return pageResponse{
		MediaID:  s.page.MediaID,
		Variant:  s.page.Variant,
		Chapters: chapterEntries(s.page.Chapters),
		Items:    s.itemResponses(ctx, s.page.Items),
	}
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.pageResponse(r.Context()))
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, validate.FieldLimits())
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	pageResponse
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, token, err := s.sessions.Create(r.Context(), session.Meta{
		IP:        ratelimit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		slog.Error("session: create failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not start session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(session.TokenDuration.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:    sess.ID,
		Token:        token,
		pageResponse: s.pageResponse(r.Context()),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := s.sessions.Close(r.Context(), sess.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		httputil.WriteError(w, http.StatusInternalServerError, "could not end session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

type readyRequest struct {
	Duration float64 `json:"duration"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req readyRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if !validSeconds(req.Duration) {
		httputil.WriteError(w, http.StatusBadRequest, "duration must be a non-negative number")
		return
	}
	if req.Duration > 0 {
		sess.Player.SetDuration(req.Duration)
	}

	if err := s.sessions.Ready(sess); err != nil {
		writeSyncError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess.Sync.View().Snapshot())
}

type stateRequest struct {
	State int `json:"state"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req stateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	state := playback.PlayerState(req.State)
	if state.String() == "unknown" {
		httputil.WriteError(w, http.StatusBadRequest, "unknown player state")
		return
	}

	switch state {
	case playback.StatePlaying:
		sess.Player.PlayVideo()
	case playback.StatePaused, playback.StateEnded:
		sess.Player.PauseVideo()
	}
	sess.Sync.StateChanged(state)
	w.WriteHeader(http.StatusNoContent)
}

type positionRequest struct {
	Time    float64 `json:"time"`
	Playing bool    `json:"playing"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req positionRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validSeconds(req.Time) {
		httputil.WriteError(w, http.StatusBadRequest, "time must be a non-negative number")
		return
	}
	sess.Player.Report(req.Time, req.Playing)
	w.WriteHeader(http.StatusNoContent)
}

type seekRequest struct {
	Index *int `json:"index"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req seekRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Index == nil {
		httputil.WriteError(w, http.StatusBadRequest, "index is required")
		return
	}
	if err := sess.Sync.ManualSeek(*req.Index); err != nil {
		writeSyncError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess.Sync.View().Snapshot())
}

// viewResponse is the current view plus the server's playhead, so a page
// reconnecting after a reload can resume where it was.
type viewResponse struct {
	playback.Snapshot
	Time    float64 `json:"time"`
	Playing bool    `json:"playing"`
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	httputil.WriteJSON(w, http.StatusOK, viewResponse{
		Snapshot: sess.Sync.View().Snapshot(),
		Time:     sess.Player.CurrentTime(),
		Playing:  sess.Player.Playing(),
	})
}

func writeSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chapter.ErrOutOfRange):
		httputil.WriteError(w, http.StatusBadRequest, "chapter index out of range")
	case errors.Is(err, playback.ErrNotReady):
		httputil.WriteError(w, http.StatusConflict, "player is not ready")
	case errors.Is(err, playback.ErrStopped):
		httputil.WriteError(w, http.StatusGone, "session has ended")
	default:
		slog.Error("sync: request failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

func validSeconds(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
