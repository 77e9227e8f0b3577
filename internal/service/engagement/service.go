package engagement

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nestmatch/engine/internal/config"
	"github.com/nestmatch/engine/internal/db"
	"github.com/nestmatch/engine/internal/deck"
	engineerr "github.com/nestmatch/engine/internal/errors"
	"github.com/nestmatch/engine/internal/feed"
	"github.com/nestmatch/engine/internal/repository"
	"github.com/nestmatch/engine/internal/session"
	"github.com/nestmatch/engine/internal/utils/pagination"
)

// identityHeader carries the authenticated user id. Real auth terminates at
// the edge; the engine trusts the header.
const identityHeader = "X-User-ID"

// Service exposes the engagement surface over HTTP: feed browsing, the swipe
// deck, unread counts and notifications, plus session lifecycle.
type Service struct {
	cfg      *config.Config
	profiles *repository.ProfileRepository
	sessions *session.Manager
	log      *slog.Logger
}

// NewService wires the HTTP service.
func NewService(cfg *config.Config, profiles *repository.ProfileRepository, sessions *session.Manager, log *slog.Logger) *Service {
	return &Service{cfg: cfg, profiles: profiles, sessions: sessions, log: log}
}

// Register mounts the v1 routes.
func (s *Service) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/session", s.openSession)
		r.Delete("/session", s.closeSession)
		r.Get("/feed", s.getFeed)
		r.Post("/swipes", s.postSwipe)
		r.Post("/swipes/undo", s.postUndo)
		r.Get("/counts", s.getCounts)
		r.Get("/notifications", s.getNotifications)
		r.Post("/notifications/{id}/read", s.postNotificationRead)
	})
}

// identity resolves the caller from the identity header.
func (s *Service) identity(r *http.Request) (uint64, error) {
	raw := r.Header.Get(identityHeader)
	if raw == "" {
		return 0, engineerr.ErrNoIdentity
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, engineerr.ErrNoIdentity
	}
	return id, nil
}

// liveSession resolves the caller's open session.
func (s *Service) liveSession(r *http.Request) (*session.Session, error) {
	id, err := s.identity(r)
	if err != nil {
		return nil, err
	}
	return s.sessions.Get(id)
}

type sessionResponse struct {
	UserID    uint64  `json:"user_id"`
	Role      db.Role `json:"role"`
	SessionID string  `json:"session_id"`
	DeckState string  `json:"deck_state"`
}

func (s *Service) openSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.sessions.Open(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sessionResponse{
		UserID:    sess.Identity.ID,
		Role:      sess.Identity.Role,
		SessionID: sess.Deck.SessionID(),
		DeckState: string(sess.Deck.State()),
	})
}

func (s *Service) closeSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.sessions.Close(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feedResponse struct {
	Candidates []feed.ScoredCandidate `json:"candidates"`
	NextToken  string                 `json:"next_token,omitempty"`
}

// getFeed serves one scored page for stateless browsing. The token is an
// opaque page cursor; the swipe deck keeps its own session-scoped feed with
// the no-repeat guarantee.
func (s *Service) getFeed(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cursor, err := pagination.Decode(r.URL.Query().Get("page_token"))
	if err != nil {
		s.writeError(w, engineerr.InvalidArgument(err.Error()))
		return
	}

	identity, err := s.profiles.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	prefs, err := s.profiles.GetPreference(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	f := feed.New(s.profiles, id, identity.Role, prefs, feed.Options{
		PageSize: s.cfg.Engine.PageSize,
		MinScore: s.cfg.Engine.MinScore,
		Weights:  feed.DefaultOptions().Weights,
	}, s.log)

	page, err := f.NextPage(r.Context(), cursor.Page)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := feedResponse{Candidates: page.Candidates}
	if page.NextCursor != nil {
		token, encErr := pagination.Encode(pagination.Cursor{Page: *page.NextCursor})
		if encErr != nil {
			s.writeError(w, encErr)
			return
		}
		resp.NextToken = token
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type swipeRequest struct {
	Direction db.Direction `json:"direction"`
}

type swipeResponse struct {
	Event     deck.SwipeEvent       `json:"event"`
	Position  int                   `json:"position"`
	DeckState string                `json:"deck_state"`
	Next      *feed.ScoredCandidate `json:"next,omitempty"`
}

func (s *Service) postSwipe(w http.ResponseWriter, r *http.Request) {
	sess, err := s.liveSession(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req swipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, engineerr.InvalidArgument("malformed swipe body"))
		return
	}

	event, err := sess.Deck.Swipe(r.Context(), req.Direction)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := swipeResponse{
		Event:     event,
		Position:  sess.Deck.Position(),
		DeckState: string(sess.Deck.State()),
	}
	if next, peekErr := sess.Deck.Peek(r.Context()); peekErr == nil {
		resp.Next = &next
	} else if !errors.Is(peekErr, engineerr.ErrFeedExhausted) {
		s.log.Warn("peek after swipe failed", "user", sess.Identity.ID, "err", peekErr)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Service) postUndo(w http.ResponseWriter, r *http.Request) {
	sess, err := s.liveSession(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.Deck.Undo(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"position":   sess.Deck.Position(),
		"deck_state": string(sess.Deck.State()),
	})
}

func (s *Service) getCounts(w http.ResponseWriter, r *http.Request) {
	sess, err := s.liveSession(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	counts, err := sess.Unread.GetCounts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, counts)
}

func (s *Service) getNotifications(w http.ResponseWriter, r *http.Request) {
	sess, err := s.liveSession(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{
		"notifications": sess.Router.Notifications(),
		"live":          sess.Router.Degraded() == nil,
	}
	if dErr := sess.Router.Degraded(); dErr != nil {
		resp["degraded_reason"] = dErr.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Service) postNotificationRead(w http.ResponseWriter, r *http.Request) {
	sess, err := s.liveSession(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if !sess.Router.MarkRead(id) {
		s.writeError(w, engineerr.InvalidArgument("unknown notification id"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", "err", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := engineerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
