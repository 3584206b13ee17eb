package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

// Identity trusts the identity header set by the upstream gateway.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(types.IdentityHeader); raw != "" {
			if p, err := types.NewPlayerID(raw); err == nil {
				r = r.WithContext(types.WithPlayer(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireIdentity rejects requests without an authenticated player.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := types.PlayerFrom(r.Context()); !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: types.ReasonOf(types.ErrEmptyIdentity)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := types.PlayerFrom(r.Context())
		if !s.isAdmin(p) {
			s.fail(w, r, ErrAdminOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// player is only called behind RequireIdentity.
func player(r *http.Request) types.PlayerID {
	p, _ := types.PlayerFrom(r.Context())
	return p
}

// bodyIdentity checks an optional identity field in a request body against
// the authenticated player.
func bodyIdentity(r *http.Request, raw string) error {
	if raw == "" {
		return nil
	}
	p, err := types.NewPlayerID(raw)
	if err != nil {
		return err
	}
	if !p.Equal(player(r)) {
		return types.ErrIdentityMismatch
	}
	return nil
}
