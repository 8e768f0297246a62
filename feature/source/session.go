package source

import (
	"context"
	"net/http"
	"time"

	"listing-harvester/core/harvest"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session carries the request identity shared by all workers.
type Session struct {
	id         string
	creds      harvest.Credentials
	acquiredAt time.Time
}

func (s *Session) ID() string { return s.id }

// AcquiredAt is when the probe succeeded.
func (s *Session) AcquiredAt() time.Time { return s.acquiredAt }

func (s *Session) apply(req *http.Request) {
	if s == nil {
		return
	}
	if s.creds.UserAgent != "" {
		req.Header.Set("User-Agent", s.creds.UserAgent)
	}
	if s.creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.creds.Token)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}

// AcquireSession probes the company list with creds. Missing credentials
// fall back to the configured ones. Any probe failure is an *harvest.AuthError.
func (src *Source) AcquireSession(ctx context.Context, creds harvest.Credentials) (harvest.Session, error) {
	if creds.UserAgent == "" {
		creds.UserAgent = src.cfg.UserAgent
	}
	if creds.Token == "" {
		creds.Token = src.cfg.Token
	}
	s := &Session{id: uuid.NewString(), creds: creds, acquiredAt: src.now()}

	// The probe doubles as the first load of the company list.
	if _, err := src.loadCompanies(ctx, s); err != nil {
		src.logger.Error("Session probe failed", zap.String("session", s.id), zap.Error(err))
		return nil, &harvest.AuthError{Err: err}
	}
	src.logger.Info("Session acquired", zap.String("session", s.id))
	return s, nil
}

// session returns the concrete session, or an anonymous one built from the
// configuration.
func (src *Source) session(s harvest.Session) *Session {
	if hs, ok := s.(*Session); ok && hs != nil {
		return hs
	}
	return &Session{id: "anonymous", creds: harvest.Credentials{UserAgent: src.cfg.UserAgent, Token: src.cfg.Token}}
}
