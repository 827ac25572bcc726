package untis

import (
	"context"
	"fmt"
	"log"
	"time"

	"berichtsheft/internal/domain"
)

type authParams struct {
	User     string `json:"user"`
	Password string `json:"password"`
	Client   string `json:"client"`
}

type authResult struct {
	SessionID string `json:"sessionId"`
}

// Acquire walks the candidate list strictly in order and returns a
// session for the first tenant that accepts the credentials. Hints on
// the credentials are tried before anything from the resolver. The
// returned attempt trail covers every failed candidate, also on success.
//
// Candidates are never tried concurrently: parallel attempts with one
// credential pair can trip remote lockout counters, and they make the
// bad-password/bad-tenant distinction unreadable.
func (c *Client) Acquire(ctx context.Context, creds domain.Credentials, candidates []domain.TenantCandidate) (*domain.SessionHandle, []AttemptFailure, error) {
	ordered := candidates
	if creds.TenantHint != "" {
		server := creds.ServerHint
		if server == "" && len(candidates) > 0 {
			server = candidates[0].Server
		}
		hint := domain.TenantCandidate{
			DisplayName: creds.TenantHint,
			TenantID:    creds.TenantHint,
			Server:      server,
		}
		ordered = append([]domain.TenantCandidate{hint}, candidates...)
	}
	if len(ordered) == 0 {
		return nil, nil, ErrResolutionEmpty
	}

	var trail []AttemptFailure
	for _, cand := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, trail, fmt.Errorf("authentication cancelled: %w", err)
		}
		if cand.Server == "" {
			trail = append(trail, AttemptFailure{
				Candidate: cand,
				Kind:      FailureTenant,
				Err:       fmt.Errorf("candidate %q has no server", cand.TenantID),
			})
			continue
		}

		session, err := c.authenticate(ctx, creds, cand)
		if err == nil {
			log.Printf("untis auth success tenant=%s server=%s attempts=%d", cand.TenantID, cand.Server, len(trail)+1)
			return session, trail, nil
		}

		kind := classifyAuthFailure(err)
		trail = append(trail, AttemptFailure{Candidate: cand, Kind: kind, Err: err})

		switch kind {
		case FailureCredentials:
			// More tenant variants cannot fix a wrong password; stop here
			// before a rate-limited remote locks the account.
			log.Printf("untis auth credentials rejected tenant=%s server=%s, aborting candidate walk", cand.TenantID, cand.Server)
			return nil, trail, &CredentialsError{Candidate: cand, Err: err}
		case FailureTransport:
			log.Printf("untis auth transport error tenant=%s server=%s err=%v", cand.TenantID, cand.Server, err)
		default:
			log.Printf("untis auth tenant mismatch tenant=%s server=%s err=%v", cand.TenantID, cand.Server, err)
		}
	}

	return nil, trail, &AuthExhaustedError{Attempts: trail}
}

func (c *Client) authenticate(ctx context.Context, creds domain.Credentials, cand domain.TenantCandidate) (*domain.SessionHandle, error) {
	raw, err := c.call(ctx, c.serverURL(cand.Server, cand.TenantID), "authenticate", authParams{
		User:     creds.Username,
		Password: creds.Secret,
		Client:   "Berichtsheft",
	}, "")
	if err != nil {
		return nil, err
	}

	var result authResult
	if err := unmarshalResult(raw, &result); err != nil {
		return nil, err
	}
	if result.SessionID == "" {
		return nil, &TransportError{Op: "authenticate", Err: fmt.Errorf("no session id in response")}
	}

	return &domain.SessionHandle{
		Token:    result.SessionID,
		Server:   cand.Server,
		TenantID: cand.TenantID,
		IssuedAt: time.Now(),
	}, nil
}

// Logout releases the session on the remote side. The handle is dead
// afterwards regardless of the result.
func (c *Client) Logout(ctx context.Context, session *domain.SessionHandle) error {
	_, err := c.call(ctx, c.serverURL(session.Server, session.TenantID), "logout", struct{}{}, session.Token)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
