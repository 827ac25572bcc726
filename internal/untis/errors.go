package untis

import (
	"errors"
	"fmt"
	"strings"

	"berichtsheft/internal/domain"
)

// Remote error codes observed on the authenticate call. -8504 is a
// rejected username/password, -8500 a rejected school login name.
const (
	rpcCodeBadCredentials = -8504
	rpcCodeBadSchool      = -8500
)

// FailureKind classifies one failed authentication attempt. The
// distinction drives the retry policy: a bad password stops the whole
// candidate walk, a bad tenant only skips to the next candidate.
type FailureKind string

const (
	FailureCredentials FailureKind = "CREDENTIALS_INVALID"
	FailureTenant      FailureKind = "TENANT_MISMATCH"
	FailureTransport   FailureKind = "TRANSPORT_ERROR"
)

// ErrResolutionEmpty is returned when neither hints, resolved candidates
// nor a fallback list leave anything to try.
var ErrResolutionEmpty = errors.New("no tenant candidates to try")

// RPCError is an error object returned inside a JSON-RPC envelope:
// the remote answered, and said no.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// TransportError wraps a failure to reach the remote at all (network
// error, timeout, unparseable body). Distinct from RPCError because the
// two drive different retry decisions.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CredentialsError means the remote explicitly rejected the
// username/password. Never retried across candidates.
type CredentialsError struct {
	Candidate domain.TenantCandidate
	Err       error
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("credentials rejected (tenant %s): %v", e.Candidate.TenantID, e.Err)
}

func (e *CredentialsError) Unwrap() error { return e.Err }

// AttemptFailure records the outcome of one candidate attempt, in order.
type AttemptFailure struct {
	Candidate domain.TenantCandidate
	Kind      FailureKind
	Err       error
}

// AuthExhaustedError is returned after every candidate failed; Attempts
// carries the full ordered diagnostic trail.
type AuthExhaustedError struct {
	Attempts []AttemptFailure
}

func (e *AuthExhaustedError) Error() string {
	var parts []string
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s@%s: %s (%v)", a.Candidate.TenantID, a.Candidate.Server, a.Kind, a.Err))
	}
	return fmt.Sprintf("all %d authentication candidates failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

// classifyAuthFailure maps an attempt error to its retry class.
func classifyAuthFailure(err error) FailureKind {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == rpcCodeBadCredentials || strings.Contains(strings.ToLower(rpcErr.Message), "invalid credentials") {
			return FailureCredentials
		}
		// -8500 and any other remote rejection of the login name.
		return FailureTenant
	}
	return FailureTransport
}
