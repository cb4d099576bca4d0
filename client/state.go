// Package client is the session core consumed by the frontend: the current
// AuthState, its persistence, the view gating policy, and the federated
// login callback.
package client

import (
	"github.com/arale275/autix-sub003/auth"
)

// Status enumerates the three session states.
type Status int

const (
	Loading Status = iota
	Unauthenticated
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// AuthState is the value published by SessionStore. User and Token are set
// only when Status is Authenticated.
type AuthState struct {
	Status Status
	User   auth.User
	Token  string
}

// LoadingState is the state before hydration.
func LoadingState() AuthState { return AuthState{Status: Loading} }

// UnauthenticatedState is the signed-out state.
func UnauthenticatedState() AuthState { return AuthState{Status: Unauthenticated} }

// AuthenticatedState is the signed-in state for u holding token.
func AuthenticatedState(u auth.User, token string) AuthState {
	return AuthState{Status: Authenticated, User: u, Token: token}
}

// Paths the session core redirects to.
const (
	LoginPath  = "/login"
	DealerHome = "/dealer"
	BuyerHome  = "/buyer"
)

// HomeFor returns the landing page for a user type. Anything that is not a
// dealer lands on the buyer home.
func HomeFor(t auth.UserType) string {
	if t == auth.Dealer {
		return DealerHome
	}
	return BuyerHome
}
