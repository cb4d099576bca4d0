package client

import (
	"github.com/arale275/autix-sub003/auth"
)

// DecisionKind is the outcome of a route decision.
type DecisionKind int

const (
	Allow DecisionKind = iota
	Pending
	Redirect
)

func (k DecisionKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Pending:
		return "pending"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision tells the view shell what to do. Path is set only for Redirect.
type Decision struct {
	Kind DecisionKind
	Path string
}

// RedirectTo is a Redirect decision to path.
func RedirectTo(path string) Decision { return Decision{Kind: Redirect, Path: path} }

// Requirement describes what a view needs from the session. The zero value
// is a public view.
type Requirement struct {
	// Auth requires an authenticated session.
	Auth bool
	// UserType, when set, requires that user type and implies Auth.
	UserType auth.UserType
	// GuestOnly marks views such as the login page that signed-in users skip.
	GuestOnly bool
}

// Requirements used by the marketplace views.
var (
	Public     = Requirement{}
	Protected  = Requirement{Auth: true}
	GuestView  = Requirement{GuestOnly: true}
	DealerArea = Requirement{Auth: true, UserType: auth.Dealer}
	BuyerArea  = Requirement{Auth: true, UserType: auth.Buyer}
)

// Decide is the gating policy for views. It never redirects while the state
// is still Loading.
func Decide(state AuthState, req Requirement) Decision {
	switch state.Status {
	case Loading:
		return Decision{Kind: Pending}
	case Authenticated:
		if req.GuestOnly {
			return RedirectTo(HomeFor(state.User.UserType))
		}
		if req.UserType != "" && state.User.UserType != req.UserType {
			return RedirectTo(HomeFor(state.User.UserType))
		}
		return Decision{Kind: Allow}
	default:
		if req.Auth || req.UserType != "" {
			return RedirectTo(LoginPath)
		}
		return Decision{Kind: Allow}
	}
}
