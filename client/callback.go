package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/arale275/autix-sub003/auth"
)

// CallbackState is the position of a Callback in its state machine.
type CallbackState int

const (
	AwaitingRedirect CallbackState = iota
	Parsing
	Succeeded
	Failed
	// Abandoned means the consumer went away before the outcome was applied.
	Abandoned
)

func (s CallbackState) String() string {
	switch s {
	case AwaitingRedirect:
		return "awaiting_redirect"
	case Parsing:
		return "parsing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// CallbackError classifies a failed federated login.
type CallbackError int

const (
	ProviderError CallbackError = iota + 1
	MissingData
	ParseFailure
)

// Error codes placed on the login redirect. They are the only failure detail
// that ever reaches the user.
const (
	CodeProviderFailed  = "google_auth_failed"
	CodeMissingData     = "missing_data"
	CodeInvalidResponse = "invalid_response"
)

// Code returns the user-safe code for e.
func (e CallbackError) Code() string {
	switch e {
	case ProviderError:
		return CodeProviderFailed
	case MissingData:
		return CodeMissingData
	default:
		return CodeInvalidResponse
	}
}

func (e CallbackError) Error() string {
	return "oauth callback: " + e.Code()
}

// LoginErrorPath is the login view carrying code.
func LoginErrorPath(code string) string {
	return LoginPath + "?" + url.Values{"error": {code}}.Encode()
}

// CallbackParams are the query parameters of one provider redirect.
type CallbackParams struct {
	Token string
	User  string
	Error string
}

// ParamsFromQuery extracts CallbackParams from a redirect query.
func ParamsFromQuery(q url.Values) CallbackParams {
	return CallbackParams{
		Token: q.Get("token"),
		User:  q.Get("user"),
		Error: q.Get("error"),
	}
}

// Callback processes one federated-login redirect. Its parameters are fixed
// at construction, and the transition out of Parsing happens at most once no
// matter how often Handle is called.
type Callback struct {
	params CallbackParams
	store  *SessionStore
	log    *slog.Logger
	check  TokenCheck

	mu       sync.Mutex
	state    CallbackState
	err      CallbackError
	decision Decision
}

// NewCallback returns a Callback in AwaitingRedirect.
func NewCallback(params CallbackParams, store *SessionStore, logger *slog.Logger) *Callback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Callback{params: params, store: store, log: logger}
}

// WithTokenCheck makes the redirect usable only when check accepts its token
// and the token names the same user id and type as the user parameter.
// Without one the token is taken as given.
func (c *Callback) WithTokenCheck(check TokenCheck) *Callback {
	c.check = check
	return c
}

// State returns the current machine state.
func (c *Callback) State() CallbackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure class once the machine is in Failed.
func (c *Callback) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Failed {
		return nil
	}
	return c.err
}

// Handle runs the machine. The first call that finds the context alive parses
// the redirect, logs the user in on success, and returns the navigation
// target with ok=true. Later calls return the same decision with ok=false:
// the caller must not navigate again. If ctx is done before the outcome is
// applied, nothing is applied and ok is false.
//
// The session login runs after the machine is claimed and unlocked, so store
// subscribers may read State and Err.
func (c *Callback) Handle(ctx context.Context) (d Decision, ok bool) {
	c.mu.Lock()
	if c.state != AwaitingRedirect {
		d = c.decision
		c.mu.Unlock()
		return d, false
	}
	if ctx.Err() != nil {
		c.mu.Unlock()
		return Decision{}, false
	}

	c.state = Parsing
	u, cerr := c.parse()

	if ctx.Err() != nil {
		c.state = Abandoned
		c.mu.Unlock()
		return Decision{}, false
	}

	if cerr != 0 {
		c.state = Failed
		c.err = cerr
		c.decision = RedirectTo(LoginErrorPath(cerr.Code()))
		d = c.decision
		c.mu.Unlock()
		return d, true
	}

	c.decision = RedirectTo(HomeFor(u.UserType))
	d = c.decision
	c.mu.Unlock()

	c.store.Login(ctx, u, c.params.Token)

	c.mu.Lock()
	c.state = Succeeded
	c.mu.Unlock()
	return d, true
}

const (
	startPending int32 = iota
	startDelivering
	startStopped
)

// Start runs Handle on its own goroutine and passes a navigable decision to
// deliver. It is the entry point for consumers that navigate from an event
// loop rather than from the request that carried the redirect.
//
// deliver runs at most once, on that goroutine. Once stop has returned,
// deliver is not called unless it had already begun. stop may be called from
// inside deliver.
func (c *Callback) Start(deliver func(Decision)) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var phase atomic.Int32

	go func() {
		d, ok := c.Handle(ctx)
		if ok && phase.CompareAndSwap(startPending, startDelivering) {
			deliver(d)
		}
	}()

	return func() {
		phase.CompareAndSwap(startPending, startStopped)
		cancel()
	}
}

// parse classifies the redirect and logs why it is unusable. Called with mu
// held.
func (c *Callback) parse() (auth.User, CallbackError) {
	u, cerr := parseCallback(c.params)
	if cerr == 0 && c.check != nil {
		if err := matchToken(c.check, c.params.Token, u); err != nil {
			c.log.Warn("federated login token rejected", "error", err)
			cerr = ParseFailure
		}
	}
	switch cerr {
	case 0:
	case ProviderError:
		c.log.Warn("federated login rejected by provider", "provider_error", c.params.Error)
	default:
		c.log.Warn("federated login callback unusable", "reason", cerr.Code())
	}
	return u, cerr
}

func parseCallback(p CallbackParams) (auth.User, CallbackError) {
	if p.Error != "" {
		return auth.User{}, ProviderError
	}
	if p.Token == "" || p.User == "" {
		return auth.User{}, MissingData
	}
	u, err := decodeCallbackUser(p.User)
	if err != nil {
		return auth.User{}, ParseFailure
	}
	return u, 0
}

var errIncompleteUser = errors.New("user is missing id or user type")

// decodeCallbackUser accepts the user parameter as JSON, or as JSON that was
// percent-encoded once more than the query layer already undid.
func decodeCallbackUser(raw string) (auth.User, error) {
	u, err := decodeUserJSON(raw)
	if err == nil {
		return u, nil
	}
	unescaped, uerr := url.QueryUnescape(raw)
	if uerr != nil || unescaped == raw {
		return auth.User{}, err
	}
	return decodeUserJSON(unescaped)
}

func decodeUserJSON(s string) (auth.User, error) {
	var payload struct {
		ID       *int64 `json:"id"`
		Email    string `json:"email"`
		UserType string `json:"userType"`
	}
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return auth.User{}, err
	}
	t := auth.UserType(payload.UserType)
	if payload.ID == nil || *payload.ID <= 0 || !t.Valid() {
		return auth.User{}, errIncompleteUser
	}
	return auth.User{ID: *payload.ID, Email: payload.Email, UserType: t}, nil
}

func matchToken(check TokenCheck, token string, u auth.User) error {
	claims, err := check(token)
	if err != nil {
		return err
	}
	return claimsMatch(claims, u)
}
