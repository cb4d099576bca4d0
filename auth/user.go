// Package auth holds the pieces of session authentication shared by the API
// server and the frontend: the user model, credential hashing, and signed
// session tokens.
package auth

import (
	"errors"
	"strings"
)

// UserType distinguishes the two kinds of marketplace accounts.
type UserType string

const (
	Dealer UserType = "dealer"
	Buyer  UserType = "buyer"
)

// ErrUnknownUserType is returned when a user type is neither dealer nor buyer.
var ErrUnknownUserType = errors.New("unknown user type")

// Valid reports whether t is one of the known user types.
func (t UserType) Valid() bool {
	return t == Dealer || t == Buyer
}

// ParseUserType normalizes s and checks it against the known user types.
func ParseUserType(s string) (UserType, error) {
	t := UserType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrUnknownUserType
	}
	return t, nil
}

// User is the principal carried in a session. It is not fetched independently
// by the session core; it travels with the token.
type User struct {
	ID       int64    `json:"id"`
	Email    string   `json:"email"`
	UserType UserType `json:"userType"`
}
