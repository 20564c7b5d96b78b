package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/tokenstore"
)

// User is the authenticated account
type User struct {
	ID        int    `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	TeamName  string `json:"team_name,omitempty"`
}

// Team returns the user's team, or "" when the user has none
func (u User) Team() inventory.Team {
	return inventory.Team(u.TeamName)
}

// DisplayName returns "First Last", falling back to the email
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Credentials is the token exchange request
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up request
type Registration struct {
	Email     string         `json:"email"`
	Password  string         `json:"password"`
	FirstName string         `json:"first_name,omitempty"`
	LastName  string         `json:"last_name,omitempty"`
	TeamName  inventory.Team `json:"team_name"`
}

// Validate checks the team locally so an unknown team never reaches the backend
func (r Registration) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.NewInvalidInputError("email", "must not be empty")
	}
	if r.Password == "" {
		return errors.NewInvalidInputError("password", "must not be empty")
	}
	_, err := inventory.ParseTeam(string(r.TeamName))
	return err
}

// Refreshed is the token refresh response. Refresh is set only when the
// backend rotates refresh tokens.
type Refreshed struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// SignUpResult is the registration response. Tokens is nil when the
// backend returned only the created profile.
type SignUpResult struct {
	User   User
	Tokens *tokenstore.Pair
}

// ObtainToken exchanges credentials for a token pair
func (c *Client) ObtainToken(ctx context.Context, email, password string) (tokenstore.Pair, error) {
	var pair tokenstore.Pair
	if err := c.call(ctx, c.anon, EndpointToken, 0, nil, Credentials{Email: email, Password: password}, &pair); err != nil {
		return tokenstore.Pair{}, err
	}
	if pair.Shape() != tokenstore.ShapeComplete {
		return tokenstore.Pair{}, errors.NewAPIDecodeError(EndpointToken.Path, errors.NewTokenInconsistencyError(missingSide(pair)))
	}
	return pair, nil
}

// RefreshToken trades a refresh token for a new access token
func (c *Client) RefreshToken(ctx context.Context, refresh string) (Refreshed, error) {
	var out Refreshed
	if err := c.call(ctx, c.anon, EndpointTokenRefresh, 0, nil, map[string]string{"refresh": refresh}, &out); err != nil {
		return Refreshed{}, err
	}
	if out.Access == "" {
		return Refreshed{}, errors.NewAPIDecodeError(EndpointTokenRefresh.Path, errors.NewTokenInconsistencyError("access"))
	}
	return out, nil
}

// CurrentUser returns the profile the access token belongs to
func (c *Client) CurrentUser(ctx context.Context, access string) (*User, error) {
	var u User
	if err := c.call(ctx, c.withToken(access), EndpointCurrentUser, 0, nil, nil, &u); err != nil {
		return nil, err
	}
	if u.Email == "" {
		return nil, errors.NewAPIDecodeError(EndpointCurrentUser.Path, errors.New(errors.ErrCodeAPIDecode, "profile has no email"))
	}
	return &u, nil
}

// SignUp registers a new account. The backend may answer with
// {"user": {...}, "tokens": {...}} or with the bare profile.
func (c *Client) SignUp(ctx context.Context, reg Registration) (*SignUpResult, error) {
	var raw json.RawMessage
	if err := c.call(ctx, c.anon, EndpointSignUp, 0, nil, reg, &raw); err != nil {
		return nil, err
	}

	var wrapped struct {
		User   *User            `json:"user"`
		Tokens *tokenstore.Pair `json:"tokens"`
	}
	var bare User
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, errors.NewAPIDecodeError(EndpointSignUp.Path, err)
		}
		if wrapped.User == nil {
			if err := json.Unmarshal(raw, &bare); err != nil {
				return nil, errors.NewAPIDecodeError(EndpointSignUp.Path, err)
			}
		}
	}

	res := &SignUpResult{Tokens: wrapped.Tokens}
	if wrapped.User != nil {
		res.User = *wrapped.User
	} else {
		res.User = bare
	}
	if res.User.Email == "" {
		res.User.Email = reg.Email
	}
	if res.User.TeamName == "" {
		res.User.TeamName = string(reg.TeamName)
	}
	if res.Tokens != nil && res.Tokens.Shape() != tokenstore.ShapeComplete {
		res.Tokens = nil
	}
	return res, nil
}

// Logout revokes the refresh token
func (c *Client) Logout(ctx context.Context, access, refresh string) error {
	return c.call(ctx, c.withToken(access), EndpointLogout, 0, nil, map[string]string{"refresh": refresh}, nil)
}

func missingSide(p tokenstore.Pair) string {
	if p.Access == "" {
		return "access"
	}
	return "refresh"
}
