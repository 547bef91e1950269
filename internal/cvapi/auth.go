package cvapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token. Any non-2xx answer is an
// AuthError; a 2xx answer without a token is a ProtocolError.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return LoginResult{}, Invalid("credentials", "username and password are required")
	}
	body, err := jsonBody(loginRequest{Username: username, Password: password})
	if err != nil {
		return LoginResult{}, err
	}

	var out struct {
		Token *string `json:"token"`
	}
	_, err = c.do(ctx, request{
		op:          "login",
		method:      http.MethodPost,
		path:        "/login",
		body:        body,
		contentType: "application/json",
	}, &out)
	if err != nil {
		var se *ServerError
		if errors.As(err, &se) {
			msg := se.Message
			if msg == "" {
				msg = fmt.Sprintf("login failed (HTTP %d)", se.Status)
			}
			return LoginResult{}, &AuthError{Status: se.Status, Message: msg}
		}
		return LoginResult{}, err
	}
	if out.Token == nil || *out.Token == "" {
		return LoginResult{}, &ProtocolError{Op: "login", Err: errors.New("login successful but no token received")}
	}
	return LoginResult{Token: *out.Token}, nil
}

// Register creates an account. Only 200 and 201 count as success.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (Message, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return Message{}, Invalid("credentials", "username and password are required")
	}
	body, err := jsonBody(req)
	if err != nil {
		return Message{}, err
	}
	msg, status, err := c.doMessage(ctx, request{
		op:          "register",
		method:      http.MethodPost,
		path:        "/register",
		body:        body,
		contentType: "application/json",
	}, "Registration successful")
	if err != nil {
		return Message{}, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return Message{}, &ServerError{Status: status, Message: "unexpected registration status"}
	}
	return msg, nil
}
