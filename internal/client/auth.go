package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/raphaelgruber/loglens/internal/metrics"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	TeamID string `json:"team_id"`
}

// Login exchanges credentials for a bearer token. The client does not
// adopt the token; call SetToken to use it.
func (c *Client) Login(ctx context.Context, userID, password string) (*LoginResult, error) {
	if userID == "" || password == "" {
		return nil, fmt.Errorf("%s: user id and password are required", metrics.OpLogin)
	}

	payload, err := json.Marshal(map[string]string{"userid": userID, "password": password})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", metrics.OpLogin, err)
	}

	var result LoginResult
	err = c.do(ctx, request{
		op:          metrics.OpLogin,
		method:      http.MethodPost,
		path:        "/auth/login",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, &ServiceError{Op: metrics.OpLogin, StatusCode: http.StatusOK, Message: "response has no token"}
	}
	return &result, nil
}

// Signup creates an account on the service and returns its user id. It
// does not log in.
func (c *Client) Signup(ctx context.Context, userID, password, teamID string) (string, error) {
	if userID == "" || password == "" || teamID == "" {
		return "", fmt.Errorf("%s: user id, password and team id are required", metrics.OpSignup)
	}

	payload, err := json.Marshal(map[string]string{"userid": userID, "password": password, "teamid": teamID})
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", metrics.OpSignup, err)
	}

	var result struct {
		UserID string `json:"user_id"`
	}
	err = c.do(ctx, request{
		op:          metrics.OpSignup,
		method:      http.MethodPost,
		path:        "/auth/signup",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
	}, &result)
	if err != nil {
		return "", err
	}
	if result.UserID == "" {
		result.UserID = userID
	}
	return result.UserID, nil
}
