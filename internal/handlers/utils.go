package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/tasknest/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// genericErrorMsg is the client-visible message for any failure whose
// detail must stay server-side.
const genericErrorMsg = "Unexpected error occured"

// APIMessage is a single client-visible message. Type is "field" for
// per-field validation errors (Path names the field) or "toast" for
// messages shown as notifications.
type APIMessage struct {
	Msg  string `json:"msg"`
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Errors []APIMessage `json:"errors"`
}

// SuccessResponse is the success envelope.
type SuccessResponse struct {
	Messages []APIMessage `json:"messages,omitempty"`
	Data     any          `json:"data,omitempty"`
}

func fieldError(path, msg string) APIMessage {
	return APIMessage{Msg: msg, Type: "field", Path: path}
}

func toastError(msg string) APIMessage {
	return APIMessage{Msg: msg, Type: "toast"}
}

func toastMessage(msg string) APIMessage {
	return APIMessage{Msg: msg, Type: "toast"}
}

// Healthz reports liveness for load balancers and e2e harnesses.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeErrors(w http.ResponseWriter, status int, errs ...APIMessage) {
	writeJSON(w, status, ErrorResponse{Errors: errs})
}

func writeData(w http.ResponseWriter, status int, data any, msgs ...APIMessage) {
	writeJSON(w, status, SuccessResponse{Messages: msgs, Data: data})
}

func userFromContext(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok {
		return types.User{}, errors.New("missing user")
	}
	return user, nil
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

var otpPattern = regexp.MustCompile(`^\d{6}$`)

func validOTPCode(code string) bool {
	return otpPattern.MatchString(code)
}

func validURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func lenBetween(s string, min, max int) bool {
	n := len(strings.TrimSpace(s))
	return n >= min && n <= max
}
