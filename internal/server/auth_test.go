package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

type stubAuthStore struct {
	users     map[string]string // email -> hash
	createErr error
}

func (s *stubAuthStore) CreateUser(_ context.Context, email, hash string) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.users == nil {
		s.users = map[string]string{}
	}
	s.users[email] = hash
	return nil
}

func (s *stubAuthStore) GetUserByEmail(_ context.Context, email string) (string, string, error) {
	hash, ok := s.users[email]
	if !ok {
		return "", "", errors.New("no such user")
	}
	return "user-" + email, hash, nil
}

func TestSignupCreatesUser(t *testing.T) {
	st := &stubAuthStore{}
	h := &AuthHandler{Store: st, Secret: []byte("secret")}
	e := echo.New()

	c, rec := newJSONContext(e, http.MethodPost, "/api/auth/signup",
		`{"email":"a@b.c","password":"longenough"}`, "")
	if err := h.signup(c); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if _, ok := st.users["a@b.c"]; !ok {
		t.Fatal("user not stored")
	}
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	h := &AuthHandler{Store: &stubAuthStore{}, Secret: []byte("secret")}
	e := echo.New()

	c, _ := newJSONContext(e, http.MethodPost, "/api/auth/signup", `{"email":"a@b.c","password":"short"}`, "")
	err := h.signup(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	h := &AuthHandler{Store: &stubAuthStore{createErr: &pq.Error{Code: "23505"}}, Secret: []byte("secret")}
	e := echo.New()

	c, _ := newJSONContext(e, http.MethodPost, "/api/auth/signup", `{"email":"a@b.c","password":"longenough"}`, "")
	err := h.signup(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("err = %v, want 409", err)
	}
}

func TestLoginIssuesToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("longenough"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	secret := []byte("secret")
	h := &AuthHandler{Store: &stubAuthStore{users: map[string]string{"a@b.c": string(hash)}}, Secret: secret}
	e := echo.New()

	c, rec := newJSONContext(e, http.MethodPost, "/api/auth/login", `{"email":"a@b.c","password":"longenough"}`, "")
	if err := h.login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	parsed, err := jwt.Parse(resp.Token, func(*jwt.Token) (interface{}, error) { return secret, nil })
	if err != nil || !parsed.Valid {
		t.Fatalf("returned token invalid: %v", err)
	}
	sub, _ := parsed.Claims.GetSubject()
	if sub != "user-a@b.c" {
		t.Fatalf("subject = %q", sub)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("longenough"), bcrypt.MinCost)
	h := &AuthHandler{Store: &stubAuthStore{users: map[string]string{"a@b.c": string(hash)}}, Secret: []byte("secret")}
	e := echo.New()

	c, _ := newJSONContext(e, http.MethodPost, "/api/auth/login", `{"email":"a@b.c","password":"wrongwrong"}`, "")
	err := h.login(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401", err)
	}
}
