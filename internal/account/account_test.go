package account

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/joelkehle/contract-analyzer/internal/apperr"
)

func validSignup() SignupRequest {
	return SignupRequest{
		Name:            "Ada Client",
		Email:           "ada@example.com",
		Password:        "correct horse",
		ConfirmPassword: "correct horse",
		Role:            RoleClient,
		TermsAccepted:   true,
	}
}

func TestSignupValidationOrder(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SignupRequest)
		want   string
	}{
		{"missing name", func(r *SignupRequest) { r.Name = "" }, "Please fill in all required fields"},
		{"missing role and bad email", func(r *SignupRequest) { r.Role = ""; r.Email = "nope" }, "Please fill in all required fields"},
		{"bad email before mismatch", func(r *SignupRequest) { r.Email = "a@b"; r.ConfirmPassword = "other" }, "Please enter a valid email address"},
		{"mismatch before length", func(r *SignupRequest) { r.Password = "short"; r.ConfirmPassword = "shorter" }, "Passwords do not match"},
		{"short password", func(r *SignupRequest) { r.Password = "short"; r.ConfirmPassword = "short" }, "Password must be at least 8 characters"},
		{"terms", func(r *SignupRequest) { r.TermsAccepted = false }, "Please accept Terms & Conditions"},
		{"lawyer without firm", func(r *SignupRequest) { r.Role = RoleLawyer; r.Country = "US" }, "Please fill in firm details"},
		{"lawyer without country", func(r *SignupRequest) { r.Role = RoleLawyer; r.FirmName = "Lex LLP" }, "Please fill in firm details"},
		{"unknown role", func(r *SignupRequest) { r.Role = "admin" }, "Please select a valid role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validSignup()
			tc.mutate(&req)
			err := req.Validate()
			if !apperr.Is(err, apperr.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := apperr.Message(err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestLoginValidationOrder(t *testing.T) {
	cases := []struct {
		req  LoginRequest
		want string
	}{
		{LoginRequest{Email: "", Password: "", TermsAccepted: false}, "Please accept Terms & Conditions"},
		{LoginRequest{Email: "ada@example.com", TermsAccepted: true}, "Please fill in all fields"},
		{LoginRequest{Email: "ada@example", Password: "x", TermsAccepted: true}, "Please enter a valid email address"},
	}
	for _, tc := range cases {
		if got := apperr.Message(tc.req.Validate()); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestValidEmail(t *testing.T) {
	for _, ok := range []string{"a@b.co", "first.last@firm.law"} {
		if !ValidEmail(ok) {
			t.Fatalf("expected %q to be valid", ok)
		}
	}
	for _, bad := range []string{"", "a@b", "a b@c.d", "@c.d", "a@@b.c"} {
		if ValidEmail(bad) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
}

func TestSignupLoginLogout(t *testing.T) {
	reg := NewRegistry(bcrypt.MinCost)
	req := validSignup()
	req.Role = RoleLawyer
	req.FirmName = "Lex LLP"
	req.Country = "Kenya"
	s, err := reg.Signup(req)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if s.Token == "" || s.User.Role != RoleLawyer || s.User.FirmName != "Lex LLP" || s.User.IsVerified {
		t.Fatalf("unexpected session %+v", s)
	}

	if _, err := reg.Signup(validSignup()); !apperr.Is(err, apperr.CodeConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}

	_, err = reg.Login(LoginRequest{Email: "ADA@example.com", Password: "wrong password", TermsAccepted: true})
	if !apperr.Is(err, apperr.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	_, err = reg.Login(LoginRequest{Email: "nobody@example.com", Password: "whatever1", TermsAccepted: true})
	if !apperr.Is(err, apperr.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for unknown account, got %v", err)
	}

	login, err := reg.Login(LoginRequest{Email: " ADA@example.com ", Password: "correct horse", TermsAccepted: true})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.Token == s.Token {
		t.Fatal("expected a fresh session token")
	}
	if got := reg.Current(login.Token); got.Name != "Ada Client" {
		t.Fatalf("unexpected current user %+v", got)
	}

	reg.Logout(login.Token)
	if _, ok := reg.Lookup(login.Token); ok {
		t.Fatal("expected session to be revoked")
	}
	if got := reg.Current(login.Token); got != DemoUser() {
		t.Fatalf("expected demo user after logout, got %+v", got)
	}
}

func TestCurrentFallsBackToDemoUser(t *testing.T) {
	reg := NewRegistry(bcrypt.MinCost)
	got := reg.Current("")
	if got.Name != "Demo User" || got.Role != RoleClient {
		t.Fatalf("unexpected fallback %+v", got)
	}
}

func TestRegistryConcurrentSignups(t *testing.T) {
	reg := NewRegistry(bcrypt.MinCost)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Signup(validSignup())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else if !apperr.Is(err, apperr.CodeConflict) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one signup to win, got %d", ok)
	}
}

func loginAda(t *testing.T, reg *Registry) *Session {
	t.Helper()
	s, err := reg.Login(LoginRequest{Email: "ada@example.com", Password: "correct horse", TermsAccepted: true})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return s
}

func TestSessionsExpire(t *testing.T) {
	reg := NewRegistry(bcrypt.MinCost)
	now := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }
	reg.LimitSessions(time.Hour, 0)

	first, err := reg.Signup(validSignup())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if !first.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", first.ExpiresAt)
	}

	now = now.Add(59 * time.Minute)
	if _, ok := reg.Lookup(first.Token); !ok {
		t.Fatal("session should still be live before its TTL")
	}
	now = now.Add(time.Minute)
	if _, ok := reg.Lookup(first.Token); ok {
		t.Fatal("expected session to expire after its TTL")
	}
	if got := reg.Current(first.Token); got != DemoUser() {
		t.Fatalf("expired session should fall back to demo user, got %+v", got)
	}

	second := loginAda(t, reg)
	if reg.SessionCount() != 1 {
		t.Fatalf("expected expired session to be pruned, got %d live", reg.SessionCount())
	}
	if _, ok := reg.Lookup(second.Token); !ok {
		t.Fatal("fresh session should be live")
	}
}

func TestSessionsAreCapped(t *testing.T) {
	reg := NewRegistry(bcrypt.MinCost)
	reg.LimitSessions(0, 3)
	if _, err := reg.Signup(validSignup()); err != nil {
		t.Fatalf("signup: %v", err)
	}
	var tokens []string
	for i := 0; i < 5; i++ {
		tokens = append(tokens, loginAda(t, reg).Token)
	}
	if reg.SessionCount() != 3 {
		t.Fatalf("expected 3 live sessions, got %d", reg.SessionCount())
	}
	for _, old := range tokens[:2] {
		if _, ok := reg.Lookup(old); ok {
			t.Fatalf("expected oldest session %s to be dropped", old)
		}
	}
	for _, live := range tokens[2:] {
		if _, ok := reg.Lookup(live); !ok {
			t.Fatalf("expected session %s to be live", live)
		}
	}

	reg.Logout(tokens[4])
	if reg.SessionCount() != 2 {
		t.Fatalf("expected logout to free a slot, got %d", reg.SessionCount())
	}
}
