// Package dashboard serves the contract analyzer over HTTP: accounts, uploads, analysis
// results and the notes downloads.
package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/joelkehle/contract-analyzer/internal/account"
	"github.com/joelkehle/contract-analyzer/internal/apperr"
	"github.com/joelkehle/contract-analyzer/internal/contractscore"
	"github.com/joelkehle/contract-analyzer/internal/ingest"
)

const (
	SessionCookie = "contract_session"
	VisitorCookie = "contract_visitor"

	visitorPrefix = "anon_"

	notesTXTName = "contract_analysis.txt"
	notesPDFName = "contract_analysis.pdf"

	formOverhead = 1 << 20
)

type Options struct {
	Scorer    *contractscore.Scorer
	Extractor *ingest.Extractor
	Accounts  *account.Registry
	Analyses  *AnalysisStore
	// Renderer may be nil, in which case the PDF download answers 503.
	Renderer PDFRenderer
	WebDir   string
	MinChars int
	Logger   *zap.Logger
}

type Server struct {
	scorer    *contractscore.Scorer
	extractor *ingest.Extractor
	accounts  *account.Registry
	analyses  *AnalysisStore
	renderer  PDFRenderer
	webDir    string
	minChars  int
	log       *zap.Logger
	tracer    trace.Tracer
}

func NewServer(opts Options) http.Handler {
	s := &Server{
		scorer:    opts.Scorer,
		extractor: opts.Extractor,
		accounts:  opts.Accounts,
		analyses:  opts.Analyses,
		renderer:  opts.Renderer,
		webDir:    opts.WebDir,
		minChars:  opts.MinChars,
		log:       opts.Logger,
		tracer:    otel.Tracer("contract-analyzer/dashboard"),
	}
	if s.scorer == nil {
		s.scorer = contractscore.NewScorer(nil)
	}
	if s.extractor == nil {
		s.extractor = ingest.NewExtractor(ingest.Options{})
	}
	if s.accounts == nil {
		s.accounts = account.NewRegistry(0)
	}
	if s.analyses == nil {
		s.analyses = NewAnalysisStore(0)
	}
	if s.minChars <= 0 {
		s.minChars = contractscore.MinContractChars
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/analysis/{id}", s.handleGetAnalysis)
	mux.HandleFunc("DELETE /api/analysis/{id}", s.handleDeleteAnalysis)
	mux.HandleFunc("GET /api/report/{id}", s.handleReport)
	mux.HandleFunc("GET /api/notes/{file}", s.handleNotes)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeAppError maps err's code to a status. Uncoded errors are logged and reported as a
// generic internal error.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := apperr.StatusForCode(code)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.String("code", code), zap.Error(err))
	} else {
		s.log.Debug("request rejected", zap.String("path", r.URL.Path), zap.String("code", code), zap.Error(err))
	}
	writeError(w, status, apperr.Message(err))
}

func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// session returns the caller's live session token, or "".
func (s *Server) session(r *http.Request) string {
	tok := sessionToken(r)
	if _, ok := s.accounts.Lookup(tok); ok {
		return tok
	}
	return ""
}

// owner is the key analyses are stored under: the live session token, else the anonymous
// visitor token, else "" for a caller that has not analyzed anything yet.
func (s *Server) owner(r *http.Request) string {
	if tok := s.session(r); tok != "" {
		return tok
	}
	if c, err := r.Cookie(VisitorCookie); err == nil && strings.HasPrefix(c.Value, visitorPrefix) {
		return c.Value
	}
	return ""
}

// ensureOwner returns the caller's owner key, issuing a visitor cookie to a first-time
// anonymous caller.
func (s *Server) ensureOwner(w http.ResponseWriter, r *http.Request) string {
	if tok := s.owner(r); tok != "" {
		return tok
	}
	tok := visitorPrefix + uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookie,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return tok
}

func setSessionCookie(w http.ResponseWriter, sess *account.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

// formBool reads a checkbox-style value. Missing fields fall back to def.
func formBool(v string, def bool) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return def
	}
	switch v {
	case "on", "yes":
		return true
	case "off", "no":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req account.SignupRequest
	if isJSON(r) {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, formOverhead)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form")
			return
		}
		req = account.SignupRequest{
			Name:            r.FormValue("name"),
			Email:           r.FormValue("email"),
			Password:        r.FormValue("password"),
			ConfirmPassword: r.FormValue("confirm_password"),
			Role:            account.Role(r.FormValue("role")),
			TermsAccepted:   formBool(r.FormValue("terms_accepted"), false),
			FirmName:        r.FormValue("firm_name"),
			Country:         r.FormValue("country"),
			BarNumber:       r.FormValue("bar_number"),
		}
	}
	sess, err := s.accounts.Signup(req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.log.Info("account created", zap.String("role", string(sess.User.Role)))
	setSessionCookie(w, sess)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Account created successfully!",
		"token":   sess.Token,
		"user":    sess.User,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req account.LoginRequest
	if isJSON(r) {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, formOverhead)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form")
			return
		}
		req = account.LoginRequest{
			Email:         r.FormValue("email"),
			Password:      r.FormValue("password"),
			TermsAccepted: formBool(r.FormValue("terms_accepted"), false),
		}
	}
	sess, err := s.accounts.Login(req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful!",
		"token":   sess.Token,
		"user":    sess.User,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if tok := s.session(r); tok != "" {
		s.analyses.DropOwner(tok)
		s.accounts.Logout(tok)
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	tok := s.session(r)
	payload := map[string]any{
		"authenticated": tok != "",
		"user":          s.accounts.Current(tok),
	}
	if a := s.analyses.Latest(s.owner(r)); a != nil {
		payload["analysis_id"] = a.ID()
	}
	writeJSON(w, http.StatusOK, payload)
}

type analyzeRequest struct {
	Text     string                  `json:"text"`
	Features *contractscore.Features `json:"features,omitempty"`
}

type analyzeResponse struct {
	contractscore.ResponseEnvelope
	Notice string       `json:"notice,omitempty"`
	User   account.User `json:"user"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "dashboard.analyze")
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, s.extractor.MaxBytes()+formOverhead)
	in := contractscore.Input{Features: contractscore.AllFeatures()}
	var source contractscore.SourceMetadata
	var notice string

	if isJSON(r) {
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeBodyError(w, r, err)
			return
		}
		in.Text = req.Text
		if req.Features != nil {
			in.Features = *req.Features
		}
	} else {
		if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			s.writeBodyError(w, r, err)
			return
		}
		if r.Form == nil {
			if err := r.ParseForm(); err != nil {
				s.writeBodyError(w, r, err)
				return
			}
		}
		in.Features = contractscore.Features{
			Clauses: formBool(r.FormValue("clauses"), true),
			Risks:   formBool(r.FormValue("risks"), true),
			Summary: formBool(r.FormValue("summary"), true),
			Notes:   formBool(r.FormValue("notes"), true),
		}
		in.Text = r.FormValue("text")

		file, header, err := r.FormFile("file")
		switch {
		case err == nil:
			defer file.Close()
			doc, err := s.extractor.Extract(ctx, ingest.Upload{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Body:        file,
			})
			if err != nil {
				s.writeAppError(w, r, err)
				return
			}
			in.Text = doc.Text
			source = doc.Source
			notice = doc.Notice
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		default:
			s.writeBodyError(w, r, err)
			return
		}
	}

	if err := contractscore.CheckLength(in.Text, s.minChars); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	tok := s.ensureOwner(w, r)
	req := contractscore.RequestEnvelope{AnalysisID: uuid.NewString(), Input: in, Source: source}
	result := s.scorer.Analyze(in)
	env := contractscore.BuildResponse(req, result)
	s.analyses.Put(&Analysis{Owner: tok, Envelope: env, Notice: notice})

	span.SetAttributes(
		attribute.String("analysis.id", env.AnalysisID),
		attribute.Int("analysis.accuracy", result.Accuracy),
		attribute.String("analysis.risk_level", string(result.RiskLevel)),
	)
	s.log.Info("analysis complete",
		zap.String("analysis_id", env.AnalysisID),
		zap.Int("accuracy", result.Accuracy),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.Int("clauses", len(result.Clauses)),
		zap.Int("notes", len(result.Notes)),
		zap.String("method", source.Method),
	)
	writeJSON(w, http.StatusOK, analyzeResponse{ResponseEnvelope: env, Notice: notice, User: s.accounts.Current(tok)})
}

// writeBodyError reports an unreadable request body, turning an exceeded body limit into the
// same message an oversized file gets.
func (s *Server) writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		size := r.ContentLength
		if size < 0 {
			// Chunked body: report the limit it crossed.
			size = tooBig.Limit
		}
		mb := float64(size) / (1024 * 1024)
		limit := s.extractor.MaxBytes() / (1024 * 1024)
		s.writeAppError(w, r, apperr.New(apperr.CodeTooLarge, fmt.Sprintf("File too large (%.1fMB). Max %dMB.", mb, limit)))
		return
	}
	s.writeAppError(w, r, apperr.Wrap(apperr.CodeValidation, "invalid request body", err))
}

// lookup returns the caller's analysis by id. Analyses owned by another session are reported
// as missing.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, id string) (*Analysis, bool) {
	a := s.analyses.Get(id)
	if a == nil || a.Owner == "" || a.Owner != s.owner(r) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return nil, false
	}
	return a, true
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{ResponseEnvelope: a.Envelope, Notice: a.Notice, User: s.accounts.Current(a.Owner)})
}

func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	s.analyses.Delete(a.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(a.Envelope.ReportMarkdown))
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	ext := path.Ext(file)
	id := strings.TrimSuffix(file, ext)
	if ext != ".txt" && ext != ".pdf" {
		writeError(w, http.StatusNotFound, "notes are available as .txt or .pdf")
		return
	}
	if ext == ".pdf" && s.renderer == nil {
		writeError(w, http.StatusServiceUnavailable, "pdf renderer unavailable")
		return
	}
	a, ok := s.lookup(w, r, id)
	if !ok {
		return
	}
	res := a.Envelope.Result
	if len(res.Notes) == 0 {
		writeError(w, http.StatusNotFound, "no drafting notes for this analysis")
		return
	}

	if ext == ".txt" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", notesTXTName))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(contractscore.NotesText(res)))
		return
	}

	pdf, err := s.renderer.Render(r.Context(), contractscore.NotesReportTitle, contractscore.NotesMarkdown(res))
	if err != nil {
		s.log.Error("render notes pdf failed", zap.String("analysis_id", a.ID()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render pdf")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", notesPDFName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.webDir == "" {
		if r.URL.Path == "/" {
			writeJSON(w, http.StatusOK, map[string]any{
				"service":    "contract-analyzer",
				"disclaimer": contractscore.Disclaimer,
			})
			return
		}
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	if r.URL.Path == "/" || r.URL.Path == "/index.html" {
		http.ServeFile(w, r, filepath.Join(s.webDir, "index.html"))
		return
	}
	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if _, err := fs.Stat(os.DirFS(s.webDir), rel); err == nil {
		http.ServeFile(w, r, filepath.Join(s.webDir, filepath.FromSlash(rel)))
		return
	}
	http.NotFound(w, r)
}
