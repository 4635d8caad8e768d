package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/joelkehle/contract-analyzer/internal/account"
	"github.com/joelkehle/contract-analyzer/internal/contractscore"
	"github.com/joelkehle/contract-analyzer/internal/ingest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sampleContract = "This Agreement is made between the parties. Payment terms: the fee is due within 30 days. " +
	"Either party may terminate with notice. Signature: ________ Date: ________"

type fakeRenderer struct {
	title    string
	markdown string
	err      error
}

func (f *fakeRenderer) Render(_ context.Context, title, markdown string) ([]byte, error) {
	f.title = title
	f.markdown = markdown
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-fake"), nil
}

func newTestServer(renderer PDFRenderer) http.Handler {
	opts := Options{
		Accounts: account.NewRegistry(bcrypt.MinCost),
		Analyses: NewAnalysisStore(10),
	}
	if renderer != nil {
		opts.Renderer = renderer
	}
	return NewServer(opts)
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// visitor replays the cookies a handler sets, like a browser tab.
type visitor struct {
	h       http.Handler
	cookies map[string]*http.Cookie
}

func newVisitor(h http.Handler) *visitor {
	return &visitor{h: h, cookies: make(map[string]*http.Cookie)}
}

func (v *visitor) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	for _, c := range v.cookies {
		req.AddCookie(c)
	}
	rec := do(t, v.h, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(v.cookies, c.Name)
			continue
		}
		v.cookies[c.Name] = c
	}
	return rec
}

func get(path string) *http.Request {
	return httptest.NewRequest(http.MethodGet, path, nil)
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postJSON(path string, payload any) *http.Request {
	blob, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(blob))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeAnalysis(t *testing.T, rec *httptest.ResponseRecorder) analyzeResponse {
	t.Helper()
	var out analyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode analysis: %v\n%s", err, rec.Body.String())
	}
	return out
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error: %v\n%s", err, rec.Body.String())
	}
	return out["error"]
}

func TestAnalyzeReportAndNotesFlow(t *testing.T) {
	v := newVisitor(newTestServer(nil))
	rec := v.do(t, postForm("/api/analyze", url.Values{"text": {sampleContract}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeAnalysis(t, rec)
	want := contractscore.Analyze(contractscore.Input{Text: sampleContract, Features: contractscore.AllFeatures()})
	if got.Result.Accuracy != want.Accuracy || got.Result.RiskLevel != want.RiskLevel || len(got.Result.Notes) != len(want.Notes) {
		t.Fatalf("result mismatch: got %+v want %+v", got.Result, want)
	}
	if got.User.Name != "Demo User" || got.User.Role != account.RoleClient {
		t.Fatalf("anonymous caller should be the demo user, got %+v", got.User)
	}
	id := got.AnalysisID
	if c := v.cookies[VisitorCookie]; c == nil || !strings.HasPrefix(c.Value, "anon_") {
		t.Fatalf("expected a visitor cookie, got %v", v.cookies)
	}

	rec = v.do(t, get("/api/analysis/"+id))
	if rec.Code != http.StatusOK || decodeAnalysis(t, rec).AnalysisID != id {
		t.Fatalf("get analysis failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = v.do(t, get("/api/report/"+id))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# Contract Analysis Report") {
		t.Fatalf("report failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = v.do(t, get("/api/notes/"+id+".txt"))
	if rec.Code != http.StatusOK {
		t.Fatalf("notes txt failed: %d %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "contract_analysis.txt") {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if rec.Body.String() != contractscore.NotesText(want) {
		t.Fatalf("notes body mismatch:\n%s", rec.Body.String())
	}

	rec = v.do(t, httptest.NewRequest(http.MethodDelete, "/api/analysis/"+id, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = v.do(t, get("/api/analysis/"+id))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after reset, got %d", rec.Code)
	}
}

func TestAnalyzeRejectsShortText(t *testing.T) {
	h := newTestServer(nil)
	rec := do(t, h, postForm("/api/analyze", url.Values{"text": {"too short"}}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "Please enter at least 50 characters of contract text" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAnalyzeFeatureToggles(t *testing.T) {
	v := newVisitor(newTestServer(nil))
	rec := v.do(t, postForm("/api/analyze", url.Values{
		"text":    {sampleContract},
		"clauses": {"false"},
		"notes":   {"off"},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeAnalysis(t, rec)
	if len(got.Result.Clauses) != 0 || len(got.Result.Notes) != 0 {
		t.Fatalf("disabled features returned data: %+v", got.Result)
	}
	if !got.Features.Risks || !got.Features.Summary || got.Result.Summary == "" {
		t.Fatalf("enabled features missing: %+v", got)
	}

	rec = v.do(t, get("/api/notes/"+got.AnalysisID+".txt"))
	if rec.Code != http.StatusNotFound || errorMessage(t, rec) != "no drafting notes for this analysis" {
		t.Fatalf("expected 404 for empty notes, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAnalyzeJSONBody(t *testing.T) {
	h := newTestServer(nil)
	rec := do(t, h, postJSON("/api/analyze", map[string]any{
		"text":     sampleContract,
		"features": map[string]bool{"risks": true},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeAnalysis(t, rec)
	if got.Features.Clauses || !got.Features.Risks || len(got.Result.Risks) == 0 {
		t.Fatalf("unexpected features/result: %+v", got)
	}
}

func multipartUpload(t *testing.T, filename, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(body); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.WriteField("summary", "false"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAnalyzeTextUpload(t *testing.T) {
	h := newTestServer(nil)
	rec := do(t, h, multipartUpload(t, "contract.txt", "text/plain", []byte(sampleContract)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeAnalysis(t, rec)
	if got.Source.Filename != "contract.txt" || got.Source.Method != "text" {
		t.Fatalf("unexpected source %+v", got.Source)
	}
	if got.Notice != "File loaded successfully" || got.Result.Summary != "" {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestAnalyzeRejectsUnsupportedUpload(t *testing.T) {
	h := newTestServer(nil)
	rec := do(t, h, multipartUpload(t, "scan.png", "image/png", []byte("\x89PNG\r\n\x1a\n\x00\x00")))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := errorMessage(t, rec); msg != "Only .txt and .pdf files supported" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestNotesPDFWithoutRenderer(t *testing.T) {
	h := newTestServer(nil)
	rec := do(t, h, postForm("/api/analyze", url.Values{"text": {sampleContract}}))
	id := decodeAnalysis(t, rec).AnalysisID
	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/notes/"+id+".pdf", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestNotesPDFRendered(t *testing.T) {
	fr := &fakeRenderer{}
	v := newVisitor(newTestServer(fr))
	rec := v.do(t, postForm("/api/analyze", url.Values{"text": {sampleContract}}))
	got := decodeAnalysis(t, rec)

	rec = v.do(t, get("/api/notes/"+got.AnalysisID+".pdf"))
	if rec.Code != http.StatusOK || rec.Body.String() != "%PDF-fake" {
		t.Fatalf("unexpected pdf response: %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "contract_analysis.pdf") {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if fr.title != contractscore.NotesReportTitle || fr.markdown != contractscore.NotesMarkdown(got.Result) {
		t.Fatalf("renderer got unexpected input: %q\n%s", fr.title, fr.markdown)
	}

	fr.err = errors.New("chrome missing")
	rec = v.do(t, get("/api/notes/"+got.AnalysisID+".pdf"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on render failure, got %d", rec.Code)
	}
}

func TestNotesUnknownExtension(t *testing.T) {
	h := newTestServer(nil)
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/notes/abc.docx", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestNewAnalysisReplacesPrevious(t *testing.T) {
	v := newVisitor(newTestServer(nil))
	first := decodeAnalysis(t, v.do(t, postForm("/api/analyze", url.Values{"text": {sampleContract}})))
	cookie := v.cookies[VisitorCookie]
	second := decodeAnalysis(t, v.do(t, postForm("/api/analyze", url.Values{"text": {sampleContract + " Arbitration applies."}})))
	if first.AnalysisID == second.AnalysisID {
		t.Fatal("expected distinct analysis ids")
	}
	if v.cookies[VisitorCookie].Value != cookie.Value {
		t.Fatal("visitor token should be reused across analyses")
	}
	if rec := v.do(t, get("/api/analysis/"+first.AnalysisID)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected previous analysis to be replaced, got %d", rec.Code)
	}
	if rec := v.do(t, get("/api/analysis/"+second.AnalysisID)); rec.Code != http.StatusOK {
		t.Fatalf("expected latest analysis, got %d", rec.Code)
	}
}

func TestAnonymousVisitorsAreIsolated(t *testing.T) {
	h := newTestServer(nil)
	a, b := newVisitor(h), newVisitor(h)
	first := decodeAnalysis(t, a.do(t, postForm("/api/analyze", url.Values{"text": {sampleContract}})))
	second := decodeAnalysis(t, b.do(t, postForm("/api/analyze", url.Values{"text": {sampleContract}})))
	if a.cookies[VisitorCookie].Value == b.cookies[VisitorCookie].Value {
		t.Fatal("each visitor needs its own token")
	}

	if rec := a.do(t, get("/api/analysis/"+first.AnalysisID)); rec.Code != http.StatusOK {
		t.Fatalf("a's analysis was dropped by b's: %d %s", rec.Code, rec.Body.String())
	}
	if rec := a.do(t, get("/api/analysis/"+second.AnalysisID)); rec.Code != http.StatusNotFound {
		t.Fatalf("a must not read b's analysis, got %d", rec.Code)
	}

	// A caller with no cookie at all owns nothing.
	if rec := do(t, h, httptest.NewRequest(http.MethodDelete, "/api/analysis/"+second.AnalysisID, nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("cookie-less delete should be 404, got %d", rec.Code)
	}
	if rec := do(t, h, get("/api/report/"+first.AnalysisID)); rec.Code != http.StatusNotFound {
		t.Fatalf("cookie-less report should be 404, got %d", rec.Code)
	}
	if rec := b.do(t, get("/api/analysis/"+second.AnalysisID)); rec.Code != http.StatusOK {
		t.Fatalf("b's analysis should survive, got %d", rec.Code)
	}

	var sess struct {
		Authenticated bool   `json:"authenticated"`
		AnalysisID    string `json:"analysis_id"`
	}
	rec := a.do(t, get("/api/session"))
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Authenticated || sess.AnalysisID != first.AnalysisID {
		t.Fatalf("unexpected anonymous session %+v", sess)
	}
}

func TestAnalyzeChunkedBodyTooLarge(t *testing.T) {
	h := NewServer(Options{
		Accounts:  account.NewRegistry(bcrypt.MinCost),
		Extractor: ingest.NewExtractor(ingest.Options{MaxBytes: 1 << 20}),
	})
	body := url.Values{"text": {strings.Repeat("a", 3<<20)}}.Encode()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", io.MultiReader(strings.NewReader(body)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.ContentLength = -1
	rec := do(t, h, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := errorMessage(t, rec); msg != "File too large (2.0MB). Max 1MB." {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAnalyzeRejectsHTMLUpload(t *testing.T) {
	h := newTestServer(nil)
	rec := do(t, h, multipartUpload(t, "contract.html", "text/html", []byte("<html><body>"+sampleContract+"</body></html>")))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSignupLoginSessionLogout(t *testing.T) {
	h := newTestServer(nil)
	rec := do(t, h, postJSON("/api/signup", map[string]any{
		"name":             "Lee Counsel",
		"email":            "lee@firm.law",
		"password":         "long enough",
		"confirm_password": "long enough",
		"role":             "lawyer",
		"terms_accepted":   true,
		"firm_name":        "Counsel LLP",
		"country":          "Canada",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 || cookies[0].Name != SessionCookie {
		t.Fatalf("expected session cookie, got %v", cookies)
	}
	session := cookies[0]

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(session)
	rec = do(t, h, req)
	var sess struct {
		Authenticated bool         `json:"authenticated"`
		User          account.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if !sess.Authenticated || sess.User.Role != account.RoleLawyer || sess.User.FirmName != "Counsel LLP" {
		t.Fatalf("unexpected session %+v", sess)
	}

	req = postForm("/api/analyze", url.Values{"text": {sampleContract}})
	req.AddCookie(session)
	analysis := decodeAnalysis(t, do(t, h, req))
	if analysis.User.Name != "Lee Counsel" {
		t.Fatalf("analysis should carry the signed-in user, got %+v", analysis.User)
	}

	// Another caller cannot read it.
	if rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/analysis/"+analysis.AnalysisID, nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other caller, got %d", rec.Code)
	}

	rec = do(t, h, postForm("/api/login", url.Values{
		"email":          {"lee@firm.law"},
		"password":       {"long enough"},
		"terms_accepted": {"on"},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(session)
	if rec := do(t, h, req); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(session)
	rec = do(t, h, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Authenticated || sess.User.Name != "Demo User" {
		t.Fatalf("expected demo user after logout, got %+v", sess)
	}
}

func TestSignupAndLoginErrors(t *testing.T) {
	h := newTestServer(nil)
	rec := do(t, h, postForm("/api/signup", url.Values{
		"name":             {"Sam"},
		"email":            {"sam@example.com"},
		"password":         {"password1"},
		"confirm_password": {"password2"},
		"role":             {"client"},
	}))
	if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Passwords do not match" {
		t.Fatalf("unexpected signup response: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, postJSON("/api/login", map[string]any{"email": "sam@example.com", "password": "password1", "terms_accepted": true}))
	if rec.Code != http.StatusUnauthorized || errorMessage(t, rec) != "Invalid email or password" {
		t.Fatalf("unexpected login response: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, postJSON("/api/login", map[string]any{"email": "sam@example.com", "password": "password1"}))
	if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Please accept Terms & Conditions" {
		t.Fatalf("unexpected login response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRoot(t *testing.T) {
	rec := do(t, newTestServer(nil), httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "contract-analyzer") {
		t.Fatalf("unexpected root response: %d %s", rec.Code, rec.Body.String())
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>dashboard</h1>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	h := NewServer(Options{WebDir: dir, Accounts: account.NewRegistry(bcrypt.MinCost)})
	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "dashboard") {
		t.Fatalf("unexpected index response: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/missing.js", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
