package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"roast_monitor/internal/export"
	"roast_monitor/internal/models"
	"roast_monitor/internal/ror"
	"roast_monitor/internal/service"
	"roast_monitor/internal/transport"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

// mockRoast records calls and returns the configured error for every
// mutating operation.
type mockRoast struct {
	mu    sync.Mutex
	state models.Snapshot
	err   error
	calls []string

	lastParams   transport.Params
	lastLabel    string
	lastFilename string
	lastData     []byte
	lastFormat   string
	lastUserID   int

	label    string
	drop     models.RoastEvent
	added    bool
	summary  service.ImportSummary
	file     export.File
	analysis ror.Analysis
}

func (m *mockRoast) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.err
}

func (m *mockRoast) setState(st models.Snapshot) {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
}

func (m *mockRoast) Connect(_ context.Context, p transport.Params) (string, error) {
	m.lastParams = p
	return m.label, m.record("connect")
}
func (m *mockRoast) Disconnect(context.Context) error { return m.record("disconnect") }
func (m *mockRoast) StartRoast(ctx context.Context) error {
	m.lastUserID, _ = service.UserIDFrom(ctx)
	return m.record("start")
}
func (m *mockRoast) StopRoast(context.Context) (models.RoastEvent, error) {
	return m.drop, m.record("stop")
}
func (m *mockRoast) UndoDrop(context.Context) error { return m.record("undo") }
func (m *mockRoast) Reset(context.Context) error    { return m.record("reset") }
func (m *mockRoast) ToggleEvent(_ context.Context, label string) (bool, error) {
	m.lastLabel = label
	return m.added, m.record("toggle")
}
func (m *mockRoast) Import(_ context.Context, filename string, data []byte) (service.ImportSummary, error) {
	m.lastFilename, m.lastData = filename, data
	return m.summary, m.record("import")
}
func (m *mockRoast) Export(_ context.Context, format string) (export.File, error) {
	m.lastFormat = format
	return m.file, m.record("export")
}
func (m *mockRoast) State() models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
func (m *mockRoast) Analysis() ror.Analysis { return m.analysis }
func (m *mockRoast) Close() error           { return nil }

type mockEventLog struct {
	resp      []models.ActivityEvent
	err       error
	lastFrom  time.Time
	lastTo    time.Time
	lastType  string
	lastLimit int
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.ActivityEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastLimit = f.Limit
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
