package handlers

import (
	"context"
	"net/http"
	"sync"

	"fermenter_controller/internal/models"
	"fermenter_controller/internal/service"

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

type mockControl struct {
	mu       sync.Mutex
	accepted bool
	err      error
	ingested []models.SensorReading
}

func (m *mockControl) Ingest(_ context.Context, r models.SensorReading) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested = append(m.ingested, r)
	return m.accepted, m.err
}
func (m *mockControl) Status() models.ControlStatus { return models.ControlStatus{} }

type mockSettings struct {
	cfg        models.ControlConfig
	getErr     error
	updateErr  error
	lastParams service.ConfigParams
	updates    int
}

func (m *mockSettings) Get(_ context.Context) (models.ControlConfig, error) {
	return m.cfg, m.getErr
}
func (m *mockSettings) Update(_ context.Context, p service.ConfigParams) (models.ControlConfig, error) {
	m.updates++
	m.lastParams = p
	if m.updateErr != nil {
		return models.ControlConfig{}, m.updateErr
	}
	if p.LowLimit != nil {
		m.cfg.LowLimit = p.LowLimit
	}
	if p.HighLimit != nil {
		m.cfg.HighLimit = p.HighLimit
	}
	if p.ControlInterval != nil {
		m.cfg.ControlInterval = *p.ControlInterval
	}
	return m.cfg, nil
}

type mockMonitoring struct {
	status models.ControlStatus
	err    error
}

func (m *mockMonitoring) GetStatus(_ context.Context) (models.ControlStatus, error) {
	return m.status, m.err
}

type mockEventLog struct {
	resp   []models.ControlEvent
	err    error
	filter service.LogFilter
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.ControlEvent, error) {
	m.filter = f
	return m.resp, m.err
}

type mockHistory struct {
	resp  []models.SensorReading
	err   error
	query service.ReadingQuery
}

func (m *mockHistory) Readings(_ context.Context, q service.ReadingQuery) ([]models.SensorReading, error) {
	m.query = q
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service, opts ...Option) *gin.Engine {
	h := NewHandler(s, nil, opts...)
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

func withAuth(req *http.Request) *http.Request {
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	return req
}
