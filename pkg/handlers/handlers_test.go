package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"democrm-backend/pkg/config"
	"democrm-backend/pkg/database"
	"democrm-backend/pkg/events"
	"democrm-backend/pkg/mailer"
	"democrm-backend/pkg/models"
	"democrm-backend/pkg/seed"
	"democrm-backend/pkg/server"
	"democrm-backend/pkg/utils"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssistant struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	prompts  []string
	systems  []string
	jsonUsed bool
}

func (f *fakeAssistant) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeAssistant) CompleteJSON(ctx context.Context, system, user, schemaName string, schema json.RawMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.jsonUsed = true
	f.systems = append(f.systems, system)
	f.prompts = append(f.prompts, user)
	return f.reply, f.err
}

type testEnv struct {
	handler http.Handler
	db      *database.MemoryDatabase
	mail    *mailer.LogMailer
	ai      *fakeAssistant
	jwt     *utils.JWTService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Environment:    "test",
		Port:           "0",
		UseLocalDB:     true,
		JWTSecret:      "test-secret",
		BaseURL:        "http://crm.test",
		AllowedOrigins: []string{"*"},
	}
	db := database.NewMemoryDatabase()
	env := &testEnv{
		db:   db,
		mail: mailer.NewLogMailer(),
		ai:   &fakeAssistant{},
		jwt:  utils.NewJWTService(cfg.JWTSecret),
	}
	env.handler = server.NewRouter(&server.Dependencies{
		Config:    cfg,
		DB:        db,
		Mailer:    env.mail,
		Assistant: env.ai,
		Hub:       events.NewHub(cfg.AllowedOrigins),
		Seeder:    seed.NewSeeder(db, seed.WithFaker(gofakeit.New(11))),
	})
	return env
}

func (e *testEnv) user(t *testing.T, email string) (string, string) {
	t.Helper()
	u := &models.User{Email: email}
	require.NoError(t, e.db.CreateUser(context.Background(), u))
	token, _, _, err := e.jwt.GenerateTokenPair(u.ID)
	require.NoError(t, err)
	return u.ID, token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
}

func (e *testEnv) call(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (e *testEnv) createCompany(t *testing.T, token, name, email string) models.Company {
	t.Helper()
	rec, env := e.call(t, http.MethodPost, "/api/company/create", token, map[string]string{"name": name, "email": email})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[models.Company](t, env.Data)
}

func (e *testEnv) createClient(t *testing.T, token, email string, companyID *string) models.Client {
	t.Helper()
	rec, env := e.call(t, http.MethodPost, "/api/clients/create", token, map[string]interface{}{
		"firstName": "Ada", "lastName": "Lovelace", "email": email, "companyId": companyID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[models.Client](t, env.Data)
}

func TestProceduresRequireSession(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/api/clients/getAll", "/api/task/getUpcoming", "/api/ai/dailyPlan"} {
		rec, env := e.call(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		require.NotNil(t, env.Error)
		assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	}

	rec, _ := e.call(t, http.MethodPost, "/api/clients/create", "not-a-jwt", map[string]string{"firstName": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateClientValidatesInput(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(t, "owner@example.com")

	rec, env := e.call(t, http.MethodPost, "/api/clients/create", token, map[string]interface{}{
		"firstName": "", "lastName": "Lovelace", "email": "ada@example.com", "companyId": nil,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Details, "FirstName")
}

func TestCreateClientDuplicateEmail(t *testing.T) {
	e := newTestEnv(t)
	userID, token := e.user(t, "owner@example.com")

	e.createClient(t, token, "ada@example.com", nil)

	rec, env := e.call(t, http.MethodPost, "/api/clients/create", token, map[string]interface{}{
		"firstName": "Other", "lastName": "Person", "email": "ada@example.com", "companyId": nil,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
	assert.Equal(t, "Email is already in use.", env.Error.Message)

	clients, err := e.db.ListClients(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func TestCreateClientRejectsForeignCompany(t *testing.T) {
	e := newTestEnv(t)
	_, alice := e.user(t, "alice@example.com")
	_, bob := e.user(t, "bob@example.com")

	company := e.createCompany(t, alice, "Acme", "contact@acme.com")

	rec, env := e.call(t, http.MethodPost, "/api/clients/create", bob, map[string]interface{}{
		"firstName": "Eve", "lastName": "Spy", "email": "eve@example.com", "companyId": company.ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "company does not exist", env.Error.Message)
}

func TestForeignClientUpdateAndDelete(t *testing.T) {
	e := newTestEnv(t)
	aliceID, alice := e.user(t, "alice@example.com")
	_, bob := e.user(t, "bob@example.com")

	client := e.createClient(t, alice, "ada@example.com", nil)

	rec, env := e.call(t, http.MethodPost, "/api/clients/update", bob, map[string]interface{}{
		"id": client.ID, "firstName": "Hacked", "lastName": "X", "email": "x@example.com", "companyId": nil,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	rec, env = e.call(t, http.MethodPost, "/api/clients/delete", bob, map[string]string{"id": client.ID})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", string(env.Data))

	stored, err := e.db.GetClient(context.Background(), aliceID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", stored.FirstName)

	rec, env = e.call(t, http.MethodPost, "/api/clients/delete", alice, map[string]string{"id": client.ID})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, client.ID, decode[models.Client](t, env.Data).ID)
}

func TestClientsGetAllIsScopedToCaller(t *testing.T) {
	e := newTestEnv(t)
	_, alice := e.user(t, "alice@example.com")
	_, bob := e.user(t, "bob@example.com")

	company := e.createCompany(t, alice, "Acme", "contact@acme.com")
	e.createClient(t, alice, "ada@example.com", &company.ID)
	e.createClient(t, bob, "bob.client@example.com", nil)

	_, env := e.call(t, http.MethodGet, "/api/clients/getAll", alice, nil)
	clients := decode[[]models.ClientWithRelations](t, env.Data)
	require.Len(t, clients, 1)
	require.NotNil(t, clients[0].Company)
	assert.Equal(t, "Acme", clients[0].Company.Name)

	_, env = e.call(t, http.MethodGet, "/api/clients/getAvailable", alice, nil)
	assert.Empty(t, decode[[]models.ClientSummary](t, env.Data))

	_, env = e.call(t, http.MethodGet, "/api/company/getSelectCompanies", bob, nil)
	assert.Empty(t, decode[[]models.CompanyOption](t, env.Data))
}

func TestAddClientToCompany(t *testing.T) {
	e := newTestEnv(t)
	aliceID, alice := e.user(t, "alice@example.com")
	_, bob := e.user(t, "bob@example.com")

	company := e.createCompany(t, alice, "Acme", "contact@acme.com")
	client := e.createClient(t, alice, "ada@example.com", nil)
	bobClient := e.createClient(t, bob, "b@example.com", nil)

	rec, _ := e.call(t, http.MethodPost, "/api/company/addClientTo", alice, map[string]string{"id": company.ID, "clientId": bobClient.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.call(t, http.MethodPost, "/api/company/addClientTo", alice, map[string]string{"id": company.ID, "clientId": client.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := e.db.GetClient(context.Background(), aliceID, client.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CompanyID)
	assert.Equal(t, company.ID, *stored.CompanyID)
}

func TestCompanyDuplicateEmailOnUpdate(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(t, "owner@example.com")

	e.createCompany(t, token, "Acme", "contact@acme.com")
	other := e.createCompany(t, token, "Globex", "contact@globex.com")

	rec, env := e.call(t, http.MethodPost, "/api/company/update", token, map[string]string{
		"id": other.ID, "name": "Globex", "email": "contact@acme.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email is already in use.", env.Error.Message)
}

func date(day int) *time.Time {
	t := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestTaskGetUpcomingOrdering(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(t, "owner@example.com")
	company := e.createCompany(t, token, "Acme", "contact@acme.com")

	ctx := context.Background()
	dated := &models.Task{Title: "dated", Description: "d", DueDate: date(3), CompanyID: &company.ID}
	undated := &models.Task{Title: "undated", Description: "d", CompanyID: &company.ID}
	done := &models.Task{Title: "done", Description: "d", DueDate: date(1), CompanyID: &company.ID, CompletedTime: date(2)}
	for _, task := range []*models.Task{undated, dated, done} {
		require.NoError(t, e.db.CreateTask(ctx, task))
	}

	rec, env := e.call(t, http.MethodGet, "/api/task/getUpcoming", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decode[[]models.Task](t, env.Data)
	require.Len(t, tasks, 2)
	assert.Equal(t, "dated", tasks[0].Title)
	assert.Equal(t, "undated", tasks[1].Title)
	assert.Nil(t, tasks[1].DueDate)
}

func TestTaskCreateRequiresOwnedParent(t *testing.T) {
	e := newTestEnv(t)
	_, alice := e.user(t, "alice@example.com")
	_, bob := e.user(t, "bob@example.com")
	company := e.createCompany(t, alice, "Acme", "contact@acme.com")

	rec, env := e.call(t, http.MethodPost, "/api/task/create", alice, map[string]interface{}{
		"title": "t", "description": "d", "dueDate": nil,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	rec, _ = e.call(t, http.MethodPost, "/api/task/create", bob, map[string]interface{}{
		"title": "t", "description": "d", "companyId": company.ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = e.call(t, http.MethodPost, "/api/task/create", alice, map[string]interface{}{
		"title": "t", "description": "d", "dueDate": "2024-01-03T00:00:00Z", "companyId": company.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	task := decode[models.Task](t, env.Data)
	assert.NotEmpty(t, task.ID)
	assert.False(t, task.Complete())
}

func TestTaskUpdateKeepsOmittedParents(t *testing.T) {
	e := newTestEnv(t)
	userID, token := e.user(t, "owner@example.com")
	company := e.createCompany(t, token, "Acme", "contact@acme.com")
	client := e.createClient(t, token, "ada@example.com", &company.ID)

	task := &models.Task{Title: "t", Description: "d", ClientID: &client.ID, CompanyID: &company.ID}
	require.NoError(t, e.db.CreateTask(context.Background(), task))

	rec, env := e.call(t, http.MethodPost, "/api/task/update", token, map[string]interface{}{
		"id": task.ID, "title": "renamed", "description": "d2", "dueDate": nil,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.Task](t, env.Data)
	assert.Equal(t, "renamed", updated.Title)
	require.NotNil(t, updated.ClientID)
	require.NotNil(t, updated.CompanyID)
	assert.Equal(t, client.ID, *updated.ClientID)

	stored, err := e.db.GetTask(context.Background(), userID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "d2", stored.Description)
}

func TestTaskCompletion(t *testing.T) {
	e := newTestEnv(t)
	aliceID, alice := e.user(t, "alice@example.com")
	_, bob := e.user(t, "bob@example.com")
	aliceCompany := e.createCompany(t, alice, "Acme", "contact@acme.com")
	bobCompany := e.createCompany(t, bob, "Globex", "contact@globex.com")

	ctx := context.Background()
	mine := &models.Task{Title: "mine", Description: "d", CompanyID: &aliceCompany.ID}
	theirs := &models.Task{Title: "theirs", Description: "d", CompanyID: &bobCompany.ID}
	require.NoError(t, e.db.CreateTask(ctx, mine))
	require.NoError(t, e.db.CreateTask(ctx, theirs))

	rec, env := e.call(t, http.MethodPost, "/api/task/updateCompletions", alice, []map[string]interface{}{
		{"id": mine.ID, "complete": true},
		{"id": theirs.ID, "complete": true},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decode[[]models.CompletionResult](t, env.Data)
	assert.Equal(t, []models.CompletionResult{{ID: mine.ID, Count: 1}, {ID: theirs.ID, Count: 0}}, results)

	stored, err := e.db.GetTask(ctx, aliceID, mine.ID)
	require.NoError(t, err)
	assert.True(t, stored.Complete())

	rec, _ = e.call(t, http.MethodPost, "/api/task/updateCompletion", bob, map[string]interface{}{"id": mine.ID, "complete": false})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = e.call(t, http.MethodPost, "/api/task/updateCompletion", alice, map[string]interface{}{"id": mine.ID, "complete": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.Task](t, env.Data).Complete())
}

func TestClientTasksQueryInput(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(t, "owner@example.com")
	client := e.createClient(t, token, "ada@example.com", nil)
	require.NoError(t, e.db.CreateTask(context.Background(), &models.Task{Title: "t", Description: "d", ClientID: &client.ID}))

	rec, env := e.call(t, http.MethodGet, "/api/task/getClientTasks?id="+url.QueryEscape(client.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Task](t, env.Data), 1)

	rec, env = e.call(t, http.MethodGet, "/api/task/getClientTasks", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestMeetingCreate(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(t, "owner@example.com")
	client := e.createClient(t, token, "ada@example.com", nil)

	rec, env := e.call(t, http.MethodPost, "/api/meeting/create", token, map[string]interface{}{
		"title": "Kickoff", "clientId": client.ID, "time": "2020-01-01T10:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Meeting time must be in the future", env.Error.Message)

	tomorrow := time.Now().Add(48 * time.Hour).UTC().Truncate(24 * time.Hour)
	rec, env = e.call(t, http.MethodPost, "/api/meeting/create", token, map[string]interface{}{
		"title": "Kickoff", "clientId": client.ID, "date": tomorrow, "timeOfDay": "14:30",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	meeting := decode[models.Meeting](t, env.Data)
	assert.Equal(t, 14, meeting.Time.Hour())
	assert.Equal(t, 30, meeting.Time.Minute())

	rec, env = e.call(t, http.MethodGet, "/api/meeting/upcomingClient?clientId="+client.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	upcoming := decode[[]models.MeetingWithClient](t, env.Data)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "Ada", upcoming[0].Client.FirstName)

	rec, env = e.call(t, http.MethodPost, "/api/meeting/create", token, map[string]interface{}{
		"title": "Kickoff", "clientId": client.ID, "date": tomorrow, "timeOfDay": "25:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendEmail(t *testing.T) {
	e := newTestEnv(t)
	_, alice := e.user(t, "alice@example.com")
	_, bob := e.user(t, "bob@example.com")
	client := e.createClient(t, alice, "ada@example.com", nil)

	rec, env := e.call(t, http.MethodPost, "/api/clients/sendEmail", bob, map[string]string{"id": client.ID, "subject": "Hi", "body": "Hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "client does not exist", env.Error.Message)
	assert.Empty(t, e.mail.Sent())

	rec, _ = e.call(t, http.MethodPost, "/api/clients/sendEmail", alice, map[string]string{"id": client.ID, "subject": "Hi", "body": "Hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@example.com", sent[0].To)

	rec, env = e.call(t, http.MethodPost, "/api/company/sendEmail", alice, map[string]string{"id": "missing", "subject": "Hi", "body": "Hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "company does not exist", env.Error.Message)
}

func TestGenerateEmailNeedsRecipient(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(t, "owner@example.com")

	rec, env := e.call(t, http.MethodPost, "/api/ai/generateEmail", token, map[string]interface{}{"userPrompt": "say hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Need either a client or company id", env.Error.Message)
	assert.Zero(t, e.ai.calls)
}

func TestGenerateEmail(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(t, "owner@example.com")
	company := e.createCompany(t, token, "Acme", "contact@acme.com")
	client := e.createClient(t, token, "ada@example.com", &company.ID)

	e.ai.reply = `{"subject":"","body":"no subject"}`
	rec, env := e.call(t, http.MethodPost, "/api/ai/generateEmail", token, map[string]interface{}{
		"userPrompt": "say hi", "clientId": client.ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	e.ai.reply = `{"subject":"Hello","body":"Hi Ada"}`
	rec, env = e.call(t, http.MethodPost, "/api/ai/generateEmail", token, map[string]interface{}{
		"userPrompt": "say hi", "clientId": client.ID, "companyId": company.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.EmailDraft{Subject: "Hello", Body: "Hi Ada"}, decode[models.EmailDraft](t, env.Data))
	assert.True(t, e.ai.jsonUsed)
	assert.Contains(t, e.ai.systems[len(e.ai.systems)-1], "to the Client")
	assert.Equal(t, "say hi", e.ai.prompts[len(e.ai.prompts)-1])
}

func TestDailyPlan(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(t, "owner@example.com")
	client := e.createClient(t, token, "ada@example.com", nil)
	require.NoError(t, e.db.CreateTask(context.Background(), &models.Task{Title: "Prepare proposal", Description: "d", ClientID: &client.ID}))

	e.ai.reply = "Start with the proposal."
	rec, env := e.call(t, http.MethodGet, "/api/ai/dailyPlan", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Start with the proposal.", decode[string](t, env.Data))
	require.Len(t, e.ai.prompts, 1)
	assert.Contains(t, e.ai.prompts[0], "Prepare proposal")
}

func TestSeedDemo(t *testing.T) {
	e := newTestEnv(t)
	userID, token := e.user(t, "owner@example.com")

	rec, env := e.call(t, http.MethodPost, "/api/seed/seedDemo", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.SeedResult{Success: true, Message: "Seeded demo data for current user."}, decode[models.SeedResult](t, env.Data))

	clients, err := e.db.ListClients(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, clients, 2)
}

func magicLinkFrom(t *testing.T, msg mailer.Message) *url.URL {
	t.Helper()
	link := strings.TrimSuffix(strings.TrimPrefix(msg.Text, "Use "), " to sign in to DemoCRM")
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u
}

func TestMagicLinkSignIn(t *testing.T) {
	e := newTestEnv(t)

	rec, _ := e.call(t, http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "  New.User@Example.com "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "new.user@example.com", sent[0].To)
	assert.Equal(t, "Sign in to crm.test", sent[0].Subject)

	link := magicLinkFrom(t, sent[0])
	assert.Equal(t, "/api/auth/callback/email", link.Path)

	rec, env := e.call(t, http.MethodGet, link.RequestURI(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decode[models.SessionResponse](t, env.Data)
	assert.True(t, session.IsNewUser)
	assert.Equal(t, "new.user@example.com", session.User.Email)
	assert.NotNil(t, session.User.EmailVerified)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	// first sign in seeds the demo dataset
	clients, err := e.db.ListClients(context.Background(), session.User.ID)
	require.NoError(t, err)
	assert.Len(t, clients, 2)

	// tokens are single use
	rec, _ = e.call(t, http.MethodGet, link.RequestURI(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(cookie)
	sessionRec := httptest.NewRecorder()
	e.handler.ServeHTTP(sessionRec, req)
	require.Equal(t, http.StatusOK, sessionRec.Code)
	assert.Contains(t, sessionRec.Body.String(), `"email":"new.user@example.com"`)
}

func TestMagicLinkBrowserFailureRedirects(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback/email?token=bogus&email=a%40b.c", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?error=Verification", rec.Header().Get("Location"))
}

func TestSignInRejectsInvalidEmail(t *testing.T) {
	e := newTestEnv(t)

	rec, env := e.call(t, http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Empty(t, e.mail.Sent())
}

func TestRefreshToken(t *testing.T) {
	e := newTestEnv(t)
	userID, access := e.user(t, "owner@example.com")
	_, refresh, _, err := e.jwt.GenerateTokenPair(userID)
	require.NoError(t, err)

	rec, _ := e.call(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": access})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := e.call(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "access_token")
}

func TestDashboardRequiresSession(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user(t, "owner@example.com")

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/dashboard/clients", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No clients yet.")
}

func TestUnknownRoute(t *testing.T) {
	e := newTestEnv(t)
	rec, env := e.call(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
