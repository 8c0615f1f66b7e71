package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"democrm-backend/pkg/config"
	"democrm-backend/pkg/database"
	"democrm-backend/pkg/middleware"
	"democrm-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	userID string
	groups []string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *recordingNotifier) Publish(userID string, groups ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{userID: userID, groups: groups})
}

func (n *recordingNotifier) all() []published {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]published(nil), n.events...)
}

func asUser(userID string, body interface{}) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithUser(req.Context(), &models.User{ID: userID}))
}

func TestMutationsPublishInvalidations(t *testing.T) {
	cfg := &config.Config{Environment: "test"}
	db := database.NewMemoryDatabase()
	notifier := &recordingNotifier{}

	user := &models.User{Email: "owner@example.com"}
	require.NoError(t, db.CreateUser(context.Background(), user))

	clients := NewClientsHandler(cfg, db, notifier, nil)
	tasks := NewTaskHandler(cfg, db, notifier)

	rec := httptest.NewRecorder()
	clients.Create(rec, asUser(user.ID, map[string]interface{}{
		"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		Data models.Client `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	tasks.Create(rec, asUser(user.ID, map[string]interface{}{
		"title": "Call", "description": "Follow up", "clientId": created.Data.ID,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// a miss changes nothing and publishes nothing
	rec = httptest.NewRecorder()
	clients.Delete(rec, asUser(user.ID, map[string]string{"id": "missing"}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	clients.Delete(rec, asUser(user.ID, map[string]string{"id": created.Data.ID}))
	require.Equal(t, http.StatusOK, rec.Code)

	events := notifier.all()
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, user.ID, e.userID)
	}
	assert.Equal(t, []string{groupClients, groupCompany}, events[0].groups)
	assert.Contains(t, events[1].groups, groupTask)
	assert.ElementsMatch(t, []string{groupClients, groupCompany, groupTask, groupMeeting}, events[2].groups)
}

func TestUpdateCompletionsPublishesOnlyOnChange(t *testing.T) {
	cfg := &config.Config{Environment: "test"}
	db := database.NewMemoryDatabase()
	notifier := &recordingNotifier{}
	tasks := NewTaskHandler(cfg, db, notifier)

	rec := httptest.NewRecorder()
	tasks.UpdateCompletions(rec, asUser("nobody", []models.TaskCompletion{{ID: "missing", Complete: true}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, notifier.all())
}

func TestOptionalID(t *testing.T) {
	blank, id := "  ", "abc"
	assert.Nil(t, optionalID(nil))
	assert.Nil(t, optionalID(&blank))
	assert.Equal(t, &id, optionalID(&id))
}
