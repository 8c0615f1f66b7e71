package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"democrm-backend/pkg/models"
)

// MemoryDatabase 内存数据库实现，用于本地开发与测试
//
// It mirrors the postgres constraints the handlers rely on: unique emails,
// ownership scoping and the referential actions of schema.sql.
type MemoryDatabase struct {
	mu        sync.RWMutex
	users     map[string]models.User
	tokens    map[string]models.VerificationToken
	clients   map[string]models.Client
	companies map[string]models.Company
	tasks     map[string]models.Task
	meetings  map[string]models.Meeting
}

// NewMemoryDatabase 创建内存数据库实例
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		users:     map[string]models.User{},
		tokens:    map[string]models.VerificationToken{},
		clients:   map[string]models.Client{},
		companies: map[string]models.Company{},
		tasks:     map[string]models.Task{},
		meetings:  map[string]models.Meeting{},
	}
}

// 用户管理

func (db *MemoryDatabase) CreateUser(ctx context.Context, user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == user.Email {
			return duplicate("create", "users", "email")
		}
	}
	user.ID = newID(user.ID)
	user.CreatedAt = stamp(user.CreatedAt)
	db.users[user.ID] = *user
	return nil
}

func (db *MemoryDatabase) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, notFound("get", "users")
}

func (db *MemoryDatabase) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return nil, notFound("get", "users")
	}
	return &u, nil
}

func (db *MemoryDatabase) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if u, ok := db.users[userID]; ok && u.EmailVerified == nil {
		u.EmailVerified = &at
		db.users[userID] = u
	}
	return nil
}

// 验证令牌

func (db *MemoryDatabase) CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.tokens[token.TokenHash]; ok {
		return duplicate("create", "verification_tokens", "token_hash")
	}
	db.tokens[token.TokenHash] = *token
	return nil
}

func (db *MemoryDatabase) ConsumeVerificationToken(ctx context.Context, identifier, tokenHash string) (*models.VerificationToken, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.tokens[tokenHash]
	if !ok || t.Identifier != identifier {
		return nil, notFound("consume", "verification_tokens")
	}
	delete(db.tokens, tokenHash)
	return &t, nil
}

func (db *MemoryDatabase) DeleteExpiredVerificationTokens(ctx context.Context, before time.Time) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var n int64
	for k, t := range db.tokens {
		if t.Expires.Before(before) {
			delete(db.tokens, k)
			n++
		}
	}
	return n, nil
}

// 客户管理

func (db *MemoryDatabase) clientEmailTaken(email, exceptID string) bool {
	for _, c := range db.clients {
		if c.Email == email && c.ID != exceptID {
			return true
		}
	}
	return false
}

func (db *MemoryDatabase) companyExists(id *string) bool {
	if id == nil {
		return true
	}
	_, ok := db.companies[*id]
	return ok
}

func (db *MemoryDatabase) CreateClient(ctx context.Context, client *models.Client) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.clientEmailTaken(client.Email, "") {
		return duplicate("create", "clients", "email")
	}
	if !db.companyExists(client.CompanyID) {
		return &Error{Op: "create", Table: "clients", Kind: KindForeignKey, Constraint: "clients_company_id_fkey"}
	}
	client.ID = newID(client.ID)
	client.DateAdded = stamp(client.DateAdded)
	db.clients[client.ID] = *client
	return nil
}

func (db *MemoryDatabase) UpdateClient(ctx context.Context, userID string, client *models.Client) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.clients[client.ID]
	if !ok || existing.UserID != userID {
		return notFound("update", "clients")
	}
	if db.clientEmailTaken(client.Email, client.ID) {
		return duplicate("update", "clients", "email")
	}
	if !db.companyExists(client.CompanyID) {
		return &Error{Op: "update", Table: "clients", Kind: KindForeignKey, Constraint: "clients_company_id_fkey"}
	}
	existing.FirstName = client.FirstName
	existing.LastName = client.LastName
	existing.Email = client.Email
	existing.CompanyID = client.CompanyID
	db.clients[client.ID] = existing
	*client = existing
	return nil
}

func (db *MemoryDatabase) DeleteClient(ctx context.Context, userID, id string) (*models.Client, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.clients[id]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	delete(db.clients, id)
	for tid, t := range db.tasks {
		if t.ClientID != nil && *t.ClientID == id {
			delete(db.tasks, tid)
		}
	}
	for mid, m := range db.meetings {
		if m.ClientID == id {
			delete(db.meetings, mid)
		}
	}
	return &c, nil
}

func (db *MemoryDatabase) GetClient(ctx context.Context, userID, id string) (*models.Client, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	c, ok := db.clients[id]
	if !ok || c.UserID != userID {
		return nil, notFound("get", "clients")
	}
	return &c, nil
}

func (db *MemoryDatabase) ListClients(ctx context.Context, userID string) ([]models.ClientWithRelations, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := []models.ClientWithRelations{}
	for _, c := range db.clients {
		if c.UserID != userID {
			continue
		}
		rel := models.ClientWithRelations{
			Client:   c,
			Tasks:    []models.Task{},
			Meetings: []models.MeetingWithClient{},
		}
		if c.CompanyID != nil {
			if co, ok := db.companies[*c.CompanyID]; ok {
				rel.Company = &co
			}
		}
		for _, t := range db.tasks {
			if t.ClientID != nil && *t.ClientID == c.ID {
				rel.Tasks = append(rel.Tasks, t)
			}
		}
		sortByDateAddedDesc(rel.Tasks)
		for _, m := range db.meetings {
			if m.ClientID == c.ID {
				rel.Meetings = append(rel.Meetings, models.MeetingWithClient{Meeting: m, Client: c})
			}
		}
		sort.SliceStable(rel.Meetings, func(i, j int) bool {
			return rel.Meetings[i].Time.Before(rel.Meetings[j].Time)
		})
		out = append(out, rel)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DateAdded.After(out[j].DateAdded)
	})
	return out, nil
}

func (db *MemoryDatabase) ListAvailableClients(ctx context.Context, userID string) ([]models.ClientSummary, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var clients []models.Client
	for _, c := range db.clients {
		if c.UserID == userID && c.CompanyID == nil {
			clients = append(clients, c)
		}
	}
	sort.SliceStable(clients, func(i, j int) bool {
		return clients[i].DateAdded.After(clients[j].DateAdded)
	})

	out := make([]models.ClientSummary, 0, len(clients))
	for _, c := range clients {
		out = append(out, models.ClientSummary{ID: c.ID, FirstName: c.FirstName, LastName: c.LastName})
	}
	return out, nil
}

// 公司管理

func (db *MemoryDatabase) companyEmailTaken(email, exceptID string) bool {
	for _, co := range db.companies {
		if co.Email == email && co.ID != exceptID {
			return true
		}
	}
	return false
}

func (db *MemoryDatabase) CreateCompany(ctx context.Context, company *models.Company) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.companyEmailTaken(company.Email, "") {
		return duplicate("create", "companies", "email")
	}
	company.ID = newID(company.ID)
	company.DateAdded = stamp(company.DateAdded)
	db.companies[company.ID] = *company
	return nil
}

func (db *MemoryDatabase) UpdateCompany(ctx context.Context, userID string, company *models.Company) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.companies[company.ID]
	if !ok || existing.UserID != userID {
		return notFound("update", "companies")
	}
	if db.companyEmailTaken(company.Email, company.ID) {
		return duplicate("update", "companies", "email")
	}
	existing.Name = company.Name
	existing.Email = company.Email
	db.companies[company.ID] = existing
	*company = existing
	return nil
}

func (db *MemoryDatabase) DeleteCompany(ctx context.Context, userID, id string) (*models.Company, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	co, ok := db.companies[id]
	if !ok || co.UserID != userID {
		return nil, nil
	}
	delete(db.companies, id)
	for cid, c := range db.clients {
		if c.CompanyID != nil && *c.CompanyID == id {
			c.CompanyID = nil
			db.clients[cid] = c
		}
	}
	for tid, t := range db.tasks {
		if t.CompanyID == nil || *t.CompanyID != id {
			continue
		}
		if t.ClientID == nil {
			delete(db.tasks, tid)
			continue
		}
		t.CompanyID = nil
		db.tasks[tid] = t
	}
	return &co, nil
}

func (db *MemoryDatabase) GetCompany(ctx context.Context, userID, id string) (*models.Company, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	co, ok := db.companies[id]
	if !ok || co.UserID != userID {
		return nil, notFound("get", "companies")
	}
	return &co, nil
}

func (db *MemoryDatabase) ListCompanies(ctx context.Context, userID string) ([]models.CompanyWithRelations, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := []models.CompanyWithRelations{}
	for _, co := range db.companies {
		if co.UserID != userID {
			continue
		}
		rel := models.CompanyWithRelations{
			Company: co,
			Tasks:   []models.Task{},
			Clients: []models.ClientSummary{},
		}
		for _, t := range db.tasks {
			if t.CompanyID != nil && *t.CompanyID == co.ID {
				rel.Tasks = append(rel.Tasks, t)
			}
		}
		sortByDateAddedDesc(rel.Tasks)

		var members []models.Client
		for _, c := range db.clients {
			if c.CompanyID != nil && *c.CompanyID == co.ID {
				members = append(members, c)
			}
		}
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].DateAdded.After(members[j].DateAdded)
		})
		for _, c := range members {
			rel.Clients = append(rel.Clients, models.ClientSummary{ID: c.ID, FirstName: c.FirstName, LastName: c.LastName})
		}
		out = append(out, rel)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DateAdded.After(out[j].DateAdded)
	})
	return out, nil
}

func (db *MemoryDatabase) ListCompanyOptions(ctx context.Context, userID string) ([]models.CompanyOption, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := []models.CompanyOption{}
	for _, co := range db.companies {
		if co.UserID == userID {
			out = append(out, models.CompanyOption{ID: co.ID, Name: co.Name})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (db *MemoryDatabase) AttachClient(ctx context.Context, userID, companyID, clientID string) (*models.Company, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	co, ok := db.companies[companyID]
	if !ok || co.UserID != userID {
		return nil, notFound("attach", "companies")
	}
	c, ok := db.clients[clientID]
	if !ok || c.UserID != userID {
		return nil, notFound("attach", "clients")
	}
	c.CompanyID = &co.ID
	db.clients[clientID] = c
	return &co, nil
}

// 任务管理

func (db *MemoryDatabase) taskOwnedBy(t models.Task, userID string) bool {
	if t.ClientID != nil {
		if c, ok := db.clients[*t.ClientID]; ok && c.UserID == userID {
			return true
		}
	}
	if t.CompanyID != nil {
		if co, ok := db.companies[*t.CompanyID]; ok && co.UserID == userID {
			return true
		}
	}
	return false
}

func (db *MemoryDatabase) checkTaskParents(op string, t *models.Task) error {
	if t.ClientID == nil && t.CompanyID == nil {
		return &Error{Op: op, Table: "tasks", Kind: KindOther, Constraint: "tasks_parent_check"}
	}
	if t.ClientID != nil {
		if _, ok := db.clients[*t.ClientID]; !ok {
			return &Error{Op: op, Table: "tasks", Kind: KindForeignKey, Constraint: "tasks_client_id_fkey"}
		}
	}
	if !db.companyExists(t.CompanyID) {
		return &Error{Op: op, Table: "tasks", Kind: KindForeignKey, Constraint: "tasks_company_id_fkey"}
	}
	return nil
}

func (db *MemoryDatabase) CreateTask(ctx context.Context, task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkTaskParents("create", task); err != nil {
		return err
	}
	task.ID = newID(task.ID)
	task.DateAdded = stamp(task.DateAdded)
	db.tasks[task.ID] = *task
	return nil
}

func (db *MemoryDatabase) UpdateTask(ctx context.Context, userID string, task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.tasks[task.ID]
	if !ok || !db.taskOwnedBy(existing, userID) {
		return notFound("update", "tasks")
	}
	if err := db.checkTaskParents("update", task); err != nil {
		return err
	}
	existing.Title = task.Title
	existing.Description = task.Description
	existing.DueDate = task.DueDate
	existing.ClientID = task.ClientID
	existing.CompanyID = task.CompanyID
	db.tasks[task.ID] = existing
	*task = existing
	return nil
}

func (db *MemoryDatabase) DeleteTask(ctx context.Context, userID, id string) (*models.Task, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.tasks[id]
	if !ok || !db.taskOwnedBy(t, userID) {
		return nil, nil
	}
	delete(db.tasks, id)
	return &t, nil
}

func (db *MemoryDatabase) GetTask(ctx context.Context, userID, id string) (*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, ok := db.tasks[id]
	if !ok || !db.taskOwnedBy(t, userID) {
		return nil, notFound("get", "tasks")
	}
	return &t, nil
}

func (db *MemoryDatabase) ListUpcomingTasks(ctx context.Context, userID string, limit int) ([]models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := []models.Task{}
	for _, t := range db.tasks {
		if t.CompletedTime == nil && db.taskOwnedBy(t, userID) {
			out = append(out, t)
		}
	}
	sortTasks(out, true)
	return truncate(out, limit), nil
}

func (db *MemoryDatabase) ListCompanyTasks(ctx context.Context, userID, companyID string) ([]models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := []models.Task{}
	if co, ok := db.companies[companyID]; !ok || co.UserID != userID {
		return out, nil
	}
	for _, t := range db.tasks {
		if t.CompanyID != nil && *t.CompanyID == companyID {
			out = append(out, t)
		}
	}
	sortTasks(out, false)
	return out, nil
}

func (db *MemoryDatabase) ListClientTasks(ctx context.Context, userID, clientID string) ([]models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := []models.Task{}
	if c, ok := db.clients[clientID]; !ok || c.UserID != userID {
		return out, nil
	}
	for _, t := range db.tasks {
		if t.ClientID != nil && *t.ClientID == clientID {
			out = append(out, t)
		}
	}
	sortTasks(out, false)
	return out, nil
}

func (db *MemoryDatabase) SetTaskCompletion(ctx context.Context, userID, id string, completedAt *time.Time) (*models.Task, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.tasks[id]
	if !ok || !db.taskOwnedBy(t, userID) {
		return nil, notFound("complete", "tasks")
	}
	t.CompletedTime = completedAt
	db.tasks[id] = t
	return &t, nil
}

func (db *MemoryDatabase) ListTaskContexts(ctx context.Context, userID string, limit int) ([]models.TaskContext, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var tasks []models.Task
	for _, t := range db.tasks {
		if db.taskOwnedBy(t, userID) {
			tasks = append(tasks, t)
		}
	}
	// postgres puts NULLs last for ASC by default
	sort.SliceStable(tasks, func(i, j int) bool {
		return dueBefore(tasks[i].DueDate, tasks[j].DueDate)
	})
	tasks = truncate(tasks, limit)

	out := make([]models.TaskContext, len(tasks))
	for i, t := range tasks {
		out[i] = models.TaskContext{Task: t}
		if t.ClientID != nil {
			if c, ok := db.clients[*t.ClientID]; ok {
				cc := db.clientContext(c)
				out[i].Client = &cc
			}
		}
	}
	return out, nil
}

func (db *MemoryDatabase) clientContext(c models.Client) models.ClientContext {
	cc := models.ClientContext{FirstName: c.FirstName, LastName: c.LastName}
	if c.CompanyID != nil {
		if co, ok := db.companies[*c.CompanyID]; ok {
			name := co.Name
			cc.CompanyName = &name
		}
	}
	return cc
}

// 会议管理

func (db *MemoryDatabase) CreateMeeting(ctx context.Context, meeting *models.Meeting) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.clients[meeting.ClientID]; !ok {
		return &Error{Op: "create", Table: "meetings", Kind: KindForeignKey, Constraint: "meetings_client_id_fkey"}
	}
	meeting.ID = newID(meeting.ID)
	meeting.DateAdded = stamp(meeting.DateAdded)
	db.meetings[meeting.ID] = *meeting
	return nil
}

func (db *MemoryDatabase) DeleteMeeting(ctx context.Context, userID, id string) (*models.Meeting, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.meetings[id]
	if !ok {
		return nil, nil
	}
	if c, ok := db.clients[m.ClientID]; !ok || c.UserID != userID {
		return nil, nil
	}
	delete(db.meetings, id)
	return &m, nil
}

func (db *MemoryDatabase) ListUpcomingMeetings(ctx context.Context, userID string, clientID *string, now time.Time, limit int) ([]models.MeetingWithClient, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := []models.MeetingWithClient{}
	for _, m := range db.meetings {
		c, ok := db.clients[m.ClientID]
		if !ok || c.UserID != userID || !m.Time.After(now) {
			continue
		}
		if clientID != nil && m.ClientID != *clientID {
			continue
		}
		out = append(out, models.MeetingWithClient{Meeting: m, Client: c})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (db *MemoryDatabase) ListMeetingContexts(ctx context.Context, userID string, limit int) ([]models.MeetingContext, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := []models.MeetingContext{}
	for _, m := range db.meetings {
		c, ok := db.clients[m.ClientID]
		if !ok || c.UserID != userID {
			continue
		}
		out = append(out, models.MeetingContext{Meeting: m, Client: db.clientContext(c)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (db *MemoryDatabase) HealthCheck() error {
	return nil
}

func (db *MemoryDatabase) Close() error {
	return nil
}

// dueBefore orders due dates ascending with nil last
func dueBefore(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}

// sortTasks orders by due date (ascending or descending, nil always last),
// then by date added, newest first.
func sortTasks(tasks []models.Task, ascending bool) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.DueDate == nil || b.DueDate == nil || !a.DueDate.Equal(*b.DueDate) {
			if a.DueDate == nil && b.DueDate == nil {
				return a.DateAdded.After(b.DateAdded)
			}
			if ascending {
				return dueBefore(a.DueDate, b.DueDate)
			}
			if a.DueDate == nil {
				return false
			}
			if b.DueDate == nil {
				return true
			}
			return a.DueDate.After(*b.DueDate)
		}
		return a.DateAdded.After(b.DateAdded)
	})
}

func sortByDateAddedDesc(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].DateAdded.After(tasks[j].DateAdded)
	})
}

func truncate(tasks []models.Task, limit int) []models.Task {
	if limit > 0 && len(tasks) > limit {
		return tasks[:limit]
	}
	return tasks
}
