package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"democrm-backend/pkg/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db *sqlx.DB
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	userColumns    = "id, email, name, email_verified, created_at"
	clientColumns  = "id, first_name, last_name, email, company_id, user_id, date_added"
	companyColumns = "id, name, email, user_id, date_added"
	taskColumns    = "id, title, description, due_date, completed_time, date_added, client_id, company_id"
	meetingColumns = "id, title, time, date_added, client_id"
)

// NewPostgresDatabase 创建PostgreSQL数据库实例
func NewPostgresDatabase(dsn string) (*PostgresDatabase, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		dsn, // 最后尝试原始DSN
	}

	var err error
	for i, strategy := range strategies {
		fmt.Printf("🔄 Trying connection strategy %d...\n", i+1)

		var db *sqlx.DB
		db, err = sqlx.Open("postgres", strategy)
		if err != nil {
			fmt.Printf("❌ Strategy %d failed to open: %v\n", i+1, err)
			continue
		}

		// 设置连接池参数，适合无服务器环境
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			fmt.Printf("❌ Strategy %d failed to ping: %v\n", i+1, err)
			db.Close()
			continue
		}

		fmt.Printf("✅ PostgreSQL connection established successfully with strategy %d\n", i+1)
		return &PostgresDatabase{db: db}, nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", err)
}

// NewPostgresDatabaseWithDB wraps an already opened connection
func NewPostgresDatabaseWithDB(db *sqlx.DB) *PostgresDatabase {
	return &PostgresDatabase{db: db}
}

// addConnectionParams 添加连接参数到DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	// key=value DSNs take space separated params
	if !strings.Contains(dsn, "://") {
		return dsn + " " + strings.ReplaceAll(params, "&", " ")
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

// ownership predicates

func clientOwned(userID string) sq.Sqlizer {
	return sq.Eq{"user_id": userID}
}

func taskOwned(prefix, userID string) sq.Sqlizer {
	return sq.Expr(
		"("+prefix+"client_id IN (SELECT id FROM clients WHERE user_id = ?) OR "+
			prefix+"company_id IN (SELECT id FROM companies WHERE user_id = ?))",
		userID, userID,
	)
}

func meetingOwned(userID string) sq.Sqlizer {
	return sq.Expr("client_id IN (SELECT id FROM clients WHERE user_id = ?)", userID)
}

// query helpers

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

func get(ctx context.Context, q queryer, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

func selectAll(ctx context.Context, q queryer, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

func exec(ctx context.Context, q queryer, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// getOrNil runs a RETURNING statement and maps "no row" to (false, nil)
func getOrNil(ctx context.Context, q queryer, dest interface{}, b sq.Sqlizer) (bool, error) {
	err := get(ctx, q, dest, b)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func newID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// 用户管理

// CreateUser 创建用户
func (db *PostgresDatabase) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = newID(user.ID)
	user.CreatedAt = stamp(user.CreatedAt)

	_, err := exec(ctx, db.db, psql.Insert("users").
		Columns("id", "email", "name", "email_verified", "created_at").
		Values(user.ID, user.Email, user.Name, user.EmailVerified, user.CreatedAt))
	return translateError("create", "users", err)
}

// GetUserByEmail 根据邮箱获取用户
func (db *PostgresDatabase) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := get(ctx, db.db, &u, psql.Select(userColumns).From("users").Where(sq.Eq{"email": email}))
	if err != nil {
		return nil, translateError("get", "users", err)
	}
	return &u, nil
}

// GetUserByID 根据ID获取用户
func (db *PostgresDatabase) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := get(ctx, db.db, &u, psql.Select(userColumns).From("users").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, translateError("get", "users", err)
	}
	return &u, nil
}

// MarkEmailVerified 记录首次验证时间，已验证的用户保持不变
func (db *PostgresDatabase) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	_, err := exec(ctx, db.db, psql.Update("users").
		Set("email_verified", at).
		Where(sq.Eq{"id": userID, "email_verified": nil}))
	return translateError("verify", "users", err)
}

// 验证令牌

func (db *PostgresDatabase) CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	_, err := exec(ctx, db.db, psql.Insert("verification_tokens").
		Columns("identifier", "token_hash", "expires").
		Values(token.Identifier, token.TokenHash, token.Expires))
	return translateError("create", "verification_tokens", err)
}

func (db *PostgresDatabase) ConsumeVerificationToken(ctx context.Context, identifier, tokenHash string) (*models.VerificationToken, error) {
	var t models.VerificationToken
	err := get(ctx, db.db, &t, psql.Delete("verification_tokens").
		Where(sq.Eq{"identifier": identifier, "token_hash": tokenHash}).
		Suffix("RETURNING identifier, token_hash, expires"))
	if err != nil {
		return nil, translateError("consume", "verification_tokens", err)
	}
	return &t, nil
}

func (db *PostgresDatabase) DeleteExpiredVerificationTokens(ctx context.Context, before time.Time) (int64, error) {
	n, err := exec(ctx, db.db, psql.Delete("verification_tokens").Where(sq.Lt{"expires": before}))
	if err != nil {
		return 0, translateError("purge", "verification_tokens", err)
	}
	return n, nil
}

// 客户管理

// CreateClient 创建客户
func (db *PostgresDatabase) CreateClient(ctx context.Context, client *models.Client) error {
	client.ID = newID(client.ID)
	client.DateAdded = stamp(client.DateAdded)

	_, err := exec(ctx, db.db, psql.Insert("clients").
		Columns("id", "first_name", "last_name", "email", "company_id", "user_id", "date_added").
		Values(client.ID, client.FirstName, client.LastName, client.Email, client.CompanyID, client.UserID, client.DateAdded))
	return translateError("create", "clients", err)
}

// UpdateClient 更新客户（按 id 与所有者匹配）
func (db *PostgresDatabase) UpdateClient(ctx context.Context, userID string, client *models.Client) error {
	err := get(ctx, db.db, client, psql.Update("clients").
		Set("first_name", client.FirstName).
		Set("last_name", client.LastName).
		Set("email", client.Email).
		Set("company_id", client.CompanyID).
		Where(sq.Eq{"id": client.ID}).
		Where(clientOwned(userID)).
		Suffix("RETURNING "+clientColumns))
	return translateError("update", "clients", err)
}

// DeleteClient 删除客户；未命中时返回 nil
func (db *PostgresDatabase) DeleteClient(ctx context.Context, userID, id string) (*models.Client, error) {
	var c models.Client
	found, err := getOrNil(ctx, db.db, &c, psql.Delete("clients").
		Where(sq.Eq{"id": id}).
		Where(clientOwned(userID)).
		Suffix("RETURNING "+clientColumns))
	if err != nil || !found {
		return nil, translateError("delete", "clients", err)
	}
	return &c, nil
}

// GetClient 获取单个客户
func (db *PostgresDatabase) GetClient(ctx context.Context, userID, id string) (*models.Client, error) {
	var c models.Client
	err := get(ctx, db.db, &c, psql.Select(clientColumns).From("clients").
		Where(sq.Eq{"id": id}).
		Where(clientOwned(userID)))
	if err != nil {
		return nil, translateError("get", "clients", err)
	}
	return &c, nil
}

// ListClients 获取客户及其公司、任务与会议
func (db *PostgresDatabase) ListClients(ctx context.Context, userID string) ([]models.ClientWithRelations, error) {
	var clients []models.Client
	if err := selectAll(ctx, db.db, &clients, psql.Select(clientColumns).From("clients").
		Where(clientOwned(userID)).
		OrderBy("date_added DESC")); err != nil {
		return nil, translateError("list", "clients", err)
	}

	result := make([]models.ClientWithRelations, len(clients))
	if len(clients) == 0 {
		return result, nil
	}

	clientIDs := make([]string, 0, len(clients))
	companyIDs := make([]string, 0)
	for _, c := range clients {
		clientIDs = append(clientIDs, c.ID)
		if c.CompanyID != nil {
			companyIDs = append(companyIDs, *c.CompanyID)
		}
	}

	companies := map[string]models.Company{}
	if len(companyIDs) > 0 {
		var rows []models.Company
		if err := selectAll(ctx, db.db, &rows, psql.Select(companyColumns).From("companies").
			Where(sq.Eq{"id": companyIDs})); err != nil {
			return nil, translateError("list", "companies", err)
		}
		for _, co := range rows {
			companies[co.ID] = co
		}
	}

	var tasks []models.Task
	if err := selectAll(ctx, db.db, &tasks, psql.Select(taskColumns).From("tasks").
		Where(sq.Eq{"client_id": clientIDs}).
		OrderBy("date_added DESC")); err != nil {
		return nil, translateError("list", "tasks", err)
	}
	tasksByClient := map[string][]models.Task{}
	for _, t := range tasks {
		tasksByClient[*t.ClientID] = append(tasksByClient[*t.ClientID], t)
	}

	var meetings []models.MeetingWithClient
	if err := selectAll(ctx, db.db, &meetings, meetingWithClientQuery().
		Where(sq.Eq{"m.client_id": clientIDs}).
		OrderBy("m.time ASC")); err != nil {
		return nil, translateError("list", "meetings", err)
	}
	meetingsByClient := map[string][]models.MeetingWithClient{}
	for _, m := range meetings {
		meetingsByClient[m.ClientID] = append(meetingsByClient[m.ClientID], m)
	}

	for i, c := range clients {
		result[i] = models.ClientWithRelations{
			Client:   c,
			Tasks:    nonNilTasks(tasksByClient[c.ID]),
			Meetings: nonNilMeetings(meetingsByClient[c.ID]),
		}
		if c.CompanyID != nil {
			if co, ok := companies[*c.CompanyID]; ok {
				co := co
				result[i].Company = &co
			}
		}
	}
	return result, nil
}

// ListAvailableClients 获取未关联公司的客户
func (db *PostgresDatabase) ListAvailableClients(ctx context.Context, userID string) ([]models.ClientSummary, error) {
	out := []models.ClientSummary{}
	err := selectAll(ctx, db.db, &out, psql.Select("id", "first_name", "last_name").From("clients").
		Where(clientOwned(userID)).
		Where(sq.Eq{"company_id": nil}).
		OrderBy("date_added DESC"))
	if err != nil {
		return nil, translateError("list", "clients", err)
	}
	return out, nil
}

// 公司管理

// CreateCompany 创建公司
func (db *PostgresDatabase) CreateCompany(ctx context.Context, company *models.Company) error {
	company.ID = newID(company.ID)
	company.DateAdded = stamp(company.DateAdded)

	_, err := exec(ctx, db.db, psql.Insert("companies").
		Columns("id", "name", "email", "user_id", "date_added").
		Values(company.ID, company.Name, company.Email, company.UserID, company.DateAdded))
	return translateError("create", "companies", err)
}

// UpdateCompany 更新公司
func (db *PostgresDatabase) UpdateCompany(ctx context.Context, userID string, company *models.Company) error {
	err := get(ctx, db.db, company, psql.Update("companies").
		Set("name", company.Name).
		Set("email", company.Email).
		Where(sq.Eq{"id": company.ID, "user_id": userID}).
		Suffix("RETURNING "+companyColumns))
	return translateError("update", "companies", err)
}

// DeleteCompany 删除公司。仅属于该公司的任务一并删除，同时挂在客户下的任务保留。
func (db *PostgresDatabase) DeleteCompany(ctx context.Context, userID, id string) (*models.Company, error) {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, translateError("delete", "companies", err)
	}
	defer tx.Rollback()

	if _, err := exec(ctx, tx, psql.Delete("tasks").
		Where(sq.Eq{"company_id": id, "client_id": nil}).
		Where(sq.Expr("company_id IN (SELECT id FROM companies WHERE user_id = ?)", userID))); err != nil {
		return nil, translateError("delete", "tasks", err)
	}

	var co models.Company
	found, err := getOrNil(ctx, tx, &co, psql.Delete("companies").
		Where(sq.Eq{"id": id, "user_id": userID}).
		Suffix("RETURNING "+companyColumns))
	if err != nil || !found {
		return nil, translateError("delete", "companies", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError("delete", "companies", err)
	}
	return &co, nil
}

// GetCompany 获取单个公司
func (db *PostgresDatabase) GetCompany(ctx context.Context, userID, id string) (*models.Company, error) {
	var co models.Company
	err := get(ctx, db.db, &co, psql.Select(companyColumns).From("companies").
		Where(sq.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return nil, translateError("get", "companies", err)
	}
	return &co, nil
}

type companyClientRow struct {
	models.ClientSummary
	CompanyID string `db:"company_id"`
}

// ListCompanies 获取公司及其任务与客户
func (db *PostgresDatabase) ListCompanies(ctx context.Context, userID string) ([]models.CompanyWithRelations, error) {
	var companies []models.Company
	if err := selectAll(ctx, db.db, &companies, psql.Select(companyColumns).From("companies").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("date_added DESC")); err != nil {
		return nil, translateError("list", "companies", err)
	}

	result := make([]models.CompanyWithRelations, len(companies))
	if len(companies) == 0 {
		return result, nil
	}

	ids := make([]string, len(companies))
	for i, co := range companies {
		ids[i] = co.ID
	}

	var tasks []models.Task
	if err := selectAll(ctx, db.db, &tasks, psql.Select(taskColumns).From("tasks").
		Where(sq.Eq{"company_id": ids}).
		OrderBy("date_added DESC")); err != nil {
		return nil, translateError("list", "tasks", err)
	}
	tasksByCompany := map[string][]models.Task{}
	for _, t := range tasks {
		tasksByCompany[*t.CompanyID] = append(tasksByCompany[*t.CompanyID], t)
	}

	var clients []companyClientRow
	if err := selectAll(ctx, db.db, &clients, psql.Select("id", "first_name", "last_name", "company_id").From("clients").
		Where(sq.Eq{"company_id": ids}).
		OrderBy("date_added DESC")); err != nil {
		return nil, translateError("list", "clients", err)
	}
	clientsByCompany := map[string][]models.ClientSummary{}
	for _, c := range clients {
		clientsByCompany[c.CompanyID] = append(clientsByCompany[c.CompanyID], c.ClientSummary)
	}

	for i, co := range companies {
		cs := clientsByCompany[co.ID]
		if cs == nil {
			cs = []models.ClientSummary{}
		}
		result[i] = models.CompanyWithRelations{
			Company: co,
			Tasks:   nonNilTasks(tasksByCompany[co.ID]),
			Clients: cs,
		}
	}
	return result, nil
}

// ListCompanyOptions 获取公司下拉选项
func (db *PostgresDatabase) ListCompanyOptions(ctx context.Context, userID string) ([]models.CompanyOption, error) {
	out := []models.CompanyOption{}
	err := selectAll(ctx, db.db, &out, psql.Select("id", "name").From("companies").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("name ASC"))
	if err != nil {
		return nil, translateError("list", "companies", err)
	}
	return out, nil
}

// AttachClient 将客户关联到公司，两者都必须属于当前用户
func (db *PostgresDatabase) AttachClient(ctx context.Context, userID, companyID, clientID string) (*models.Company, error) {
	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, translateError("attach", "companies", err)
	}
	defer tx.Rollback()

	var co models.Company
	if err := get(ctx, tx, &co, psql.Select(companyColumns).From("companies").
		Where(sq.Eq{"id": companyID, "user_id": userID})); err != nil {
		return nil, translateError("attach", "companies", err)
	}

	n, err := exec(ctx, tx, psql.Update("clients").
		Set("company_id", companyID).
		Where(sq.Eq{"id": clientID}).
		Where(clientOwned(userID)))
	if err != nil {
		return nil, translateError("attach", "clients", err)
	}
	if n == 0 {
		return nil, notFound("attach", "clients")
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError("attach", "companies", err)
	}
	return &co, nil
}

// 任务管理

// CreateTask 创建任务
func (db *PostgresDatabase) CreateTask(ctx context.Context, task *models.Task) error {
	task.ID = newID(task.ID)
	task.DateAdded = stamp(task.DateAdded)

	_, err := exec(ctx, db.db, psql.Insert("tasks").
		Columns("id", "title", "description", "due_date", "completed_time", "date_added", "client_id", "company_id").
		Values(task.ID, task.Title, task.Description, task.DueDate, task.CompletedTime, task.DateAdded, task.ClientID, task.CompanyID))
	return translateError("create", "tasks", err)
}

// UpdateTask 更新任务
func (db *PostgresDatabase) UpdateTask(ctx context.Context, userID string, task *models.Task) error {
	err := get(ctx, db.db, task, psql.Update("tasks").
		Set("title", task.Title).
		Set("description", task.Description).
		Set("due_date", task.DueDate).
		Set("client_id", task.ClientID).
		Set("company_id", task.CompanyID).
		Where(sq.Eq{"id": task.ID}).
		Where(taskOwned("", userID)).
		Suffix("RETURNING "+taskColumns))
	return translateError("update", "tasks", err)
}

// DeleteTask 删除任务；未命中时返回 nil
func (db *PostgresDatabase) DeleteTask(ctx context.Context, userID, id string) (*models.Task, error) {
	var t models.Task
	found, err := getOrNil(ctx, db.db, &t, psql.Delete("tasks").
		Where(sq.Eq{"id": id}).
		Where(taskOwned("", userID)).
		Suffix("RETURNING "+taskColumns))
	if err != nil || !found {
		return nil, translateError("delete", "tasks", err)
	}
	return &t, nil
}

// GetTask 获取单个任务
func (db *PostgresDatabase) GetTask(ctx context.Context, userID, id string) (*models.Task, error) {
	var t models.Task
	err := get(ctx, db.db, &t, psql.Select(taskColumns).From("tasks").
		Where(sq.Eq{"id": id}).
		Where(taskOwned("", userID)))
	if err != nil {
		return nil, translateError("get", "tasks", err)
	}
	return &t, nil
}

// ListUpcomingTasks 获取未完成任务，无截止日期的排在最后
func (db *PostgresDatabase) ListUpcomingTasks(ctx context.Context, userID string, limit int) ([]models.Task, error) {
	out := []models.Task{}
	err := selectAll(ctx, db.db, &out, psql.Select(taskColumns).From("tasks").
		Where(taskOwned("", userID)).
		Where(sq.Eq{"completed_time": nil}).
		OrderBy("due_date ASC NULLS LAST", "date_added DESC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, translateError("list", "tasks", err)
	}
	return out, nil
}

// ListCompanyTasks 获取公司下的任务
func (db *PostgresDatabase) ListCompanyTasks(ctx context.Context, userID, companyID string) ([]models.Task, error) {
	out := []models.Task{}
	err := selectAll(ctx, db.db, &out, psql.Select(taskColumns).From("tasks").
		Where(sq.Eq{"company_id": companyID}).
		Where(sq.Expr("company_id IN (SELECT id FROM companies WHERE user_id = ?)", userID)).
		OrderBy("due_date DESC NULLS LAST", "date_added DESC"))
	if err != nil {
		return nil, translateError("list", "tasks", err)
	}
	return out, nil
}

// ListClientTasks 获取客户下的任务
func (db *PostgresDatabase) ListClientTasks(ctx context.Context, userID, clientID string) ([]models.Task, error) {
	out := []models.Task{}
	err := selectAll(ctx, db.db, &out, psql.Select(taskColumns).From("tasks").
		Where(sq.Eq{"client_id": clientID}).
		Where(sq.Expr("client_id IN (SELECT id FROM clients WHERE user_id = ?)", userID)).
		OrderBy("due_date DESC NULLS LAST", "date_added DESC"))
	if err != nil {
		return nil, translateError("list", "tasks", err)
	}
	return out, nil
}

// SetTaskCompletion 设置或清除任务完成时间
func (db *PostgresDatabase) SetTaskCompletion(ctx context.Context, userID, id string, completedAt *time.Time) (*models.Task, error) {
	var t models.Task
	err := get(ctx, db.db, &t, psql.Update("tasks").
		Set("completed_time", completedAt).
		Where(sq.Eq{"id": id}).
		Where(taskOwned("", userID)).
		Suffix("RETURNING "+taskColumns))
	if err != nil {
		return nil, translateError("complete", "tasks", err)
	}
	return &t, nil
}

type taskContextRow struct {
	models.Task
	ClientFirstName *string `db:"client_first_name"`
	ClientLastName  *string `db:"client_last_name"`
	CompanyName     *string `db:"company_name"`
}

// ListTaskContexts 获取任务及其客户与公司名称（用于每日计划）
func (db *PostgresDatabase) ListTaskContexts(ctx context.Context, userID string, limit int) ([]models.TaskContext, error) {
	var rows []taskContextRow
	err := selectAll(ctx, db.db, &rows, psql.Select(
		"t.id", "t.title", "t.description", "t.due_date", "t.completed_time", "t.date_added", "t.client_id", "t.company_id",
		"c.first_name AS client_first_name", "c.last_name AS client_last_name", "co.name AS company_name",
	).From("tasks t").
		LeftJoin("clients c ON c.id = t.client_id").
		LeftJoin("companies co ON co.id = c.company_id").
		Where(taskOwned("t.", userID)).
		OrderBy("t.due_date ASC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, translateError("list", "tasks", err)
	}

	out := make([]models.TaskContext, len(rows))
	for i, r := range rows {
		out[i] = models.TaskContext{Task: r.Task}
		if r.ClientFirstName != nil {
			out[i].Client = &models.ClientContext{
				FirstName:   *r.ClientFirstName,
				LastName:    deref(r.ClientLastName),
				CompanyName: r.CompanyName,
			}
		}
	}
	return out, nil
}

// 会议管理

// CreateMeeting 创建会议
func (db *PostgresDatabase) CreateMeeting(ctx context.Context, meeting *models.Meeting) error {
	meeting.ID = newID(meeting.ID)
	meeting.DateAdded = stamp(meeting.DateAdded)

	_, err := exec(ctx, db.db, psql.Insert("meetings").
		Columns("id", "title", "time", "date_added", "client_id").
		Values(meeting.ID, meeting.Title, meeting.Time, meeting.DateAdded, meeting.ClientID))
	return translateError("create", "meetings", err)
}

// DeleteMeeting 删除会议；未命中时返回 nil
func (db *PostgresDatabase) DeleteMeeting(ctx context.Context, userID, id string) (*models.Meeting, error) {
	var m models.Meeting
	found, err := getOrNil(ctx, db.db, &m, psql.Delete("meetings").
		Where(sq.Eq{"id": id}).
		Where(meetingOwned(userID)).
		Suffix("RETURNING "+meetingColumns))
	if err != nil || !found {
		return nil, translateError("delete", "meetings", err)
	}
	return &m, nil
}

func meetingWithClientQuery() sq.SelectBuilder {
	return psql.Select(
		"m.id", "m.title", "m.time", "m.date_added", "m.client_id",
		`c.id AS "client.id"`,
		`c.first_name AS "client.first_name"`,
		`c.last_name AS "client.last_name"`,
		`c.email AS "client.email"`,
		`c.company_id AS "client.company_id"`,
		`c.user_id AS "client.user_id"`,
		`c.date_added AS "client.date_added"`,
	).From("meetings m").
		Join("clients c ON c.id = m.client_id")
}

// ListUpcomingMeetings 获取即将到来的会议
func (db *PostgresDatabase) ListUpcomingMeetings(ctx context.Context, userID string, clientID *string, now time.Time, limit int) ([]models.MeetingWithClient, error) {
	q := meetingWithClientQuery().
		Where(sq.Eq{"c.user_id": userID}).
		Where(sq.Gt{"m.time": now})
	if clientID != nil {
		q = q.Where(sq.Eq{"m.client_id": *clientID})
	}

	out := []models.MeetingWithClient{}
	if err := selectAll(ctx, db.db, &out, q.OrderBy("m.time ASC").Limit(uint64(limit))); err != nil {
		return nil, translateError("list", "meetings", err)
	}
	return out, nil
}

type meetingContextRow struct {
	models.Meeting
	ClientFirstName string  `db:"client_first_name"`
	ClientLastName  string  `db:"client_last_name"`
	CompanyName     *string `db:"company_name"`
}

// ListMeetingContexts 获取会议及其客户信息（用于每日计划）
func (db *PostgresDatabase) ListMeetingContexts(ctx context.Context, userID string, limit int) ([]models.MeetingContext, error) {
	var rows []meetingContextRow
	err := selectAll(ctx, db.db, &rows, psql.Select(
		"m.id", "m.title", "m.time", "m.date_added", "m.client_id",
		"c.first_name AS client_first_name", "c.last_name AS client_last_name", "co.name AS company_name",
	).From("meetings m").
		Join("clients c ON c.id = m.client_id").
		LeftJoin("companies co ON co.id = c.company_id").
		Where(sq.Eq{"c.user_id": userID}).
		OrderBy("m.time ASC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, translateError("list", "meetings", err)
	}

	out := make([]models.MeetingContext, len(rows))
	for i, r := range rows {
		out[i] = models.MeetingContext{
			Meeting: r.Meeting,
			Client: models.ClientContext{
				FirstName:   r.ClientFirstName,
				LastName:    r.ClientLastName,
				CompanyName: r.CompanyName,
			},
		}
	}
	return out, nil
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.db.PingContext(ctx)
}

// Close 关闭数据库连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}

func nonNilTasks(t []models.Task) []models.Task {
	if t == nil {
		return []models.Task{}
	}
	return t
}

func nonNilMeetings(m []models.MeetingWithClient) []models.MeetingWithClient {
	if m == nil {
		return []models.MeetingWithClient{}
	}
	return m
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
