package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"democrm-backend/pkg/models"
)

// DatabaseInterface 定义数据库访问接口
//
// Every method that touches clients, companies, tasks or meetings takes the
// caller's user id and scopes the statement to rows that user owns. A row
// owned by someone else behaves exactly like a missing row.
type DatabaseInterface interface {
	// 用户管理
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error

	// Magic-link verification tokens
	CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error
	// ConsumeVerificationToken deletes and returns the matching token, so a
	// token can be redeemed at most once. Expiry is checked by the caller.
	ConsumeVerificationToken(ctx context.Context, identifier, tokenHash string) (*models.VerificationToken, error)
	DeleteExpiredVerificationTokens(ctx context.Context, before time.Time) (int64, error)

	// Clients
	CreateClient(ctx context.Context, client *models.Client) error
	UpdateClient(ctx context.Context, userID string, client *models.Client) error
	DeleteClient(ctx context.Context, userID, id string) (*models.Client, error)
	GetClient(ctx context.Context, userID, id string) (*models.Client, error)
	ListClients(ctx context.Context, userID string) ([]models.ClientWithRelations, error)
	ListAvailableClients(ctx context.Context, userID string) ([]models.ClientSummary, error)

	// Companies
	CreateCompany(ctx context.Context, company *models.Company) error
	UpdateCompany(ctx context.Context, userID string, company *models.Company) error
	DeleteCompany(ctx context.Context, userID, id string) (*models.Company, error)
	GetCompany(ctx context.Context, userID, id string) (*models.Company, error)
	ListCompanies(ctx context.Context, userID string) ([]models.CompanyWithRelations, error)
	ListCompanyOptions(ctx context.Context, userID string) ([]models.CompanyOption, error)
	AttachClient(ctx context.Context, userID, companyID, clientID string) (*models.Company, error)

	// Tasks
	CreateTask(ctx context.Context, task *models.Task) error
	UpdateTask(ctx context.Context, userID string, task *models.Task) error
	DeleteTask(ctx context.Context, userID, id string) (*models.Task, error)
	GetTask(ctx context.Context, userID, id string) (*models.Task, error)
	ListUpcomingTasks(ctx context.Context, userID string, limit int) ([]models.Task, error)
	ListCompanyTasks(ctx context.Context, userID, companyID string) ([]models.Task, error)
	ListClientTasks(ctx context.Context, userID, clientID string) ([]models.Task, error)
	// SetTaskCompletion sets completed_time to completedAt, or clears it when nil
	SetTaskCompletion(ctx context.Context, userID, id string, completedAt *time.Time) (*models.Task, error)
	ListTaskContexts(ctx context.Context, userID string, limit int) ([]models.TaskContext, error)

	// Meetings
	CreateMeeting(ctx context.Context, meeting *models.Meeting) error
	DeleteMeeting(ctx context.Context, userID, id string) (*models.Meeting, error)
	// ListUpcomingMeetings returns meetings after now, optionally limited to one client
	ListUpcomingMeetings(ctx context.Context, userID string, clientID *string, now time.Time, limit int) ([]models.MeetingWithClient, error)
	ListMeetingContexts(ctx context.Context, userID string, limit int) ([]models.MeetingContext, error)

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	UseLocalDB  bool
	PostgresDSN string
	Debug       bool
}

// NewDatabase 根据环境与配置选择数据库实现
func NewDatabase(config DatabaseConfig) (DatabaseInterface, error) {
	if config.UseLocalDB {
		if isVercelEnvironment() {
			return nil, fmt.Errorf("in-memory database is not supported in serverless environments, set POSTGRES_DSN")
		}
		fmt.Printf("🧰  Using in-memory database\n")
		return NewMemoryDatabase(), nil
	}

	if config.PostgresDSN != "" {
		if isVercelEnvironment() {
			fmt.Printf("🧭 Detected Vercel production environment\n")
		}
		fmt.Printf("🗄️  Using PostgreSQL database\n")
		db, err := NewPostgresDatabase(config.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	return nil, fmt.Errorf("no valid database configuration found, configure POSTGRES_DSN or USE_LOCAL_DB")
}

// isVercelEnvironment 内部检查 Vercel 环境
func isVercelEnvironment() bool {
	vercelEnv := os.Getenv("VERCEL_ENV")
	vercelURL := os.Getenv("VERCEL_URL")
	awsLambda := os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
	return vercelEnv != "" || vercelURL != "" || awsLambda != ""
}
