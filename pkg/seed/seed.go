// Package seed fills a new account with a small randomized demo dataset:
// one company, two clients, their tasks and upcoming meetings.
package seed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"democrm-backend/pkg/database"
	"democrm-backend/pkg/models"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"golang.org/x/sync/errgroup"
)

// Store is the part of the record store the seeder writes to
type Store interface {
	CreateCompany(ctx context.Context, company *models.Company) error
	CreateClient(ctx context.Context, client *models.Client) error
	CreateTask(ctx context.Context, task *models.Task) error
	CreateMeeting(ctx context.Context, meeting *models.Meeting) error
}

type taskTemplate struct {
	Title       string
	Description string
}

var taskBank = []taskTemplate{
	{"Follow up with client", "Send a follow-up email regarding the last meeting discussion."},
	{"Prepare proposal", "Draft and review the project proposal for the new client."},
	{"Team sync meeting", "Schedule and prepare agenda for internal team sync."},
	{"Review quarterly report", "Analyze financial and performance metrics from Q2."},
	{"Client onboarding", "Initiate onboarding process for the newly signed client."},
	{"Update CRM records", "Ensure all client details and notes are updated in the system."},
	{"Design mockups", "Create visual mockups for the new landing page."},
	{"Resolve support tickets", "Clear the backlog of high-priority customer issues."},
	{"Finalize marketing assets", "Finish review and approval of campaign materials."},
	{"Schedule 1:1 meetings", "Set up individual check-ins with team members."},
}

const (
	clientsPerCompany = 2
	taskWindow        = 10 * 24 * time.Hour
	meetingWindow     = 15 * 24 * time.Hour
	maxEmailAttempts  = 3
)

// Summary reports what one Seed call created
type Summary struct {
	CompanyID string
	Clients   int
	Tasks     int
	Meetings  int
}

// Seeder creates demo data. It is safe for concurrent use.
type Seeder struct {
	store       Store
	mu          sync.Mutex
	faker       *gofakeit.Faker
	now         func() time.Time
	concurrency int
}

// Option configures a Seeder
type Option func(*Seeder)

// WithFaker uses f as the randomness source, e.g. gofakeit.New(42) in tests
func WithFaker(f *gofakeit.Faker) Option {
	return func(s *Seeder) { s.faker = f }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Seeder) { s.now = now }
}

// WithConcurrency bounds the number of inserts in flight
func WithConcurrency(n int) Option {
	return func(s *Seeder) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewSeeder 创建演示数据生成器
func NewSeeder(store Store, opts ...Option) *Seeder {
	s := &Seeder{
		store:       store,
		faker:       gofakeit.New(0),
		now:         time.Now,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type clientPlan struct {
	client   models.Client
	tasks    []models.Task
	meetings []models.Meeting
}

type plan struct {
	company      models.Company
	companyTasks []models.Task
	clients      []clientPlan
}

// Seed creates a company, its clients, tasks and meetings for userID
func (s *Seeder) Seed(ctx context.Context, userID string) (*Summary, error) {
	p := s.plan(userID)

	if err := s.createCompany(ctx, &p.company); err != nil {
		return nil, err
	}

	// clients first: their tasks and meetings reference them
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range p.clients {
		cp := &p.clients[i]
		g.Go(func() error {
			return s.createClient(gctx, &cp.client)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{CompanyID: p.company.ID, Clients: len(p.clients)}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	insertTask := func(t models.Task) {
		g.Go(func() error {
			if err := s.store.CreateTask(gctx, &t); err != nil {
				return fmt.Errorf("failed to seed task: %w", err)
			}
			return nil
		})
	}
	for _, t := range p.companyTasks {
		insertTask(t)
		summary.Tasks++
	}
	for _, cp := range p.clients {
		for _, t := range cp.tasks {
			insertTask(t)
			summary.Tasks++
		}
		for _, m := range cp.meetings {
			m := m
			g.Go(func() error {
				if err := s.store.CreateMeeting(gctx, &m); err != nil {
					return fmt.Errorf("failed to seed meeting: %w", err)
				}
				return nil
			})
			summary.Meetings++
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summary, nil
}

// plan draws every random value up front; the faker is not safe for
// concurrent use and the inserts run in parallel.
func (s *Seeder) plan(userID string) plan {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	name := s.faker.Company()

	p := plan{
		company: models.Company{
			ID:     uuid.New().String(),
			Name:   name,
			Email:  companyEmail(name),
			UserID: userID,
		},
	}
	companyID := p.company.ID

	for i, n := 0, s.faker.Number(2, 3); i < n; i++ {
		p.companyTasks = append(p.companyTasks, s.task(now, nil, &companyID))
	}

	for i := 0; i < clientsPerCompany; i++ {
		first, last := s.faker.FirstName(), s.faker.LastName()
		client := models.Client{
			ID:        uuid.New().String(),
			FirstName: first,
			LastName:  last,
			Email: fmt.Sprintf("%s_%s%d@%s",
				strings.ToLower(first), strings.ToLower(last), s.faker.Number(10, 100), s.faker.DomainName()),
			CompanyID: &companyID,
			UserID:    userID,
		}
		cp := clientPlan{client: client}
		clientID := client.ID

		for j, n := 0, s.faker.Number(2, 3); j < n; j++ {
			cp.tasks = append(cp.tasks, s.task(now, &clientID, &companyID))
		}
		for j, n := 0, s.faker.Number(1, 2); j < n; j++ {
			cp.meetings = append(cp.meetings, models.Meeting{
				Title:    "Meeting with " + first,
				Time:     s.faker.DateRange(now, now.Add(meetingWindow)).UTC(),
				ClientID: clientID,
			})
		}
		p.clients = append(p.clients, cp)
	}
	return p
}

func (s *Seeder) task(now time.Time, clientID, companyID *string) models.Task {
	tmpl := taskBank[s.faker.Number(0, len(taskBank)-1)]
	due := s.faker.DateRange(now, now.Add(taskWindow)).UTC()
	return models.Task{
		Title:       tmpl.Title,
		Description: tmpl.Description,
		DueDate:     &due,
		ClientID:    clientID,
		CompanyID:   companyID,
	}
}

// companyEmail builds contact@<name_as_slug>.com
func companyEmail(name string) string {
	s := strings.ReplaceAll(slug.Make(name), "-", "_")
	if s == "" {
		s = "company"
	}
	return "contact@" + s + ".com"
}

// createCompany retries with a numbered address when the generated email
// already belongs to another company.
func (s *Seeder) createCompany(ctx context.Context, company *models.Company) error {
	base := company.Email
	for attempt := 1; ; attempt++ {
		err := s.store.CreateCompany(ctx, company)
		if err == nil {
			return nil
		}
		if !database.IsDuplicateEmail(err) || attempt >= maxEmailAttempts {
			return fmt.Errorf("failed to seed company: %w", err)
		}
		company.Email = numbered(base, s.randomSuffix())
	}
}

func (s *Seeder) createClient(ctx context.Context, client *models.Client) error {
	base := client.Email
	for attempt := 1; ; attempt++ {
		err := s.store.CreateClient(ctx, client)
		if err == nil {
			return nil
		}
		if !database.IsDuplicateEmail(err) || attempt >= maxEmailAttempts {
			return fmt.Errorf("failed to seed client: %w", err)
		}
		client.Email = numbered(base, s.randomSuffix())
	}
}

func (s *Seeder) randomSuffix() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faker.Number(1000, 9999)
}

// numbered inserts n before the @ of an email address
func numbered(email string, n int) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return fmt.Sprintf("%s%d", email, n)
	}
	return fmt.Sprintf("%s%d@%s", local, n, domain)
}
