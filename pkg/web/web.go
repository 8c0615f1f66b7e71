// Package web renders the landing page, the login page and the dashboard
// shell. Everything interactive talks to the /api procedures.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"democrm-backend/pkg/database"
	"democrm-backend/pkg/middleware"
	"democrm-backend/pkg/models"
	"democrm-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pages = map[string]*template.Template{
	"landing.tmpl":   parsePage("landing.tmpl"),
	"login.tmpl":     parsePage("login.tmpl"),
	"dashboard.tmpl": parsePage("dashboard.tmpl"),
	"clients.tmpl":   parsePage("clients.tmpl"),
	"companies.tmpl": parsePage("companies.tmpl"),
}

func parsePage(name string) *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/base.tmpl", "templates/nav.tmpl", "templates/"+name))
}

const (
	dashboardTaskLimit    = 5
	dashboardMeetingLimit = 5
)

// Server serves the UI routes
type Server struct {
	db  database.DatabaseInterface
	now func() time.Time
}

func NewServer(db database.DatabaseInterface) *Server {
	return &Server{db: db, now: time.Now}
}

// Routes mounts the pages; callers wrap it with OptionalAuthMiddleware
func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.Landing)
	r.Get("/login", s.Login)
	r.Get("/dashboard", s.Dashboard)
	r.Get("/dashboard/clients", s.Clients)
	r.Get("/dashboard/companies", s.Companies)
}

func (s *Server) render(w http.ResponseWriter, page string, data interface{}) {
	tmpl, ok := pages[page]
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, page, data); err != nil {
		fmt.Printf("❌ Failed to render %s: %v\n", page, err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

// sessionUser redirects to /login when the request carries no valid session
func sessionUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok || user == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return nil, false
	}
	return user, true
}

func (s *Server) Landing(w http.ResponseWriter, r *http.Request) {
	_, signedIn := middleware.GetUserFromContext(r.Context())
	s.render(w, "landing.tmpl", struct{ SignedIn bool }{signedIn})
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	s.render(w, "login.tmpl", struct{ Error string }{utils.GetQueryParam(r, "error", "")})
}

// Dashboard 首页：即将到期的任务与会议
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}

	now := s.now()
	tasks, err := s.db.ListUpcomingTasks(r.Context(), user.ID, dashboardTaskLimit)
	if err != nil {
		s.storeFailed(w, err)
		return
	}
	meetings, err := s.db.ListUpcomingMeetings(r.Context(), user.ID, nil, now, dashboardMeetingLimit)
	if err != nil {
		s.storeFailed(w, err)
		return
	}

	s.render(w, "dashboard.tmpl", struct {
		Now      time.Time
		Tasks    []models.Task
		Meetings []models.MeetingWithClient
	}{now, tasks, meetings})
}

// Clients lists the caller's clients; ?client=<id> highlights one row
func (s *Server) Clients(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}
	clients, err := s.db.ListClients(r.Context(), user.ID)
	if err != nil {
		s.storeFailed(w, err)
		return
	}
	s.render(w, "clients.tmpl", struct {
		Clients []models.ClientWithRelations
		Open    string
	}{clients, utils.GetQueryParam(r, "client", "")})
}

// Companies lists the caller's companies; ?company=<id> highlights one row
func (s *Server) Companies(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}
	companies, err := s.db.ListCompanies(r.Context(), user.ID)
	if err != nil {
		s.storeFailed(w, err)
		return
	}
	s.render(w, "companies.tmpl", struct {
		Companies []models.CompanyWithRelations
		Open      string
	}{companies, utils.GetQueryParam(r, "company", "")})
}

func (s *Server) storeFailed(w http.ResponseWriter, err error) {
	fmt.Printf("❌ Failed to load dashboard data: %v\n", err)
	http.Error(w, "failed to load data", http.StatusInternalServerError)
}
