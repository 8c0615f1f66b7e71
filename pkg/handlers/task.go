package handlers

import (
	"fmt"
	"net/http"
	"time"

	"democrm-backend/pkg/config"
	"democrm-backend/pkg/database"
	"democrm-backend/pkg/models"
	"democrm-backend/pkg/utils"
)

// upcomingTaskLimit caps task.getUpcoming
const upcomingTaskLimit = 5

// TaskHandler 任务相关过程
type TaskHandler struct {
	config   *config.Config
	db       database.DatabaseInterface
	notifier Notifier
	now      func() time.Time
}

func NewTaskHandler(cfg *config.Config, db database.DatabaseInterface, notifier Notifier) *TaskHandler {
	return &TaskHandler{config: cfg, db: db, notifier: notifierOrNop(notifier), now: time.Now}
}

// ownsClient writes a 400 when clientID is set but not one of the caller's clients
func ownsClient(w http.ResponseWriter, r *http.Request, db database.DatabaseInterface, userID string, clientID *string) bool {
	if clientID == nil {
		return true
	}
	if _, err := db.GetClient(r.Context(), userID, *clientID); err != nil {
		if database.IsNotFound(err) {
			utils.WriteBadRequestResponse(w, "client does not exist")
			return false
		}
		writeStoreError(w, "load client", err, "client does not exist")
		return false
	}
	return true
}

// Create 创建任务，至少需要一个所属客户或公司
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.CreateTaskRequest
	if !decodeInput(w, r, &req) {
		return
	}

	clientID, companyID := optionalID(req.ClientID), optionalID(req.CompanyID)
	if clientID == nil && companyID == nil {
		utils.WriteBadRequestResponse(w, "Task needs a client or a company")
		return
	}
	if !ownsClient(w, r, h.db, user.ID, clientID) || !ownsCompany(w, r, h.db, user.ID, companyID) {
		return
	}

	task := &models.Task{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		ClientID:    clientID,
		CompanyID:   companyID,
	}
	if err := h.db.CreateTask(r.Context(), task); err != nil {
		writeStoreError(w, "create task", err, "task not found")
		return
	}

	h.notifier.Publish(user.ID, groupTask, groupClients, groupCompany)
	utils.WriteSuccessResponse(w, task)
}

// Update 更新任务；未提供的所属关系保持不变
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.UpdateTaskRequest
	if !decodeInput(w, r, &req) {
		return
	}

	existing, err := h.db.GetTask(r.Context(), user.ID, req.ID)
	if err != nil {
		writeStoreError(w, "load task", err, "task not found")
		return
	}

	clientID, companyID := optionalID(req.ClientID), optionalID(req.CompanyID)
	if !ownsClient(w, r, h.db, user.ID, clientID) || !ownsCompany(w, r, h.db, user.ID, companyID) {
		return
	}
	if clientID == nil {
		clientID = existing.ClientID
	}
	if companyID == nil {
		companyID = existing.CompanyID
	}

	task := &models.Task{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		ClientID:    clientID,
		CompanyID:   companyID,
	}
	if err := h.db.UpdateTask(r.Context(), user.ID, task); err != nil {
		writeStoreError(w, "update task", err, "task not found")
		return
	}

	h.notifier.Publish(user.ID, groupTask, groupClients, groupCompany)
	utils.WriteSuccessResponse(w, task)
}

// Delete 删除任务，未命中时返回 null
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.IDRequest
	if !decodeInput(w, r, &req) {
		return
	}

	task, err := h.db.DeleteTask(r.Context(), user.ID, req.ID)
	if err != nil {
		writeStoreError(w, "delete task", err, "task not found")
		return
	}
	if task != nil {
		h.notifier.Publish(user.ID, groupTask, groupClients, groupCompany)
	}
	utils.WriteSuccessResponse(w, task)
}

// GetUpcoming returns the next incomplete tasks, undated ones last
func (h *TaskHandler) GetUpcoming(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	tasks, err := h.db.ListUpcomingTasks(r.Context(), user.ID, upcomingTaskLimit)
	if err != nil {
		writeStoreError(w, "list upcoming tasks", err, "")
		return
	}
	utils.WriteSuccessResponse(w, tasks)
}

func (h *TaskHandler) GetCompanyTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.IDRequest
	if !decodeInput(w, r, &req) {
		return
	}
	tasks, err := h.db.ListCompanyTasks(r.Context(), user.ID, req.ID)
	if err != nil {
		writeStoreError(w, "list company tasks", err, "company not found")
		return
	}
	utils.WriteSuccessResponse(w, tasks)
}

func (h *TaskHandler) GetClientTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.IDRequest
	if !decodeInput(w, r, &req) {
		return
	}
	tasks, err := h.db.ListClientTasks(r.Context(), user.ID, req.ID)
	if err != nil {
		writeStoreError(w, "list client tasks", err, "client not found")
		return
	}
	utils.WriteSuccessResponse(w, tasks)
}

func (h *TaskHandler) completedAt(complete bool) *time.Time {
	if !complete {
		return nil
	}
	now := h.now().UTC()
	return &now
}

// UpdateCompletion 标记单个任务完成或未完成
func (h *TaskHandler) UpdateCompletion(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.TaskCompletion
	if !decodeInput(w, r, &req) {
		return
	}

	task, err := h.db.SetTaskCompletion(r.Context(), user.ID, req.ID, h.completedAt(req.Complete))
	if err != nil {
		writeStoreError(w, "update task completion", err, "task not found")
		return
	}

	h.notifier.Publish(user.ID, groupTask, groupClients, groupCompany)
	utils.WriteSuccessResponse(w, task)
}

// UpdateCompletions applies each entry on its own. A row the caller does
// not own, or that fails, reports count 0 and does not stop the rest.
func (h *TaskHandler) UpdateCompletions(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req []models.TaskCompletion
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return
	}
	for i := range req {
		if err := utils.ValidateStruct(&req[i]); err != nil {
			utils.WriteValidationErrorResponse(w, "Invalid input", fmt.Sprintf("[%d] %v", i, err))
			return
		}
	}

	results := make([]models.CompletionResult, 0, len(req))
	changed := false
	for _, c := range req {
		result := models.CompletionResult{ID: c.ID}
		if _, err := h.db.SetTaskCompletion(r.Context(), user.ID, c.ID, h.completedAt(c.Complete)); err != nil {
			if !database.IsNotFound(err) {
				fmt.Printf("⚠️  Failed to update completion of task %s: %v\n", c.ID, err)
			}
		} else {
			result.Count = 1
			changed = true
		}
		results = append(results, result)
	}

	if changed {
		h.notifier.Publish(user.ID, groupTask, groupClients, groupCompany)
	}
	utils.WriteSuccessResponse(w, results)
}
