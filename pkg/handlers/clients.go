package handlers

import (
	"fmt"
	"net/http"

	"democrm-backend/pkg/config"
	"democrm-backend/pkg/database"
	"democrm-backend/pkg/mailer"
	"democrm-backend/pkg/models"
	"democrm-backend/pkg/utils"
)

// ClientsHandler 客户相关过程
type ClientsHandler struct {
	config   *config.Config
	db       database.DatabaseInterface
	notifier Notifier
	mailer   mailer.Mailer
}

// NewClientsHandler 创建客户处理器
func NewClientsHandler(cfg *config.Config, db database.DatabaseInterface, notifier Notifier, m mailer.Mailer) *ClientsHandler {
	return &ClientsHandler{config: cfg, db: db, notifier: notifierOrNop(notifier), mailer: m}
}

// ownsCompany writes a 400 when companyID is set but not one of the caller's companies
func ownsCompany(w http.ResponseWriter, r *http.Request, db database.DatabaseInterface, userID string, companyID *string) bool {
	if companyID == nil {
		return true
	}
	if _, err := db.GetCompany(r.Context(), userID, *companyID); err != nil {
		if database.IsNotFound(err) {
			utils.WriteBadRequestResponse(w, "company does not exist")
			return false
		}
		writeStoreError(w, "load company", err, "company does not exist")
		return false
	}
	return true
}

// Create 创建客户
func (h *ClientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.CreateClientRequest
	if !decodeInput(w, r, &req) {
		return
	}

	companyID := optionalID(req.CompanyID)
	if !ownsCompany(w, r, h.db, user.ID, companyID) {
		return
	}

	client := &models.Client{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		CompanyID: companyID,
		UserID:    user.ID,
	}
	if err := h.db.CreateClient(r.Context(), client); err != nil {
		writeStoreError(w, "create client", err, "client not found")
		return
	}

	h.notifier.Publish(user.ID, groupClients, groupCompany)
	utils.WriteSuccessResponse(w, client)
}

// Update 更新客户
func (h *ClientsHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.UpdateClientRequest
	if !decodeInput(w, r, &req) {
		return
	}

	companyID := optionalID(req.CompanyID)
	if !ownsCompany(w, r, h.db, user.ID, companyID) {
		return
	}

	client := &models.Client{
		ID:        req.ID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		CompanyID: companyID,
	}
	if err := h.db.UpdateClient(r.Context(), user.ID, client); err != nil {
		writeStoreError(w, "update client", err, "client not found")
		return
	}

	h.notifier.Publish(user.ID, groupClients, groupCompany)
	utils.WriteSuccessResponse(w, client)
}

// Delete 删除客户，未命中时返回 null
func (h *ClientsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.IDRequest
	if !decodeInput(w, r, &req) {
		return
	}

	client, err := h.db.DeleteClient(r.Context(), user.ID, req.ID)
	if err != nil {
		writeStoreError(w, "delete client", err, "client not found")
		return
	}
	if client != nil {
		h.notifier.Publish(user.ID, groupClients, groupCompany, groupTask, groupMeeting)
	}
	utils.WriteSuccessResponse(w, client)
}

// GetAll 获取全部客户及其公司、任务、会议
func (h *ClientsHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	clients, err := h.db.ListClients(r.Context(), user.ID)
	if err != nil {
		writeStoreError(w, "list clients", err, "")
		return
	}
	utils.WriteSuccessResponse(w, clients)
}

// GetAvailable 获取尚未归属公司的客户
func (h *ClientsHandler) GetAvailable(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	clients, err := h.db.ListAvailableClients(r.Context(), user.ID)
	if err != nil {
		writeStoreError(w, "list available clients", err, "")
		return
	}
	utils.WriteSuccessResponse(w, clients)
}

// SendEmail 给客户发送邮件
func (h *ClientsHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.SendEmailRequest
	if !decodeInput(w, r, &req) {
		return
	}

	client, err := h.db.GetClient(r.Context(), user.ID, req.ID)
	if err != nil {
		if database.IsNotFound(err) {
			utils.WriteBadRequestResponse(w, "client does not exist")
			return
		}
		writeStoreError(w, "load client", err, "client does not exist")
		return
	}

	id, err := h.mailer.Send(r.Context(), mailer.Message{To: client.Email, Subject: req.Subject, Text: req.Body})
	if err != nil {
		fmt.Printf("❌ Failed to email client %s: %v\n", client.ID, err)
		utils.WriteInternalServerErrorResponse(w, "Failed to send email")
		return
	}

	fmt.Printf("📧 Sent email %s to client %s\n", id, client.ID)
	utils.WriteSuccessResponse(w, map[string]string{"id": id})
}
