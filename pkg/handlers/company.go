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

// CompanyHandler 公司相关过程
type CompanyHandler struct {
	config   *config.Config
	db       database.DatabaseInterface
	notifier Notifier
	mailer   mailer.Mailer
}

func NewCompanyHandler(cfg *config.Config, db database.DatabaseInterface, notifier Notifier, m mailer.Mailer) *CompanyHandler {
	return &CompanyHandler{config: cfg, db: db, notifier: notifierOrNop(notifier), mailer: m}
}

// Create 创建公司
func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.CreateCompanyRequest
	if !decodeInput(w, r, &req) {
		return
	}

	company := &models.Company{Name: req.Name, Email: req.Email, UserID: user.ID}
	if err := h.db.CreateCompany(r.Context(), company); err != nil {
		writeStoreError(w, "create company", err, "company not found")
		return
	}

	h.notifier.Publish(user.ID, groupCompany)
	utils.WriteSuccessResponse(w, company)
}

// Update 更新公司
func (h *CompanyHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.UpdateCompanyRequest
	if !decodeInput(w, r, &req) {
		return
	}

	company := &models.Company{ID: req.ID, Name: req.Name, Email: req.Email}
	if err := h.db.UpdateCompany(r.Context(), user.ID, company); err != nil {
		writeStoreError(w, "update company", err, "company not found")
		return
	}

	h.notifier.Publish(user.ID, groupCompany, groupClients)
	utils.WriteSuccessResponse(w, company)
}

// Delete 删除公司，未命中时返回 null
func (h *CompanyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.IDRequest
	if !decodeInput(w, r, &req) {
		return
	}

	company, err := h.db.DeleteCompany(r.Context(), user.ID, req.ID)
	if err != nil {
		writeStoreError(w, "delete company", err, "company not found")
		return
	}
	if company != nil {
		h.notifier.Publish(user.ID, groupCompany, groupClients, groupTask)
	}
	utils.WriteSuccessResponse(w, company)
}

// GetAll 获取全部公司及其任务和客户
func (h *CompanyHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	companies, err := h.db.ListCompanies(r.Context(), user.ID)
	if err != nil {
		writeStoreError(w, "list companies", err, "")
		return
	}
	utils.WriteSuccessResponse(w, companies)
}

// GetSelectCompanies returns id/name pairs for select inputs
func (h *CompanyHandler) GetSelectCompanies(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	options, err := h.db.ListCompanyOptions(r.Context(), user.ID)
	if err != nil {
		writeStoreError(w, "list company options", err, "")
		return
	}
	utils.WriteSuccessResponse(w, options)
}

// AddClientTo 将已有客户加入公司
func (h *CompanyHandler) AddClientTo(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.AddClientRequest
	if !decodeInput(w, r, &req) {
		return
	}

	company, err := h.db.AttachClient(r.Context(), user.ID, req.ID, req.ClientID)
	if err != nil {
		writeStoreError(w, "add client to company", err, "company or client not found")
		return
	}

	h.notifier.Publish(user.ID, groupCompany, groupClients)
	utils.WriteSuccessResponse(w, company)
}

// SendEmail 给公司发送邮件
func (h *CompanyHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.SendEmailRequest
	if !decodeInput(w, r, &req) {
		return
	}

	company, err := h.db.GetCompany(r.Context(), user.ID, req.ID)
	if err != nil {
		if database.IsNotFound(err) {
			utils.WriteBadRequestResponse(w, "company does not exist")
			return
		}
		writeStoreError(w, "load company", err, "company does not exist")
		return
	}

	id, err := h.mailer.Send(r.Context(), mailer.Message{To: company.Email, Subject: req.Subject, Text: req.Body})
	if err != nil {
		fmt.Printf("❌ Failed to email company %s: %v\n", company.ID, err)
		utils.WriteInternalServerErrorResponse(w, "Failed to send email")
		return
	}

	fmt.Printf("📧 Sent email %s to company %s\n", id, company.ID)
	utils.WriteSuccessResponse(w, map[string]string{"id": id})
}
