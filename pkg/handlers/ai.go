package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"democrm-backend/pkg/ai"
	"democrm-backend/pkg/config"
	"democrm-backend/pkg/database"
	"democrm-backend/pkg/models"
	"democrm-backend/pkg/utils"
)

const (
	dailyPlanTaskLimit    = 6
	dailyPlanMeetingLimit = 3
)

// AIHandler AI 辅助过程
type AIHandler struct {
	config    *config.Config
	db        database.DatabaseInterface
	assistant ai.Assistant
}

func NewAIHandler(cfg *config.Config, db database.DatabaseInterface, assistant ai.Assistant) *AIHandler {
	return &AIHandler{config: cfg, db: db, assistant: assistant}
}

// DailyPlan 生成每日计划
func (h *AIHandler) DailyPlan(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}

	tasks, err := h.db.ListTaskContexts(r.Context(), user.ID, dailyPlanTaskLimit)
	if err != nil {
		writeStoreError(w, "load tasks", err, "")
		return
	}
	meetings, err := h.db.ListMeetingContexts(r.Context(), user.ID, dailyPlanMeetingLimit)
	if err != nil {
		writeStoreError(w, "load meetings", err, "")
		return
	}

	prompt, err := ai.DailyPlanPrompt(tasks, meetings)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to build daily plan prompt")
		return
	}

	plan, err := h.assistant.Complete(r.Context(), prompt)
	if err != nil {
		fmt.Printf("❌ Daily plan generation failed for user %s: %v\n", user.ID, err)
		utils.WriteInternalServerErrorResponse(w, "Failed to generate daily plan")
		return
	}
	utils.WriteSuccessResponse(w, plan)
}

// GenerateEmail drafts an email to one of the caller's clients or companies.
// The client wins when both ids are given.
func (h *AIHandler) GenerateEmail(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.GenerateEmailRequest
	if !decodeInput(w, r, &req) {
		return
	}

	clientID, companyID := optionalID(req.ClientID), optionalID(req.CompanyID)
	if clientID == nil && companyID == nil {
		utils.WriteBadRequestResponse(w, "Need either a client or company id")
		return
	}

	var (
		recipient interface{}
		toClient  = clientID != nil
	)
	if toClient {
		client, err := h.db.GetClient(r.Context(), user.ID, *clientID)
		if err != nil {
			writeStoreError(w, "load client", err, "client not found")
			return
		}
		recipient = client
	} else {
		company, err := h.db.GetCompany(r.Context(), user.ID, *companyID)
		if err != nil {
			writeStoreError(w, "load company", err, "company not found")
			return
		}
		recipient = company
	}

	system, err := ai.EmailPrompt(toClient, recipient)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to build email prompt")
		return
	}

	raw, err := h.assistant.CompleteJSON(r.Context(), system, req.UserPrompt, ai.EmailDraftSchemaName, ai.EmailDraftSchema)
	if err != nil {
		if errors.Is(err, ai.ErrNoCompletion) {
			utils.WriteBadRequestResponse(w, "Invalid output format")
			return
		}
		fmt.Printf("❌ Email generation failed for user %s: %v\n", user.ID, err)
		utils.WriteInternalServerErrorResponse(w, "Failed to generate email")
		return
	}

	draft, err := ai.ParseEmailDraft(raw)
	if err != nil {
		fmt.Printf("⚠️  Rejected email draft: %v\n", err)
		utils.WriteBadRequestResponse(w, "Invalid output format")
		return
	}
	utils.WriteSuccessResponse(w, draft)
}
