package handlers

import (
	"fmt"
	"net/http"

	"democrm-backend/pkg/config"
	"democrm-backend/pkg/models"
	"democrm-backend/pkg/seed"
	"democrm-backend/pkg/utils"
)

// SeedHandler 演示数据过程
type SeedHandler struct {
	config   *config.Config
	seeder   *seed.Seeder
	notifier Notifier
}

func NewSeedHandler(cfg *config.Config, seeder *seed.Seeder, notifier Notifier) *SeedHandler {
	return &SeedHandler{config: cfg, seeder: seeder, notifier: notifierOrNop(notifier)}
}

// SeedDemo 为当前用户生成演示数据
func (h *SeedHandler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}

	summary, err := h.seeder.Seed(r.Context(), user.ID)
	if err != nil {
		fmt.Printf("❌ Seeding failed for user %s: %v\n", user.ID, err)
		utils.WriteInternalServerErrorResponse(w, "Failed to seed demo data")
		return
	}

	fmt.Printf("🌱 Seeded company %s with %d clients, %d tasks, %d meetings for user %s\n",
		summary.CompanyID, summary.Clients, summary.Tasks, summary.Meetings, user.ID)
	h.notifier.Publish(user.ID, groupClients, groupCompany, groupTask, groupMeeting)
	utils.WriteSuccessResponse(w, models.SeedResult{Success: true, Message: "Seeded demo data for current user."})
}
