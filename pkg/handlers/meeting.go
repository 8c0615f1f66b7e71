package handlers

import (
	"errors"
	"net/http"
	"time"

	"democrm-backend/pkg/config"
	"democrm-backend/pkg/database"
	"democrm-backend/pkg/models"
	"democrm-backend/pkg/schedule"
	"democrm-backend/pkg/utils"
)

const upcomingMeetingLimit = 5

// MeetingHandler 会议相关过程
type MeetingHandler struct {
	config   *config.Config
	db       database.DatabaseInterface
	notifier Notifier
	now      func() time.Time
}

func NewMeetingHandler(cfg *config.Config, db database.DatabaseInterface, notifier Notifier) *MeetingHandler {
	return &MeetingHandler{config: cfg, db: db, notifier: notifierOrNop(notifier), now: time.Now}
}

// meetingTime resolves the requested start: an explicit timestamp wins,
// otherwise the picked date is combined with the time of day.
func meetingTime(req models.CreateMeetingRequest) (time.Time, error) {
	if req.Time != nil {
		return *req.Time, nil
	}
	return schedule.CombineDateAndTime(*req.Date, req.TimeOfDay)
}

// Create 创建会议，时间必须晚于当前时间
func (h *MeetingHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.CreateMeetingRequest
	if !decodeInput(w, r, &req) {
		return
	}

	start, err := meetingTime(req)
	if err != nil {
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}
	if err := schedule.ValidateFuture(start, h.now()); err != nil {
		if errors.Is(err, schedule.ErrNotInFuture) {
			utils.WriteBadRequestResponse(w, "Meeting time must be in the future")
			return
		}
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}

	if !ownsClient(w, r, h.db, user.ID, &req.ClientID) {
		return
	}

	meeting := &models.Meeting{Title: req.Title, Time: start.UTC(), ClientID: req.ClientID}
	if err := h.db.CreateMeeting(r.Context(), meeting); err != nil {
		writeStoreError(w, "create meeting", err, "meeting not found")
		return
	}

	h.notifier.Publish(user.ID, groupMeeting, groupClients)
	utils.WriteSuccessResponse(w, meeting)
}

// Upcoming 获取即将到来的会议
func (h *MeetingHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	meetings, err := h.db.ListUpcomingMeetings(r.Context(), user.ID, nil, h.now(), upcomingMeetingLimit)
	if err != nil {
		writeStoreError(w, "list upcoming meetings", err, "")
		return
	}
	utils.WriteSuccessResponse(w, meetings)
}

// UpcomingClient 获取某个客户即将到来的会议
func (h *MeetingHandler) UpcomingClient(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		ClientID string `json:"clientId" validate:"required"`
	}
	if !decodeInput(w, r, &req) {
		return
	}

	meetings, err := h.db.ListUpcomingMeetings(r.Context(), user.ID, &req.ClientID, h.now(), upcomingMeetingLimit)
	if err != nil {
		writeStoreError(w, "list client meetings", err, "client not found")
		return
	}
	utils.WriteSuccessResponse(w, meetings)
}

// Delete 删除会议，未命中时返回 null
func (h *MeetingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req models.IDRequest
	if !decodeInput(w, r, &req) {
		return
	}

	meeting, err := h.db.DeleteMeeting(r.Context(), user.ID, req.ID)
	if err != nil {
		writeStoreError(w, "delete meeting", err, "meeting not found")
		return
	}
	if meeting != nil {
		h.notifier.Publish(user.ID, groupMeeting, groupClients)
	}
	utils.WriteSuccessResponse(w, meeting)
}
