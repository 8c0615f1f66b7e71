package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"democrm-backend/pkg/database"
	"democrm-backend/pkg/middleware"
	"democrm-backend/pkg/models"
	"democrm-backend/pkg/utils"
)

// Procedure groups named in invalidation events
const (
	groupClients = "clients"
	groupCompany = "company"
	groupTask    = "task"
	groupMeeting = "meeting"
)

// Notifier receives the procedure groups a mutation changed
type Notifier interface {
	Publish(userID string, groups ...string)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, ...string) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// requireCaller 获取当前用户，未认证时写入 401
func requireCaller(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return nil, false
	}
	return user, true
}

// decodeInput reads a procedure input into v and validates it. Queries (GET)
// carry their input in the query string, mutations in the JSON body.
func decodeInput(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method == http.MethodGet {
		if err := decodeQuery(r, v); err != nil {
			utils.WriteBadRequestResponse(w, "Invalid query parameters")
			return false
		}
	} else if err := utils.ParseJSONBody(r, v); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid request body")
		return false
	}

	if err := utils.ValidateStruct(v); err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid input", err.Error())
		return false
	}
	return true
}

// decodeQuery maps single-valued query parameters onto v's json fields
func decodeQuery(r *http.Request, v interface{}) error {
	fields := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// writeStoreError maps a store error onto the API error envelope
func writeStoreError(w http.ResponseWriter, op string, err error, notFoundMessage string) {
	switch {
	case database.IsDuplicateEmail(err):
		utils.WriteBadRequestResponse(w, "Email is already in use.")
	case database.IsNotFound(err):
		utils.WriteNotFoundResponse(w, notFoundMessage)
	case database.IsForeignKey(err):
		utils.WriteBadRequestResponse(w, "Referenced record does not exist")
	default:
		fmt.Printf("❌ %s failed: %v\n", op, err)
		utils.WriteInternalServerErrorResponse(w, "Failed to "+op)
	}
}

// optionalID treats an empty string the same as an omitted id
func optionalID(id *string) *string {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil
	}
	return id
}
