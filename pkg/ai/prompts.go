package ai

import (
	"encoding/json"
	"fmt"

	"democrm-backend/pkg/models"
)

const dailyPlanInstructions = `Write a daily plan for the user given the following tasks are coming up. The user is not interfacing directly with you, just give them a daily plan.
We don't want fluff; we want a direct plan to help the user get the necessary work done today. Be direct, concise, and still helpful and detailed.
Don't talk about the data as it appears in the database, talk about it to the user in a simple, plain English, system-agnostic sort of way.
You do not need to include every task or meeting in your response - just the most pressing ones.
Don't say stuff like "for the task labeled "Complete write-up", do x", instead say "work on your write up, I recommend: (your recommendations)"
Focus on tasks in the order they are due. If they have no due date, the user can work on them after the user works on the tasks with a clear deadline. Give them a reasonable amount of work for the day.
For meetings, if one is coming up soon you could add some time for planning for it.
Here are the tasks:
%s
Here are the user's meetings as well:
%s`

const emailInstructions = `You are an assistant within a CRM, with the task of generating emails.
The user has requested an email generated to the %s with the following information:
%s. Remember you are responding specifically to the %s.
The user's prompt will be given below. Respond in JSON format, { subject: {your subject}, body: {your email body} }`

// EmailDraftSchemaName names the structured output format sent to the model
const EmailDraftSchemaName = "email"

// EmailDraftSchema is the strict JSON schema for a generated email
var EmailDraftSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"subject": {"type": "string"},
		"body": {"type": "string"}
	},
	"additionalProperties": false,
	"required": ["subject", "body"]
}`)

// encodeRecords renders each record as its own JSON document and then the
// list of documents as a JSON array of strings.
func encodeRecords[T any](records []T) (string, error) {
	docs := make([]string, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("failed to encode record: %w", err)
		}
		docs = append(docs, string(b))
	}
	out, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("failed to encode records: %w", err)
	}
	return string(out), nil
}

// DailyPlanPrompt renders the daily plan instruction for the given tasks and meetings
func DailyPlanPrompt(tasks []models.TaskContext, meetings []models.MeetingContext) (string, error) {
	taskJSON, err := encodeRecords(tasks)
	if err != nil {
		return "", err
	}
	meetingJSON, err := encodeRecords(meetings)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(dailyPlanInstructions, taskJSON, meetingJSON), nil
}

// EmailPrompt renders the system instruction for drafting an email to a
// client or a company. recipient is serialized as the model's context.
func EmailPrompt(toClient bool, recipient interface{}) (string, error) {
	info, err := json.Marshal(recipient)
	if err != nil {
		return "", fmt.Errorf("failed to encode recipient: %w", err)
	}

	kind, focus := "Company", "Company"
	if toClient {
		kind, focus = "Client", "Client, even if they are with a company"
	}
	return fmt.Sprintf(emailInstructions, kind, string(info), focus), nil
}
