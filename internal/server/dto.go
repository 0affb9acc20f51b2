package server

import (
	"encoding/json"

	"permitline/internal/domain"
)

type CreatePermitRequest struct {
	PropertyAddress string `json:"property_address" example:"12 Flask Walk"`
	Postcode        string `json:"postcode" example:"NW3 1HE"`
	Type            string `json:"type" example:"householder"`
	OwnerID         string `json:"owner_id,omitempty" doc:"Defaults to the authenticated user"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" example:"submitted"`
	Note   string `json:"note,omitempty"`
}

type AddConditionRequest struct {
	Type        string  `json:"type,omitempty" example:"pre_commencement"`
	Description string  `json:"description"`
	Deadline    *string `json:"deadline,omitempty" format:"date-time"`
}

type UpdateConditionRequest struct {
	Status       string `json:"status" example:"discharged"`
	DischargeRef string `json:"discharge_ref,omitempty"`
}

type ConsulteeRequest struct {
	Name           string `json:"name" example:"Highways Authority"`
	Type           string `json:"type,omitempty" example:"statutory"`
	Status         string `json:"status,omitempty" example:"received"`
	Recommendation string `json:"recommendation,omitempty" example:"support"`
}

type AddNoteRequest struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty" example:"user_note"`
}

type AddDocumentRequest struct {
	Name     string `json:"name" example:"site-plan.pdf"`
	Category string `json:"category,omitempty" example:"drawing"`
}

type UpdateDocumentRequest struct {
	Status string `json:"status" example:"approved"`
}

type AssignOfficerRequest struct {
	Name    string `json:"name" example:"S. Hargreaves"`
	Contact string `json:"contact,omitempty" example:"planning@camden.gov.uk"`
}

type AddFeeItemRequest struct {
	Description string `json:"description" example:"Pre-application advice"`
	Amount      int    `json:"amount" example:"120"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id" example:"applicant-42"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	Timestamp  string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	var payload map[string]any
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		Timestamp:  e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}
