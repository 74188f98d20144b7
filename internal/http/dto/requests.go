package dto

type IssueTokenRequest struct {
	UserID string `json:"user_id"`
}

type CreateTicketRequest struct {
	Category string `json:"category"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

type TicketMessageRequest struct {
	Message string `json:"message"`
}

type SetTicketStatusRequest struct {
	Status string `json:"status"`
}

type AssignTicketRequest struct {
	StaffID string `json:"staff_id"`
}

type SetTicketPriorityRequest struct {
	Priority string `json:"priority"`
}

type SetAuditStreamRequest struct {
	StreamID string `json:"stream_id"`
}
