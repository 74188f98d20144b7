package dto

import "github.com/modgate/backend/internal/models"

type TokenResponse struct {
	Token string `json:"token"`
	Tier  string `json:"tier"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// CommandInfo is the public view of a registered command.
type CommandInfo struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description,omitempty"`
	CooldownSeconds      int      `json:"cooldown_seconds"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	RequiresHierarchy    bool     `json:"requires_hierarchy"`
	CommunityOnly        bool     `json:"community_only"`
	OwnerOnly            bool     `json:"owner_only"`
	StaffOnly            bool     `json:"staff_only"`
}

func NewCommandInfo(d models.CommandDescriptor) CommandInfo {
	return CommandInfo{
		Name:                 d.Name,
		Description:          d.Description,
		CooldownSeconds:      d.Cooldown(),
		RequiredCapabilities: d.RequiredCapabilities.List(),
		RequiresHierarchy:    d.RequiresHierarchy,
		CommunityOnly:        d.CommunityOnly,
		OwnerOnly:            d.OwnerOnly,
		StaffOnly:            d.StaffOnly,
	}
}

type TicketMessageResponse struct {
	Message *models.TicketMessage `json:"message"`
	Ticket  *models.Ticket        `json:"ticket"`
}

type PurgeResponse struct {
	CommunityID string `json:"community_id"`
	Deleted     int64  `json:"deleted"`
}
