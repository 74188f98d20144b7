package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/modgate/backend/internal/commands"
	"github.com/modgate/backend/internal/middleware"
	"github.com/modgate/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func asUser(id string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.CtxUserID, id)
		return c.Next()
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

type fakeResolver struct {
	err error
	got models.InvocationRequest
}

func (f *fakeResolver) Resolve(_ context.Context, req models.InvocationRequest) (*models.Invocation, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Invocation{CommandName: req.CommandName, Actor: models.Member{ID: req.ActorID, Present: true}}, nil
}

type fakeDispatcher struct{}

func (fakeDispatcher) Dispatch(_ context.Context, inv *models.Invocation) commands.Outcome {
	if inv.CommandName == "ban" {
		return commands.Outcome{Status: commands.OutcomeDenied, Message: "You lack BanMembers."}
	}
	return commands.Outcome{Status: commands.OutcomeSuccess, Message: "Done.", CaseID: "lx1-abc"}
}

func (fakeDispatcher) Fail(_ context.Context, inv *models.Invocation, err error) commands.Outcome {
	return commands.Outcome{Status: commands.OutcomeError, Message: "failed " + inv.CommandName + " in " + inv.CommunityID(), CaseID: "lx1-err"}
}

type fakeLister []models.CommandDescriptor

func (f fakeLister) List() []models.CommandDescriptor { return f }

func TestInvoke(t *testing.T) {
	res := &fakeResolver{}
	h := NewInvocationHandler(res, fakeDispatcher{}, fakeLister{}, zaptest.NewLogger(t))
	app := fiber.New()
	app.Post("/invocations", h.Invoke)

	status, body := doJSON(t, app, http.MethodPost, "/invocations",
		`{"command_name":"ping","actor_id":"A","community_id":"C","target_ids":["T"]}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "success", body["outcome"])
	assert.Equal(t, "lx1-abc", body["case_id"])
	assert.Equal(t, []string{"T"}, res.got.TargetIDs)

	status, body = doJSON(t, app, http.MethodPost, "/invocations", `{"command_name":"ban","actor_id":"A"}`)
	assert.Equal(t, fiber.StatusOK, status, "denials are outcomes")
	assert.Equal(t, "denied", body["outcome"])

	status, body = doJSON(t, app, http.MethodPost, "/invocations", `{"command_name":"ping"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, string(models.KindValidation), body["kind"])

	res.err = errors.New("fetch members: connection refused")
	status, body = doJSON(t, app, http.MethodPost, "/invocations", `{"command_name":"kick","actor_id":"A","community_id":"C"}`)
	assert.Equal(t, fiber.StatusOK, status, "resolution failures are outcomes")
	assert.Equal(t, "error", body["outcome"])
	assert.Equal(t, "failed kick in C", body["message"])
	assert.Equal(t, "lx1-err", body["case_id"])

	status, _ = doJSON(t, app, http.MethodPost, "/invocations", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestListCommands(t *testing.T) {
	ban := models.CommandDescriptor{Name: "ban", RequiredCapabilities: models.NewCapabilities(models.CapBanMembers), RequiresHierarchy: true}
	ban.WithCooldown(5)
	h := NewInvocationHandler(&fakeResolver{}, fakeDispatcher{}, fakeLister{ban, {Name: "ping"}}, zaptest.NewLogger(t))
	app := fiber.New()
	app.Get("/commands", h.ListCommands)

	status, body := doJSON(t, app, http.MethodGet, "/commands", "")
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].([]any)
	require.Len(t, data, 2)
	first := data[0].(map[string]any)
	assert.Equal(t, "ban", first["name"])
	assert.Equal(t, float64(5), first["cooldown_seconds"])
	assert.Equal(t, []any{"BanMembers"}, first["required_capabilities"])
	assert.Equal(t, float64(models.DefaultCooldownSeconds), data[1].(map[string]any)["cooldown_seconds"])
}

type fakeTickets struct {
	err      error
	lastUser string
}

func (f *fakeTickets) ticket() *models.Ticket {
	return &models.Ticket{ID: "TKT-1", OwnerID: "U", Status: models.TicketOpen, Priority: models.PriorityNormal}
}

func (f *fakeTickets) Create(_ context.Context, ownerID, _, _, _ string) (*models.TicketWithMessages, error) {
	f.lastUser = ownerID
	if f.err != nil {
		return nil, f.err
	}
	return &models.TicketWithMessages{Ticket: *f.ticket()}, nil
}

func (f *fakeTickets) Get(_ context.Context, actorID, _ string) (*models.TicketWithMessages, error) {
	f.lastUser = actorID
	if f.err != nil {
		return nil, f.err
	}
	return &models.TicketWithMessages{Ticket: *f.ticket()}, nil
}

func (f *fakeTickets) ListByUser(context.Context, string) ([]models.Ticket, error) {
	return nil, f.err
}

func (f *fakeTickets) ListAll(context.Context, string, models.TicketStatus) ([]models.Ticket, error) {
	return []models.Ticket{*f.ticket()}, f.err
}

func (f *fakeTickets) AddMessage(_ context.Context, actorID, ticketID, message string) (*models.TicketMessage, *models.Ticket, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return &models.TicketMessage{ID: 2, TicketID: ticketID, AuthorID: actorID, Body: message}, f.ticket(), nil
}

func (f *fakeTickets) SetStatus(_ context.Context, _, _ string, status models.TicketStatus) (*models.Ticket, error) {
	if f.err != nil {
		return nil, f.err
	}
	t := f.ticket()
	t.Status = status
	return t, nil
}

func (f *fakeTickets) Assign(context.Context, string, string, string) (*models.Ticket, error) {
	return f.ticket(), f.err
}

func (f *fakeTickets) SetPriority(context.Context, string, string, models.TicketPriority) (*models.Ticket, error) {
	return f.ticket(), f.err
}

func (f *fakeTickets) Statistics(context.Context) *models.TicketStatistics {
	return &models.TicketStatistics{Total: 3, Open: 1, InProgress: 1, Closed: 1}
}

func ticketApp(t *testing.T, svc TicketService) *fiber.App {
	h := NewTicketHandler(svc, zaptest.NewLogger(t))
	app := fiber.New()
	app.Use(middleware.RequestIDMiddleware(), asUser("U"))
	app.Post("/tickets", h.CreateTicket)
	app.Get("/tickets/my", h.MyTickets)
	app.Get("/tickets/stats", h.Statistics)
	app.Get("/tickets", h.ListTickets)
	app.Get("/tickets/:id", h.GetTicket)
	app.Post("/tickets/:id/messages", h.AddMessage)
	app.Post("/tickets/:id/status", h.SetStatus)
	return app
}

func TestTicketHandlers(t *testing.T) {
	svc := &fakeTickets{}
	app := ticketApp(t, svc)

	status, body := doJSON(t, app, http.MethodPost, "/tickets", `{"category":"billing","subject":"Refund","message":"please"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "U", svc.lastUser, "owner comes from the token")
	assert.Equal(t, "TKT-1", body["data"].(map[string]any)["id"])

	status, body = doJSON(t, app, http.MethodGet, "/tickets/my", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []any{}, body["data"])

	status, body = doJSON(t, app, http.MethodPost, "/tickets/TKT-1/status", `{"status":"CLOSED"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "closed", body["data"].(map[string]any)["status"])

	status, body = doJSON(t, app, http.MethodPost, "/tickets/TKT-1/messages", `{"message":"hi"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "hi", body["data"].(map[string]any)["message"].(map[string]any)["body"])

	status, body = doJSON(t, app, http.MethodGet, "/tickets/stats", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(3), body["data"].(map[string]any)["total"])
}

func TestTicketErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"forbidden", models.ErrForbidden, fiber.StatusForbidden, "forbidden"},
		{"not found", &models.NotFoundError{Entity: "ticket", ID: "TKT-9"}, fiber.StatusNotFound, "ticket TKT-9 not found"},
		{"validation", &models.ValidationError{Field: "subject", Rule: "required"}, fiber.StatusBadRequest, "invalid subject: required"},
		{"persistence", models.WrapPersistence("ticket get", errors.New("conn reset")), fiber.StatusServiceUnavailable, "storage unavailable, try again later"},
		{"unclassified", errors.New("nil map write"), fiber.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := ticketApp(t, &fakeTickets{err: tt.err})
			status, body := doJSON(t, app, http.MethodGet, "/tickets/TKT-9", "")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, body["error"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

type fakeAudit struct {
	purged   string
	limit    int
	settings map[string]string
}

func (f *fakeAudit) Recent(_ context.Context, communityID string, limit int) ([]models.AuditRecord, error) {
	f.limit = limit
	return []models.AuditRecord{{CaseID: "c1", CommunityID: communityID, ActionType: models.ActionBan}}, nil
}

func (f *fakeAudit) History(context.Context, string, string, int) ([]models.AuditRecord, error) {
	return nil, nil
}

func (f *fakeAudit) Statistics(_ context.Context, _ string, days int) *models.AuditStatistics {
	return &models.AuditStatistics{Days: days, Degraded: true}
}

func (f *fakeAudit) CheckConfiguration(_ context.Context, communityID string) (*models.AuditConfiguration, error) {
	id, ok := f.settings[communityID]
	return &models.AuditConfiguration{Configured: ok && id != "", StreamID: id}, nil
}

func (f *fakeAudit) PurgeCommunity(_ context.Context, communityID string) (int64, error) {
	f.purged = communityID
	return 7, nil
}

func (f *fakeAudit) Set(_ context.Context, communityID, streamID string) error {
	f.settings[communityID] = streamID
	return nil
}

func (f *fakeAudit) Forget(_ context.Context, communityID string) error {
	delete(f.settings, communityID)
	return nil
}

type fakeRoles struct{ invalidated []string }

func (f *fakeRoles) InvalidateRoles(id string) { f.invalidated = append(f.invalidated, id) }

func TestAuditHandlers(t *testing.T) {
	a := &fakeAudit{settings: map[string]string{}}
	h := NewAuditHandler(a, a, zaptest.NewLogger(t))
	app := fiber.New()
	app.Use(asUser("ADMIN"))
	app.Get("/communities/:communityId/audit", h.Recent)
	app.Get("/communities/:communityId/audit/users/:userId", h.History)
	app.Get("/communities/:communityId/audit/stats", h.Statistics)
	app.Put("/communities/:communityId/audit/stream", h.SetStream)

	status, body := doJSON(t, app, http.MethodGet, "/communities/C/audit?limit=20", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 20, a.limit)
	assert.Len(t, body["data"], 1)

	_, body = doJSON(t, app, http.MethodGet, "/communities/C/audit/users/T", "")
	assert.Equal(t, []any{}, body["data"])

	_, body = doJSON(t, app, http.MethodGet, "/communities/C/audit/stats?days=7", "")
	stats := body["data"].(map[string]any)
	assert.Equal(t, float64(7), stats["days"])
	assert.Equal(t, true, stats["degraded"])

	status, body = doJSON(t, app, http.MethodPut, "/communities/C/audit/stream", `{"stream_id":" 555 "}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "555", a.settings["C"])
	assert.Equal(t, true, body["data"].(map[string]any)["configured"])
}

func TestCommunityRemoved(t *testing.T) {
	a := &fakeAudit{settings: map[string]string{"C": "555"}}
	roles := &fakeRoles{}
	h := NewCommunityHandler(a, a, roles, zaptest.NewLogger(t))
	app := fiber.New()
	app.Delete("/communities/:communityId", h.Removed)
	app.Post("/communities/:communityId/roles/invalidate", h.RolesChanged)

	status, body := doJSON(t, app, http.MethodDelete, "/communities/C", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "C", a.purged)
	assert.Empty(t, a.settings)
	assert.Equal(t, float64(7), body["data"].(map[string]any)["deleted"])

	status, _ = doJSON(t, app, http.MethodPost, "/communities/D/roles/invalidate", "")
	assert.Equal(t, fiber.StatusNoContent, status)
	assert.Equal(t, []string{"C", "D"}, roles.invalidated)
}

func TestMetaTicketStatuses(t *testing.T) {
	app := fiber.New()
	app.Get("/meta/ticket-statuses", NewMetaHandler().GetTicketStatuses)

	_, body := doJSON(t, app, http.MethodGet, "/meta/ticket-statuses", "")
	data := body["data"].([]any)
	require.Len(t, data, 3)
	closed := data[2].(map[string]any)
	assert.Equal(t, "closed", closed["id"])
	assert.Equal(t, []any{"open"}, closed["transitions"])
}
