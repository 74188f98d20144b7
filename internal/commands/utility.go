package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/modgate/backend/internal/models"
)

func ping(context.Context, *Call) (string, error) {
	return "🏓 Pong!", nil
}

func helpHandler(r *Registry) Handler {
	return func(_ context.Context, call *Call) (string, error) {
		var b strings.Builder
		b.WriteString("Available commands:\n")
		for _, d := range r.List() {
			if d.OwnerOnly && call.Invocation.Actor.Tier != models.TierOwner {
				continue
			}
			if d.StaffOnly && !call.Invocation.Actor.Tier.IsStaff() {
				continue
			}
			fmt.Fprintf(&b, "• `/%s` %s (cooldown %ds)\n", d.Name, d.Description, d.Cooldown())
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}
