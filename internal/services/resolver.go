package services

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"
	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

// CommunitySource is the part of the bot runtime the resolver reads.
type CommunitySource interface {
	Roles(ctx context.Context, communityID string) ([]models.Role, error)
	Members(ctx context.Context, communityID, channelID string, memberIDs []string) (*MemberSnapshot, error)
}

const (
	roleCacheSize = 1024
	roleCacheTTL  = time.Minute
)

// Resolver turns an InvocationRequest into a fully-resolved Invocation:
// highest role positions, staff tiers and capability sets are computed once
// here and never re-derived by the gate.
type Resolver struct {
	source CommunitySource
	staff  TierDirectory
	roles  *expirable.LRU[string, *models.RoleModel]
	clock  clockwork.Clock
	log    *zap.Logger
}

func NewResolver(source CommunitySource, staff TierDirectory, clock clockwork.Clock, log *zap.Logger) *Resolver {
	return &Resolver{
		source: source,
		staff:  staff,
		roles:  expirable.NewLRU[string, *models.RoleModel](roleCacheSize, nil, roleCacheTTL),
		clock:  clock,
		log:    log,
	}
}

func (r *Resolver) roleModel(ctx context.Context, communityID string) (*models.RoleModel, error) {
	if m, ok := r.roles.Get(communityID); ok {
		return m, nil
	}
	roles, err := r.source.Roles(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("fetch roles: %w", err)
	}
	m, err := models.NewRoleModel(communityID, roles)
	if err != nil {
		return nil, err
	}
	r.log.Debug("role model cached", zap.String("community_id", communityID), zap.Int("roles", len(roles)))
	r.roles.Add(communityID, m)
	return m, nil
}

// InvalidateRoles drops the cached role model, e.g. after a role update event.
func (r *Resolver) InvalidateRoles(communityID string) {
	r.roles.Remove(communityID)
}

func (r *Resolver) member(roles *models.RoleModel, m SnapshotMember) (models.Member, error) {
	caps, err := models.ParseCapabilities(m.Capabilities)
	if err != nil {
		return models.Member{}, err
	}
	return models.Member{
		ID:              m.ID,
		HighestPosition: roles.HighestPosition(m.RoleIDs),
		Tier:            r.staff.Tier(m.ID),
		Capabilities:    caps,
		Present:         m.Present,
	}, nil
}

func (r *Resolver) Resolve(ctx context.Context, req models.InvocationRequest) (*models.Invocation, error) {
	if req.CommandName == "" {
		return nil, &models.ValidationError{Field: "command_name", Rule: "required"}
	}
	if req.ActorID == "" {
		return nil, &models.ValidationError{Field: "actor_id", Rule: "required"}
	}

	inv := &models.Invocation{
		CommandName: req.CommandName,
		ChannelID:   req.ChannelID,
		Options:     req.Options,
		Timestamp:   r.clock.Now().UTC(),
	}
	if inv.Options == nil {
		inv.Options = map[string]any{}
	}

	if req.CommunityID == "" {
		inv.Actor = models.Member{ID: req.ActorID, Tier: r.staff.Tier(req.ActorID), Present: true}
		for _, id := range req.TargetIDs {
			inv.Targets = append(inv.Targets, models.Member{ID: id, Tier: r.staff.Tier(id)})
		}
		return inv, nil
	}

	roles, err := r.roleModel(ctx, req.CommunityID)
	if err != nil {
		return nil, err
	}
	memberIDs := append([]string{req.ActorID}, req.TargetIDs...)
	snap, err := r.source.Members(ctx, req.CommunityID, req.ChannelID, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch members: %w", err)
	}

	byID := make(map[string]SnapshotMember, len(snap.Members))
	for _, m := range snap.Members {
		byID[m.ID] = m
	}
	resolve := func(id string) (models.Member, error) {
		sm, ok := byID[id]
		if !ok {
			return models.Member{ID: id, Tier: r.staff.Tier(id)}, nil
		}
		return r.member(roles, sm)
	}

	if inv.Actor, err = resolve(req.ActorID); err != nil {
		return nil, err
	}
	for _, id := range req.TargetIDs {
		t, err := resolve(id)
		if err != nil {
			return nil, err
		}
		inv.Targets = append(inv.Targets, t)
	}
	if inv.System, err = r.member(roles, snap.System); err != nil {
		return nil, err
	}
	if inv.SystemChannelCapabilities, err = models.ParseCapabilities(snap.SystemChannelCapabilities); err != nil {
		return nil, err
	}
	inv.Community = &models.Community{ID: req.CommunityID, OwnerID: snap.OwnerID, Roles: roles}
	return inv, nil
}
