package sharing

import (
	"context"
	"database/sql"
	"time"

	"github.com/platinummonkey/dealdesk/pkg/permissions"
)

// PermissionChecker is the slice of the permissions resolver the record
// resolver needs for the override path.
type PermissionChecker interface {
	IsAuthorized(ctx context.Context, userID int64, scope permissions.Scope, at time.Time) (bool, error)
}

// MembershipResolver supplies team membership with group expansion: a user
// assigned to a group belongs to every descendant team.
type MembershipResolver interface {
	MemberUnits(ctx context.Context, userID int64) ([]int64, error)
}

// Resolver decides record-level access.
type Resolver struct {
	store   *Store
	perms   PermissionChecker
	teams   MembershipResolver
	modules map[string]string
}

// NewResolver creates a record access resolver. The modules map ties each
// resource type to the permission module its override scope lives in;
// DefaultResourceModules covers the platform's built-in document types.
func NewResolver(db *sql.DB, perms PermissionChecker, teams MembershipResolver, modules map[string]string) *Resolver {
	if modules == nil {
		modules = DefaultResourceModules()
	}
	return &Resolver{
		store:   NewStore(db),
		perms:   perms,
		teams:   teams,
		modules: modules,
	}
}

// Store exposes the underlying store for administrative handlers.
func (r *Resolver) Store() *Store {
	return r.store
}

// DefaultResourceModules maps the platform's document types to their
// permission modules.
func DefaultResourceModules() map[string]string {
	return map[string]string{
		"proposals": "sales",
		"bookings":  "sales",
		"mockups":   "sales",
	}
}

// CanAccessRecord reports whether the user may access the record at the
// requested level.
func (r *Resolver) CanAccessRecord(ctx context.Context, userID int64, resourceType, recordID string, requested AccessLevel, at time.Time) (bool, error) {
	if _, err := ParseAccessLevel(string(requested)); err != nil {
		return false, err
	}
	granted, err := r.AccessLevelFor(ctx, userID, resourceType, recordID, at)
	if err != nil {
		return false, err
	}
	return granted.Covers(requested), nil
}

// AccessLevelFor computes the maximum access level the user holds on the
// record across ownership, override, sharing rules and record shares. The
// sources are independent maxima; none subtracts from another.
func (r *Resolver) AccessLevelFor(ctx context.Context, userID int64, resourceType, recordID string, at time.Time) (AccessLevel, error) {
	// Ownership dominates: the recorded owner holds full access even with
	// no rules, shares or override grants.
	owner, err := r.store.RecordOwner(ctx, resourceType, recordID)
	if err != nil {
		return LevelNone, err
	}
	if owner != nil && *owner == userID {
		return LevelFull, nil
	}

	best := LevelNone

	// Override: an "all"-qualified scope lifts ownership restrictions
	// globally for its action.
	for _, level := range []AccessLevel{LevelFull, LevelReadWrite, LevelRead} {
		ok, err := r.perms.IsAuthorized(ctx, userID, r.overrideScope(resourceType, level), at)
		if err != nil {
			return LevelNone, err
		}
		if ok {
			best = level
			break
		}
	}
	if best == LevelFull {
		return best, nil
	}

	ruleLevel, err := r.ruleLevel(ctx, userID, resourceType, owner)
	if err != nil {
		return LevelNone, err
	}
	best = maxLevel(best, ruleLevel)
	if best == LevelFull {
		return best, nil
	}

	shareLevel, err := r.shareLevel(ctx, userID, resourceType, recordID, at)
	if err != nil {
		return LevelNone, err
	}
	return maxLevel(best, shareLevel), nil
}

// overrideScope builds the "all"-qualified permission scope analogous to an
// access level on a resource type.
func (r *Resolver) overrideScope(resourceType string, level AccessLevel) permissions.Scope {
	module, ok := r.modules[resourceType]
	if !ok {
		module = "sales"
	}

	action := "read"
	switch level {
	case LevelReadWrite:
		action = "update"
	case LevelFull:
		action = "manage"
	}
	return permissions.NewScope(module, resourceType, action).WithQualifier(permissions.QualifierAll)
}

func (r *Resolver) ruleLevel(ctx context.Context, userID int64, resourceType string, owner *int64) (AccessLevel, error) {
	rules, err := r.store.ActiveRules(ctx, resourceType)
	if err != nil {
		return LevelNone, err
	}
	if len(rules) == 0 {
		return LevelNone, nil
	}

	// Classifications are resolved lazily: most rules are decided by the
	// cheap kinds before profile or team lookups are needed.
	var (
		userProfile       string
		userProfileLoaded bool
		userTeams         map[int64]bool
		ownerProfile      string
		ownerProfileDone  bool
		ownerTeams        map[int64]bool
	)

	best := LevelNone
	for _, rule := range rules {
		if rule.Level.Rank() <= best.Rank() {
			continue
		}

		fromMatch := false
		switch rule.FromKind {
		case FromAllOwners:
			fromMatch = true
		case FromProfile:
			if owner == nil {
				break
			}
			if !ownerProfileDone {
				ownerProfile, err = r.store.ProfileNameOf(ctx, *owner)
				if err != nil {
					return LevelNone, err
				}
				ownerProfileDone = true
			}
			fromMatch = ownerProfile != "" && ownerProfile == rule.FromProfile
		case FromTeam:
			if owner == nil || rule.FromTeamID == nil {
				break
			}
			if ownerTeams == nil {
				ownerTeams, err = r.memberSet(ctx, *owner)
				if err != nil {
					return LevelNone, err
				}
			}
			fromMatch = ownerTeams[*rule.FromTeamID]
		}
		if !fromMatch {
			continue
		}

		toMatch := false
		switch rule.ToKind {
		case ToEveryone:
			toMatch = true
		case ToProfile:
			if !userProfileLoaded {
				userProfile, err = r.store.ProfileNameOf(ctx, userID)
				if err != nil {
					return LevelNone, err
				}
				userProfileLoaded = true
			}
			toMatch = userProfile != "" && userProfile == rule.ToProfile
		case ToTeam:
			if rule.ToTeamID == nil {
				break
			}
			if userTeams == nil {
				userTeams, err = r.memberSet(ctx, userID)
				if err != nil {
					return LevelNone, err
				}
			}
			toMatch = userTeams[*rule.ToTeamID]
		}
		if toMatch {
			best = maxLevel(best, rule.Level)
		}
	}
	return best, nil
}

func (r *Resolver) shareLevel(ctx context.Context, userID int64, resourceType, recordID string, at time.Time) (AccessLevel, error) {
	shares, err := r.store.LiveShares(ctx, resourceType, recordID, at)
	if err != nil {
		return LevelNone, err
	}
	if len(shares) == 0 {
		return LevelNone, nil
	}

	var userTeams map[int64]bool
	best := LevelNone
	for _, share := range shares {
		if share.Level.Rank() <= best.Rank() {
			continue
		}
		if share.UserID != nil {
			if *share.UserID == userID {
				best = share.Level
			}
			continue
		}
		if share.TeamID == nil {
			continue
		}
		if userTeams == nil {
			userTeams, err = r.memberSet(ctx, userID)
			if err != nil {
				return LevelNone, err
			}
		}
		if userTeams[*share.TeamID] {
			best = share.Level
		}
	}
	return best, nil
}

func (r *Resolver) memberSet(ctx context.Context, userID int64) (map[int64]bool, error) {
	units, err := r.teams.MemberUnits(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]bool, len(units))
	for _, id := range units {
		set[id] = true
	}
	return set, nil
}
