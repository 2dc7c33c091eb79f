package community

import (
	"context"
	"fmt"
	"log/slog"
)

// profileResolver reads public profiles from the cache first and falls back
// to the DB, populating the cache on a miss.
type profileResolver struct {
	db     DB
	cache  Cache
	logger *slog.Logger
}

func (r *profileResolver) get(ctx context.Context, userID string) (Profile, error) {
	if r.cache != nil {
		p, ok, err := r.cache.GetProfile(ctx, userID)
		if err != nil {
			r.logger.Error("Could not read cached profile", "user_id", userID, "error", err.Error())
		}
		if ok {
			return p, nil
		}
	}

	p, err := r.db.GetProfile(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}

	if r.cache != nil {
		if err := r.cache.SetProfile(ctx, p); err != nil {
			r.logger.Error("Could not cache profile", "user_id", userID, "error", err.Error())
		}
	}
	return p, nil
}

func (r *profileResolver) remember(ctx context.Context, p Profile) error {
	if err := r.db.UpsertProfile(ctx, p); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	if r.cache != nil {
		if err := r.cache.SetProfile(ctx, p); err != nil {
			r.logger.Error("Could not cache profile", "user_id", p.ID, "error", err.Error())
		}
	}
	return nil
}
