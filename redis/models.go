package redis

import "github.com/edgeee/community/community"

// A profile is the cached public profile of a user.
type profile struct {
	ID          string `redis:"id"`
	DisplayName string `redis:"display_name"`
	AvatarURL   string `redis:"avatar_url"`
	Role        string `redis:"role"`
	CachedAt    int64  `redis:"cached_at"` // unix seconds
}

func (p profile) CommunityProfile() community.Profile {
	return community.Profile{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Role:        community.Role(p.Role),
	}
}
