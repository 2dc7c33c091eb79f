package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgeee/community/community"
	"github.com/edgeee/community/config"
	"github.com/edgeee/community/identity"
)

var tokenArgs struct {
	name   string
	avatar string
	role   string
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "print an access token for a user",
	Long: `
  Signs an access token with COMMUNITY_JWT_SECRET. Meant for development
  and tests; production tokens are issued by the identity provider.
`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenArgs.name, "name", "", "display name")
	f.StringVar(&tokenArgs.avatar, "avatar", "", "avatar URL")
	f.StringVar(&tokenArgs.role, "role", string(community.RoleStudent), "role: student, guardian, instructor or admin")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	switch r := community.Role(tokenArgs.role); r {
	case community.RoleStudent, community.RoleGuardian, community.RoleInstructor, community.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", r)
	}

	name := tokenArgs.name
	if name == "" {
		name = args[0]
	}
	token, err := identity.NewManager(cfg.JWTSecret).Generate(community.Principal{
		ID:          args[0],
		DisplayName: name,
		AvatarURL:   tokenArgs.avatar,
		Role:        community.Role(tokenArgs.role),
	}, cfg.TokenExpiry)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
