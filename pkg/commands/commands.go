// Package commands defines the GitHub commands the gateway exposes in chat.
package commands

import (
	"context"
	"fmt"

	"github.com/pantheon-systems/worf/pkg/guard"
	"github.com/pantheon-systems/worf/pkg/worf"
)

// Repositories performs the privileged changes. *github.Client satisfies it.
type Repositories interface {
	SetDefaultBranch(ctx context.Context, org, repo, branch string) error
	SetDescription(ctx context.Context, org, repo, description string) error
	AddCollaborator(ctx context.Context, org, repo, user, permission string) error
}

// Permissions a collaborator can be granted.
var Permissions = []string{"pull", "push", "admin"}

// GitHub returns the GitHub commands, restricted to orgs.
func GitHub(repos Repositories, orgs []string) []*worf.Command {
	orgAllowed := guard.OrgMustBeAllowed("org", orgs)
	repoExists := guard.RepoMustExist("org", "repo")

	return []*worf.Command{
		{
			Name:        "setdefaultbranch",
			Description: "Sets the default branch of a repository.",
			Args:        []string{"org", "repo", "branch"},
			Guards: worf.Chain{
				orgAllowed,
				repoExists,
				guard.BranchMustExist("org", "repo", "branch"),
			},
			RequiresAuth: true,
			Handler:      setDefaultBranch(repos),
		},
		{
			Name:        "addcollab",
			Description: "Adds a GitHub user as a collaborator with pull, push or admin permission.",
			Args:        []string{"org", "repo", "user", "permission"},
			Guards: worf.Chain{
				orgAllowed,
				guard.ArgMustBeOneOf("permission", Permissions...),
				repoExists,
				guard.UserMustExist("user"),
			},
			RequiresAuth: true,
			Handler:      addCollaborator(repos),
		},
		{
			Name:        "setdescription",
			Description: "Sets the description of a repository.",
			Args:        []string{"org", "repo", "description"},
			Rest:        true,
			Guards: worf.Chain{
				orgAllowed,
				repoExists,
			},
			Handler: setDescription(repos),
		},
	}
}

func setDefaultBranch(repos Repositories) worf.Handler {
	return func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) error {
		org, repo, branch := cc.Arg("org"), cc.Arg("repo"), cc.Arg("branch")
		if err := repos.SetDefaultBranch(ctx, org, repo, branch); err != nil {
			return err
		}
		svc.Notifier.SendSuccess(cc.Channel(),
			fmt.Sprintf("@%s: The default branch of `%s/%s` is now `%s`.", cc.User().Name, org, repo, branch),
			worf.Markdown(), worf.InThread(cc.Thread()))
		return nil
	}
}

func addCollaborator(repos Repositories) worf.Handler {
	return func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) error {
		org, repo, user, perm := cc.Arg("org"), cc.Arg("repo"), cc.Arg("user"), cc.Arg("permission")
		if err := repos.AddCollaborator(ctx, org, repo, user, perm); err != nil {
			return err
		}
		svc.Notifier.SendSuccess(cc.Channel(),
			fmt.Sprintf("@%s: The GitHub user `%s` has been added to `%s/%s` with `%s` permission.", cc.User().Name, user, org, repo, perm),
			worf.Markdown(), worf.InThread(cc.Thread()))
		return nil
	}
}

func setDescription(repos Repositories) worf.Handler {
	return func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) error {
		org, repo, desc := cc.Arg("org"), cc.Arg("repo"), cc.Arg("description")
		if err := repos.SetDescription(ctx, org, repo, desc); err != nil {
			return err
		}
		svc.Notifier.SendSuccess(cc.Channel(),
			fmt.Sprintf("@%s: The description of `%s/%s` has been updated.", cc.User().Name, org, repo),
			worf.Markdown(), worf.InThread(cc.Thread()))
		return nil
	}
}
