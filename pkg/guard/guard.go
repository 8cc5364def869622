// Package guard has the standard preconditions used by the GitHub commands.
// Each constructor takes the names of the command arguments it reads.
package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sirupsen/logrus"
	"github.com/pantheon-systems/worf/pkg/worf"
)

// RepoMustExist blocks unless org/repo exists. A lookup failure blocks with a
// different message than a missing repository.
func RepoMustExist(orgArg, repoArg string) worf.Guard {
	return worf.GuardFunc(func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) worf.Result {
		org, repo := cc.Arg(orgArg), cc.Arg(repoArg)
		user := cc.User().Name

		ok, err := svc.Lookup.RepoExists(ctx, org, repo)
		if err != nil {
			logFailure(svc, cc, err).Error("repository lookup failed")
			svc.Notifier.SendError(cc.Channel(),
				fmt.Sprintf("@%s: A problem was encountered communicating with GitHub to verify the repository `%s/%s`. "+
					"Here are the details: ```%s```", user, org, repo, err),
				worf.Markdown())
			return worf.Block
		}
		if !ok {
			svc.Notifier.SendError(cc.Channel(),
				fmt.Sprintf("@%s: The repository: `%s/%s` does not exist.", user, org, repo),
				worf.Markdown())
			return worf.Block
		}
		return worf.Pass
	})
}

// UserMustExist blocks unless the GitHub user named by userArg exists.
func UserMustExist(userArg string) worf.Guard {
	return worf.GuardFunc(func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) worf.Result {
		handle := cc.Arg(userArg)
		user := cc.User().Name

		id, err := svc.Lookup.User(ctx, handle)
		if err != nil {
			logFailure(svc, cc, err).Error("user lookup failed")
			svc.Notifier.SendError(cc.Channel(),
				fmt.Sprintf("@%s: A problem was encountered communicating with GitHub to verify the user's GitHub id. "+
					"Here are the details:\n%s", user, err))
			return worf.Block
		}
		if id == nil {
			svc.Notifier.SendError(cc.Channel(),
				fmt.Sprintf("@%s: The GitHub user: %s does not exist.", user, handle))
			return worf.Block
		}
		return worf.Pass
	})
}

// BranchMustExist blocks unless branchArg names a branch of org/repo. It
// assumes the repository was already confirmed, so it must come after
// RepoMustExist in a chain.
func BranchMustExist(orgArg, repoArg, branchArg string) worf.Guard {
	return worf.GuardFunc(func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) worf.Result {
		org, repo, branch := cc.Arg(orgArg), cc.Arg(repoArg), cc.Arg(branchArg)
		user := cc.User().Name

		ok, err := svc.Lookup.BranchExists(ctx, org, repo, branch)
		if err != nil {
			logFailure(svc, cc, err).Error("branch lookup failed")
			svc.Notifier.SendError(cc.Channel(),
				fmt.Sprintf("@%s: A problem was encountered communicating with GitHub to verify the branch `%s`. "+
					"Here are the details: ```%s```", user, branch, err),
				worf.Markdown())
			return worf.Block
		}
		if !ok {
			svc.Notifier.SendError(cc.Channel(),
				fmt.Sprintf("@%s: This repository does not have the branch: `%s`.", user, branch),
				worf.Markdown())
			return worf.Block
		}
		return worf.Pass
	})
}

// OrgMustBeAllowed blocks commands against organizations the gateway does not
// manage. Matching is case-insensitive. An empty list allows nothing.
func OrgMustBeAllowed(orgArg string, orgs []string) worf.Guard {
	allowed := make(map[string]bool, len(orgs))
	for _, o := range orgs {
		allowed[strings.ToLower(o)] = true
	}
	return worf.GuardFunc(func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) worf.Result {
		org := cc.Arg(orgArg)
		if allowed[strings.ToLower(org)] {
			return worf.Pass
		}
		svc.Notifier.SendError(cc.Channel(),
			fmt.Sprintf("@%s: I don't manage the organization: `%s`. I know about: `%s`.",
				cc.User().Name, org, strings.Join(orgs, "`, `")),
			worf.Markdown())
		return worf.Block
	})
}

// ArgMustBeOneOf blocks unless arg is one of values.
func ArgMustBeOneOf(arg string, values ...string) worf.Guard {
	return worf.GuardFunc(func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) worf.Result {
		v := cc.Arg(arg)
		for _, ok := range values {
			if v == ok {
				return worf.Pass
			}
		}
		svc.Notifier.SendError(cc.Channel(),
			fmt.Sprintf("@%s: `%s` is not a valid %s. Use one of: `%s`.",
				cc.User().Name, v, arg, strings.Join(values, "`, `")),
			worf.Markdown())
		return worf.Block
	})
}

func logFailure(svc *worf.Services, cc *worf.CommandContext, err error) *logrus.Entry {
	return svc.Log.WithFields(logrus.Fields{
		"command": cc.Command(),
		"channel": cc.Channel(),
		"kind":    worf.KindRemoteUnavailable,
	}).WithError(err)
}
