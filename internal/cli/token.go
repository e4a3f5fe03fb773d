package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"sftocsv/internal/salesforce"
	"sftocsv/internal/secret"
)

// NewTokenCommand creates the token command group.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage cached access tokens",
	}
	cmd.AddCommand(newTokenGetCommand(rootOpts))
	cmd.AddCommand(newTokenListCommand(rootOpts))
	cmd.AddCommand(newTokenDeleteCommand(rootOpts))
	cmd.AddCommand(newTokenFlushCommand(rootOpts))
	return cmd
}

func newTokenGetCommand(rootOpts *RootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the access token, fetching one with client credentials if none is cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if refresh {
				if !rootOpts.Config.HasClientCredentials() {
					return NewExitError(ExitCommandError, "--refresh needs SF_CLIENT_ID and SF_CLIENT_SECRET")
				}
				if err := rootOpts.tokenStore().Delete(rootOpts.Config.Token.Tag); err != nil {
					return WrapExitError(ExitFailure, "failed to clear cached token", err)
				}
			}
			token, err := rootOpts.accessToken(cmd.Context())
			if err != nil {
				var te *salesforce.TokenRequestError
				if errors.As(err, &te) {
					return WrapExitError(ExitFailure, "token request failed", err)
				}
				return WrapExitError(ExitCommandError, "no access token", err)
			}
			return rootOpts.output(cmd).Success(map[string]string{"tag": rootOpts.Config.Token.Tag, "accessToken": token}, token)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "discard the cached token and fetch a new one")
	return cmd
}

func newTokenListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached tokens by tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := rootOpts.tokenStore()
			entries, err := store.Entries()
			if errors.Is(err, secret.ErrStoreNotFound) {
				entries = map[string]secret.TokenEntry{}
			} else if err != nil {
				return WrapExitError(ExitFailure, "failed to read token store", err)
			}

			tags := make([]string, 0, len(entries))
			for tag := range entries {
				tags = append(tags, tag)
			}
			sort.Strings(tags)

			// Tokens are never printed here, only their age.
			type listed struct {
				Tag       string `json:"tag"`
				Timestamp string `json:"timestamp"`
			}
			out := make([]listed, 0, len(tags))
			var b strings.Builder
			fmt.Fprintf(&b, "%s", store.Path())
			for _, tag := range tags {
				out = append(out, listed{Tag: tag, Timestamp: entries[tag].Timestamp})
				fmt.Fprintf(&b, "\n  %-16s %s", tag, entries[tag].Timestamp)
			}
			return rootOpts.output(cmd).Success(out, b.String())
		},
	}
}

func newTokenDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [tag]",
		Short: "Remove one cached token (the configured tag by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := rootOpts.Config.Token.Tag
			if len(args) == 1 {
				tag = args[0]
			}
			if err := rootOpts.tokenStore().Delete(tag); err != nil {
				return WrapExitError(ExitFailure, "failed to delete token", err)
			}
			return rootOpts.output(cmd).Success(map[string]string{"deleted": tag}, "Deleted "+tag)
		},
	}
}

func newTokenFlushCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Delete the token store file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := rootOpts.tokenStore()
			if err := store.Flush(); err != nil {
				return WrapExitError(ExitFailure, "failed to flush token store", err)
			}
			return rootOpts.output(cmd).Success(map[string]string{"flushed": store.Path()}, "Removed "+store.Path())
		},
	}
}
