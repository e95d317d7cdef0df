package cmd

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	userName  string
	userEmail string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user profiles",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user profile",
	Long: `Create a new user profile with the next available user id.

Credentials are added afterwards with 'cpx user set-credential'.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := newUserStore(slog.Default())
		if err != nil {
			return err
		}
		id, err := store.CreateNewUser(userName, userEmail, nil)
		if err != nil {
			return err
		}
		fmt.Printf("created user %d\n", id)
		return nil
	},
}

var userSetCredentialCmd = &cobra.Command{
	Use:   "set-credential <user-id> <service> <key> <value>",
	Short: "Set a credential on a user profile",
	Long: `Set a credential on a user profile, for example:

  cpx user set-credential 1 huggingface token hf_xxxx
  cpx user set-credential 1 tmdb api_key xxxx`,
	Args: cobra.ExactArgs(4),
	RunE: func(_ *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("user id %q is not a number", args[0])
		}
		store, err := newUserStore(slog.Default())
		if err != nil {
			return err
		}
		profile, err := store.Load(id)
		if err != nil {
			return err
		}
		profile.SetCredential(args[1], args[2], args[3])
		if err := store.Save(profile); err != nil {
			return err
		}
		fmt.Printf("set %s.%s for user %d\n", args[1], args[2], id)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user profiles",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := newUserStore(slog.Default())
		if err != nil {
			return err
		}
		ids, err := store.ListUsers()
		if err != nil {
			return err
		}
		for _, id := range ids {
			profile, err := store.Load(id)
			if err != nil {
				fmt.Printf("%4d  (unreadable profile: %v)\n", id, err)
				continue
			}
			services := make([]string, 0, len(profile.Credentials)+len(profile.OnlineServices))
			for svc := range profile.Credentials {
				services = append(services, svc)
			}
			for svc := range profile.OnlineServices {
				services = append(services, svc)
			}
			sort.Strings(services)
			fmt.Printf("%4d  %-20s %-30s budget $%.2f/mo  services %v\n",
				id, profile.User.Name, profile.User.Email, profile.Budget.MonthlyLimitUsd, services)
		}
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userName, "name", "", "user display name")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "user email address")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userSetCredentialCmd)
	userCmd.AddCommand(userListCmd)
	rootCmd.AddCommand(userCmd)
}
