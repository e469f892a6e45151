package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/justchokingaround/reel/internal/account"
	"github.com/justchokingaround/reel/internal/catalog"
)

// catalogCmd manages the local content catalog
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the content catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import titles from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open seed file: %w", err)
		}
		defer f.Close()

		n, err := catalog.NewRepository(db).ImportYAML(cmd.Context(), f)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %s titles\n", humanize.Comma(int64(n)))
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog titles",
	RunE: func(cmd *cobra.Command, args []string) error {
		contents, err := catalog.NewRepository(db).List(cmd.Context())
		if err != nil {
			return err
		}
		if len(contents) == 0 {
			fmt.Println("The catalog is empty. Import titles with 'reel catalog import'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tKIND\tTAGS")
		for _, c := range contents {
			kind := "film"
			if c.IsSeries {
				kind = fmt.Sprintf("series (%d eps)", len(c.Episodes))
			}
			if c.IsOriginal {
				kind += ", original"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Title, kind, strings.Join(c.Tags, ", "))
		}
		return w.Flush()
	},
}

// userCmd manages local users and their subscription tiers
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and subscriptions",
}

var userAddCmd = &cobra.Command{
	Use:   "add <nickname>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		tierName, _ := cmd.Flags().GetString("tier")

		tier, err := account.ParseTier(tierName)
		if err != nil {
			return err
		}

		u, err := account.NewRepository(db).Create(cmd.Context(), account.User{
			Email:    email,
			Nickname: args[0],
			Tier:     tier,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created user %s (%s)\n", u.ID, u.Tier)
		return nil
	},
}

var userSetTierCmd = &cobra.Command{
	Use:   "set-tier <user-id> <none|basic|premium>",
	Short: "Change a user's subscription tier",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := account.ParseTier(args[1])
		if err != nil {
			return err
		}
		if err := account.NewRepository(db).SetTier(cmd.Context(), args[0], tier); err != nil {
			return err
		}
		fmt.Printf("User %s is now on %s\n", args[0], tier)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := account.NewRepository(db).List(cmd.Context())
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No users")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNICKNAME\tEMAIL\tTIER")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Nickname, u.Email, u.Tier)
		}
		return w.Flush()
	},
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogListCmd)

	userAddCmd.Flags().String("email", "", "email address")
	userAddCmd.Flags().String("tier", "none", "subscription tier: none, basic, premium")
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userSetTierCmd)
	userCmd.AddCommand(userListCmd)
}
