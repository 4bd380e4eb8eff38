package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ryosuke1832/remind/internal/model"
	"github.com/ryosuke1832/remind/internal/settings"
)

func init() {
	var id, name, email string
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Create a profile and cache its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := settingsPath()
			if err != nil {
				return err
			}
			return runRegister(client(), path, apiFlag, id, name, email, os.Stdout)
		},
	}
	registerCmd.Flags().StringVar(&id, "id", "", "User ID (generated when empty)")
	registerCmd.Flags().StringVarP(&name, "name", "n", "", "Display name (required)")
	registerCmd.Flags().StringVarP(&email, "email", "e", "", "Email (required)")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(registerCmd)

	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := currentUser()
			if err != nil {
				return err
			}
			return runWhoami(client(), userID, os.Stdout)
		},
	}
	rootCmd.AddCommand(whoamiCmd)

	var profileName, profileEmail, profileImg string
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Edit the current user's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := currentUser()
			if err != nil {
				return err
			}
			var p model.UserPatch
			if cmd.Flags().Changed("name") {
				p.Name = &profileName
			}
			if cmd.Flags().Changed("email") {
				p.Email = &profileEmail
			}
			if cmd.Flags().Changed("image") {
				p.ProfileImg = &profileImg
			}
			var u model.User
			if err := client().send("PATCH", "/api/users/"+userID, p, &u); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s <%s>\n", u.DisplayName(), u.Email)
			return nil
		},
	}
	profileCmd.Flags().StringVar(&profileName, "name", "", "Display name")
	profileCmd.Flags().StringVar(&profileEmail, "email", "", "Email")
	profileCmd.Flags().StringVar(&profileImg, "image", "", "Profile image URL (empty resets to the placeholder)")
	rootCmd.AddCommand(profileCmd)

	tutorialCmd := &cobra.Command{
		Use:   "tutorial [done|reset]",
		Short: "Show or set the tutorial-completed flag",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := settingsPath()
			if err != nil {
				return err
			}
			s, err := settings.Update(path, func(s *settings.Settings) {
				if len(args) == 1 {
					s.TutorialCompleted = args[0] == "done"
				}
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "tutorial completed: %t\n", s.TutorialCompleted)
			return nil
		},
	}
	rootCmd.AddCommand(tutorialCmd)
}

func runRegister(c *apiClient, settingsPath, apiURL, id, name, email string, out io.Writer) error {
	var u model.User
	body := map[string]string{"id": id, "name": name, "email": email}
	if err := c.send("POST", "/api/users", body, &u); err != nil {
		return err
	}
	if _, err := settings.Update(settingsPath, func(s *settings.Settings) {
		s.UserID = u.ID
		if apiURL != "" {
			s.APIURL = apiURL
		}
	}); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "registered %s (%s)\n", u.DisplayName(), u.ID)
	return nil
}

func runWhoami(c *apiClient, userID string, out io.Writer) error {
	var u model.User
	if err := c.get("/api/users/"+userID, &u); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s <%s> id=%s\n", u.DisplayName(), u.Email, u.ID)
	return nil
}
