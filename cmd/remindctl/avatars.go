package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ryosuke1832/remind/internal/model"
)

type avatarList struct {
	Avatars []model.Avatar `json:"avatars"`
	Count   int            `json:"count"`
}

func init() {
	var inv struct{ recipient, creator, name, language, theme, tone string }
	inviteCmd := &cobra.Command{
		Use:   "invite",
		Short: "Create an avatar shell and print the upload link",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := currentUser()
			if err != nil {
				return err
			}
			body := map[string]string{
				"recipient_name": inv.recipient,
				"creator_name":   inv.creator,
				"name":           inv.name,
				"language":       inv.language,
				"theme":          inv.theme,
				"voice_tone":     inv.tone,
			}
			var out struct {
				Avatar    model.Avatar `json:"avatar"`
				InviteURL string       `json:"invite_url"`
			}
			if err := client().send("POST", "/api/users/"+userID+"/avatars", body, &out); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\n%s\n", out.Avatar.ID, out.InviteURL)
			return nil
		},
	}
	inviteCmd.Flags().StringVarP(&inv.recipient, "recipient", "r", "", "Recipient name (required)")
	inviteCmd.Flags().StringVar(&inv.creator, "creator", "", "Creator name (defaults to the profile name)")
	inviteCmd.Flags().StringVar(&inv.name, "name", "", "Avatar name (defaults to the recipient)")
	inviteCmd.Flags().StringVar(&inv.language, "language", "", "Language")
	inviteCmd.Flags().StringVar(&inv.theme, "theme", "", "Theme")
	inviteCmd.Flags().StringVar(&inv.tone, "voice-tone", "", "Voice tone")
	_ = inviteCmd.MarkFlagRequired("recipient")
	rootCmd.AddCommand(inviteCmd)

	avatarsCmd := &cobra.Command{Use: "avatars", Short: "Avatar operations"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the user's avatars",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := currentUser()
			if err != nil {
				return err
			}
			return runList(client(), userID, os.Stdout)
		},
	}
	avatarsCmd.AddCommand(listCmd)

	avatarsCmd.AddCommand(&cobra.Command{
		Use:   "set-default AVATAR_ID",
		Short: "Make an avatar the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := currentUser()
			if err != nil {
				return err
			}
			return client().send("PUT", "/api/users/"+userID+"/avatars/"+args[0]+"/default", nil, nil)
		},
	})

	avatarsCmd.AddCommand(&cobra.Command{
		Use:   "delete AVATAR_ID",
		Short: "Delete an avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := currentUser()
			if err != nil {
				return err
			}
			return client().send("DELETE", "/api/users/"+userID+"/avatars/"+args[0], nil, nil)
		},
	})

	avatarsCmd.AddCommand(&cobra.Command{
		Use:   "rename AVATAR_ID NAME",
		Short: "Rename an avatar",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a model.Avatar
			if err := client().send("PATCH", "/api/avatars/"+args[0], model.AvatarPatch{Name: &args[1]}, &a); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, a.Name)
			return nil
		},
	})

	avatarsCmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print the avatar list on every change",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := currentUser()
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), client(), userID, os.Stdout)
		},
	})

	avatarsCmd.AddCommand(&cobra.Command{
		Use:   "verify AVATAR_ID",
		Short: "Check that an avatar's media is reachable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				OK     bool `json:"ok"`
				Checks []struct {
					URL        string `json:"url"`
					OK         bool   `json:"ok"`
					StatusCode int    `json:"status_code"`
					Error      string `json:"error"`
				} `json:"checks"`
			}
			if err := client().send("POST", "/api/avatars/"+args[0]+"/verify", nil, &out); err != nil {
				return err
			}
			for _, c := range out.Checks {
				_, _ = fmt.Fprintf(os.Stdout, "%t\t%d\t%s %s\n", c.OK, c.StatusCode, c.URL, c.Error)
			}
			if !out.OK {
				return fmt.Errorf("some assets are unreachable")
			}
			return nil
		},
	})

	rootCmd.AddCommand(avatarsCmd)
}

func runList(c *apiClient, userID string, out io.Writer) error {
	var list avatarList
	if err := c.get("/api/users/"+userID+"/avatars", &list); err != nil {
		return err
	}
	printAvatars(out, list.Avatars)
	return nil
}

func printAvatars(out io.Writer, avatars []model.Avatar) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DEFAULT\tID\tNAME\tSTATUS\tIMAGES\tAUDIO_MB")
	for _, a := range avatars {
		mark := ""
		if a.IsDefault {
			mark = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", mark, a.ID, a.Name, a.Status, a.ImageCount, a.AudioSizeMB)
	}
	_ = tw.Flush()
}

// readEvents decodes server-sent snapshot events from r until it ends.
func readEvents(r io.Reader, fn func(avatars []model.Avatar)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap struct {
			Avatars []model.Avatar `json:"avatars"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fn(snap.Avatars)
	}
	return sc.Err()
}
