package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	var avatarID string
	groundCmd := &cobra.Command{
		Use:   "ground",
		Short: "Walk through the 5-4-3-2-1 grounding exercise",
		Long:  "Answers are read one per line. An empty line moves to the next step.",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := currentUser()
			if err != nil {
				return err
			}
			return runGround(client(), userID, avatarID, os.Stdin, os.Stdout)
		},
	}
	groundCmd.Flags().StringVar(&avatarID, "avatar", "", "Avatar guiding the session")
	rootCmd.AddCommand(groundCmd)
}

type sessionState struct {
	ID   string `json:"id"`
	Step struct {
		Prompt string `json:"prompt"`
		Wanted int    `json:"wanted"`
	} `json:"step"`
	Answers  []string `json:"answers"`
	Finished bool     `json:"finished"`
	Progress float64  `json:"progress"`
}

func runGround(c *apiClient, userID, avatarID string, in io.Reader, out io.Writer) error {
	var s sessionState
	if err := c.send("POST", "/api/users/"+userID+"/sessions", map[string]string{"avatar_id": avatarID}, &s); err != nil {
		return err
	}
	defer func() { _ = c.send("DELETE", "/api/sessions/"+s.ID, nil, nil) }()

	sc := bufio.NewScanner(in)
	for !s.Finished {
		_, _ = fmt.Fprintf(out, "[%3.0f%%] %s\n", s.Progress*100, s.Step.Prompt)
		for s.Step.Wanted > 0 && len(s.Answers) < s.Step.Wanted {
			if !sc.Scan() {
				return sc.Err()
			}
			text := strings.TrimSpace(sc.Text())
			if text == "" {
				break
			}
			if err := c.send("POST", "/api/sessions/"+s.ID+"/answers", map[string]string{"text": text}, &s); err != nil {
				_, _ = fmt.Fprintln(out, err)
			}
		}
		if err := c.send("POST", "/api/sessions/"+s.ID+"/next", nil, &s); err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintln(out, "Well done.")
	return nil
}
