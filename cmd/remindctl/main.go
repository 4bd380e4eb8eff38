package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ryosuke1832/remind/internal/settings"
)

var (
	apiFlag      string
	userFlag     string
	settingsFlag string
	keyFlag      string
	rootCmd      = &cobra.Command{
		Use:           "remindctl",
		Short:         "CLI client for the reMind service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// settingsPath resolves --settings or the default location.
func settingsPath() (string, error) {
	if settingsFlag != "" {
		return settingsFlag, nil
	}
	return settings.DefaultPath()
}

// currentUser resolves --user, falling back to the cached id.
func currentUser() (string, error) {
	if userFlag != "" {
		return userFlag, nil
	}
	path, err := settingsPath()
	if err != nil {
		return "", err
	}
	s, err := settings.Load(path)
	if err != nil {
		return "", err
	}
	if s.UserID == "" {
		return "", fmt.Errorf("no user: pass --user or run `remindctl register`")
	}
	return s.UserID, nil
}

// client resolves --api, then the cached address, then localhost.
func client() *apiClient {
	url := apiFlag
	if url == "" {
		if path, err := settingsPath(); err == nil {
			if s, err := settings.Load(path); err == nil {
				url = s.APIURL
			}
		}
	}
	if url == "" {
		url = "http://localhost:8080"
	}
	c := newAPIClient(url)
	key := keyFlag
	if key == "" {
		key = os.Getenv("REMIND_API_KEY")
	}
	if key != "" {
		c.setToken(key)
	}
	return c
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "", "reMind service base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User ID (defaults to the cached user)")
	rootCmd.PersistentFlags().StringVar(&keyFlag, "api-key", "", "Bearer API key (default $REMIND_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&settingsFlag, "settings", "", "Settings file (default $XDG_CONFIG_HOME/remind/settings.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
