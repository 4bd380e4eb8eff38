package main

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ryosuke1832/remind/internal/model"
)

func init() {
	var (
		images  []string
		audio   string
		consent bool
	)
	uploadCmd := &cobra.Command{
		Use:   "upload AVATAR_ID",
		Short: "Upload images and a voice message for an avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(client(), args[0], images, audio, consent, os.Stdout)
		},
	}
	uploadCmd.Flags().StringArrayVarP(&images, "image", "i", nil, "Image file (repeatable, up to 3)")
	uploadCmd.Flags().StringVar(&audio, "audio", "", "Voice message file (required)")
	uploadCmd.Flags().BoolVar(&consent, "consent", false, "Confirm the recipient consented to the upload")
	_ = uploadCmd.MarkFlagRequired("audio")
	rootCmd.AddCommand(uploadCmd)
}

type uploadStep struct {
	Kind  string `json:"kind"`
	Index int    `json:"index"`
	URL   string `json:"url"`
}

func runUpload(c *apiClient, avatarID string, images []string, audio string, consent bool, out io.Writer) error {
	r := c.http.R().SetFormData(map[string]string{"consent": strconv.FormatBool(consent)})
	for _, path := range images {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		r.SetMultipartField("images", filepath.Base(path), contentType(path), bytes.NewReader(data))
	}
	data, err := os.ReadFile(audio)
	if err != nil {
		return err
	}
	r.SetMultipartField("audio", filepath.Base(audio), contentType(audio), bytes.NewReader(data))

	var res struct {
		Avatar  model.Avatar `json:"avatar"`
		ViewURL string       `json:"view_url"`
		Steps   []uploadStep `json:"steps"`
	}
	if err := check(r.SetResult(&res).Post("/api/avatars/" + avatarID + "/media")); err != nil {
		return err
	}
	for _, s := range res.Steps {
		_, _ = fmt.Fprintf(out, "uploaded %s: %s\n", s.Kind, s.URL)
	}
	_, _ = fmt.Fprintf(out, "%d images, %s MB audio\n%s\n", res.Avatar.ImageCount, res.Avatar.AudioSizeMB, res.ViewURL)
	return nil
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
