package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-resty/resty/v2"

	"github.com/ryosuke1832/remind/internal/model"
)

func runWatch(ctx context.Context, c *apiClient, userID string, out io.Writer) error {
	// Streams outlive the request timeout of c.
	stream := resty.New().SetBaseURL(c.baseURL)
	if c.token != "" {
		stream.SetAuthToken(c.token)
	}
	resp, err := stream.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		Get("/api/users/" + userID + "/avatars/stream")
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		data, _ := io.ReadAll(body)
		return fmt.Errorf("http %d: %s", resp.StatusCode(), string(data))
	}
	err = readEvents(body, func(avs []model.Avatar) {
		_, _ = fmt.Fprintf(out, "--- %d avatars\n", len(avs))
		printAvatars(out, avs)
	})
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return err
}
