// Package registry is the HTTP client for the mountpoint registry service.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mivora/roomcast/internal/core"
	"github.com/mivora/roomcast/internal/domain"
)

type Client struct {
	base string
	http *http.Client
}

var _ core.MountpointRegistry = (*Client)(nil)

func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("registry: %s", e.Error)
		}
		return fmt.Errorf("registry: unexpected status %s", resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) Create(ctx context.Context, room domain.RoomID, description string) (*domain.Mountpoint, error) {
	payload := struct {
		Description string        `json:"description"`
		RoomID      domain.RoomID `json:"roomId"`
	}{Description: description, RoomID: room}

	var mp domain.Mountpoint
	if err := c.do(ctx, http.MethodPost, "/mountpoints", payload, &mp); err != nil {
		return nil, err
	}
	log.Info().Str("module", "adapters.registry").Int64("room", int64(room)).Int64("id", mp.ID).Msg("mountpoint created")
	return &mp, nil
}

func (c *Client) List(ctx context.Context) ([]domain.Mountpoint, error) {
	var out []domain.Mountpoint
	if err := c.do(ctx, http.MethodGet, "/mountpoints", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AssociatePublisher(ctx context.Context, room domain.RoomID, feed domain.FeedID) error {
	payload := struct {
		RoomID domain.RoomID `json:"roomId"`
		FeedID domain.FeedID `json:"feedId"`
	}{RoomID: room, FeedID: feed}
	return c.do(ctx, http.MethodPost, "/mountpoints/associate", payload, nil)
}

// Delete removes the room's mountpoint. An absent record is not an error:
// the server reports success=false and the teardown proceeds.
func (c *Client) Delete(ctx context.Context, room domain.RoomID) error {
	payload := struct {
		RoomID domain.RoomID `json:"roomId"`
	}{RoomID: room}

	var res struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodDelete, "/mountpoints", payload, &res); err != nil {
		return err
	}
	if !res.Success {
		log.Debug().Str("module", "adapters.registry").Int64("room", int64(room)).Msg("no mountpoint to delete")
	}
	return nil
}
