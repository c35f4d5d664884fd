// Package groupme models the GroupMe bot platform: the attachments carried by
// messages, the callbacks posted to bot endpoints, and a small client for the
// REST calls a bot needs (post a message, read its group, host an image).
package groupme

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/keepmind9/groupmebot/pkg/constants"
	"github.com/tidwall/gjson"
)

// Member is one entry of a group roster.
type Member struct {
	UserID   string
	Nickname string
}

// Group is the part of a group summary bots care about.
type Group struct {
	ID      string
	Name    string
	Members []Member
}

// Client issues authenticated calls to the platform. It holds no state
// besides its configuration and is safe for concurrent use.
type Client struct {
	token    string
	imageURL string
	http     *resty.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIURL overrides the REST API base URL.
func WithAPIURL(url string) ClientOption {
	return func(c *Client) { c.http.SetBaseURL(url) }
}

// WithImageURL overrides the image service endpoint.
func WithImageURL(url string) ClientOption {
	return func(c *Client) { c.imageURL = url }
}

// WithHTTPClient sends requests through hc.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		r := resty.NewWithClient(hc).SetBaseURL(c.http.BaseURL)
		if hc.Timeout == 0 {
			r.SetTimeout(constants.DefaultClientTimeout)
		}
		c.http = r
	}
}

// WithTimeout bounds every call made by the client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// NewClient returns a client authenticating with token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:    token,
		imageURL: constants.DefaultImageURL,
		http: resty.New().
			SetBaseURL(constants.DefaultAPIURL).
			SetTimeout(constants.DefaultClientTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetGroup fetches the summary of a group, including its members in roster
// order. ErrNotModified is returned for 3xx envelopes.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token", c.token).
		Get(fmt.Sprintf(constants.GroupPathFormat, groupID))
	if err != nil {
		return nil, fmt.Errorf("failed to get group %s: %w", groupID, err)
	}

	res, err := unwrap(resp)
	if err != nil {
		return nil, err
	}

	group := &Group{
		ID:   res.Get("id").String(),
		Name: res.Get("name").String(),
	}
	for _, m := range res.Get("members").Array() {
		group.Members = append(group.Members, Member{
			UserID:   m.Get("user_id").String(),
			Nickname: m.Get("nickname").String(),
		})
	}
	return group, nil
}

// PostBotMessage posts text and attachments to the group botID lives in.
func (c *Client) PostBotMessage(ctx context.Context, botID, text string, atts []Attachment) error {
	body := map[string]any{
		"bot_id":      botID,
		"text":        text,
		"attachments": EncodeAttachments(atts),
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(constants.BotPostPath)
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	if !resp.IsSuccess() {
		return newAPIError(resp.StatusCode(), resp.Body())
	}
	return nil
}

// FetchImage downloads an image from anywhere on the web.
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return nil, "", fmt.Errorf("failed to fetch image %s: %s", url, resp.Status())
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

// UploadImage stores raw image bytes on the platform image service and
// returns the hosted URL.
func (c *Client) UploadImage(ctx context.Context, data []byte, contentType string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(constants.AccessTokenHeader, c.token).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		Post(c.imageURL)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	if !resp.IsSuccess() {
		return "", newAPIError(resp.StatusCode(), resp.Body())
	}

	url := gjson.GetBytes(resp.Body(), "payload.picture_url")
	if !url.Exists() || url.String() == "" {
		return "", errors.New("image service response has no payload.picture_url")
	}
	return url.String(), nil
}

// ImageURLToPlatformURL re-hosts an external image on the platform, keeping
// its content type.
func (c *Client) ImageURLToPlatformURL(ctx context.Context, url string) (string, error) {
	data, contentType, err := c.FetchImage(ctx, url)
	if err != nil {
		return "", err
	}
	return c.UploadImage(ctx, data, contentType)
}

// unwrap opens the {meta, response} envelope of an API reply.
func unwrap(resp *resty.Response) (gjson.Result, error) {
	body := resp.Body()
	code := resp.StatusCode()
	if code < 400 {
		if meta := gjson.GetBytes(body, "meta.code"); meta.Exists() {
			code = int(meta.Int())
		}
	}

	switch {
	case code >= 400:
		return gjson.Result{}, newAPIError(code, body)
	case code >= 300:
		return gjson.Result{}, ErrNotModified
	}
	return gjson.GetBytes(body, "response"), nil
}
