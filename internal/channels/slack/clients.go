package slack

import (
	"context"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// SlackAPIClient is the subset of the Slack Web API relay uses. It covers
// history reads for context and message posting and editing for delivery.
type SlackAPIClient interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)

	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)

	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
}

// SocketModeClient is the Socket Mode connection the adapter reads events from.
type SocketModeClient interface {
	// RunContext connects and blocks until ctx is done or the connection
	// fails for good.
	RunContext(ctx context.Context) error

	// Ack acknowledges an event
	Ack(req socketmode.Request, payload ...interface{})

	// Events returns the channel for receiving events
	Events() <-chan socketmode.Event
}

// Ensure slack.Client implements SlackAPIClient
var _ SlackAPIClient = (*slack.Client)(nil)

// NewClients builds the Web API client and the Socket Mode connection for a
// bot token and an app-level token.
func NewClients(cfg Config) (*slack.Client, SocketModeClient) {
	client := slack.New(
		cfg.BotToken,
		slack.OptionAppLevelToken(cfg.AppToken),
	)
	socket := socketmode.New(
		client,
		socketmode.OptionDebug(cfg.Debug),
	)
	return client, &socketConn{client: socket}
}

// socketConn exposes socketmode.Client's event channel through the
// SocketModeClient interface.
type socketConn struct {
	client *socketmode.Client
}

func (c *socketConn) RunContext(ctx context.Context) error {
	return c.client.RunContext(ctx)
}

func (c *socketConn) Ack(req socketmode.Request, payload ...interface{}) {
	c.client.Ack(req, payload...)
}

func (c *socketConn) Events() <-chan socketmode.Event {
	return c.client.Events
}

// MockSlackClient is a test double for SlackAPIClient.
type MockSlackClient struct {
	AuthTestContextFunc               func(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContextFunc            func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContextFunc          func(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	GetConversationRepliesContextFunc func(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetConversationHistoryContextFunc func(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
}

func (m *MockSlackClient) AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error) {
	if m.AuthTestContextFunc != nil {
		return m.AuthTestContextFunc(ctx)
	}
	return &slack.AuthTestResponse{UserID: "U12345", Team: "TestTeam"}, nil
}

func (m *MockSlackClient) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	if m.PostMessageContextFunc != nil {
		return m.PostMessageContextFunc(ctx, channelID, options...)
	}
	return channelID, "1234567890.123456", nil
}

func (m *MockSlackClient) UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
	if m.UpdateMessageContextFunc != nil {
		return m.UpdateMessageContextFunc(ctx, channelID, timestamp, options...)
	}
	return channelID, timestamp, "", nil
}

func (m *MockSlackClient) GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	if m.GetConversationRepliesContextFunc != nil {
		return m.GetConversationRepliesContextFunc(ctx, params)
	}
	return nil, false, "", nil
}

func (m *MockSlackClient) GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	if m.GetConversationHistoryContextFunc != nil {
		return m.GetConversationHistoryContextFunc(ctx, params)
	}
	return &slack.GetConversationHistoryResponse{}, nil
}

// MockSocketModeClient is a test double for SocketModeClient.
type MockSocketModeClient struct {
	RunContextFunc func(ctx context.Context) error
	AckFunc        func(req socketmode.Request, payload ...interface{})
	EventsChan     chan socketmode.Event
}

func NewMockSocketModeClient() *MockSocketModeClient {
	return &MockSocketModeClient{
		EventsChan: make(chan socketmode.Event, 100),
	}
}

func (m *MockSocketModeClient) RunContext(ctx context.Context) error {
	if m.RunContextFunc != nil {
		return m.RunContextFunc(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockSocketModeClient) Ack(req socketmode.Request, payload ...interface{}) {
	if m.AckFunc != nil {
		m.AckFunc(req, payload...)
	}
}

func (m *MockSocketModeClient) Events() <-chan socketmode.Event {
	return m.EventsChan
}
