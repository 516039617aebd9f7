package slack

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/zapdoslabs/relay/internal/channels"
	"github.com/zapdoslabs/relay/internal/outbound"
	"github.com/zapdoslabs/relay/internal/retry"
)

type sentMessage struct {
	op      string
	channel string
	ts      string
	values  url.Values
}

// recordingClient records chat calls with their decoded options.
type recordingClient struct {
	MockSlackClient

	mu   sync.Mutex
	sent []sentMessage
	next int
}

func newRecordingClient() *recordingClient {
	rc := &recordingClient{}
	rc.PostMessageContextFunc = func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		rc.next++
		ts := fmt.Sprintf("200.%d", rc.next)
		rc.sent = append(rc.sent, sentMessage{op: "post", channel: channelID, ts: ts, values: applyOptions(options)})
		return channelID, ts, nil
	}
	rc.UpdateMessageContextFunc = func(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		rc.sent = append(rc.sent, sentMessage{op: "update", channel: channelID, ts: timestamp, values: applyOptions(options)})
		return channelID, timestamp, "", nil
	}
	return rc
}

func (rc *recordingClient) messages() []sentMessage {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]sentMessage(nil), rc.sent...)
}

func applyOptions(options []slack.MsgOption) url.Values {
	_, values, err := slack.UnsafeApplyMsgOptions("xoxb-test", "C1", "https://slack.com/api/", options...)
	if err != nil {
		return url.Values{}
	}
	return values
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Factor: 2}
}

func TestSurface_PostInThread(t *testing.T) {
	client := newRecordingClient()
	surface := NewSurface(client, "C1", "111.222", nil)

	h, err := surface.Post(context.Background(), outbound.TextMessage("*hi*"))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if h.Channel != "C1" || h.TS != "200.1" {
		t.Errorf("handle = %+v", h)
	}

	sent := client.messages()[0]
	if got := sent.values.Get("thread_ts"); got != "111.222" {
		t.Errorf("thread_ts = %q", got)
	}
	if got := sent.values.Get("text"); got != "*hi*" {
		t.Errorf("text = %q", got)
	}
	if !strings.Contains(sent.values.Get("blocks"), `"type":"section"`) {
		t.Errorf("blocks = %s", sent.values.Get("blocks"))
	}
}

func TestSurface_PostTopLevel(t *testing.T) {
	client := newRecordingClient()
	surface := NewSurface(client, "D1", "", nil)

	if _, err := surface.Post(context.Background(), outbound.TextMessage("hello")); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if got := client.messages()[0].values.Get("thread_ts"); got != "" {
		t.Errorf("thread_ts = %q, want none", got)
	}
}

func TestSurface_Update(t *testing.T) {
	client := newRecordingClient()
	surface := NewSurface(client, "C1", "111.222", nil)

	err := surface.Update(context.Background(), outbound.Handle{Channel: "C9", TS: "300.1"}, outbound.TextMessage("done"))
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	sent := client.messages()[0]
	if sent.op != "update" || sent.channel != "C9" || sent.ts != "300.1" {
		t.Errorf("sent = %+v", sent)
	}

	// A handle without a channel falls back to the surface's channel.
	if err := surface.Update(context.Background(), outbound.Handle{TS: "300.2"}, outbound.TextMessage("x")); err != nil {
		t.Fatal(err)
	}
	if got := client.messages()[1].channel; got != "C1" {
		t.Errorf("channel = %q", got)
	}
}

func TestSurface_RetriesRateLimits(t *testing.T) {
	calls := 0
	client := &MockSlackClient{
		PostMessageContextFunc: func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
			calls++
			if calls == 1 {
				return "", "", &slack.RateLimitedError{RetryAfter: time.Millisecond}
			}
			return channelID, "200.1", nil
		},
	}
	surface := NewSurface(client, "C1", "", nil)
	surface.retry = fastRetry()

	if _, err := surface.Post(context.Background(), outbound.TextMessage("x")); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestSurface_PermanentErrorsAreNotRetried(t *testing.T) {
	calls := 0
	client := &MockSlackClient{
		UpdateMessageContextFunc: func(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
			calls++
			return "", "", "", errors.New("message_not_found")
		},
	}
	surface := NewSurface(client, "C1", "", nil)
	surface.retry = fastRetry()

	err := surface.Update(context.Background(), outbound.Handle{TS: "1.1"}, outbound.TextMessage("x"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if code := channels.GetErrorCode(err); code != channels.ErrCodeNotFound {
		t.Errorf("code = %s", code)
	}
	if !retry.IsPermanent(err) {
		t.Error("error should be permanent")
	}
}

func TestSurface_UsesLimiter(t *testing.T) {
	client := newRecordingClient()
	limiter := channels.NewRateLimiter(1000, 2)
	surface := NewSurface(client, "C1", "", limiter)

	for i := 0; i < 3; i++ {
		if _, err := surface.Post(context.Background(), outbound.TextMessage("x")); err != nil {
			t.Fatal(err)
		}
	}
	if len(client.messages()) != 3 {
		t.Errorf("sent %d messages", len(client.messages()))
	}
	if limiter.Tokens() >= 2 {
		t.Error("limiter tokens were not consumed")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err       error
		code      channels.ErrorCode
		permanent bool
	}{
		{&slack.RateLimitedError{RetryAfter: 3 * time.Second}, channels.ErrCodeRateLimit, false},
		{errors.New("invalid_auth"), channels.ErrCodeAuthentication, true},
		{errors.New("channel_not_found"), channels.ErrCodeNotFound, true},
		{errors.New("msg_too_long"), channels.ErrCodeInvalidInput, true},
		{context.DeadlineExceeded, channels.ErrCodeTimeout, true},
		{errors.New("something odd"), channels.ErrCodeInternal, true},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			err := classify("chat.postMessage", tt.err)
			if code := channels.GetErrorCode(err); code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
			if retry.IsPermanent(err) != tt.permanent {
				t.Errorf("permanent = %v, want %v", retry.IsPermanent(err), tt.permanent)
			}
			if !errors.Is(err, tt.err) {
				t.Error("original error should stay reachable")
			}
		})
	}

	hint, ok := retry.RetryAfterHint(classify("chat.update", &slack.RateLimitedError{RetryAfter: 3 * time.Second}))
	if !ok || hint != 3*time.Second {
		t.Errorf("retry hint = %v, %v", hint, ok)
	}
}
