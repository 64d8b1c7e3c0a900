package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	calls []string
}

func (r *recordingHandler) JoinChat(_ context.Context, _ *Client, cmd JoinChat) error {
	r.calls = append(r.calls, "join:"+cmd.ChatID)
	return nil
}

func (r *recordingHandler) LeaveChat(_ context.Context, _ *Client, cmd LeaveChat) error {
	r.calls = append(r.calls, "leave:"+cmd.ChatID)
	return nil
}

func (r *recordingHandler) SendMessage(_ context.Context, _ *Client, cmd SendMessage) error {
	r.calls = append(r.calls, "send:"+cmd.Content)
	return nil
}

func (r *recordingHandler) TypingStart(_ context.Context, _ *Client, cmd TypingStart) error {
	r.calls = append(r.calls, "typing-start:"+cmd.ChatID)
	return nil
}

func (r *recordingHandler) TypingStop(_ context.Context, _ *Client, cmd TypingStop) error {
	r.calls = append(r.calls, "typing-stop:"+cmd.ChatID)
	return nil
}

func (r *recordingHandler) ReadMessage(_ context.Context, _ *Client, cmd ReadMessage) error {
	r.calls = append(r.calls, "read:"+cmd.MessageID)
	return nil
}

func TestDispatchRoutesEachCommand(t *testing.T) {
	h := &recordingHandler{}
	c := NewClient("c1", "a", "alice", 1)
	ctx := context.Background()

	cmds := []Command{
		JoinChat{ChatID: "c"},
		SendMessage{ChatID: "c", Content: "hi"},
		TypingStart{ChatID: "c"},
		TypingStop{ChatID: "c"},
		ReadMessage{ChatID: "c", MessageID: "m"},
		LeaveChat{ChatID: "c"},
	}
	for _, cmd := range cmds {
		require.NoError(t, cmd.Dispatch(ctx, h, c))
	}

	assert.Equal(t, []string{
		"join:c", "send:hi", "typing-start:c", "typing-stop:c", "read:m", "leave:c",
	}, h.calls)
}

func TestCommandValidation(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		ok   bool
	}{
		{"join ok", JoinChat{ChatID: "c"}, true},
		{"join missing chat", JoinChat{}, false},
		{"typing missing chat", TypingStart{}, false},
		{"send text", SendMessage{ChatID: "c", Content: "hi"}, true},
		{"send file only", SendMessage{ChatID: "c", Type: "image", FileURL: "/f.png"}, true},
		{"send empty", SendMessage{ChatID: "c"}, false},
		{"send bad type", SendMessage{ChatID: "c", Content: "x", Type: "sticker"}, false},
		{"read ok", ReadMessage{ChatID: "c", MessageID: "m"}, true},
		{"read missing message", ReadMessage{ChatID: "c"}, false},
		{"read missing chat", ReadMessage{MessageID: "m"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.ok {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, ErrCodeBadRequest, err.Code)
		})
	}
}

func TestEventNames(t *testing.T) {
	assert.Equal(t, "message:receive", EventMessageReceive.String())
	assert.Equal(t, "typing:update", EventTypingUpdate.String())
	assert.Equal(t, "user:offline", EventUserOffline.String())
	assert.Equal(t, "unknown", EventKind(99).String())
}
