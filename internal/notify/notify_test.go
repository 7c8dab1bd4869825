package notify

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMessage_Encode(t *testing.T) {
	msg := Message{
		To:      "ana@example.com",
		Subject: "Password recovery",
		Body:    "https://app.example.com/recover/abc",
		SentAt:  time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	var e jx.Encoder
	msg.Encode(&e)

	got := map[string]string{}
	err := jx.DecodeBytes(e.Bytes()).ObjBytes(func(d *jx.Decoder, k []byte) error {
		v, err := d.Str()
		got[string(k)] = v
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"to":      "ana@example.com",
		"subject": "Password recovery",
		"body":    "https://app.example.com/recover/abc",
		"sent_at": "2024-03-15T12:00:00Z",
	}, got)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))

	require.NoError(t, LogNotifier{}.Send(ctx, "ana@example.com", "Hi", "body"))

	entries := logs.FilterMessage("Notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ana@example.com", entries[0].ContextMap()["to"])
}
