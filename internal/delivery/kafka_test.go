package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

type stubWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkKeysByEntity(t *testing.T) {
	writer := &stubWriter{}
	sink := &KafkaSink{writer: writer}

	ev := domain.NewAudioStopEvent("browser_extension", domain.AudioStop{Entity: "music.example"}, focusEvent("x").Timestamp)
	require.NoError(t, sink.Send(context.Background(), ev))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	require.Equal(t, "music.example", string(msg.Key))
	require.Equal(t, "event_kind", msg.Headers[0].Key)
	require.Equal(t, "audio-stop", string(msg.Headers[0].Value))
}

func TestKafkaSinkErrorsAreTagged(t *testing.T) {
	sink := &KafkaSink{writer: &stubWriter{err: errors.New("leader not available")}}
	err := sink.Send(context.Background(), focusEvent("a.com"))
	require.Equal(t, "kafka", domain.ErrorTag(err))

	sink = &KafkaSink{writer: &stubWriter{err: context.DeadlineExceeded}}
	require.Equal(t, "timeout", domain.ErrorTag(sink.Send(context.Background(), focusEvent("a.com"))))
}

func TestKafkaSinkClose(t *testing.T) {
	writer := &stubWriter{}
	sink := &KafkaSink{writer: writer}
	require.NoError(t, sink.Close())
	require.True(t, writer.closed)
	require.NoError(t, sink.Close())
	require.Equal(t, "closed", domain.ErrorTag(sink.Send(context.Background(), focusEvent("a.com"))))
}
