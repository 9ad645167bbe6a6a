package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/elevlink/pkg/errors"
)

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(LinkFile("/mods/a/file.esp", "/data/file.esp"))
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1], "encoded messages are newline terminated")
	assert.Contains(t, string(data), `"type":"link-file"`)
	assert.NotContains(t, string(data), `"path"`, "empty fields are omitted")

	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeLinkFile, msg.Type)
	assert.Equal(t, "/mods/a/file.esp", msg.Source)
	assert.Equal(t, "/data/file.esp", msg.Destination)
}

func TestDecodeLogMessage(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"log","level":"warn","message":"slow disk","meta":{"path":"/data/x"}}`))
	require.NoError(t, err)
	assert.Equal(t, TypeLog, msg.Type)
	assert.Equal(t, "warn", msg.Level)
	assert.Equal(t, "slow disk", msg.Text)
	assert.Equal(t, "/data/x", msg.Meta["path"])
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty line", "   "},
		{"not json", "hello"},
		{"missing type", `{"path":"/data/x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.line))
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrProtocol))
		})
	}
}

func TestEventKindFor(t *testing.T) {
	kind, ok := eventKindFor(TypeFinished)
	assert.True(t, ok)
	assert.Equal(t, EventFinished, kind)

	// orchestrator-to-worker messages never arrive at the server
	_, ok = eventKindFor(TypeQuit)
	assert.False(t, ok)
	_, ok = eventKindFor(TypeLinkFile)
	assert.False(t, ok)
}
