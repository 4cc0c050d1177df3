package consumer

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventReader(t *testing.T) {
	body := ": keep-alive\n\n" +
		"event: reset\ndata: []\n\n" +
		"event: update\r\ndata: {\"id\":\r\ndata: \"y1\"}\r\nid: 7\r\n\r\n" +
		"retry: 1000\n\n" +
		"data:no-space\n\n" +
		"event: update\ndata: {\"partial\""

	r := newEventReader(strings.NewReader(body))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, Event{Type: "reset", Data: "[]"}, ev)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, Event{Type: "update", Data: "{\"id\":\n\"y1\"}", ID: "7"}, ev)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, Event{Type: "message", Data: "no-space"}, ev)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestEventReaderEmptyBody(t *testing.T) {
	_, err := newEventReader(strings.NewReader("")).Next()
	assert.Equal(t, io.EOF, err)
}
