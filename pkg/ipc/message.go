package ipc

import (
	"bytes"

	"github.com/bytedance/sonic"

	"github.com/arthur-debert/elevlink/pkg/errors"
)

// MessageType tags a wire message
type MessageType string

const (
	TypeInitialised MessageType = "initialised"
	TypeLinkFile    MessageType = "link-file"
	TypeRemoveLink  MessageType = "remove-link"
	TypeFinished    MessageType = "finished"
	TypeLog         MessageType = "log"
	TypeQuit        MessageType = "quit"
)

// Message is the single wire structure exchanged in both directions.
// Which fields are meaningful depends on Type.
type Message struct {
	Type MessageType `json:"type"`

	// initialised
	Channel string `json:"channel,omitempty"`
	PID     int    `json:"pid,omitempty"`

	// link-file, remove-link
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`

	// finished
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`

	// log
	Level string                 `json:"level,omitempty"`
	Text  string                 `json:"message,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

func Initialised(channelID string, pid int) Message {
	return Message{Type: TypeInitialised, Channel: channelID, PID: pid}
}

func LinkFile(source, destination string) Message {
	return Message{Type: TypeLinkFile, Source: source, Destination: destination}
}

func RemoveLink(destination string) Message {
	return Message{Type: TypeRemoveLink, Destination: destination}
}

// Finished reports completion of the operation on path. A non-empty failure
// means the worker could not carry it out.
func Finished(path, failure string) Message {
	return Message{Type: TypeFinished, Path: path, Error: failure}
}

func Log(level, text string, meta map[string]interface{}) Message {
	return Message{Type: TypeLog, Level: level, Text: text, Meta: meta}
}

func Quit() Message {
	return Message{Type: TypeQuit}
}

// Encode renders msg as one line of the wire format, including the newline
func Encode(msg Message) ([]byte, error) {
	data, err := sonic.Marshal(&msg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrProtocol, "failed to encode %s message", msg.Type)
	}
	return append(data, '\n'), nil
}

// Decode parses a single line of the wire format
func Decode(line []byte) (Message, error) {
	var msg Message
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return msg, errors.New(errors.ErrProtocol, "empty message")
	}
	if err := sonic.Unmarshal(line, &msg); err != nil {
		return msg, errors.Wrap(err, errors.ErrProtocol, "failed to decode message")
	}
	if msg.Type == "" {
		return msg, errors.New(errors.ErrProtocol, "message has no type")
	}
	return msg, nil
}
