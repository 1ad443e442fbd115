// Package signaling implements the request/response/notification protocol
// spoken with the media server over a websocket.
package signaling

import (
	"encoding/json"

	"github.com/juju/errors"
)

// Message is a request, a response to a request, or a notification.
// Exactly one of Request, Response and Notification is set.
type Message struct {
	Request      bool `json:"request,omitempty"`
	Response     bool `json:"response,omitempty"`
	Notification bool `json:"notification,omitempty"`

	// ID matches responses to requests.
	ID     uint32 `json:"id,omitempty"`
	Method string `json:"method,omitempty"`

	OK          bool   `json:"ok,omitempty"`
	ErrorCode   int    `json:"errorCode,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`

	Data json.RawMessage `json:"data,omitempty"`
}

func marshalData(data interface{}) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}

	b, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Annotate(err, "marshal data")
	}

	return b, nil
}

func NewRequest(id uint32, method string, data interface{}) (Message, error) {
	b, err := marshalData(data)
	if err != nil {
		return Message{}, errors.Trace(err)
	}

	return Message{
		Request: true,
		ID:      id,
		Method:  method,
		Data:    b,
	}, nil
}

func NewNotification(method string, data interface{}) (Message, error) {
	b, err := marshalData(data)
	if err != nil {
		return Message{}, errors.Trace(err)
	}

	return Message{
		Notification: true,
		Method:       method,
		Data:         b,
	}, nil
}

// NewResponse creates a successful response to request.
func NewResponse(request Message, data interface{}) (Message, error) {
	b, err := marshalData(data)
	if err != nil {
		return Message{}, errors.Trace(err)
	}

	return Message{
		Response: true,
		ID:       request.ID,
		OK:       true,
		Data:     b,
	}, nil
}

func NewErrorResponse(request Message, code int, reason string) Message {
	return Message{
		Response:    true,
		ID:          request.ID,
		ErrorCode:   code,
		ErrorReason: reason,
	}
}

// DecodeData unmarshals the message data into v.
func (m Message) DecodeData(v interface{}) error {
	if len(m.Data) == 0 {
		return errors.NotValidf("empty %s data", m.Method)
	}

	return errors.Annotatef(json.Unmarshal(m.Data, v), "decode %s data", m.Method)
}
