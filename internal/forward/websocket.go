package forward

import (
	"context"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
)

type wsSender struct {
	url    string
	dialer websocket.Dialer
}

func NewWebsocket(rawurl string, timeout time.Duration) (Sender, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, errors.Annotatef(err, "websocket url=%s", rawurl)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, errors.NotValidf("websocket url=%s scheme", rawurl)
	}
	return &wsSender{
		url: rawurl,
		dialer: websocket.Dialer{
			HandshakeTimeout: timeout,
		},
	}, nil
}

func (self *wsSender) String() string { return SinkWebsocket }

// Send dials, writes single text message, closes connection.
func (self *wsSender) Send(ctx context.Context, payload []byte) error {
	conn, _, err := self.dialer.DialContext(ctx, self.url, nil)
	if err != nil {
		return errors.Annotatef(err, "websocket dial url=%s", self.url)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	if err = conn.SetWriteDeadline(deadline); err != nil {
		return errors.Annotate(err, "websocket deadline")
	}
	if err = conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Annotate(err, "websocket write")
	}
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err = conn.WriteControl(websocket.CloseMessage, closeMsg, deadline); err != nil {
		return errors.Annotate(err, "websocket close")
	}
	return nil
}
