// Package ethws carries the JSON-RPC pub/sub plumbing shared by the
// pending-transaction transports and the fill confirmation feed: dial,
// eth_subscribe, then a deadline-guarded read pump with keepalive pings.
package ethws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	readTimeout      = 90 * time.Second
	pingInterval     = 30 * time.Second
)

// Request is a JSON-RPC 2.0 call. The stream transport reuses it for its
// HTTP lookups.
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// NewRequest fills the protocol boilerplate.
func NewRequest(method string, params ...interface{}) Request {
	return Request{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Endpoints orders a primary URL and an optional distinct backup for
// round-robin reconnection.
func Endpoints(primary, backup string) []string {
	urls := []string{primary}
	if backup != "" && backup != primary {
		urls = append(urls, backup)
	}
	return urls
}

// frame covers both the eth_subscribe ack (ID and Result set) and the
// eth_subscription notifications that follow (Method and Params set).
type frame struct {
	ID     *int            `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// DialSubscribe dials url, issues one eth_subscribe with params and waits
// for the ack. The caller owns the returned connection.
func DialSubscribe(ctx context.Context, url string, params []interface{}) (*websocket.Conn, string, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, "", errors.Wrapf(err, "ethws: dial %s", url)
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(NewRequest("eth_subscribe", params...)); err != nil {
		conn.Close()
		return nil, "", errors.Wrap(err, "ethws: subscribe write")
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, "", errors.Wrap(err, "ethws: subscribe read")
	}

	var ack frame
	if err := json.Unmarshal(msg, &ack); err != nil {
		conn.Close()
		return nil, "", errors.Wrap(err, "ethws: subscribe ack parse")
	}
	if ack.Error != nil {
		conn.Close()
		return nil, "", errors.Wrap(ack.Error, "ethws: subscribe rejected")
	}
	var subID string
	if err := json.Unmarshal(ack.Result, &subID); err != nil || subID == "" {
		conn.Close()
		return nil, "", errors.New("ethws: subscribe ack carried no subscription id")
	}
	return conn, subID, nil
}

// Pump feeds eth_subscription frames for subID into handle until the
// connection drops or ctx ends. It closes the connection on return.
func Pump(ctx context.Context, conn *websocket.Conn, subID string, handle func(json.RawMessage)) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			}
		}
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "ethws: read")
		}

		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			continue
		}
		if f.Method != "eth_subscription" || f.Params.Subscription != subID {
			continue
		}
		handle(f.Params.Result)
	}
}
