package sdbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type rpcRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCClient talks to SurrealDB over the websocket /rpc endpoint. Calls are
// serialised; each waits for the response carrying its request id.
type RPCClient struct {
	conn   *websocket.Conn
	opts   options
	mu     sync.Mutex
	closed bool
}

// DialRPC connects to url (ws or wss), signs in and selects the namespace and database.
func DialRPC(ctx context.Context, rawURL string, opts ...ClientOption) (*RPCClient, error) {
	o := buildOptions(opts)

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/rpc"
	}

	dialer := websocket.Dialer{HandshakeTimeout: o.timeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", u.Redacted(), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	c := &RPCClient{conn: conn, opts: o}
	if o.user != "" {
		creds := map[string]string{"user": o.user, "pass": o.pass}
		if _, err := c.call(ctx, "signin", creds); err != nil {
			conn.Close()
			return nil, fmt.Errorf("signin: %w", err)
		}
		o.logger.Debug("signed in to SurrealDB", "user", o.user, "transport", "rpc")
	}
	if o.namespace != "" || o.database != "" {
		if _, err := c.call(ctx, "use", o.namespace, o.database); err != nil {
			conn.Close()
			return nil, fmt.Errorf("use %s/%s: %w", o.namespace, o.database, err)
		}
	}
	return c, nil
}

// Query runs sql with vars bound natively by the rpc protocol.
func (c *RPCClient) Query(ctx context.Context, sql string, vars map[string]any) ([]QueryResult, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	raw, err := c.call(ctx, "query", sql, vars)
	if err != nil {
		return nil, err
	}

	var results []QueryResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	return results, CheckResults(results)
}

// Begin starts a buffered transaction committed as a single query call.
func (c *RPCClient) Begin(ctx context.Context) (Tx, error) {
	return newBufferedTx(c), nil
}

// Close sends a close frame and closes the socket.
func (c *RPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

func (c *RPCClient) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.opts.timeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	req := rpcRequest{ID: uuid.NewString(), Method: method, Params: params}
	if err := c.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("write %s request: %w", method, err)
	}

	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			// gorilla connections are unusable after any read error,
			// including a deadline.
			c.closed = true
			_ = c.conn.Close()
			return nil, fmt.Errorf("%w: read %s response: %v", ErrClosed, method, err)
		}
		if resp.ID != req.ID {
			c.opts.logger.Debug("skipping unrelated rpc frame", "id", resp.ID)
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}
