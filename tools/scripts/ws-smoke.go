// Package main provides a CI-friendly smoke test for a hotel push server.
//
// It validates:
//   - bearer handshake
//   - subscribe -> subscribed for every channel of a role
//   - ping -> pong
//   - optional listen window printing pushed notifications
//   - unsubscribe -> unsubscribed
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "frontdesk/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 64 << 10

type smokeClient struct {
	conn *websocket.Conn

	inbox chan v1.Message
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080", "push server URL")
		token   = flag.String("token", os.Getenv("FRONTDESK_ACCESS_TOKEN"), "access token sent as a bearer header")
		role    = flag.String("role", "", "staff role whose channels to subscribe (admin only when empty)")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		listen  = flag.Duration("listen", 0, "keep the connection open this long and print notifications")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()
	c := mustConnect(root, *wsURL, *token, *timeout)
	defer closeWS(c.conn)

	channels := v1.ChannelsForRole(*role)
	for _, ch := range channels {
		mustWrite(root, c.conn, v1.Subscribe(ch), *timeout)
		ack := c.mustReadUntilType(root, v1.TypeSubscribed, *timeout)
		if ack.Channel != ch {
			fatalf("subscribed channel mismatch: got=%q want=%q", ack.Channel, ch)
		}
		if *verbose {
			fmt.Printf("subscribed: %s\n", ch)
		}
	}

	start := time.Now()
	mustWrite(root, c.conn, v1.Ping(), *timeout)
	c.mustReadUntilType(root, v1.TypePong, *timeout)
	rtt := time.Since(start)

	if *listen > 0 {
		c.printNotifications(root, *listen)
	}

	for _, ch := range channels {
		mustWrite(root, c.conn, v1.Unsubscribe(ch), *timeout)
		ack := c.mustReadUntilType(root, v1.TypeUnsubscribed, *timeout)
		if ack.Channel != ch {
			fatalf("unsubscribed channel mismatch: got=%q want=%q", ack.Channel, ch)
		}
	}

	fmt.Printf("OK: channels=%s rtt=%s\n", strings.Join(channels, ","), rtt.Round(time.Millisecond))
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustConnect(parent context.Context, wsURL, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(token) != "" {
		h.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			fatalf("connect: %v (status=%d)", err, resp.StatusCode)
		}
		fatalf("connect: %v", err)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan v1.Message, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}

			m, err := v1.Decode(data)
			if err != nil {
				c.fail(fmt.Errorf("bad frame: %w", err))
				return
			}

			select {
			case c.inbox <- m:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *smokeClient) printNotifications(parent context.Context, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			fatalf("connection closed while listening: %v", err)
		case m, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while listening")
			}
			switch m.Type {
			case v1.TypeNotification:
				var d v1.NotificationData
				_ = json.Unmarshal(m.Data, &d)
				fmt.Printf("notification channel=%s title=%q message=%q priority=%s\n", m.Channel, d.Title, d.Message, d.Priority)
			case v1.TypeBookingConfirmed:
				fmt.Printf("booking_confirmed ref=%s guest=%q room=%s\n", m.BookingReference, m.GuestName, m.RoomNumber)
			}
		}
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Message {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q: %v", wantType, err)
		case m, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q", wantType)
			}
			if m.Type == wantType {
				return m
			}
			// Pushed events may interleave with acks.
		}
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, m v1.Message, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(m)
	if err != nil {
		fatalf("marshal frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
