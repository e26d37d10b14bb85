package uibridge

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/norasector/rigcore/pkg/command"
)

const defaultDialTimeout = 5 * time.Second

// Client talks to a bridge's command socket.
type Client struct {
	conn net.Conn
	wmu  sync.Mutex
}

// Dial connects to the command socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, defaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Send writes one command record.
func (c *Client) Send(cmd command.Command) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := command.WriteFrame(c.conn, cmd); err != nil {
		return fmt.Errorf("send error: %w", err)
	}
	return nil
}

// SendLine parses the text form of a command and sends it.
func (c *Client) SendLine(line string) (command.Command, error) {
	cmd, err := command.Parse(line)
	if err != nil {
		return command.Command{}, err
	}
	return cmd, c.Send(cmd)
}

// Recv blocks for the next REPORT from the radio.
func (c *Client) Recv() (command.Command, error) {
	return command.ReadFrame(c.conn)
}

// Request sends cmd and waits for the first REPORT with the same target.
// Reports for other targets that arrive meanwhile are discarded.
func (c *Client) Request(ctx context.Context, cmd command.Command) (command.Command, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	if err := c.Send(cmd); err != nil {
		return command.Command{}, err
	}
	for {
		rep, err := c.Recv()
		if err != nil {
			return command.Command{}, fmt.Errorf("waiting for %s: %w", cmd.Target, err)
		}
		if rep.Kind == command.Report && rep.Target == cmd.Target {
			return rep, nil
		}
		if err := ctx.Err(); err != nil {
			return command.Command{}, err
		}
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Waterfall reads spectrum rows from a bridge's waterfall socket.
type Waterfall struct {
	conn net.Conn
}

// DialWaterfall connects to the waterfall socket that goes with the command
// socket at path.
func DialWaterfall(path string) (*Waterfall, error) {
	conn, err := net.DialTimeout("unix", WaterfallPath(path), defaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", WaterfallPath(path), err)
	}
	return &Waterfall{conn: conn}, nil
}

// Next blocks for the next row.
func (w *Waterfall) Next() ([]float32, error) {
	return ReadRow(w.conn)
}

func (w *Waterfall) Close() error {
	return w.conn.Close()
}
