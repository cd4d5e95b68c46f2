// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package dsme keeps the connection to the device state manager and feeds
// its state indications into the system_state pipe.
package dsme

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/linuxdeepin/go-lib/log"
	dp "github.com/linuxdeepin/mce-daemon/datapipe"
	"github.com/linuxdeepin/mce-daemon/mce"
	"golang.org/x/xerrors"
)

const DefaultSocket = "/run/dsme.socket"

var logger = log.NewLogger("mce/dsme")

func SetLogLevel(pri log.Priority) {
	logger.SetLogLevel(pri)
}

type Client struct {
	ctx  *mce.Context
	conn net.Conn

	writeMu sync.Mutex
	done    chan struct{}
	closed  atomic.Bool
}

// Connect dials the state manager and asks for the current state.
func Connect(ctx *mce.Context, socket string) (*Client, error) {
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, xerrors.Errorf("connect dsme: %w", err)
	}
	c := &Client{
		ctx:  ctx,
		conn: conn,
		done: make(chan struct{}),
	}
	if err := c.send(Message{Type: MsgTypeStateQuery}); err != nil {
		conn.Close()
		return nil, xerrors.Errorf("query dsme state: %w", err)
	}
	go c.readLoop()
	return c, nil
}

// Init connects unless debugMode allows running without the state
// manager, in which case a failure only gives a nil client.
func Init(ctx *mce.Context, socket string, debugMode bool) (*Client, error) {
	c, err := Connect(ctx, socket)
	if err == nil {
		return c, nil
	}
	if !debugMode {
		return nil, err
	}
	logger.Warning(err, "; continuing in debug mode")
	return nil, nil
}

func (c *Client) send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(msg.Marshal())
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			if !c.closed.Load() {
				logger.Warning("dsme connection lost:", err)
			}
			return
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	switch msg.Type {
	case MsgTypeStateChangeInd:
		state, ok := msg.State()
		if !ok {
			return
		}
		logger.Info("dsme state:", mce.SystemState(state))
		// the reader never waits on the loop, so Close works before Run
		// and after Quit
		c.ctx.Loop.Post(func() {
			in := dp.Int(int(state))
			c.ctx.Pipe(mce.PipeSystemState).Execute(&in, dp.UseIndata, dp.CacheIndata)
		})

	case MsgTypeProcesswdPing:
		if err := c.send(Message{Type: MsgTypeProcesswdPong, Payload: msg.Payload}); err != nil {
			logger.Warning("process watchdog pong:", err)
		}

	default:
		logger.Debugf("ignoring dsme message %#x", msg.Type)
	}
}

// Close disconnects and waits for the reader to finish. Safe on nil.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.conn.Close()
	<-c.done
}
