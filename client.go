package main

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024
	sendBufSize       = 256
	maxMessagesPerSec = 120
)

var errBadFrame = errors.New("malformed command frame")

// Client bridges one websocket connection and the arena
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	playerID   uint32
	name       string
	spectator  bool
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr, name string, spectator bool) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		name:       name,
		spectator:  spectator,
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		if c.spectator {
			continue
		}

		var cmd Command
		if msgType == websocket.BinaryMessage {
			cmd, err = DecodeBinaryCommand(message)
		} else {
			cmd, err = DecodeJSONCommand(message)
		}
		if err != nil {
			log.Printf("player %d: %v", c.playerID, err)
			c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
			continue
		}
		c.hub.arena.Inbox <- PlayerCommand{PlayerID: c.playerID, Cmd: cmd}
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }() // send may already be closed by the hub
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
// Prefixes with 0xFF marker byte so WritePump can distinguish from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// DecodeJSONCommand parses {"t":"rotate","d":1.5}, {"t":"throttle","d":0.5} or {"t":"fire"}
func DecodeJSONCommand(raw []byte) (Command, error) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Command{}, fmt.Errorf("%w: %v", errBadFrame, err)
	}

	switch env.T {
	case MsgFire:
		return FireCommand(), nil
	case MsgRotate, MsgThrottle:
		var v float64
		if err := json.Unmarshal(env.D, &v); err != nil {
			return Command{}, fmt.Errorf("%w: %s payload: %v", errBadFrame, env.T, err)
		}
		if env.T == MsgRotate {
			return RotateCommand(v), nil
		}
		return ThrottleCommand(v), nil
	}
	return Command{}, fmt.Errorf("%w: unknown type %q", errBadFrame, env.T)
}

// DecodeBinaryCommand parses [op] or [op, f32 big endian]
func DecodeBinaryCommand(msg []byte) (Command, error) {
	if len(msg) == 0 {
		return Command{}, errBadFrame
	}
	switch msg[0] {
	case OpFire:
		return FireCommand(), nil
	case OpRotate, OpThrottle:
		if len(msg) != 5 {
			return Command{}, fmt.Errorf("%w: want 5 bytes, got %d", errBadFrame, len(msg))
		}
		v := float64(math.Float32frombits(binary.BigEndian.Uint32(msg[1:5])))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Command{}, fmt.Errorf("%w: non-finite value", errBadFrame)
		}
		if msg[0] == OpRotate {
			return RotateCommand(v), nil
		}
		return ThrottleCommand(v), nil
	}
	return Command{}, fmt.Errorf("%w: unknown opcode 0x%02x", errBadFrame, msg[0])
}
