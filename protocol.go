package main

import "encoding/json"

// Client -> Server message types
const (
	MsgRotate   = "rotate"
	MsgThrottle = "throttle"
	MsgFire     = "fire"
)

// Binary command opcodes: [op] or [op, f32 big endian]
const (
	OpRotate   byte = 0x01
	OpThrottle byte = 0x02
	OpFire     byte = 0x03
)

// Server -> Client message types
const (
	MsgWelcome = "welcome"
	MsgDeath   = "death"
	MsgRespawn = "respawn"
	MsgKill    = "kill"
	MsgError   = "error"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is an incoming message with its payload left raw
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CommandKind identifies a player command
type CommandKind uint8

const (
	CmdRotate CommandKind = iota + 1
	CmdThrottle
	CmdFire
)

// Command is a decoded player input; Value is the angle or throttle
type Command struct {
	Kind  CommandKind
	Value float64
}

func RotateCommand(angle float64) Command { return Command{Kind: CmdRotate, Value: angle} }
func ThrottleCommand(v float64) Command   { return Command{Kind: CmdThrottle, Value: v} }
func FireCommand() Command                { return Command{Kind: CmdFire} }

// PlayerState is broadcast per live player each tick
type PlayerState struct {
	ID    uint32  `json:"id" msgpack:"id"`
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	Angle float64 `json:"a" msgpack:"a"`
}

// ProjectileState is broadcast per projectile
type ProjectileState struct {
	ID    uint32  `json:"id" msgpack:"id"`
	Owner uint32  `json:"o" msgpack:"o"`
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	Angle float64 `json:"a" msgpack:"a"`
}

// CorpseState is broadcast per dead player
type CorpseState struct {
	ID        uint32  `json:"id" msgpack:"id"`
	RespawnIn float64 `json:"r" msgpack:"r"` // seconds
}

// GameState is the full state broadcast
type GameState struct {
	Tick        uint64            `json:"tick" msgpack:"tick"`
	Players     []PlayerState     `json:"p" msgpack:"p"`
	Projectiles []ProjectileState `json:"b" msgpack:"b"`
	Dead        []CorpseState     `json:"d" msgpack:"d"`
	Scoreboard  map[uint32]int    `json:"s" msgpack:"s"`
}

// WelcomeMsg is sent to a connection once it has joined
type WelcomeMsg struct {
	ID        uint32  `json:"id"`
	Name      string  `json:"name"`
	Spectator bool    `json:"spec,omitempty"`
	BoundX    float64 `json:"bx"`
	BoundY    float64 `json:"by"`
}

// DeathMsg notifies a player they died
type DeathMsg struct {
	KillerID   uint32 `json:"kid,omitempty"` // 0 for a crash
	KillerName string `json:"kn,omitempty"`
}

// KillMsg is broadcast to everyone in the arena
type KillMsg struct {
	KillerID   uint32 `json:"kid"`
	KillerName string `json:"kn"`
	VictimID   uint32 `json:"vid"`
	VictimName string `json:"vn"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// ServerStats is the response of the stats endpoint without a pilot
type ServerStats struct {
	Clients int            `json:"clients"`
	Events  map[string]int `json:"events,omitempty"`
}

// TokenMsg is the response of the token endpoint
type TokenMsg struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}
