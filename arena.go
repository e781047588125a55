package main

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const inboxSize = 1024

// Broadcaster is the outbound half of a connection. Both methods must not block.
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// Join registers a connection. Spectators get an id but no ship.
type Join struct {
	Conn      Broadcaster
	Name      string
	Spectator bool
	Reply     chan<- JoinResult
}

// JoinResult carries the id assigned by the arena
type JoinResult struct {
	PlayerID uint32
}

// Leave is sent when a connection closes
type Leave struct {
	PlayerID uint32
}

// PlayerCommand is a decoded input tagged with its sender
type PlayerCommand struct {
	PlayerID uint32
	Cmd      Command
}

// Reset wipes the world while keeping everyone connected
type Reset struct{}

type member struct {
	conn      Broadcaster
	name      string
	spectator bool
	joinedAt  time.Time
}

// Arena is the single owner of a Game. Every mutation arrives through Inbox
// and is handled on the Run goroutine, one message at a time.
type Arena struct {
	Inbox chan any

	cfg       GameConfig
	game      *Game
	members   map[uint32]*member
	nextID    uint32
	tick      uint64
	analytics *Analytics
	running   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

// NewArena creates an arena around a fresh world. analytics may be nil.
func NewArena(cfg GameConfig, analytics *Analytics) *Arena {
	return newArenaWithGame(NewGame(cfg), analytics)
}

func newArenaWithGame(game *Game, analytics *Analytics) *Arena {
	return &Arena{
		Inbox:     make(chan any, inboxSize),
		cfg:       game.Config(),
		game:      game,
		members:   make(map[uint32]*member),
		nextID:    1,
		analytics: analytics,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Config returns the immutable engine configuration; safe from any goroutine
func (a *Arena) Config() GameConfig {
	return a.cfg
}

// Run starts the game loop
func (a *Arena) Run() {
	a.running.Store(true)
	defer close(a.done)

	ticker := time.NewTicker(a.cfg.TickDuration())
	defer ticker.Stop()

	for {
		select {
		case msg := <-a.Inbox:
			a.handle(msg)
		case <-ticker.C:
			a.update()
		case <-a.stop:
			return
		}
	}
}

// Stop terminates the game loop and waits for it to exit if it was started
func (a *Arena) Stop() {
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
	if a.running.Load() {
		<-a.done
	}
}

// Stopped is closed once Stop has been called
func (a *Arena) Stopped() <-chan struct{} {
	return a.stop
}

func (a *Arena) handle(msg any) {
	switch m := msg.(type) {
	case Join:
		a.handleJoin(m)
	case Leave:
		a.handleLeave(m.PlayerID)
	case PlayerCommand:
		if mem, ok := a.members[m.PlayerID]; ok && !mem.spectator {
			a.game.ApplyCommand(m.PlayerID, m.Cmd)
		}
	case Reset:
		log.Printf("arena reset with %d players", a.game.PlayerCount())
		a.game.Reset()
		a.analytics.Track(EvtReset, "", "")
	default:
		log.Printf("arena: unknown message %T", msg)
	}
}

func (a *Arena) handleJoin(j Join) {
	id := a.nextID
	a.nextID++

	a.members[id] = &member{
		conn:      j.Conn,
		name:      j.Name,
		spectator: j.Spectator,
		joinedAt:  time.Now(),
	}
	if !j.Spectator {
		a.game.AddPlayer(id)
		a.analytics.Track(EvtJoin, j.Name, "")
		log.Printf("player %d (%s) joined", id, j.Name)
	}
	j.Conn.SendJSON(Envelope{T: MsgWelcome, Data: WelcomeMsg{
		ID:        id,
		Name:      j.Name,
		Spectator: j.Spectator,
		BoundX:    a.cfg.BoundX,
		BoundY:    a.cfg.BoundY,
	}})
	if j.Reply != nil {
		j.Reply <- JoinResult{PlayerID: id}
	}
}

func (a *Arena) handleLeave(id uint32) {
	mem, ok := a.members[id]
	if !ok {
		return
	}
	delete(a.members, id)
	if mem.spectator {
		return
	}
	a.game.RemovePlayer(id)
	a.analytics.TrackPlaytime(mem.name, time.Since(mem.joinedAt))
	log.Printf("player %d (%s) left", id, mem.name)
}

// update runs one game tick and broadcasts the result
func (a *Arena) update() {
	a.tick++
	a.game.Tick(a.cfg.TickDuration())
	a.dispatchEvents(a.game.DrainEvents())
	a.broadcastState()
}

func (a *Arena) nameOf(id uint32) string {
	if mem, ok := a.members[id]; ok {
		return mem.name
	}
	return ""
}

// dispatchEvents turns engine events into kill feed messages and stats
func (a *Arena) dispatchEvents(events []Event) {
	for _, ev := range events {
		switch ev.Kind {
		case EvKill:
			killer, victim := a.nameOf(ev.Actor), a.nameOf(ev.Target)
			log.Printf("player %d (%s) killed player %d (%s)", ev.Actor, killer, ev.Target, victim)
			a.broadcastMsg(Envelope{T: MsgKill, Data: KillMsg{
				KillerID:   ev.Actor,
				KillerName: killer,
				VictimID:   ev.Target,
				VictimName: victim,
			}})
			a.sendTo(ev.Target, Envelope{T: MsgDeath, Data: DeathMsg{KillerID: ev.Actor, KillerName: killer}})
			a.analytics.Track(EvtKill, killer, victim)
			a.analytics.Track(EvtDeath, victim, killer)
		case EvCrash:
			a.sendTo(ev.Target, Envelope{T: MsgDeath, Data: DeathMsg{}})
			a.analytics.Track(EvtCrash, a.nameOf(ev.Target), "")
		case EvRespawn:
			a.sendTo(ev.Target, Envelope{T: MsgRespawn})
			a.analytics.Track(EvtRespawn, a.nameOf(ev.Target), "")
		case EvSurvival:
			a.analytics.Track(EvtSurvival, a.nameOf(ev.Target), "")
		}
	}
}

// broadcastState sends the current game state to all connections
func (a *Arena) broadcastState() {
	state := a.game.Snapshot()
	state.Tick = a.tick

	data, err := msgpack.Marshal(state)
	if err != nil {
		log.Printf("arena: encode state: %v", err)
		return
	}
	for _, mem := range a.members {
		mem.conn.SendBinary(data)
	}
}

// broadcastMsg sends a message to every connection
func (a *Arena) broadcastMsg(msg Envelope) {
	for _, mem := range a.members {
		mem.conn.SendJSON(msg)
	}
}

func (a *Arena) sendTo(id uint32, msg Envelope) {
	if mem, ok := a.members[id]; ok {
		mem.conn.SendJSON(msg)
	}
}
