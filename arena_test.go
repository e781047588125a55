package main

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// fakeConn records everything the arena sends to one connection
type fakeConn struct {
	mu     sync.Mutex
	json   []Envelope
	states [][]byte
}

func (f *fakeConn) SendJSON(msg interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.json = append(f.json, msg.(Envelope))
}

func (f *fakeConn) SendBinary(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, data)
}

func (f *fakeConn) lastState(t *testing.T) GameState {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		t.Fatal("no state received")
	}
	var gs GameState
	if err := msgpack.Unmarshal(f.states[len(f.states)-1], &gs); err != nil {
		t.Fatalf("msgpack unmarshal: %v", err)
	}
	return gs
}

func (f *fakeConn) messages(typ string) []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Envelope
	for _, env := range f.json {
		if env.T == typ {
			out = append(out, env)
		}
	}
	return out
}

func newTestArena() *Arena {
	return newArenaWithGame(NewGameWithRand(testConfig(), rand.New(rand.NewPCG(1, 2))), nil)
}

func join(t *testing.T, a *Arena, conn *fakeConn, name string, spectator bool) uint32 {
	t.Helper()
	reply := make(chan JoinResult, 1)
	a.handle(Join{Conn: conn, Name: name, Spectator: spectator, Reply: reply})
	select {
	case res := <-reply:
		return res.PlayerID
	default:
		t.Fatal("join did not reply")
		return 0
	}
}

func TestArenaJoinSendsWelcome(t *testing.T) {
	a := newTestArena()
	conn := &fakeConn{}
	id := join(t, a, conn, "alice", false)
	if id != 1 {
		t.Errorf("expected first id 1, got %d", id)
	}

	welcome := conn.messages(MsgWelcome)
	if len(welcome) != 1 {
		t.Fatalf("expected one welcome, got %d", len(welcome))
	}
	w := welcome[0].Data.(WelcomeMsg)
	if w.ID != 1 || w.Name != "alice" || w.Spectator || w.BoundX != 1000 {
		t.Errorf("unexpected welcome %+v", w)
	}
	if !a.game.IsAlive(id) {
		t.Error("player should be spawned")
	}

	if id2 := join(t, a, &fakeConn{}, "bob", false); id2 != 2 {
		t.Errorf("expected second id 2, got %d", id2)
	}
}

func TestArenaBroadcastsState(t *testing.T) {
	a := newTestArena()
	alice, watcher := &fakeConn{}, &fakeConn{}
	id := join(t, a, alice, "alice", false)
	join(t, a, watcher, "SPECTATOR", true)

	a.update()
	a.update()

	for _, conn := range []*fakeConn{alice, watcher} {
		gs := conn.lastState(t)
		if gs.Tick != 2 {
			t.Errorf("expected tick 2, got %d", gs.Tick)
		}
		if len(gs.Players) != 1 || gs.Players[0].ID != id {
			t.Errorf("expected only player %d, got %+v", id, gs.Players)
		}
	}
}

func TestArenaCommands(t *testing.T) {
	a := newTestArena()
	id := join(t, a, &fakeConn{}, "alice", false)
	watcher := join(t, a, &fakeConn{}, "SPECTATOR", true)

	a.handle(PlayerCommand{PlayerID: id, Cmd: ThrottleCommand(0.5)})
	if p := a.game.livePlayer(id); p.Throttle != 0.5 {
		t.Errorf("throttle not applied, got %f", p.Throttle)
	}

	a.handle(PlayerCommand{PlayerID: watcher, Cmd: FireCommand()})
	a.handle(PlayerCommand{PlayerID: 99, Cmd: FireCommand()})
	if len(a.game.projectiles) != 0 {
		t.Error("spectators and strangers must not fire")
	}
}

func TestArenaLeave(t *testing.T) {
	a := newTestArena()
	conn := &fakeConn{}
	id := join(t, a, conn, "alice", false)

	a.handle(Leave{PlayerID: id})
	if a.game.HasPlayer(id) {
		t.Error("player should be removed from the game")
	}

	a.update()
	conn.mu.Lock()
	n := len(conn.states)
	conn.mu.Unlock()
	if n != 0 {
		t.Error("departed connection should not receive state")
	}

	// Unknown and repeated leaves are harmless
	a.handle(Leave{PlayerID: id})
	a.handle(Leave{PlayerID: 42})
}

func TestArenaKillFeed(t *testing.T) {
	a := newTestArena()
	alice, bob := &fakeConn{}, &fakeConn{}
	p1 := join(t, a, alice, "alice", false)
	p2 := join(t, a, bob, "bob", false)
	place(t, a.game, p1, 10, 10, 0, 0)
	place(t, a.game, p2, 20, 10, 0, 0)

	a.handle(PlayerCommand{PlayerID: p1, Cmd: FireCommand()})
	a.update()

	for _, conn := range []*fakeConn{alice, bob} {
		kills := conn.messages(MsgKill)
		if len(kills) != 1 {
			t.Fatalf("expected one kill message, got %d", len(kills))
		}
		k := kills[0].Data.(KillMsg)
		if k.KillerName != "alice" || k.VictimName != "bob" || k.KillerID != p1 || k.VictimID != p2 {
			t.Errorf("unexpected kill %+v", k)
		}
	}
	deaths := bob.messages(MsgDeath)
	if len(deaths) != 1 || deaths[0].Data.(DeathMsg).KillerName != "alice" {
		t.Errorf("victim should be told who killed them, got %+v", deaths)
	}
	if len(alice.messages(MsgDeath)) != 0 {
		t.Error("shooter should not get a death message")
	}

	gs := alice.lastState(t)
	if gs.Scoreboard[p1] != 1 {
		t.Errorf("expected score 1, got %v", gs.Scoreboard)
	}
	if len(gs.Dead) != 1 || gs.Dead[0].ID != p2 {
		t.Errorf("expected bob as corpse, got %+v", gs.Dead)
	}
}

func TestArenaReset(t *testing.T) {
	a := newTestArena()
	p1 := join(t, a, &fakeConn{}, "alice", false)
	p2 := join(t, a, &fakeConn{}, "bob", false)
	place(t, a.game, p1, 10, 10, 0, 0)
	place(t, a.game, p2, 20, 10, 0, 0)
	a.handle(PlayerCommand{PlayerID: p1, Cmd: FireCommand()})
	a.update()

	a.handle(Reset{})

	if !a.game.IsAlive(p1) || !a.game.IsAlive(p2) {
		t.Error("everyone should be alive after reset")
	}
	if a.game.Score(p1) != 0 {
		t.Error("scores should be cleared")
	}
}

func TestArenaRunStop(t *testing.T) {
	a := newTestArena()
	go a.Run()

	conn := &fakeConn{}
	reply := make(chan JoinResult, 1)
	a.Inbox <- Join{Conn: conn, Name: "alice", Reply: reply}
	select {
	case <-reply:
	case <-time.After(time.Second):
		t.Fatal("join timed out")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.mu.Lock()
		n := len(conn.states)
		conn.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no state broadcast from the game loop")
		}
		time.Sleep(10 * time.Millisecond)
	}

	a.Stop()
	a.Stop()
}

func TestArenaRespawnNotifies(t *testing.T) {
	a := newTestArena()
	alice, bob := &fakeConn{}, &fakeConn{}
	p1 := join(t, a, alice, "alice", false)
	p2 := join(t, a, bob, "bob", false)
	place(t, a.game, p1, 100, 100, 0, 0)
	place(t, a.game, p2, 100, 100, 0, 0)

	a.update()
	if len(bob.messages(MsgDeath)) != 1 {
		t.Fatal("crash should send a death message")
	}

	// DeadPunish is 3s at 30 ticks per second
	for i := 0; i < 95; i++ {
		a.update()
	}
	if len(alice.messages(MsgRespawn)) == 0 || len(bob.messages(MsgRespawn)) == 0 {
		t.Error("both players should be told they respawned")
	}
}

func TestArenaStopWithoutRun(t *testing.T) {
	a := newTestArena()
	done := make(chan struct{})
	go func() {
		a.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running loop")
	}
	select {
	case <-a.Stopped():
	default:
		t.Error("Stopped should be closed")
	}
}

func TestAbandonJoinLeaves(t *testing.T) {
	a := newTestArena()
	reply := make(chan JoinResult, 1)
	reply <- JoinResult{PlayerID: 7}

	abandonJoin(a, reply)

	select {
	case msg := <-a.Inbox:
		if msg != (Leave{PlayerID: 7}) {
			t.Errorf("expected Leave for 7, got %#v", msg)
		}
	default:
		t.Fatal("expected a Leave in the inbox")
	}
}

func TestAbandonJoinStoppedArena(t *testing.T) {
	a := newTestArena()
	go a.Run()
	a.Stop()

	done := make(chan struct{})
	go func() {
		abandonJoin(a, make(chan JoinResult))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("abandonJoin blocked after the arena stopped")
	}
}
