package main

import (
	"math/rand/v2"
	"sort"
	"time"
)

// Corpse is a dead player waiting to respawn. The player has already been
// moved to its respawn position.
type Corpse struct {
	Player  *Player
	Respawn time.Duration // simulation time
}

// EventKind classifies what happened during a tick
type EventKind uint8

const (
	EvKill     EventKind = iota + 1 // Actor shot Target
	EvCrash                         // Target died colliding with another player
	EvRespawn                       // Target came back to life
	EvSurvival                      // Target earned a survival point
)

// Event records a state transition for the kill feed and stats
type Event struct {
	Kind   EventKind
	Actor  uint32
	Target uint32
}

// Game owns the authoritative world of one arena. It is not safe for
// concurrent use; the Arena serializes every call.
type Game struct {
	cfg         GameConfig
	rng         *rand.Rand
	players     []*Player
	projectiles []*Projectile
	dead        []Corpse
	scoreboard  map[uint32]int
	survival    map[uint32]time.Duration // next survival point
	nextProjID  uint32                   // wraps
	clock       time.Duration
	events      []Event
}

// NewGame creates an empty world with a randomly seeded generator
func NewGame(cfg GameConfig) *Game {
	return NewGameWithRand(cfg, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

// NewGameWithRand creates an empty world drawing positions from rng
func NewGameWithRand(cfg GameConfig, rng *rand.Rand) *Game {
	return &Game{
		cfg:        cfg,
		rng:        rng,
		scoreboard: make(map[uint32]int),
		survival:   make(map[uint32]time.Duration),
	}
}

// Config returns the engine configuration
func (g *Game) Config() GameConfig {
	return g.cfg
}

// Now returns the simulation clock
func (g *Game) Now() time.Duration {
	return g.clock
}

// Reset wipes the world but keeps every connected player, live or dead,
// re-adding them as fresh live players.
func (g *Game) Reset() {
	ids := make([]uint32, 0, len(g.players)+len(g.dead))
	for _, p := range g.players {
		ids = append(ids, p.ID)
	}
	for _, c := range g.dead {
		ids = append(ids, c.Player.ID)
	}

	*g = *NewGameWithRand(g.cfg, g.rng)
	for _, id := range ids {
		g.AddPlayer(id)
	}
}

// AddPlayer spawns a live player. The caller guarantees id is not already present.
func (g *Game) AddPlayer(id uint32) {
	g.players = append(g.players, NewPlayer(id, g.cfg, g.rng))
	g.survival[id] = g.clock + g.cfg.SurvivalTimeout
}

// RemovePlayer drops a player whether live or dead. Its score stays on the board.
func (g *Game) RemovePlayer(id uint32) {
	for i, p := range g.players {
		if p.ID == id {
			g.players = append(g.players[:i], g.players[i+1:]...)
			break
		}
	}
	for i, c := range g.dead {
		if c.Player.ID == id {
			g.dead = append(g.dead[:i], g.dead[i+1:]...)
			break
		}
	}
	delete(g.survival, id)
}

// HasPlayer reports whether id is live or a corpse
func (g *Game) HasPlayer(id uint32) bool {
	if g.livePlayer(id) != nil {
		return true
	}
	for _, c := range g.dead {
		if c.Player.ID == id {
			return true
		}
	}
	return false
}

// IsAlive reports whether id is in the live set
func (g *Game) IsAlive(id uint32) bool {
	return g.livePlayer(id) != nil
}

// PlayerCount returns live plus dead players
func (g *Game) PlayerCount() int {
	return len(g.players) + len(g.dead)
}

// Score returns the scoreboard entry for id
func (g *Game) Score(id uint32) int {
	return g.scoreboard[id]
}

func (g *Game) livePlayer(id uint32) *Player {
	for _, p := range g.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ApplyCommand applies one input. Commands for unknown or dead players are dropped.
func (g *Game) ApplyCommand(id uint32, cmd Command) {
	p := g.livePlayer(id)
	if p == nil {
		return
	}
	switch cmd.Kind {
	case CmdRotate:
		p.Angle = cmd.Value
	case CmdThrottle:
		p.Throttle = Clamp(cmd.Value, 0, 1)
	case CmdFire:
		if g.activeProjectiles(id) >= g.cfg.MaxConcurrentProjectiles {
			return
		}
		projID := g.nextProjID
		g.nextProjID++
		g.projectiles = append(g.projectiles, NewProjectile(projID, p, g.cfg))
	}
}

func (g *Game) activeProjectiles(owner uint32) int {
	n := 0
	for _, b := range g.projectiles {
		if b.OwnerID == owner {
			n++
		}
	}
	return n
}

// Tick advances the world by dt. Step order matters: each phase sees the
// results of the previous one.
func (g *Game) Tick(dt time.Duration) {
	g.clock += dt
	now := g.clock
	secs := dt.Seconds()

	g.respawn(now)

	for _, b := range g.projectiles {
		b.Update(secs, g.cfg)
	}
	for _, p := range g.players {
		p.Update(secs, g.cfg)
	}

	g.cullProjectiles()
	g.checkProjectileCollisions()
	g.checkPlayerCollisions(now)
	g.checkHits(now)
	g.awardSurvival(now)
}

func (g *Game) respawn(now time.Duration) {
	kept := g.dead[:0]
	for _, c := range g.dead {
		if c.Respawn <= now {
			g.players = append(g.players, c.Player)
			g.events = append(g.events, Event{Kind: EvRespawn, Target: c.Player.ID})
			continue
		}
		kept = append(kept, c)
	}
	g.dead = kept
}

func (g *Game) cullProjectiles() {
	kept := g.projectiles[:0]
	for _, b := range g.projectiles {
		if b.InBounds(g.cfg) {
			kept = append(kept, b)
		}
	}
	g.projectiles = kept
}

// checkProjectileCollisions destroys every projectile that touches another one
func (g *Game) checkProjectileCollisions() {
	hit := make(map[int]bool)
	for i := 0; i < len(g.projectiles); i++ {
		for j := i + 1; j < len(g.projectiles); j++ {
			if Overlaps(g.projectiles[i], g.projectiles[j]) {
				hit[i] = true
				hit[j] = true
			}
		}
	}
	if len(hit) == 0 {
		return
	}
	kept := g.projectiles[:0]
	for i, b := range g.projectiles {
		if !hit[i] {
			kept = append(kept, b)
		}
	}
	g.projectiles = kept
}

// checkPlayerCollisions kills every player in an overlapping pair (no points awarded)
func (g *Game) checkPlayerCollisions(now time.Duration) {
	hit := make(map[int]bool)
	for i := 0; i < len(g.players); i++ {
		for j := i + 1; j < len(g.players); j++ {
			if Overlaps(g.players[i], g.players[j]) {
				hit[i] = true
				hit[j] = true
			}
		}
	}
	if len(hit) == 0 {
		return
	}
	alive := make([]*Player, 0, len(g.players))
	for i, p := range g.players {
		if hit[i] {
			g.kill(p, now)
			g.events = append(g.events, Event{Kind: EvCrash, Target: p.ID})
			continue
		}
		alive = append(alive, p)
	}
	g.players = alive
}

// checkHits resolves projectile-player collisions. A projectile kills every
// non-owner it overlaps this tick and is then spent.
func (g *Game) checkHits(now time.Duration) {
	remaining := g.projectiles[:0]
	for _, b := range g.projectiles {
		used := false
		alive := g.players[:0]
		for _, p := range g.players {
			if p.ID != b.OwnerID && Overlaps(p, b) {
				used = true
				g.kill(p, now)
				g.scoreboard[b.OwnerID]++
				g.events = append(g.events, Event{Kind: EvKill, Actor: b.OwnerID, Target: p.ID})
				continue
			}
			alive = append(alive, p)
		}
		g.players = alive
		if !used {
			remaining = append(remaining, b)
		}
	}
	g.projectiles = remaining
}

// kill moves p to its respawn spot and parks it as a corpse. The caller
// removes p from the live set.
func (g *Game) kill(p *Player, now time.Duration) {
	p.Randomize(g.cfg, g.rng)
	g.dead = append(g.dead, Corpse{Player: p, Respawn: now + g.cfg.DeadPunish})
	g.survival[p.ID] = now + g.cfg.SurvivalTimeout
}

func (g *Game) awardSurvival(now time.Duration) {
	for id, next := range g.survival {
		if next <= now {
			g.scoreboard[id]++
			g.survival[id] = now + g.cfg.SurvivalInterval
			g.events = append(g.events, Event{Kind: EvSurvival, Target: id})
		}
	}
}

// DrainEvents returns the events recorded since the last call
func (g *Game) DrainEvents() []Event {
	evs := g.events
	g.events = nil
	return evs
}

// Snapshot builds the broadcast state. Corpses report seconds left until respawn.
func (g *Game) Snapshot() GameState {
	state := GameState{
		Players:     make([]PlayerState, 0, len(g.players)),
		Projectiles: make([]ProjectileState, 0, len(g.projectiles)),
		Dead:        make([]CorpseState, 0, len(g.dead)),
		Scoreboard:  make(map[uint32]int, len(g.scoreboard)),
	}
	for _, p := range g.players {
		state.Players = append(state.Players, p.ToState())
	}
	for _, b := range g.projectiles {
		state.Projectiles = append(state.Projectiles, b.ToState())
	}
	for _, c := range g.dead {
		left := c.Respawn - g.clock
		if left < 0 {
			left = 0
		}
		state.Dead = append(state.Dead, CorpseState{ID: c.Player.ID, RespawnIn: left.Seconds()})
	}
	for id, s := range g.scoreboard {
		state.Scoreboard[id] = s
	}
	sort.Slice(state.Players, func(i, j int) bool { return state.Players[i].ID < state.Players[j].ID })
	return state
}
