package main

import (
	"math/rand/v2"
)

// Player is a live ship in the arena
type Player struct {
	ID       uint32
	X, Y     float64
	Angle    float64 // heading in radians
	Throttle float64 // 0..1
	radius   float64
}

// NewPlayer creates a player at a random in-bounds position
func NewPlayer(id uint32, cfg GameConfig, rng *rand.Rand) *Player {
	p := &Player{ID: id, radius: cfg.PlayerRadius}
	p.Randomize(cfg, rng)
	return p
}

func (p *Player) Position() (float64, float64) { return p.X, p.Y }
func (p *Player) Heading() float64             { return p.Angle }
func (p *Player) Radius() float64              { return p.radius }

// Randomize moves the player to a random spot that keeps the whole hull inside the bounds
func (p *Player) Randomize(cfg GameConfig, rng *rand.Rand) {
	r := p.radius
	p.X = r + rng.Float64()*(cfg.BoundX-2*r)
	p.Y = r + rng.Float64()*(cfg.BoundY-2*r)
}

// Update moves the player one tick along its heading, stopping at the walls
func (p *Player) Update(dt float64, cfg GameConfig) {
	vx, vy := AngleToVector(p.Angle)
	speed := cfg.PlayerBaseSpeed * p.Throttle
	p.X += vx * speed * dt
	p.Y += vy * speed * dt

	p.X = Clamp(p.X, p.radius, cfg.BoundX-p.radius)
	p.Y = Clamp(p.Y, p.radius, cfg.BoundY-p.radius)
}

// ToState converts to protocol state
func (p *Player) ToState() PlayerState {
	return PlayerState{
		ID:    p.ID,
		X:     round1(p.X),
		Y:     round1(p.Y),
		Angle: p.Angle,
	}
}
