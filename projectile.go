package main

// Projectile represents a bullet in flight
type Projectile struct {
	ID      uint32
	OwnerID uint32
	X, Y    float64
	Angle   float64
	radius  float64
}

// NewProjectile creates a projectile just ahead of the shooter, sharing its heading
func NewProjectile(id uint32, owner *Player, cfg GameConfig) *Projectile {
	vx, vy := AngleToVector(owner.Angle)
	return &Projectile{
		ID:      id,
		OwnerID: owner.ID,
		X:       owner.X + vx*cfg.FireOffset,
		Y:       owner.Y + vy*cfg.FireOffset,
		Angle:   owner.Angle,
		radius:  cfg.ProjectileRadius,
	}
}

func (p *Projectile) Position() (float64, float64) { return p.X, p.Y }
func (p *Projectile) Heading() float64             { return p.Angle }
func (p *Projectile) Radius() float64              { return p.radius }

// Update moves the projectile one tick
func (p *Projectile) Update(dt float64, cfg GameConfig) {
	vx, vy := AngleToVector(p.Angle)
	p.X += vx * cfg.ProjectileSpeed * dt
	p.Y += vy * cfg.ProjectileSpeed * dt
}

// InBounds reports whether the projectile is still within one radius of the arena
func (p *Projectile) InBounds(cfg GameConfig) bool {
	r := p.radius
	return p.X > -r && p.X < cfg.BoundX+r &&
		p.Y > -r && p.Y < cfg.BoundY+r
}

// ToState converts to protocol state
func (p *Projectile) ToState() ProjectileState {
	return ProjectileState{
		ID:    p.ID,
		Owner: p.OwnerID,
		X:     round1(p.X),
		Y:     round1(p.Y),
		Angle: p.Angle,
	}
}
