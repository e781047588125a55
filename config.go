package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// GameConfig fixes the arena bounds and simulation tuning for one engine
type GameConfig struct {
	BoundX   float64
	BoundY   float64
	TickRate int // ticks per second

	PlayerRadius     float64
	ProjectileRadius float64
	PlayerBaseSpeed  float64 // units/s at full throttle
	ProjectileSpeed  float64 // units/s
	FireOffset       float64 // spawn distance ahead of the shooter

	MaxConcurrentProjectiles int
	DeadPunish               time.Duration // corpse time before respawn
	SurvivalTimeout          time.Duration // grace before survival points start
	SurvivalInterval         time.Duration // between survival points
}

// DefaultGameConfig returns the standard arena tuning
func DefaultGameConfig() GameConfig {
	return GameConfig{
		BoundX:   1920,
		BoundY:   1080,
		TickRate: 30,

		PlayerRadius:     10,
		ProjectileRadius: 2,
		PlayerBaseSpeed:  300,
		ProjectileSpeed:  500,
		FireOffset:       5,

		MaxConcurrentProjectiles: 4,
		DeadPunish:               3 * time.Second,
		SurvivalTimeout:          10 * time.Second,
		SurvivalInterval:         4 * time.Second,
	}
}

// TickDuration is the fixed simulation step
func (c GameConfig) TickDuration() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.TickRate)
}

// Validate rejects configurations the engine cannot honour
func (c GameConfig) Validate() error {
	if c.BoundX <= 2*c.PlayerRadius || c.BoundY <= 2*c.PlayerRadius {
		return fmt.Errorf("bounds %.0fx%.0f too small for player radius %.1f", c.BoundX, c.BoundY, c.PlayerRadius)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %d", c.TickRate)
	}
	if c.MaxConcurrentProjectiles < 0 {
		return fmt.Errorf("projectile cap must not be negative")
	}
	return nil
}

// AppConfig is built once at startup and passed down; nothing mutates it afterwards
type AppConfig struct {
	Addr         string
	SpectatorDir string
	DBPath       string
	PublicURL    string
	APIKeys      []string
	DevMode      bool
	JWTSecret    string
	Game         GameConfig
}

// LoadConfig reads an optional .env file, the environment and the command line flags.
// Flags win over the environment.
func LoadConfig(args []string) (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := AppConfig{Game: DefaultGameConfig()}

	defAddr := ":3000"
	if port := os.Getenv("PORT"); port != "" {
		defAddr = ":" + port
	}
	devDefault, _ := strconv.ParseBool(os.Getenv("ARENA_DEV_MODE"))

	fset := flag.NewFlagSet("arena-server", flag.ContinueOnError)
	fset.StringVar(&cfg.Addr, "addr", defAddr, "HTTP listen address")
	fset.StringVar(&cfg.SpectatorDir, "spectator", "./spectator", "Path to spectator client directory")
	fset.StringVar(&cfg.DBPath, "db", "arena.db", "SQLite stats database (empty disables storage)")
	fset.StringVar(&cfg.PublicURL, "public-url", os.Getenv("ARENA_PUBLIC_URL"), "Public base URL used for the spectator QR code")
	fset.BoolVar(&cfg.DevMode, "dev", devDefault, "Accept any API key")
	fset.Float64Var(&cfg.Game.BoundX, "bound-x", cfg.Game.BoundX, "Arena width")
	fset.Float64Var(&cfg.Game.BoundY, "bound-y", cfg.Game.BoundY, "Arena height")
	if err := fset.Parse(args); err != nil {
		return AppConfig{}, err
	}

	cfg.APIKeys = splitKeys(os.Getenv("ARENA_API_KEYS"))
	cfg.JWTSecret = os.Getenv("ARENA_JWT_SECRET")

	if err := cfg.Game.Validate(); err != nil {
		return AppConfig{}, err
	}
	if !cfg.DevMode && len(cfg.APIKeys) == 0 {
		log.Println("warning: no API keys configured and dev mode is off, nobody can join")
	}
	return cfg, nil
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
