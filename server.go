package main

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const (
	joinTimeout      = 5 * time.Second
	qrSize           = 256
	maxLeaderboard   = 100
	spectatorName    = "SPECTATOR"
	defaultBoardSize = 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub, cfg AppConfig) *http.ServeMux {
	mux := http.NewServeMux()

	// Serve static files with no-cache so browsers always revalidate
	fs := http.FileServer(http.Dir(cfg.SpectatorDir))
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		fs.ServeHTTP(w, r)
	}))

	mux.HandleFunc("GET /socket", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		q := r.URL.Query()

		var key, name string
		if tok := q.Get("token"); tok != "" {
			var err error
			key, name, err = hub.auth.ValidateToken(tok)
			if err != nil {
				log.Printf("socket from %s rejected: %v", ip, err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
		} else {
			key, name = q.Get("key"), SanitizeName(q.Get("name"))
			if err := hub.auth.Login(key, ip); err != nil {
				log.Printf("socket from %s rejected: %v", ip, err)
				http.Error(w, "Invalid API Key", http.StatusBadRequest)
				return
			}
		}
		serveSession(hub, w, r, name, false)
	})

	mux.HandleFunc("GET /spectate", func(w http.ResponseWriter, r *http.Request) {
		serveSession(hub, w, r, spectatorName, true)
	})

	resetHandler := func(w http.ResponseWriter, r *http.Request) {
		if !authorizeAdmin(hub.auth, r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		log.Printf("reset requested by %s", extractIP(r))
		hub.arena.Inbox <- Reset{}
		w.Write([]byte("done"))
	}
	mux.HandleFunc("GET /reset", resetHandler)
	mux.HandleFunc("POST /reset", resetHandler)

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		key := r.FormValue("key")
		if err := hub.auth.Login(key, extractIP(r)); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ErrRateLimited) {
				status = http.StatusTooManyRequests
			}
			writeJSON(w, status, ErrorMsg{Msg: err.Error()})
			return
		}
		name := SanitizeName(r.FormValue("name"))
		token, err := hub.auth.IssueToken(key, name)
		if err != nil {
			log.Printf("issue token: %v", err)
			writeJSON(w, http.StatusInternalServerError, ErrorMsg{Msg: "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, TokenMsg{Token: token, Name: name})
	})

	mux.HandleFunc("GET /leaderboard", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorMsg{Msg: "stats disabled"})
			return
		}
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = defaultBoardSize
		}
		if limit > maxLeaderboard {
			limit = maxLeaderboard
		}
		rows, err := hub.db.GetLeaderboard(r.URL.Query().Get("by"), limit)
		if err != nil {
			log.Printf("leaderboard: %v", err)
			writeJSON(w, http.StatusInternalServerError, ErrorMsg{Msg: "internal error"})
			return
		}
		if rows == nil {
			rows = []StatsRow{}
		}
		writeJSON(w, http.StatusOK, rows)
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		pilot := r.URL.Query().Get("pilot")
		if pilot == "" {
			stats := ServerStats{Clients: hub.ClientCount()}
			if hub.db != nil {
				counts, err := hub.db.EventCounts()
				if err != nil {
					log.Printf("event counts: %v", err)
					writeJSON(w, http.StatusInternalServerError, ErrorMsg{Msg: "internal error"})
					return
				}
				stats.Events = counts
			}
			writeJSON(w, http.StatusOK, stats)
			return
		}
		if hub.db == nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorMsg{Msg: "stats disabled"})
			return
		}
		row, err := hub.db.GetStats(pilot)
		if err != nil {
			log.Printf("stats for %q: %v", pilot, err)
			writeJSON(w, http.StatusInternalServerError, ErrorMsg{Msg: "internal error"})
			return
		}
		if row == nil {
			writeJSON(w, http.StatusNotFound, ErrorMsg{Msg: "unknown pilot"})
			return
		}
		writeJSON(w, http.StatusOK, row)
	})

	mux.HandleFunc("GET /qr", func(w http.ResponseWriter, r *http.Request) {
		target := cfg.PublicURL
		if target == "" {
			target = "http://" + r.Host + "/"
		}
		png, err := qrcode.Encode(target, qrcode.Medium, qrSize)
		if err != nil {
			log.Printf("qr: %v", err)
			http.Error(w, "qr failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	return mux
}

// authorizeAdmin accepts dev mode, a bearer session token, or a valid key query
func authorizeAdmin(auth *Auth, r *http.Request) bool {
	if auth.DevMode() {
		return true
	}
	if tok := BearerToken(r.Header.Get("Authorization")); tok != "" {
		_, _, err := auth.ValidateToken(tok)
		return err == nil
	}
	return auth.Login(r.URL.Query().Get("key"), extractIP(r)) == nil
}

// serveSession upgrades the request and joins the connection to the arena
func serveSession(hub *Hub, w http.ResponseWriter, r *http.Request, name string, spectator bool) {
	ip := extractIP(r)
	if !hub.CanAccept(ip) {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade error: %v", err)
		return
	}
	hub.TrackConnect(ip)

	client := NewClient(hub, conn, ip, name, spectator)
	reply := make(chan JoinResult, 1)
	hub.arena.Inbox <- Join{Conn: client, Name: name, Spectator: spectator, Reply: reply}

	select {
	case res := <-reply:
		client.playerID = res.PlayerID
	case <-time.After(joinTimeout):
		log.Printf("join timed out for %s", ip)
		hub.TrackDisconnect(ip)
		conn.Close()
		go abandonJoin(hub.arena, reply)
		return
	}

	hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// abandonJoin undoes a join whose caller gave up waiting, once the arena
// gets to it. It returns early if the arena stops first.
func abandonJoin(arena *Arena, reply <-chan JoinResult) {
	select {
	case res := <-reply:
		select {
		case arena.Inbox <- Leave{PlayerID: res.PlayerID}:
		case <-arena.Stopped():
		}
	case <-arena.Stopped():
	}
}
