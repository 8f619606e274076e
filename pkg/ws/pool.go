// Package ws fans session frames out to websocket clients and routes their
// requests back into the session.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Conn is the part of *websocket.Conn the pool writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Pool manages the websocket connections of one session. Every connection
// has its own writer; a connection whose buffer fills up is dropped so a slow
// client never stalls the session.
type Pool struct {
	sessionID    string
	mu           sync.Mutex
	clients      map[Conn]*client
	sendBuffer   int
	writeTimeout time.Duration
}

func NewPool(sessionID string) *Pool {
	return &Pool{
		sessionID:    sessionID,
		clients:      map[Conn]*client{},
		sendBuffer:   256,
		writeTimeout: 10 * time.Second,
	}
}

func (p *Pool) Add(conn Conn) {
	p.AddWithBacklog(conn, nil)
}

// AddWithBacklog registers conn and queues backlog ahead of any later
// broadcast.
func (p *Pool) AddWithBacklog(conn Conn, backlog [][]byte) {
	if p == nil || conn == nil {
		return
	}
	c := &client{conn: conn, send: make(chan []byte, p.sendBuffer+len(backlog)), done: make(chan struct{})}
	for _, f := range backlog {
		c.send <- f
	}
	p.mu.Lock()
	if _, ok := p.clients[conn]; ok {
		p.mu.Unlock()
		return
	}
	p.clients[conn] = c
	p.mu.Unlock()
	go p.writeLoop(c)
}

func (p *Pool) Remove(conn Conn) {
	if p == nil || conn == nil {
		return
	}
	p.mu.Lock()
	c, ok := p.clients[conn]
	delete(p.clients, conn)
	p.mu.Unlock()
	if ok {
		p.stop(c)
	}
}

// Broadcast queues data for every connection.
func (p *Pool) Broadcast(data []byte) {
	if p == nil || len(data) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for conn, c := range p.clients {
		p.enqueueLocked(conn, c, data)
	}
}

// SendToOne queues data for a single connection.
func (p *Pool) SendToOne(conn Conn, data []byte) {
	if p == nil || conn == nil || len(data) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[conn]; ok {
		p.enqueueLocked(conn, c, data)
	}
}

func (p *Pool) enqueueLocked(conn Conn, c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		log.Warn().Str("component", "ws").Str("session_id", p.sessionID).Msg("ws send buffer full, dropping connection")
		delete(p.clients, conn)
		go p.stop(c)
	}
}

func (p *Pool) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if p.writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("component", "ws").Str("session_id", p.sessionID).Msg("ws write failed, dropping connection")
				p.Remove(c.conn)
				return
			}
		}
	}
}

func (p *Pool) stop(c *client) {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (p *Pool) Count() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *Pool) CloseAll() {
	if p == nil {
		return
	}
	p.mu.Lock()
	clients := p.clients
	p.clients = map[Conn]*client{}
	p.mu.Unlock()
	for _, c := range clients {
		p.stop(c)
	}
}
