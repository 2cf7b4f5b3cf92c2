package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/logger"
)

// Hub доставляет события реестра подключённым адресам-участникам.
type Hub struct {
	mu         sync.RWMutex
	clients    map[common.Address]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}
}

type message struct {
	parties []common.Address
	payload []byte
}

// Envelope это формат сообщения клиенту: type содержит имя события, data его содержимое.
type Envelope struct {
	Type string       `json:"type"`
	Data entity.Event `json:"data"`
}

// NewHub создаёт хаб. Run должен быть запущен до регистрации клиентов.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[common.Address]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
	}
}

// Run обрабатывает регистрации и рассылку до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg)
		}
	}
}

// Register добавляет клиента. После остановки хаба ничего не делает.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish реализует ledger.Publisher: каждое событие уходит всем его участникам.
// При переполненной очереди событие отбрасывается, фиксация транзакции не ждёт клиентов.
func (h *Hub) Publish(_ context.Context, events []entity.Event) {
	for _, ev := range events {
		if len(ev.Parties) == 0 {
			continue
		}
		raw, err := json.Marshal(Envelope{Type: ev.Type, Data: ev})
		if err != nil {
			logger.Errorf("ws: не удалось сериализовать событие %s: %v", ev.Type, err)
			continue
		}

		select {
		case h.broadcast <- message{parties: ev.Parties, payload: raw}:
		default:
			logger.WithFields(logrus.Fields{"type": ev.Type, "id": ev.ID}).Warn("ws: очередь рассылки переполнена")
		}
	}
}

// Connected возвращает число открытых подключений адреса.
func (h *Hub) Connected(addr common.Address) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[addr])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.address]; !ok {
		h.clients[client.address] = make(map[*Client]struct{})
	}
	h.clients[client.address][client] = struct{}{}
}

// removeClient закрывает канал клиента. Канал закрывает только тот, кто удалил клиента из карты.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client)
}

func (h *Hub) dropLocked(client *Client) {
	clients, ok := h.clients[client.address]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.address)
	}
}

func (h *Hub) send(msg message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[common.Address]bool, len(msg.parties))
	for _, addr := range msg.parties {
		if seen[addr] {
			continue
		}
		seen[addr] = true

		for client := range h.clients[addr] {
			select {
			case client.send <- msg.payload:
			default:
				// медленный клиент отключается, writePump увидит закрытый канал
				h.dropLocked(client)
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.clients {
		for client := range clients {
			h.dropLocked(client)
		}
	}
}
