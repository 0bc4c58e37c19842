package services

import "promptpot-backend/internal/models"

// Broadcaster receives every committed ledger notification. Implementations
// must not block the caller for long; the ledger holds its lock while
// broadcasting so notifications are observed in commit order.
type Broadcaster interface {
	Broadcast(event *models.Event)
}

type MultiBroadcaster []Broadcaster

func (m MultiBroadcaster) Broadcast(event *models.Event) {
	for _, b := range m {
		if b != nil {
			b.Broadcast(event)
		}
	}
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(*models.Event) {}
