package lifecycle

import "github.com/spec-kit/lifecycle-engine/internal/domain"

var ticketGraph = map[domain.ItemStatus][]domain.ItemStatus{
	domain.StatusOpen:       {domain.StatusInProgress, domain.StatusPending, domain.StatusSnoozed, domain.StatusResolved, domain.StatusClosed},
	domain.StatusInProgress: {domain.StatusPending, domain.StatusSnoozed, domain.StatusResolved, domain.StatusClosed},
	domain.StatusPending:    {domain.StatusInProgress, domain.StatusSnoozed, domain.StatusResolved, domain.StatusClosed},
	// the way back out of snoozed is restricted to the recorded pre-snooze status
	domain.StatusSnoozed:  {domain.StatusOpen, domain.StatusInProgress, domain.StatusPending, domain.StatusResolved, domain.StatusClosed},
	domain.StatusResolved: {domain.StatusClosed},
	domain.StatusClosed:   {},
}

var chatGraph = map[domain.ItemStatus][]domain.ItemStatus{
	domain.StatusAIHandling:    {domain.StatusQueued, domain.StatusStaffHandling, domain.StatusClosed},
	domain.StatusQueued:        {domain.StatusStaffHandling, domain.StatusAIHandling, domain.StatusAssigned, domain.StatusClosed},
	domain.StatusAssigned:      {domain.StatusStaffHandling, domain.StatusAIHandling, domain.StatusAssigned, domain.StatusClosed},
	domain.StatusStaffHandling: {domain.StatusAIHandling, domain.StatusAssigned, domain.StatusClosed},
	domain.StatusClosed:        {},
}

func graphFor(channel domain.Channel) map[domain.ItemStatus][]domain.ItemStatus {
	if channel.IsChat() {
		return chatGraph
	}
	return ticketGraph
}

// Allowed reports whether from -> to is an edge of the channel's status graph.
func Allowed(channel domain.Channel, from, to domain.ItemStatus) bool {
	for _, candidate := range graphFor(channel)[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// KnownStatus reports whether status belongs to the channel's status set.
func KnownStatus(channel domain.Channel, status domain.ItemStatus) bool {
	_, ok := graphFor(channel)[status]
	return ok
}

// InitialStatus is the status a freshly created item starts in.
func InitialStatus(channel domain.Channel) domain.ItemStatus {
	if channel.IsChat() {
		return domain.StatusAIHandling
	}
	return domain.StatusOpen
}
