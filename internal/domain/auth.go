package domain

// ActorType differentiates who triggered an engine action.
type ActorType string

const (
	ActorStaff    ActorType = "STAFF"
	ActorAI       ActorType = "AI"
	ActorCustomer ActorType = "CUSTOMER"
	ActorSystem   ActorType = "SYSTEM"
)

// Actor identifies the caller of an engine operation.
type Actor struct {
	Type ActorType
	ID   string
}

// StaffActor builds a staff actor.
func StaffActor(id string) Actor {
	return Actor{Type: ActorStaff, ID: id}
}

// SystemActor is used for timer-driven transitions.
func SystemActor() Actor {
	return Actor{Type: ActorSystem}
}

// IDPtr returns a pointer to the actor id, or nil for anonymous actors.
func (a Actor) IDPtr() *string {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}
