package cart

type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// A cart closes exactly once, when its lines become an order.
var validNext = map[State]map[State]bool{
	StateOpen:   {StateClosed: true},
	StateClosed: {},
}

func CanTransition(from, to State) bool {
	return validNext[from][to]
}
