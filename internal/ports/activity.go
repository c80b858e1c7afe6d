package ports

// ActivitySignal is a kind of user interaction.
type ActivitySignal int

const (
	SignalPointer ActivitySignal = iota
	SignalKey
	SignalScroll
	SignalTouch
)

func (s ActivitySignal) String() string {
	switch s {
	case SignalPointer:
		return "pointer"
	case SignalKey:
		return "key"
	case SignalScroll:
		return "scroll"
	case SignalTouch:
		return "touch"
	default:
		return "unknown"
	}
}

// ActivitySource delivers user interaction signals.
type ActivitySource interface {
	// Subscribe registers fn and returns a function that removes it. The returned func is idempotent.
	Subscribe(fn func(ActivitySignal)) (unsubscribe func())
}
