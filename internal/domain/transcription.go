package domain

import "slices"

// LinkState - состояние соединения с ASR для комнаты
type LinkState uint8

const (
	LinkAbsent LinkState = iota
	LinkConnecting
	LinkOpen
	LinkClosed
)

var linkTransitions = map[LinkState][]LinkState{
	LinkAbsent:     {LinkConnecting},
	LinkConnecting: {LinkOpen, LinkClosed},
	LinkOpen:       {LinkClosed},
}

func (s LinkState) CanTransition(to LinkState) bool {
	return slices.Contains(linkTransitions[s], to)
}

func (s LinkState) String() string {
	switch s {
	case LinkAbsent:
		return "absent"
	case LinkConnecting:
		return "connecting"
	case LinkOpen:
		return "open"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Caption - фрагмент живой расшифровки
type Caption struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}
