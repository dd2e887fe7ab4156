package nl2

import "strings"

// StationStatus is the station state bitfield reported by the host.
type StationStatus uint32

const (
	EStop StationStatus = 1 << iota
	ManualMode
	CanDispatch
	GatesCanClose
	GatesCanOpen
	HarnessCanClose
	HarnessCanOpen
	PlatformCanRaise
	PlatformCanLower
	FlyerCarCanLock
	FlyerCarCanUnlock
	TrainInStation
	CurrentTrainInStation
)

var stationBitNames = []struct {
	bit  StationStatus
	name string
}{
	{EStop, "Emergency Stop"},
	{ManualMode, "Manual Mode"},
	{CanDispatch, "Can Dispatch"},
	{GatesCanClose, "Gates Can Close"},
	{GatesCanOpen, "Gates Can Open"},
	{HarnessCanClose, "Harness Can Close"},
	{HarnessCanOpen, "Harness Can Open"},
	{PlatformCanRaise, "Platform Can Raise"},
	{PlatformCanLower, "Platform Can Lower"},
	{FlyerCarCanLock, "Flyer Car Can Lock"},
	{FlyerCarCanUnlock, "Flyer Car Can Unlock"},
	{TrainInStation, "Train In Station"},
	{CurrentTrainInStation, "Current Train In Station"},
}

// Has reports whether every bit of mask is set.
func (s StationStatus) Has(mask StationStatus) bool {
	return s&mask == mask
}

// Flags maps each display label to its bit value.
func (s StationStatus) Flags() map[string]bool {
	flags := make(map[string]bool, len(stationBitNames))
	for _, b := range stationBitNames {
		flags[b.name] = s.Has(b.bit)
	}
	return flags
}

// Names returns the labels of the set bits in bit order.
func (s StationStatus) Names() []string {
	var set []string
	for _, b := range stationBitNames {
		if s.Has(b.bit) {
			set = append(set, b.name)
		}
	}
	return set
}

func (s StationStatus) String() string {
	set := s.Names()
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, ", ")
}
