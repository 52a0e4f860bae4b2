package core

import (
	"reflect"

	"github.com/encodeous/dvr/state"
)

// AddCost adds two link costs, saturating at INF.
func AddCost(a, b uint16) uint16 {
	if a == state.INF || b == state.INF {
		return state.INF
	} else {
		return uint16(min(uint32(state.INF), uint32(a)+uint32(b)))
	}
}

func Get[T state.Module](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}

func TryGet[T state.Module](s *state.State) (T, bool) {
	t := reflect.TypeFor[T]()
	m, ok := s.Modules[t.String()].(T)
	return m, ok
}
