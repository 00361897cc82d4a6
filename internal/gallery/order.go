package gallery

import (
	"sort"
	"strings"

	"github.com/jun/gophgallery/internal/model"
)

// positions maps each id in order to its index.
func positions(order []string) map[string]int {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		if _, dup := pos[id]; !dup {
			pos[id] = i
		}
	}
	return pos
}

// less orders by explicit position (unknown ids last), then case-insensitive name,
// then raw name.
func less(pos map[string]int, idA, nameA, idB, nameB string) bool {
	pa, okA := pos[idA]
	pb, okB := pos[idB]
	switch {
	case okA && okB && pa != pb:
		return pa < pb
	case okA != okB:
		return okA
	}
	la, lb := strings.ToLower(nameA), strings.ToLower(nameB)
	if la != lb {
		return la < lb
	}
	return nameA < nameB
}

// SortItems orders items by fileOrder, falling back to name.
func SortItems(items []model.MediaItem, fileOrder []string) {
	pos := positions(fileOrder)
	sort.SliceStable(items, func(i, j int) bool {
		return less(pos, items[i].ID, items[i].Name, items[j].ID, items[j].Name)
	})
}

// SortMoments orders moments by momentsOrder, falling back to name, and renumbers Order.
func SortMoments(moments []model.Moment, momentsOrder []string) {
	pos := positions(momentsOrder)
	sort.SliceStable(moments, func(i, j int) bool {
		return less(pos, moments[i].ID, moments[i].Name, moments[j].ID, moments[j].Name)
	})
	for i := range moments {
		moments[i].Order = i
	}
}
