package registry

import (
	"sort"
	"strings"

	"github.com/TFMV/dwgate/pkg/models"
)

// InventoryItem is one instance line of the startup banner.
type InventoryItem struct {
	ID     string              `json:"id"`
	Kind   models.PlatformKind `json:"kind,omitempty"`
	Target string              `json:"target,omitempty"`
	Loaded bool                `json:"loaded"`
	Open   bool                `json:"open"`
	Reason string              `json:"reason,omitempty"`
}

// InventoryGroup collects instances sharing an id prefix (MAXCOMPUTE, HOLO, ...).
type InventoryGroup struct {
	Prefix string          `json:"prefix"`
	Items  []InventoryItem `json:"items"`
}

// Inventory groups loaded and skipped instances by the upper-cased first
// segment of their id. Groups and items are sorted.
func Inventory(reg *Registry) []InventoryGroup {
	byPrefix := make(map[string][]InventoryItem)

	for _, id := range reg.ListInstances(nil) {
		cfg, _ := reg.Instance(id)
		byPrefix[idPrefix(id)] = append(byPrefix[idPrefix(id)], InventoryItem{
			ID:     id,
			Kind:   cfg.Kind,
			Target: cfg.Target(),
			Loaded: true,
			Open:   reg.IsOpen(id),
		})
	}
	for _, s := range reg.Skipped() {
		byPrefix[idPrefix(s.ID)] = append(byPrefix[idPrefix(s.ID)], InventoryItem{
			ID:     s.ID,
			Reason: s.Reason,
		})
	}

	groups := make([]InventoryGroup, 0, len(byPrefix))
	for prefix, items := range byPrefix {
		sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
		groups = append(groups, InventoryGroup{Prefix: prefix, Items: items})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Prefix < groups[j].Prefix })
	return groups
}

func idPrefix(id string) string {
	prefix, _, _ := strings.Cut(id, "_")
	return strings.ToUpper(prefix)
}
