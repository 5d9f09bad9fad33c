// pkg/filter/filter.go - Package for filtering software entries by name

package filter

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/windowsadmins/cimisync/pkg/config"
	"github.com/windowsadmins/cimisync/pkg/logging"
)

// ItemFilter holds the filtering configuration and state
type ItemFilter struct {
	items []string
}

// NewItemFilter creates a new ItemFilter instance
func NewItemFilter() *ItemFilter {
	return &ItemFilter{}
}

// RegisterFlags registers the --item flag on fs
func (f *ItemFilter) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(
		&f.items,
		"item",
		nil,
		"Process only the named software entries. "+
			"Can be repeated or given as a comma-separated list.",
	)
}

// SetItems allows setting the items filter programmatically
func (f *ItemFilter) SetItems(items []string) {
	f.items = items
}

// GetItems returns the current items filter
func (f *ItemFilter) GetItems() []string {
	return f.items
}

// HasFilter returns true if any items are set in the filter
func (f *ItemFilter) HasFilter() bool {
	return len(f.items) > 0
}

// matches compares the filter value against SoftwareName and the full
// Name_Sub1_Sub2 form.
func matches(want map[string]struct{}, e config.SoftwareEntry) bool {
	if _, ok := want[strings.ToLower(e.SoftwareName)]; ok {
		return true
	}
	full := e.SoftwareName
	for _, s := range []string{e.SubName1, e.SubName2} {
		if s != "" {
			full += "_" + s
		}
	}
	_, ok := want[strings.ToLower(full)]
	return ok
}

// FilterEntries returns only entries whose name appears in the filter.
// If no filter is set, returns all entries unchanged.
func (f *ItemFilter) FilterEntries(all []config.SoftwareEntry) []config.SoftwareEntry {
	if len(f.items) == 0 {
		return all
	}

	// Create a map for case-insensitive lookup
	wantMap := make(map[string]struct{}, len(f.items))
	for _, item := range f.items {
		wantMap[strings.ToLower(strings.TrimSpace(item))] = struct{}{}
	}

	var filtered []config.SoftwareEntry
	for _, e := range all {
		if matches(wantMap, e) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// Apply filters entries and logs the outcome. An empty result is returned
// to the caller, which decides whether that ends the run.
func (f *ItemFilter) Apply(entries []config.SoftwareEntry) []config.SoftwareEntry {
	if len(f.items) == 0 {
		return entries // no filter requested
	}

	filtered := f.FilterEntries(entries)
	if len(filtered) == 0 {
		logging.Warn("No software entries match --item filter", "items", strings.Join(f.items, ","))
		return nil
	}

	logging.Info("Filtered software list via --item", "count", len(filtered))
	return filtered
}
