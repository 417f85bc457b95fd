// Package group partitions imports into per-DLL runs.
package group

import (
	"strings"

	"github.com/wippyai/dlltab"
)

// DLL is the run of imports bound to one DLL.
type DLL struct {
	// Name is the spelling of the first import that named this DLL.
	Name    string
	Imports []*dlltab.Import
}

// ByDLL groups imports by DLL name. Groups appear in order of first
// occurrence and imports keep their relative order. DLL names compare
// case-insensitively, as the Windows loader does.
func ByDLL(imports []*dlltab.Import) []DLL {
	index := make(map[string]int)
	var groups []DLL
	for _, imp := range imports {
		key := strings.ToLower(imp.DLL)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DLL{Name: imp.DLL})
		}
		groups[i].Imports = append(groups[i].Imports, imp)
	}
	return groups
}
