package receipts

import (
	"sort"
	"strings"
)

// BranchGroup is a section of receipts for one store branch.
type BranchGroup struct {
	StoreBranch string    `json:"title"`
	Receipts    []Receipt `json:"data"`
}

// PartitionByBranch splits receipts by store branch, keeping the order in
// which branches and receipts first appear.
func PartitionByBranch(receipts []Receipt) []BranchGroup {
	index := make(map[string]int)
	var groups []BranchGroup
	for _, r := range receipts {
		i, ok := index[r.StoreBranch]
		if !ok {
			i = len(groups)
			index[r.StoreBranch] = i
			groups = append(groups, BranchGroup{StoreBranch: r.StoreBranch})
		}
		groups[i].Receipts = append(groups[i].Receipts, r)
	}
	return groups
}

// GroupAndSort partitions receipts by store branch, orders the groups by
// branch name and each group's receipts by product name.
func GroupAndSort(receipts []Receipt) []BranchGroup {
	groups := PartitionByBranch(receipts)
	sort.SliceStable(groups, func(i, j int) bool {
		return lessFold(groups[i].StoreBranch, groups[j].StoreBranch)
	})
	for _, g := range groups {
		sort.SliceStable(g.Receipts, func(i, j int) bool {
			return lessFold(g.Receipts[i].ProductName, g.Receipts[j].ProductName)
		})
	}
	return groups
}

func lessFold(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}
