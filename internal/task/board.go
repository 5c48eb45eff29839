package task

import (
	"sort"
	"strings"
)

// GroupByStatus partitions tasks into the six board columns. All six keys
// are always present. Tasks whose status is not one of the six are dropped;
// use UnknownStatus to find them.
//
// Each column is sorted: tasks with an Order first (ascending), then the
// rest by priority, then by label.
func GroupByStatus(tasks []*Task) map[Status][]*Task {
	groups := make(map[Status][]*Task, len(AllStatuses))
	for _, s := range AllStatuses {
		groups[s] = []*Task{}
	}
	for _, t := range tasks {
		if _, ok := groups[t.Status]; ok {
			groups[t.Status] = append(groups[t.Status], t)
		}
	}
	for _, column := range groups {
		SortColumn(column)
	}
	return groups
}

// UnknownStatus returns the tasks GroupByStatus would drop.
func UnknownStatus(tasks []*Task) []*Task {
	var unknown []*Task
	for _, t := range tasks {
		if !t.Status.Known() {
			unknown = append(unknown, t)
		}
	}
	return unknown
}

// SortColumn sorts tasks in place in board order.
func SortColumn(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.Order != nil && b.Order != nil:
			if *a.Order != *b.Order {
				return *a.Order < *b.Order
			}
		case a.Order != nil:
			return true
		case b.Order != nil:
			return false
		}
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() < b.Priority.rank()
		}
		return strings.ToLower(a.DisplayLabel()) < strings.ToLower(b.DisplayLabel())
	})
}
