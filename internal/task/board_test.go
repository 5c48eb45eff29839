package task

import "testing"

func intPtr(n int) *int {
	return &n
}

func TestGroupByStatus_DropsUnknownStatus(t *testing.T) {
	tasks := []*Task{
		{ID: "a", Title: "A", Status: Status("Unknown")},
	}

	groups := GroupByStatus(tasks)

	if len(groups) != len(AllStatuses) {
		t.Fatalf("expected %d buckets, got: %d", len(AllStatuses), len(groups))
	}
	for _, s := range AllStatuses {
		column, ok := groups[s]
		if !ok {
			t.Errorf("expected bucket %q to be present", s)
		}
		if len(column) != 0 {
			t.Errorf("expected bucket %q to be empty, got: %d", s, len(column))
		}
	}

	unknown := UnknownStatus(tasks)
	if len(unknown) != 1 || unknown[0].ID != "a" {
		t.Errorf("expected UnknownStatus to report task a, got: %v", unknown)
	}
}

func TestGroupByStatus_Partitions(t *testing.T) {
	tasks := []*Task{
		{ID: "1", Title: "One", Status: StatusToDo},
		{ID: "2", Title: "Two", Status: StatusDone},
		{ID: "3", Title: "Three", Status: StatusToDo},
	}

	groups := GroupByStatus(tasks)

	if len(groups[StatusToDo]) != 2 {
		t.Errorf("expected 2 To Do tasks, got: %d", len(groups[StatusToDo]))
	}
	if len(groups[StatusDone]) != 1 {
		t.Errorf("expected 1 Done task, got: %d", len(groups[StatusDone]))
	}
}

func TestSortColumn(t *testing.T) {
	column := []*Task{
		{ID: "low", Title: "b", Priority: PriorityLow},
		{ID: "ordered-2", Title: "z", Priority: PriorityLow, Order: intPtr(2)},
		{ID: "high", Title: "c", Priority: PriorityHigh},
		{ID: "ordered-1", Title: "y", Priority: PriorityLow, Order: intPtr(1)},
		{ID: "medium-a", Title: "a", Priority: PriorityMedium},
		{ID: "medium-b", Title: "B", Priority: PriorityMedium},
	}

	SortColumn(column)

	want := []string{"ordered-1", "ordered-2", "high", "medium-a", "medium-b", "low"}
	for i, id := range want {
		if column[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, column[i].ID)
		}
	}
}
