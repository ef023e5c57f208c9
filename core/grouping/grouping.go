// Package grouping partitions a class roster into named groups, either as submitted by the
// professor (manual mode) or by spreading aggregate skill scores round robin (automatic mode).
//
// Form is a pure function: it performs no I/O and keeps no state.
package grouping

import (
	"errors"
	"math"
	"sort"
	"strconv"
)

// Group size bounds of automatic mode. Out of range sizes are clamped, not rejected.
const (
	MinGroupSize = 2
	MaxGroupSize = 6
)

var (
	ErrInvalidConfiguration = errors.New("invalid grouping mode")
	ErrEmptyRoster          = errors.New("cannot form groups without students")
	ErrNoValidGroups        = errors.New("no group has a valid member")
)

// Form partitions roster according to req.
//
// Manual mode keeps the submitted groups in order, dropping unknown member ids and groups left
// empty. A student listed in several groups is kept in each of them.
//
// Automatic mode sorts students by aggregate score (descending, ties keep roster order) and
// deals them round robin into ceil(len(roster)/size) groups named "Group A", "Group B", ...
func Form(roster []Member, req Request) ([]Group, error) {
	if !req.Mode.Valid() {
		return nil, ErrInvalidConfiguration
	}
	if len(roster) == 0 {
		return nil, ErrEmptyRoster
	}

	if req.Mode == ModeManual {
		return formManual(roster, req.Groups)
	}
	return formAutomatic(roster, req.GroupSize), nil
}

func formManual(roster []Member, submitted []ManualGroup) ([]Group, error) {
	byID := make(map[string]Member, len(roster))
	for _, m := range roster {
		byID[m.ID] = m
	}

	groups := make([]Group, 0, len(submitted))
	for _, sg := range submitted {
		var members []Member
		for _, id := range sg.MemberIDs {
			if m, ok := byID[id]; ok {
				members = append(members, m)
			}
		}
		if len(members) > 0 {
			groups = append(groups, Group{Name: sg.Name, Members: members})
		}
	}
	if len(groups) == 0 {
		return nil, ErrNoValidGroups
	}
	return groups, nil
}

func formAutomatic(roster []Member, size int) []Group {
	size = ClampGroupSize(size)

	sorted := make([]Member, len(roster))
	copy(sorted, roster)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Profile.Aggregate() > sorted[j].Profile.Aggregate()
	})

	count := GroupCount(len(sorted), size)
	buckets := make([][]Member, count)
	for i, m := range sorted {
		buckets[i%count] = append(buckets[i%count], m)
	}

	groups := make([]Group, 0, count)
	for i, members := range buckets {
		if len(members) == 0 {
			continue
		}
		groups = append(groups, Group{Name: GroupName(i), Members: members})
	}
	return groups
}

// ClampGroupSize brings size into [MinGroupSize, MaxGroupSize].
func ClampGroupSize(size int) int {
	if size < MinGroupSize {
		return MinGroupSize
	}
	if size > MaxGroupSize {
		return MaxGroupSize
	}
	return size
}

// GroupCount returns ceil(students/size), at least 1.
func GroupCount(students, size int) int {
	n := int(math.Ceil(float64(students) / float64(size)))
	if n < 1 {
		return 1
	}
	return n
}

// GroupName names the i-th (0-indexed) group: "Group A" ... "Group Z", then "Group 27", "Group 28", ...
func GroupName(i int) string {
	if i < 26 {
		return "Group " + string(rune('A'+i))
	}
	return "Group " + strconv.Itoa(i+1)
}
