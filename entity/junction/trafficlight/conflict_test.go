package trafficlight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fourApproach 四个单车道进口，南北与东西两两冲突
// 车道/组：1-北，2-南，3-东，4-西
func fourApproach(t *testing.T) *ConflictModel {
	t.Helper()
	m, err := NewConflictModel(
		[]LaneSpec{
			{ID: 1, SaturationFlow: 0.5},
			{ID: 2, SaturationFlow: 0.5},
			{ID: 3, SaturationFlow: 0.5},
			{ID: 4, SaturationFlow: 0.5},
		},
		[]SignalGroup{{ID: 1, Lanes: []int32{1}}, {ID: 2, Lanes: []int32{2}}, {ID: 3, Lanes: []int32{3}}, {ID: 4, Lanes: []int32{4}}},
		map[int32][]int32{1: {3, 4}, 2: {3, 4}},
	)
	require.NoError(t, err)
	return m
}

func singleLaneGroups(ids ...int32) ([]LaneSpec, []SignalGroup) {
	lanes := make([]LaneSpec, 0, len(ids))
	groups := make([]SignalGroup, 0, len(ids))
	for _, id := range ids {
		lanes = append(lanes, LaneSpec{ID: id, SaturationFlow: 0.5})
		groups = append(groups, SignalGroup{ID: id, Lanes: []int32{id}})
	}
	return lanes, groups
}

func TestConflictModelSymmetric(t *testing.T) {
	m := fourApproach(t)
	assert.True(t, m.Conflict(1, 3))
	assert.True(t, m.Conflict(3, 1))
	assert.True(t, m.Conflict(4, 2))
	assert.False(t, m.Conflict(1, 2))
	assert.False(t, m.Conflict(3, 4))
	assert.False(t, m.Conflict(1, 100))
	assert.Equal(t, []int32{3}, m.GroupLanes(3))
	assert.Nil(t, m.GroupLanes(100))
	assert.Len(t, m.Lanes(), 4)
	assert.Len(t, m.Groups(), 4)
}

func TestConflictModelSortsInput(t *testing.T) {
	m, err := NewConflictModel(
		[]LaneSpec{{ID: 9, SaturationFlow: 1}, {ID: 3, SaturationFlow: 1}},
		[]SignalGroup{{ID: 7, Lanes: []int32{9, 9}}, {ID: 2, Lanes: []int32{3}}},
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, int32(3), m.Lanes()[0].ID)
	assert.Equal(t, int32(2), m.Groups()[0].ID)
	// 重复的车道只保留一次
	assert.Equal(t, []int32{9}, m.GroupLanes(7))
}

func TestConflictModelEmpty(t *testing.T) {
	m, err := NewConflictModel(nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, GeneratePhases(m, GeneratorOptions{}))
}

func TestConflictModelErrors(t *testing.T) {
	lanes, groups := singleLaneGroups(1, 2)
	cases := []struct {
		name      string
		lanes     []LaneSpec
		groups    []SignalGroup
		conflicts map[int32][]int32
		err       error
	}{
		{
			name:   "duplicate lane",
			lanes:  append(lanes, LaneSpec{ID: 1, SaturationFlow: 1}),
			groups: groups,
			err:    ErrDuplicateID,
		},
		{
			name:   "duplicate group",
			lanes:  lanes,
			groups: append(groups, SignalGroup{ID: 1, Lanes: []int32{2}}),
			err:    ErrDuplicateID,
		},
		{
			name:   "saturation flow",
			lanes:  []LaneSpec{{ID: 1, SaturationFlow: 0}, {ID: 2, SaturationFlow: 1}},
			groups: groups,
			err:    ErrSaturationFlow,
		},
		{
			name:   "empty group",
			lanes:  lanes,
			groups: append(groups, SignalGroup{ID: 3}),
			err:    ErrEmptyGroup,
		},
		{
			name:   "group references unknown lane",
			lanes:  lanes,
			groups: append(groups, SignalGroup{ID: 3, Lanes: []int32{5}}),
			err:    ErrUnknownLane,
		},
		{
			name:   "ungrouped lane",
			lanes:  append(lanes, LaneSpec{ID: 3, SaturationFlow: 1}),
			groups: groups,
			err:    ErrUngroupedLane,
		},
		{
			name:      "conflict references unknown lane",
			lanes:     lanes,
			groups:    groups,
			conflicts: map[int32][]int32{1: {5}},
			err:       ErrUnknownLane,
		},
		{
			name:      "conflict inside group",
			lanes:     lanes,
			groups:    []SignalGroup{{ID: 1, Lanes: []int32{1, 2}}},
			conflicts: map[int32][]int32{2: {1}},
			err:       ErrConflictInGroup,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConflictModel(tc.lanes, tc.groups, tc.conflicts)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestBitset(t *testing.T) {
	s := newBitset(130)
	s.add(0)
	s.add(64)
	s.add(129)
	assert.Len(t, s, 3)
	assert.True(t, s.has(64))
	assert.False(t, s.has(65))
	assert.Equal(t, 3, s.count())

	got := make([]int, 0)
	s.each(func(i int) { got = append(got, i) })
	assert.Equal(t, []int{0, 64, 129}, got)

	o := newBitset(130)
	o.add(64)
	assert.True(t, o.subsetOf(s))
	assert.False(t, s.subsetOf(o))
	assert.True(t, s.intersects(o))

	c := o.clone()
	c.add(1)
	assert.False(t, o.has(1))
	o.or(c)
	assert.True(t, o.has(1))
}
