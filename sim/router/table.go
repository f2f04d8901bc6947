package router

import (
	"fmt"
	"math"
	"sort"
)

// Skip marks an absent entry in an ordered list ("no group here").
const Skip = -1

// A routing table says which agent groups may serve which contact types. It
// comes in four equivalent forms:
//
//   - type-to-group ordered lists: tg[k] lists the groups for type k, by preference
//   - group-to-type ordered lists: gt[i] lists the types served by group i, by priority
//   - incidence matrix: m[k][i] is true when group i can serve type k
//   - rank matrix: ranks[k][i] is the rank of group i for type k, +Inf if it cannot serve
//
// Ranks are 1-based list positions; lower ranks are preferred.

// CheckTypeToGroupMap verifies that every entry of tg is Skip or a group index
// in [0, numGroups), without duplicates inside one list.
func CheckTypeToGroupMap(numGroups int, tg [][]int) error {
	return checkOrderedLists("type", "group", numGroups, tg)
}

// CheckGroupToTypeMap verifies that every entry of gt is Skip or a type index
// in [0, numTypes), without duplicates inside one list.
func CheckGroupToTypeMap(numTypes int, gt [][]int) error {
	return checkOrderedLists("group", "type", numTypes, gt)
}

func checkOrderedLists(rowName, colName string, numCols int, lists [][]int) error {
	for r, list := range lists {
		seen := make(map[int]bool, len(list))
		for pos, v := range list {
			if v == Skip {
				continue
			}
			if v < 0 || v >= numCols {
				return fmt.Errorf("%w: %s %d, position %d: %s index %d out of range [0,%d)",
					ErrInvalidTable, rowName, r, pos, colName, v, numCols)
			}
			if seen[v] {
				return fmt.Errorf("%w: %s %d: duplicate %s index %d", ErrInvalidTable, rowName, r, colName, v)
			}
			seen[v] = true
		}
	}
	return nil
}

// CheckConsistency verifies that group i appears in tg[k] if and only if type
// k appears in gt[i].
func CheckConsistency(tg, gt [][]int) error {
	for k, list := range tg {
		for _, i := range list {
			if i == Skip {
				continue
			}
			if i >= len(gt) || !contains(gt[i], k) {
				return fmt.Errorf("%w: group %d serves type %d in the type-to-group map but not in the group-to-type map",
					ErrInvalidTable, i, k)
			}
		}
	}
	for i, list := range gt {
		for _, k := range list {
			if k == Skip {
				continue
			}
			if k >= len(tg) || !contains(tg[k], i) {
				return fmt.Errorf("%w: group %d serves type %d in the group-to-type map but not in the type-to-group map",
					ErrInvalidTable, i, k)
			}
		}
	}
	return nil
}

// CheckOrderedLists validates a type-to-group/group-to-type pair against the
// declared dimensions and against each other.
func CheckOrderedLists(numTypes, numGroups int, tg, gt [][]int) error {
	if len(tg) != numTypes {
		return fmt.Errorf("%w: type-to-group map has %d rows, want %d", ErrDimension, len(tg), numTypes)
	}
	if len(gt) != numGroups {
		return fmt.Errorf("%w: group-to-type map has %d rows, want %d", ErrDimension, len(gt), numGroups)
	}
	if err := CheckTypeToGroupMap(numGroups, tg); err != nil {
		return err
	}
	if err := CheckGroupToTypeMap(numTypes, gt); err != nil {
		return err
	}
	return CheckConsistency(tg, gt)
}

// CheckRankMatrix verifies that m has rows×cols entries and contains no NaN.
func CheckRankMatrix(rows, cols int, m [][]float64) error {
	if len(m) != rows {
		return fmt.Errorf("%w: matrix has %d rows, want %d", ErrDimension, len(m), rows)
	}
	for r, row := range m {
		if len(row) != cols {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimension, r, len(row), cols)
		}
		for c, v := range row {
			if math.IsNaN(v) {
				return fmt.Errorf("%w: NaN at (%d,%d)", ErrInvalidTable, r, c)
			}
		}
	}
	return nil
}

// CheckIncidence verifies that m has rows×cols entries.
func CheckIncidence(rows, cols int, m [][]bool) error {
	if len(m) != rows {
		return fmt.Errorf("%w: incidence matrix has %d rows, want %d", ErrDimension, len(m), rows)
	}
	for r, row := range m {
		if len(row) != cols {
			return fmt.Errorf("%w: incidence row %d has %d columns, want %d", ErrDimension, r, len(row), cols)
		}
	}
	return nil
}

// CanServe reports whether group i appears in type k's ordered list.
func CanServe(tg [][]int, i, k int) bool {
	if k < 0 || k >= len(tg) {
		return false
	}
	return contains(tg[k], i)
}

// TypeToGroupFromGroupToType derives type-to-group lists from group-to-type
// lists. Groups are ordered by the position of the type in their own list,
// then by group index.
func TypeToGroupFromGroupToType(numTypes int, gt [][]int) [][]int {
	return invertOrderedLists(numTypes, gt)
}

// GroupToTypeFromTypeToGroup derives group-to-type lists from type-to-group
// lists. Types are ordered by the position of the group in their list, then by
// type index.
func GroupToTypeFromTypeToGroup(numGroups int, tg [][]int) [][]int {
	return invertOrderedLists(numGroups, tg)
}

func invertOrderedLists(numCols int, lists [][]int) [][]int {
	type entry struct{ row, pos int }
	byCol := make([][]entry, numCols)
	for r, list := range lists {
		pos := 0
		for _, c := range list {
			if c == Skip {
				continue
			}
			byCol[c] = append(byCol[c], entry{row: r, pos: pos})
			pos++
		}
	}
	out := make([][]int, numCols)
	for c, entries := range byCol {
		sort.SliceStable(entries, func(a, b int) bool {
			if entries[a].pos != entries[b].pos {
				return entries[a].pos < entries[b].pos
			}
			return entries[a].row < entries[b].row
		})
		out[c] = make([]int, len(entries))
		for j, e := range entries {
			out[c][j] = e.row
		}
	}
	return out
}

// IncidenceFromTypeToGroup returns the K×I incidence matrix of tg.
func IncidenceFromTypeToGroup(numGroups int, tg [][]int) [][]bool {
	m := newBoolMatrix(len(tg), numGroups)
	for k, list := range tg {
		for _, i := range list {
			if i != Skip {
				m[k][i] = true
			}
		}
	}
	return m
}

// IncidenceFromGroupToType returns the K×I incidence matrix of gt.
func IncidenceFromGroupToType(numTypes int, gt [][]int) [][]bool {
	m := newBoolMatrix(numTypes, len(gt))
	for i, list := range gt {
		for _, k := range list {
			if k != Skip {
				m[k][i] = true
			}
		}
	}
	return m
}

// TypeToGroupFromIncidence lists, for each type, the groups that can serve it
// in increasing group index.
func TypeToGroupFromIncidence(m [][]bool) [][]int {
	out := make([][]int, len(m))
	for k, row := range m {
		out[k] = []int{}
		for i, ok := range row {
			if ok {
				out[k] = append(out[k], i)
			}
		}
	}
	return out
}

// GroupToTypeFromIncidence lists, for each group, the types it can serve in
// increasing type index.
func GroupToTypeFromIncidence(m [][]bool) [][]int {
	numGroups := 0
	if len(m) > 0 {
		numGroups = len(m[0])
	}
	out := make([][]int, numGroups)
	for i := range out {
		out[i] = []int{}
		for k := range m {
			if m[k][i] {
				out[i] = append(out[i], k)
			}
		}
	}
	return out
}

// RanksFromTypeToGroup returns the K×I rank matrix whose entry (k,i) is the
// 1-based position of group i in tg[k], or +Inf.
func RanksFromTypeToGroup(numGroups int, tg [][]int) [][]float64 {
	return ranksFromLists(numGroups, tg)
}

// RanksFromGroupToType returns the I×K rank matrix whose entry (i,k) is the
// 1-based position of type k in gt[i], or +Inf.
func RanksFromGroupToType(numTypes int, gt [][]int) [][]float64 {
	return ranksFromLists(numTypes, gt)
}

func ranksFromLists(numCols int, lists [][]int) [][]float64 {
	m := NewRankMatrix(len(lists), numCols)
	for r, list := range lists {
		pos := 0
		for _, c := range list {
			if c == Skip {
				continue
			}
			pos++
			m[r][c] = float64(pos)
		}
	}
	return m
}

// TypeToGroupFromRanks converts a K×I rank matrix to ordered lists: finite
// entries by increasing rank, ties by group index.
func TypeToGroupFromRanks(ranksTG [][]float64) [][]int {
	return listsFromRanks(ranksTG)
}

// GroupToTypeFromRanks converts an I×K rank matrix to ordered lists.
func GroupToTypeFromRanks(ranksGT [][]float64) [][]int {
	return listsFromRanks(ranksGT)
}

func listsFromRanks(m [][]float64) [][]int {
	out := make([][]int, len(m))
	for r, row := range m {
		cols := []int{}
		for c, v := range row {
			if !math.IsInf(v, 1) {
				cols = append(cols, c)
			}
		}
		sort.SliceStable(cols, func(a, b int) bool { return row[cols[a]] < row[cols[b]] })
		out[r] = cols
	}
	return out
}

// IncidenceFromRanks marks every finite rank.
func IncidenceFromRanks(ranks [][]float64) [][]bool {
	m := make([][]bool, len(ranks))
	for r, row := range ranks {
		m[r] = make([]bool, len(row))
		for c, v := range row {
			m[r][c] = !math.IsInf(v, 1)
		}
	}
	return m
}

// RanksFromIncidence gives rank 1 to every true entry and +Inf to the others.
func RanksFromIncidence(m [][]bool) [][]float64 {
	out := make([][]float64, len(m))
	for r, row := range m {
		out[r] = make([]float64, len(row))
		for c, ok := range row {
			if ok {
				out[r][c] = 1
			} else {
				out[r][c] = math.Inf(1)
			}
		}
	}
	return out
}

// Transpose returns the transpose of a rectangular matrix.
func Transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return [][]float64{}
	}
	out := make([][]float64, len(m[0]))
	for c := range out {
		out[c] = make([]float64, len(m))
		for r := range m {
			out[c][r] = m[r][c]
		}
	}
	return out
}

// TransposeIncidence returns the transpose of a rectangular boolean matrix.
func TransposeIncidence(m [][]bool) [][]bool {
	if len(m) == 0 {
		return [][]bool{}
	}
	out := newBoolMatrix(len(m[0]), len(m))
	for r := range m {
		for c, v := range m[r] {
			out[c][r] = v
		}
	}
	return out
}

// OverflowLists groups the finite entries of a rank vector into candidate
// sets sharing a rank, in increasing rank order. Each set lists indices in
// increasing order.
func OverflowLists(ranks []float64) [][]int {
	idx := []int{}
	for i, v := range ranks {
		if !math.IsInf(v, 1) && !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return ranks[idx[a]] < ranks[idx[b]] })
	var out [][]int
	for j, i := range idx {
		if j == 0 || ranks[i] != ranks[idx[j-1]] {
			out = append(out, []int{})
		}
		out[len(out)-1] = append(out[len(out)-1], i)
	}
	return out
}

// OverflowListsMatrix applies OverflowLists to every row.
func OverflowListsMatrix(ranks [][]float64) [][][]int {
	out := make([][][]int, len(ranks))
	for r, row := range ranks {
		out[r] = OverflowLists(row)
	}
	return out
}

// NewRankMatrix returns a rows×cols matrix filled with +Inf.
func NewRankMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for r := range m {
		m[r] = make([]float64, cols)
		for c := range m[r] {
			m[r][c] = math.Inf(1)
		}
	}
	return m
}

// NewWeightMatrix returns a rows×cols matrix filled with v.
func NewWeightMatrix(rows, cols int, v float64) [][]float64 {
	m := make([][]float64, rows)
	for r := range m {
		m[r] = make([]float64, cols)
		for c := range m[r] {
			m[r][c] = v
		}
	}
	return m
}

func newBoolMatrix(rows, cols int) [][]bool {
	m := make([][]bool, rows)
	for r := range m {
		m[r] = make([]bool, cols)
	}
	return m
}

func copyMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for r, row := range m {
		out[r] = append([]float64(nil), row...)
	}
	return out
}

func copyLists(lists [][]int) [][]int {
	if lists == nil {
		return nil
	}
	out := make([][]int, len(lists))
	for r, l := range lists {
		out[r] = append([]int{}, l...)
	}
	return out
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// RoutingTable carries a routing table in any of its four forms. Config files
// usually set one form; TypeToGroup and GroupToType may be given together.
type RoutingTable struct {
	TypeToGroup [][]int     `yaml:"type_to_group,omitempty" toml:"type_to_group,omitempty"`
	GroupToType [][]int     `yaml:"group_to_type,omitempty" toml:"group_to_type,omitempty"`
	Incidence   [][]bool    `yaml:"incidence,omitempty" toml:"incidence,omitempty"`
	Ranks       [][]float64 `yaml:"ranks,omitempty" toml:"ranks,omitempty"`
	// RanksGT optionally gives the I×K contact-selection ranks when they differ
	// from the transpose of Ranks.
	RanksGT [][]float64 `yaml:"ranks_gt,omitempty" toml:"ranks_gt,omitempty"`
}

// NormalizedTable holds every form of one routing table.
type NormalizedTable struct {
	TypeToGroup [][]int
	GroupToType [][]int
	Incidence   [][]bool    // K×I
	RanksTG     [][]float64 // K×I, agent selection
	RanksGT     [][]float64 // I×K, contact selection
}

// Normalize validates the table against the dimensions and derives every form.
// Precedence: ordered lists, then incidence, then ranks.
func (t RoutingTable) Normalize(numTypes, numGroups int) (*NormalizedTable, error) {
	n := &NormalizedTable{}
	switch {
	case t.TypeToGroup != nil || t.GroupToType != nil:
		tg, gt := t.TypeToGroup, t.GroupToType
		if tg == nil {
			if len(gt) != numGroups {
				return nil, fmt.Errorf("%w: group-to-type map has %d rows, want %d", ErrDimension, len(gt), numGroups)
			}
			if err := CheckGroupToTypeMap(numTypes, gt); err != nil {
				return nil, err
			}
			tg = TypeToGroupFromGroupToType(numTypes, gt)
		}
		if gt == nil {
			if len(tg) != numTypes {
				return nil, fmt.Errorf("%w: type-to-group map has %d rows, want %d", ErrDimension, len(tg), numTypes)
			}
			if err := CheckTypeToGroupMap(numGroups, tg); err != nil {
				return nil, err
			}
			gt = GroupToTypeFromTypeToGroup(numGroups, tg)
		}
		if err := CheckOrderedLists(numTypes, numGroups, tg, gt); err != nil {
			return nil, err
		}
		n.TypeToGroup, n.GroupToType = copyLists(tg), copyLists(gt)
		n.Incidence = IncidenceFromTypeToGroup(numGroups, tg)
		n.RanksTG = RanksFromTypeToGroup(numGroups, tg)
		n.RanksGT = RanksFromGroupToType(numTypes, gt)
	case t.Incidence != nil:
		if err := CheckIncidence(numTypes, numGroups, t.Incidence); err != nil {
			return nil, err
		}
		n.Incidence = t.Incidence
		n.TypeToGroup = TypeToGroupFromIncidence(t.Incidence)
		n.GroupToType = GroupToTypeFromIncidence(t.Incidence)
		n.RanksTG = RanksFromIncidence(t.Incidence)
		n.RanksGT = Transpose(n.RanksTG)
	case t.Ranks != nil:
		if err := CheckRankMatrix(numTypes, numGroups, t.Ranks); err != nil {
			return nil, err
		}
		n.RanksTG = copyMatrix(t.Ranks)
		n.RanksGT = Transpose(t.Ranks)
		n.TypeToGroup = TypeToGroupFromRanks(n.RanksTG)
		n.GroupToType = GroupToTypeFromRanks(n.RanksGT)
		n.Incidence = IncidenceFromRanks(n.RanksTG)
	default:
		return nil, fmt.Errorf("%w: routing table is empty", ErrInvalidTable)
	}
	if t.RanksGT != nil {
		if err := CheckRankMatrix(numGroups, numTypes, t.RanksGT); err != nil {
			return nil, err
		}
		for k := 0; k < numTypes; k++ {
			for i := 0; i < numGroups; i++ {
				if math.IsInf(t.RanksGT[i][k], 1) != !n.Incidence[k][i] {
					return nil, fmt.Errorf("%w: ranks_gt (%d,%d) disagrees with the agent-selection table", ErrInvalidTable, i, k)
				}
			}
		}
		n.RanksGT = copyMatrix(t.RanksGT)
		n.GroupToType = GroupToTypeFromRanks(n.RanksGT)
	}
	return n, nil
}
