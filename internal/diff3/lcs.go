package diff3

// maxTableCells bounds the LCS table for the part of the inputs left after
// trimming the common prefix and suffix. Beyond it the middle is treated as a
// single replaced block.
const maxTableCells = 1 << 24

type side int

const (
	sideLocal side = iota
	sideRemote
)

// hunk is one change in a base-to-side edit script: base[baseStart:baseEnd()]
// was replaced by side[sideStart:sideEnd()].
type hunk struct {
	side      side
	baseStart int
	baseLen   int
	sideStart int
	sideLen   int
}

func (h hunk) baseEnd() int { return h.baseStart + h.baseLen }
func (h hunk) sideEnd() int { return h.sideStart + h.sideLen }

// diffHunks returns the edit script from base to other as hunks ordered by
// base position. Consecutive hunks are always separated by at least one
// matched line.
func diffHunks(base, other []string, s side) []hunk {
	var hunks []hunk
	bi, oi := 0, 0
	emit := func(baseEnd, otherEnd int) {
		if baseEnd > bi || otherEnd > oi {
			hunks = append(hunks, hunk{
				side:      s,
				baseStart: bi,
				baseLen:   baseEnd - bi,
				sideStart: oi,
				sideLen:   otherEnd - oi,
			})
		}
	}
	for _, m := range matches(base, other) {
		emit(m[0], m[1])
		bi, oi = m[0]+1, m[1]+1
	}
	emit(len(base), len(other))
	return hunks
}

// matches returns the index pairs of a longest common subsequence of a and
// b in increasing order.
func matches(a, b []string) [][2]int {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	pairs := make([][2]int, 0, prefix+suffix)
	for i := 0; i < prefix; i++ {
		pairs = append(pairs, [2]int{i, i})
	}
	pairs = append(pairs, lcs(a[prefix:len(a)-suffix], b[prefix:len(b)-suffix], prefix)...)
	for k := suffix; k > 0; k-- {
		pairs = append(pairs, [2]int{len(a) - k, len(b) - k})
	}
	return pairs
}

// lcs fills a suffix-length table and walks it forward, preferring to skip
// lines of a before lines of b on ties. offset is added to both indices.
func lcs(a, b []string, offset int) [][2]int {
	n, m := len(a), len(b)
	if n == 0 || m == 0 || n*m > maxTableCells {
		return nil
	}

	w := m + 1
	table := make([]int32, (n+1)*w)
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				table[i*w+j] = table[(i+1)*w+j+1] + 1
			} else {
				table[i*w+j] = max(table[(i+1)*w+j], table[i*w+j+1])
			}
		}
	}

	pairs := make([][2]int, 0, table[0])
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			pairs = append(pairs, [2]int{offset + i, offset + j})
			i++
			j++
		case table[(i+1)*w+j] >= table[i*w+j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}
