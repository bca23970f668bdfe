package planner

// Simplify reduces a path longer than maxWaypoints to its first point, the
// points at one and two thirds, and its last point. Shorter paths are
// returned unchanged. The reduction does not recheck the skipped cells.
//
// When maxWaypoints is below four the interior points are dropped from the
// end so that the result still begins and ends where p does.
func Simplify(p Path, maxWaypoints int) Path {
	n := len(p)
	if n <= maxWaypoints {
		return append(Path(nil), p...)
	}
	out := Path{p[0], p[n/3], p[(2*n)/3], p[n-1]}
	if maxWaypoints < len(out) {
		keep := maxWaypoints - 1
		if keep < 1 {
			keep = 1
		}
		out = append(out[:keep:keep], p[n-1])
	}
	return out
}
