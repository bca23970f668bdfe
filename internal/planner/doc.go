// Package planner selects a short, clear path toward a detected target.
//
// A pursuit has no fixed destination: the planner fans out candidate goal
// cells around the target bearing, runs A* to each, keeps the best scoring
// path, checks its clearance and reduces it to a few waypoints.
package planner
