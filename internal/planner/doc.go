// Package planner turns a world state and a goal into a least-cost plan over
// an action catalog, using a bounded forward A* search.
package planner
