// Package plan turns a carton class and a line side into the ordered task list
// for one print job.
//
// The generator is pure: the same (class, side) always yields the same layer
// plan, waypoints and tasks. Geometry is specified in millimetres and returned
// in metres.
//
// Layer rules:
//   - alternating: every other layer from the bottom, starting with the first
//   - top-biased: every layer except the second from the top
//
// Side B inverts the rule so the two faces of a stack carry complementary marks.
package plan
