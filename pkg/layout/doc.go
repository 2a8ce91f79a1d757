// Package layout computes deterministic hierarchical positions for a model
// lineage graph.
//
// # Overview
//
// [Compute] assigns every model a level by depth-first traversal from the
// roots (models with no incoming link) and then packs each level
// horizontally:
//
//	x = -(k*H)/2 + i*H + OffsetX
//	y = level*V + OffsetY
//
// where k is the number of models on the level, i the model's index within
// it (first-visit order), H the horizontal spacing (250) and V the vertical
// spacing (200). Models on the same level are therefore exactly H apart.
//
// # Leveling
//
// Two level assignments are available:
//
//   - [LongestPath] (default): a node reached again at a deeper level is
//     pushed down and its subtree re-descended, so every link that is not
//     part of a cycle satisfies level(target) >= level(source)+1.
//   - [FirstVisit]: the first level that reaches a node is final. Diamonds
//     may leave a child level with its parent.
//
// Both modes guard the current traversal path, so cycles and self-loops
// terminate. Links that close a cycle are reported in [Result.BackEdges].
// Models not reachable from any root (pure cycles, back-edge-only
// components) are started at level 0 in model order.
//
// # Column Focus
//
// [ColumnFocus] lays out the lineage of a single column: the focal column at
// the origin, upstream columns in a column to the left and downstream
// columns to the right.
//
// # Determinism
//
// Output depends only on the order of the models and links passed in. No
// randomness is used and map iteration never influences placement.
package layout
