// Package geometry owns body-axis framing and cross-section geometry.
//
// Responsibilities: vertex/joint containers, robust axis extent, band
// selection, lateral side split, convex-hull perimeter and in-plane extent.
// Key types: VertexSet, JointSet, Axis.
//
// Nothing in this package returns an error for empty or degenerate input.
// Callers decide which warning an empty band or a NaN value maps to.
package geometry
