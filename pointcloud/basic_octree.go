package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/agimus-project/agimus/spatialmath"
)

// Each node in the octree is either an internal node which links to other nodes, is an empty node with
// no points or further links, or is an occupied node which contains a single point of data.
const (
	internalNode = nodeType(iota)
	leafNodeEmpty
	leafNodeFilled
)

// nodeType represents the possible types of nodes in an octree.
type nodeType uint8

// BasicOctree is a data structure that recursively partitions 3D space into octants to represent occupancy.
// Nodes whose side is not larger than twice the resolution are never split: every point falling in such a
// voxel is merged into the single point it holds.
type BasicOctree struct {
	node       basicOctreeNode
	center     r3.Vector
	sideLength float64
	resolution float64
	size       int
	meta       MetaData
}

// basicOctreeNode is a struct comprised of the type of node, children nodes (should they exist) and the pointcloud's
// PointAndData datatype representing a point in space.
type basicOctreeNode struct {
	nodeType nodeType
	children []*BasicOctree
	point    *PointAndData
	// number of points merged into this leaf
	hits int
}

func newLeafNodeEmpty() basicOctreeNode {
	return basicOctreeNode{nodeType: leafNodeEmpty}
}

func newLeafNodeFilled(p r3.Vector, d Data) basicOctreeNode {
	return basicOctreeNode{nodeType: leafNodeFilled, point: &PointAndData{P: p, D: d}, hits: 1}
}

func newInternalNode(children []*BasicOctree) basicOctreeNode {
	return basicOctreeNode{nodeType: internalNode, children: children}
}

// NewOctree creates a new empty octree with specified center, side and minimum voxel size.
// A resolution of zero splits until every point has its own leaf.
func NewOctree(center r3.Vector, sideLength, resolution float64) (*BasicOctree, error) {
	if sideLength <= 0 {
		return nil, errors.Errorf("invalid side length (%.2f) for octree", sideLength)
	}
	if resolution < 0 {
		return nil, errors.Errorf("invalid resolution (%.2f) for octree", resolution)
	}

	return &BasicOctree{
		node:       newLeafNodeEmpty(),
		center:     center,
		sideLength: sideLength,
		resolution: resolution,
		meta:       NewMetaData(),
	}, nil
}

// NewOctreeFromPointCloud builds an octree just large enough to hold every point of cloud.
func NewOctreeFromPointCloud(cloud PointCloud, resolution float64) (*BasicOctree, error) {
	meta := cloud.MetaData()
	center := r3.Vector{}
	side := math.Max(resolution, 1)
	if cloud.Size() > 0 {
		center = r3.Vector{
			X: (meta.MaxX + meta.MinX) / 2,
			Y: (meta.MaxY + meta.MinY) / 2,
			Z: (meta.MaxZ + meta.MinZ) / 2,
		}
		side = math.Max(side, meta.MaxSideLength()+resolution)
	}
	octree, err := NewOctree(center, side, resolution)
	if err != nil {
		return nil, err
	}
	var setErr error
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		setErr = octree.Set(p, d)
		return setErr == nil
	})
	if setErr != nil {
		return nil, setErr
	}
	return octree, nil
}

// Size returns the number of occupied leaves, which is the number of points the octree holds.
func (octree *BasicOctree) Size() int {
	return octree.size
}

// MetaData returns the metadata of the pointcloud stored in the octree.
func (octree *BasicOctree) MetaData() MetaData {
	return octree.meta
}

// Center returns the center of the octree cube.
func (octree *BasicOctree) Center() r3.Vector {
	return octree.center
}

// SideLength returns the side of the octree cube.
func (octree *BasicOctree) SideLength() float64 {
	return octree.sideLength
}

// Resolution returns the minimum voxel size of the octree.
func (octree *BasicOctree) Resolution() float64 {
	return octree.resolution
}

// Set checks if the point to be added is a valid point for a basic octree to contain based on its center and side
// length. It then recursively iterates through the tree until it finds the appropriate node to add it to. If the
// found node contains a point already, it will split the node into octants and will add both the old point and new
// one to the newly created children trees, unless the node is already at the resolution of the octree.
func (octree *BasicOctree) Set(p r3.Vector, d Data) error {
	if !octree.checkPointPlacement(p) {
		return errors.New("error point is outside the bounds of this octree")
	}

	switch octree.node.nodeType {
	case internalNode:
		for _, childNode := range octree.node.children {
			if childNode.checkPointPlacement(p) {
				before := childNode.size
				if err := childNode.Set(p, d); err != nil {
					return err
				}
				if childNode.size > before {
					octree.meta.Merge(p, d)
					octree.size++
				}
				return nil
			}
		}
		return errors.New("error invalid internal node detected, please check your tree")

	case leafNodeFilled:
		if octree.node.point.P.ApproxEqual(p) || !octree.canSplit() {
			// Update data in point
			octree.node.point.D = d
			octree.node.hits++
			return nil
		}
		if err := octree.splitIntoOctants(); err != nil {
			return errors.Wrap(err, "error in splitting octree into new octants")
		}
		// No update of metadata as the set call below will lead to the internalNode case due to the octant split
		return octree.Set(p, d)

	case leafNodeEmpty:
		octree.meta.Merge(p, d)
		octree.size++
		octree.node = newLeafNodeFilled(p, d)
	}

	return nil
}

// At traverses a basic octree to see if a point exists at the specified location. If a point does exist, its data
// is returned along with true. If a point does not exist, no data is returned and the boolean is returned false.
func (octree *BasicOctree) At(x, y, z float64) (Data, bool) {
	p := r3.Vector{X: x, Y: y, Z: z}
	// Check if point could exist in octree given bounds
	if !octree.checkPointPlacement(p) {
		return nil, false
	}

	switch octree.node.nodeType {
	case internalNode:
		for _, child := range octree.node.children {
			if d, exists := child.At(x, y, z); exists {
				return d, true
			}
		}

	case leafNodeFilled:
		if octree.node.point.P.ApproxEqual(p) {
			return octree.node.point.D, true
		}

	case leafNodeEmpty:
	}

	return nil, false
}

// Occupied returns whether p falls inside an occupied voxel.
func (octree *BasicOctree) Occupied(p r3.Vector) bool {
	if !octree.checkPointPlacement(p) {
		return false
	}
	switch octree.node.nodeType {
	case internalNode:
		for _, child := range octree.node.children {
			if child.checkPointPlacement(p) && child.Occupied(p) {
				return true
			}
		}
	case leafNodeFilled:
		if !octree.canSplit() {
			return true
		}
		return octree.node.point.P.ApproxEqual(p)
	case leafNodeEmpty:
	}
	return false
}

// Iterate visits every stored point. Batching splits the top level octants between batches.
func (octree *BasicOctree) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	if numBatches > 0 && octree.node.nodeType == internalNode {
		for i, child := range octree.node.children {
			if i%numBatches == myBatch {
				if !child.iterate(fn) {
					return
				}
			}
		}
		return
	}
	if numBatches > 0 && myBatch != 0 {
		return
	}
	octree.iterate(fn)
}

func (octree *BasicOctree) iterate(fn func(p r3.Vector, d Data) bool) bool {
	switch octree.node.nodeType {
	case internalNode:
		for _, child := range octree.node.children {
			if !child.iterate(fn) {
				return false
			}
		}
	case leafNodeFilled:
		return fn(octree.node.point.P, octree.node.point.D)
	case leafNodeEmpty:
	}
	return true
}

// Leaves returns one box per occupied voxel. Voxels at the resolution of the octree cover their whole cell;
// larger leaves only hold their single point and are returned as a cube of the resolution around it.
func (octree *BasicOctree) Leaves() []*spatialmath.Box {
	boxes := []*spatialmath.Box{}
	octree.collectLeaves(&boxes)
	return boxes
}

func (octree *BasicOctree) collectLeaves(boxes *[]*spatialmath.Box) {
	switch octree.node.nodeType {
	case internalNode:
		for _, child := range octree.node.children {
			child.collectLeaves(boxes)
		}
	case leafNodeFilled:
		center, side := octree.center, octree.sideLength
		if octree.canSplit() {
			center, side = octree.node.point.P, octree.resolution
		}
		box, err := spatialmath.NewBox(spatialmath.NewPoseFromPoint(center), r3.Vector{X: side, Y: side, Z: side}, "")
		if err == nil {
			*boxes = append(*boxes, box)
		}
	case leafNodeEmpty:
	}
}

// canSplit returns whether the children of this node would still be at least the resolution.
func (octree *BasicOctree) canSplit() bool {
	return octree.sideLength/2 >= octree.resolution && octree.sideLength/2 > 0
}

// splitIntoOctants takes a filled leaf node and turns it into an internal node with eight children, one of
// which holds the point of the former leaf.
func (octree *BasicOctree) splitIntoOctants() error {
	switch octree.node.nodeType {
	case internalNode:
		return errors.New("error attempted to split internal node")
	case leafNodeEmpty:
		return errors.New("error attempted to split empty leaf node")
	case leafNodeFilled:
	}

	children := make([]*BasicOctree, 0, 8)
	newSideLength := octree.sideLength / 2
	for _, i := range []float64{-1.0, 1.0} {
		for _, j := range []float64{-1.0, 1.0} {
			for _, k := range []float64{-1.0, 1.0} {
				newCenter := octree.center.Add(r3.Vector{X: i * newSideLength / 2., Y: j * newSideLength / 2., Z: k * newSideLength / 2.})
				child := &BasicOctree{
					node:       newLeafNodeEmpty(),
					center:     newCenter,
					sideLength: newSideLength,
					resolution: octree.resolution,
					meta:       NewMetaData(),
				}
				children = append(children, child)
			}
		}
	}

	point, hits := octree.node.point, octree.node.hits
	octree.node = newInternalNode(children)
	for _, child := range children {
		if child.checkPointPlacement(point.P) {
			if err := child.Set(point.P, point.D); err != nil {
				return err
			}
			child.node.hits = hits
			return nil
		}
	}
	return errors.New("error point lost while splitting octree")
}

// checkPointPlacement checks that a point is within the bounds of the octree, boundaries included.
func (octree *BasicOctree) checkPointPlacement(p r3.Vector) bool {
	const eps = 1e-9
	half := octree.sideLength/2 + eps
	return math.Abs(p.X-octree.center.X) <= half &&
		math.Abs(p.Y-octree.center.Y) <= half &&
		math.Abs(p.Z-octree.center.Z) <= half
}
