package merk

import (
	"bytes"

	"github.com/dashpay/grovedb-sub006/cost"
	"github.com/dashpay/grovedb-sub006/element"
)

// wrapLink wraps a (possibly nil) in-memory node as an uncommitted link —
// its final on-disk Hash/heights are only known once commit's bottom-up
// recompute pass reaches it.
func wrapLink(n *Node) *Link {
	if n == nil {
		return nil
	}
	return &Link{State: LinkUncommitted, Child: n}
}

// put inserts or replaces key/val under node, loading children from storage
// on demand, and returns the (possibly rebalanced) new subtree root.
// childRootHash is folded into the target key's value_hash when val is a
// subtree-marker element (spec.md 3 invariant 6); it is only consulted at
// the node actually being written, not at nodes merely traversed en route.
func (m *Merk) put(node *Node, key []byte, val element.Element, ft FeatureType, childRootHash *Hash, acc *cost.OperationCost) (*Node, error) {
	if node == nil {
		return newLeaf(key, val, ft, childRootHash), nil
	}
	switch bytes.Compare(key, node.Key) {
	case 0:
		node.Value = val
		node.FeatureType = ft
		node.childRootHash = childRootHash
		node.refreshValue()
		node.dirty = true
		return node, nil
	case -1:
		if err := m.loadLinkChild(node.Left, acc); err != nil {
			return nil, err
		}
		var child *Node
		if node.Left != nil {
			child = node.Left.Child
		}
		newChild, err := m.put(child, key, val, ft, childRootHash, acc)
		if err != nil {
			return nil, err
		}
		node.Left = wrapLink(newChild)
		node.dirty = true
		return m.rebalance(node), nil
	default:
		if err := m.loadLinkChild(node.Right, acc); err != nil {
			return nil, err
		}
		var child *Node
		if node.Right != nil {
			child = node.Right.Child
		}
		newChild, err := m.put(child, key, val, ft, childRootHash, acc)
		if err != nil {
			return nil, err
		}
		node.Right = wrapLink(newChild)
		node.dirty = true
		return m.rebalance(node), nil
	}
}

// remove deletes key from the subtree rooted at node, returning the new
// subtree root and whether a node was actually removed.
func (m *Merk) remove(node *Node, key []byte, acc *cost.OperationCost) (*Node, bool, error) {
	if node == nil {
		return nil, false, nil
	}
	switch bytes.Compare(key, node.Key) {
	case 0:
		if node.Left == nil && node.Right == nil {
			return nil, true, nil
		}
		if node.Left == nil {
			if err := m.loadLinkChild(node.Right, acc); err != nil {
				return nil, false, err
			}
			return node.Right.Child, true, nil
		}
		if node.Right == nil {
			if err := m.loadLinkChild(node.Left, acc); err != nil {
				return nil, false, err
			}
			return node.Left.Child, true, nil
		}
		if err := m.loadLinkChild(node.Left, acc); err != nil {
			return nil, false, err
		}
		if err := m.loadLinkChild(node.Right, acc); err != nil {
			return nil, false, err
		}
		// Promote the taller subtree's extremum (spec.md 4.3 step 4). The
		// extremum node (max of left / min of right) has at most one
		// child by definition, so removing it never mutates its own
		// Key/Value in place — it is safe to read them before removal. Its
		// ValueBytes/ValueHash/KVHash/childRootHash are copied verbatim
		// rather than recomputed: the promoted entry's value hasn't
		// changed, only its position in the tree has, so recomputing would
		// silently drop any child-root-hash folding already baked into its
		// hash (spec.md 3 invariant 6).
		if node.Left.Child.height() >= node.Right.Child.height() {
			pred, err := m.findMaxNode(node.Left.Child, acc)
			if err != nil {
				return nil, false, err
			}
			predKey, predVal, predFT := pred.Key, pred.Value, pred.FeatureType
			predValueBytes, predValueHash, predKVHash, predChildRootHash := pred.ValueBytes, pred.ValueHash, pred.KVHash, pred.childRootHash
			newLeft, _, err := m.remove(node.Left.Child, predKey, acc)
			if err != nil {
				return nil, false, err
			}
			node.Key, node.Value, node.FeatureType = predKey, predVal, predFT
			node.ValueBytes, node.ValueHash, node.KVHash, node.childRootHash = predValueBytes, predValueHash, predKVHash, predChildRootHash
			node.Left = wrapLink(newLeft)
		} else {
			succ, err := m.findMinNode(node.Right.Child, acc)
			if err != nil {
				return nil, false, err
			}
			succKey, succVal, succFT := succ.Key, succ.Value, succ.FeatureType
			succValueBytes, succValueHash, succKVHash, succChildRootHash := succ.ValueBytes, succ.ValueHash, succ.KVHash, succ.childRootHash
			newRight, _, err := m.remove(node.Right.Child, succKey, acc)
			if err != nil {
				return nil, false, err
			}
			node.Key, node.Value, node.FeatureType = succKey, succVal, succFT
			node.ValueBytes, node.ValueHash, node.KVHash, node.childRootHash = succValueBytes, succValueHash, succKVHash, succChildRootHash
			node.Right = wrapLink(newRight)
		}
		node.dirty = true
		return m.rebalance(node), true, nil
	case -1:
		if node.Left == nil {
			return node, false, nil
		}
		if err := m.loadLinkChild(node.Left, acc); err != nil {
			return nil, false, err
		}
		newChild, deleted, err := m.remove(node.Left.Child, key, acc)
		if err != nil {
			return nil, false, err
		}
		if !deleted {
			return node, false, nil
		}
		node.Left = wrapLink(newChild)
		node.dirty = true
		return m.rebalance(node), true, nil
	default:
		if node.Right == nil {
			return node, false, nil
		}
		if err := m.loadLinkChild(node.Right, acc); err != nil {
			return nil, false, err
		}
		newChild, deleted, err := m.remove(node.Right.Child, key, acc)
		if err != nil {
			return nil, false, err
		}
		if !deleted {
			return node, false, nil
		}
		node.Right = wrapLink(newChild)
		node.dirty = true
		return m.rebalance(node), true, nil
	}
}

// findMaxNode/findMinNode locate (without removing) the extremum node of a
// subtree, loading nodes on demand.
func (m *Merk) findMaxNode(node *Node, acc *cost.OperationCost) (*Node, error) {
	for {
		if err := m.loadLinkChild(node.Right, acc); err != nil {
			return nil, err
		}
		if node.Right == nil {
			return node, nil
		}
		node = node.Right.Child
	}
}

func (m *Merk) findMinNode(node *Node, acc *cost.OperationCost) (*Node, error) {
	for {
		if err := m.loadLinkChild(node.Left, acc); err != nil {
			return nil, err
		}
		if node.Left == nil {
			return node, nil
		}
		node = node.Left.Child
	}
}

// rebalance restores the AVL invariant at node after a structural change,
// performing at most one single or double rotation (spec.md 4.3 step 3).
func (m *Merk) rebalance(node *Node) *Node {
	bf := node.balanceFactor()
	if bf > 1 {
		if node.Right.Child.balanceFactor() < 0 {
			node.Right = wrapLink(m.rotateRight(node.Right.Child))
		}
		return m.rotateLeft(node)
	}
	if bf < -1 {
		if node.Left.Child.balanceFactor() > 0 {
			node.Left = wrapLink(m.rotateLeft(node.Left.Child))
		}
		return m.rotateRight(node)
	}
	return node
}

func (m *Merk) rotateLeft(node *Node) *Node {
	newRoot := node.Right.Child
	node.Right = newRoot.Left
	newRoot.Left = wrapLink(node)
	node.dirty = true
	newRoot.dirty = true
	return newRoot
}

func (m *Merk) rotateRight(node *Node) *Node {
	newRoot := node.Left.Child
	node.Left = newRoot.Right
	newRoot.Right = wrapLink(node)
	node.dirty = true
	newRoot.dirty = true
	return newRoot
}
