// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides the merkle root commitment over an ordered set of
// transaction ids and a merkle tree for inclusion proofs.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNoContent is returned when a root is requested over nothing. A block
// always carries at least one transaction.
var ErrNoContent = errors.New("cannot construct tree with no content")

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	ID() string
	Equals(other T) bool
}

// =============================================================================

// HashPair produces the parent of two adjacent ids. The ids are concatenated
// as strings and hashed with SHA-256, then the hex text of that digest is
// hashed again.
func HashPair(a string, b string) string {
	first := sha256.Sum256([]byte(a + b))
	second := sha256.Sum256([]byte(hex.EncodeToString(first[:])))
	return hexutil.Encode(second[:])
}

// Root reduces the ordered ids to a single merkle root. On any level with
// an odd count the last id is paired with itself. A single id is its own
// root.
func Root(ids []string) (string, error) {
	if len(ids) == 0 {
		return "", ErrNoContent
	}

	level := ids
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := i + 1
			if right == len(level) {
				right = i
			}
			next = append(next, HashPair(level[i], level[right]))
		}
		level = next
	}

	return level[0], nil
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint.
type Tree[T Hashable[T]] struct {
	Root       *Node[T]
	Leafs      []*Node[T]
	MerkleRoot string
	hashPair   func(a string, b string) string
}

// WithHashPair is used to change the default pair hashing when constructing
// a new tree.
func WithHashPair[T Hashable[T]](hashPair func(a string, b string) string) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashPair = hashPair
	}
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashPair: HashPair,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the leafs and nodes of the tree from the specified
// data. If the tree has been generated previously, the tree is re-generated
// from scratch.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		return ErrNoContent
	}

	leafs := make([]*Node[T], len(values))
	for i, value := range values {
		leafs[i] = &Node[T]{
			Hash:  value.ID(),
			Value: value,
			leaf:  true,
			Tree:  t,
		}
	}

	root := leafs[0]
	if len(leafs) > 1 {
		root = buildIntermediate(leafs, t)
	}

	t.Root = root
	t.Leafs = leafs
	t.MerkleRoot = root.Hash

	return nil
}

// Proof returns the set of sibling hashes and the order of concatenating
// those hashes for proving a value is in the tree. An order of 0 means the
// proof hash comes first, 1 means it comes second.
func (t *Tree[T]) Proof(data T) ([]string, []int64, error) {
	for _, node := range t.Leafs {
		if !node.Value.Equals(data) {
			continue
		}

		var merkleProof []string
		var order []int64
		nodeParent := node.Parent

		for nodeParent != nil {
			if nodeParent.Left == node {
				merkleProof = append(merkleProof, nodeParent.Right.Hash)
				order = append(order, 1) // right leaf, concat second.
			} else {
				merkleProof = append(merkleProof, nodeParent.Left.Hash)
				order = append(order, 0) // left leaf, concat first.
			}
			node = nodeParent
			nodeParent = nodeParent.Parent
		}

		return merkleProof, order, nil
	}

	return nil, nil, errors.New("unable to find data in tree")
}

// Verify validates the hashes at each level of the tree and returns an
// error if the resulting hash doesn't match the stored root.
func (t *Tree[T]) Verify() error {
	if t.Root == nil {
		return ErrNoContent
	}

	if calculated := t.Root.verify(); calculated != t.MerkleRoot {
		return fmt.Errorf("root hash invalid: got %s, exp %s", calculated, t.MerkleRoot)
	}

	return nil
}

// Values returns the values stored in the tree in leaf order.
func (t *Tree[T]) Values() []T {
	values := make([]T, len(t.Leafs))
	for i, leaf := range t.Leafs {
		values[i] = leaf.Value
	}

	return values
}

// IDs returns the ids of the values stored in the tree in leaf order.
func (t *Tree[T]) IDs() []string {
	ids := make([]string, len(t.Leafs))
	for i, leaf := range t.Leafs {
		ids[i] = leaf.Hash
	}

	return ids
}

// RootHex returns the merkle root. The ids are already hex encoded.
func (t *Tree[T]) RootHex() string {
	return t.MerkleRoot
}

// String returns a string representation of the tree. Only leaf nodes are
// included in the output.
func (t *Tree[T]) String() string {
	s := ""

	for _, l := range t.Leafs {
		s += fmt.Sprint(l)
		s += "\n"
	}

	return s
}

// MarshalText implements the TextMarshaler interface and produces a panic
// if anyone tries to marshal the Merkle tree. I don't want this to happen.
// Use the Values function to return a slice that can be marshaled.
func (t *Tree[T]) MarshalText() (text []byte, err error) {
	panic("do not marshal the merkle tree, use Values")
}

// =============================================================================

// VerifyProof recomputes the root from an id and its proof.
func VerifyProof(id string, proof []string, order []int64, root string) bool {
	if len(proof) != len(order) {
		return false
	}

	hash := id
	for i, p := range proof {
		switch order[i] {
		case 0:
			hash = HashPair(p, hash)
		default:
			hash = HashPair(hash, p)
		}
	}

	return hash == root
}

// =============================================================================

// Node represents a node, root, or leaf in the tree. It stores pointers to its
// immediate relationships, a hash, and the data if it is a leaf.
type Node[T Hashable[T]] struct {
	Tree   *Tree[T]
	Parent *Node[T]
	Left   *Node[T]
	Right  *Node[T]
	Hash   string
	Value  T
	leaf   bool
}

// verify walks down the tree until hitting a leaf, calculating the hash at
// each level and returning the resulting hash of the node.
func (n *Node[T]) verify() string {
	if n.leaf {
		return n.Value.ID()
	}

	return n.Tree.hashPair(n.Left.verify(), n.Right.verify())
}

// String returns a string representation of the node.
func (n *Node[T]) String() string {
	return fmt.Sprintf("%t %s %v", n.leaf, n.Hash, n.Value)
}

// =============================================================================

// buildIntermediate is a helper function that for a given list of nodes,
// constructs the next level of the tree. An odd node out is paired with
// itself. Returns the resulting root node of the tree.
func buildIntermediate[T Hashable[T]](nl []*Node[T], t *Tree[T]) *Node[T] {
	var nodes []*Node[T]

	for i := 0; i < len(nl); i += 2 {
		left, right := i, i+1
		if i+1 == len(nl) {
			right = i
		}

		n := Node[T]{
			Left:  nl[left],
			Right: nl[right],
			Hash:  t.hashPair(nl[left].Hash, nl[right].Hash),
			Tree:  t,
		}

		nodes = append(nodes, &n)
		nl[left].Parent = &n
		nl[right].Parent = &n
	}

	if len(nodes) == 1 {
		return nodes[0]
	}

	return buildIntermediate(nodes, t)
}
