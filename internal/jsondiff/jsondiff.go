// Package jsondiff computes a minimal RFC 6902-flavored patch between two
// JSON-shaped Go values (as produced by encoding/json's map[string]any /
// []any / scalar decoding), for broadcasting deltas instead of full
// snapshots over the subscriber hub.
//
// The vocabulary is fixed to "add", "replace", and "remove" — no "move",
// "copy", or "test" — and paths are built directly from map keys and array
// indices with no JSON-Pointer escaping of "~" or "/", since every key this
// package ever sees is an engine-controlled field name or a decimal array
// index, never arbitrary user input.
package jsondiff

import (
	"fmt"
	"reflect"
)

// Op is a single RFC 6902-subset patch operation.
type Op struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Diff returns the patch that transforms src into tgt.
func Diff(src, tgt any) []Op {
	return diffAt("", src, tgt)
}

func diffAt(path string, src, tgt any) []Op {
	if deepEqual(src, tgt) {
		return nil
	}

	srcMap, srcIsMap := src.(map[string]any)
	tgtMap, tgtIsMap := tgt.(map[string]any)
	if srcIsMap && tgtIsMap {
		return diffObject(path, srcMap, tgtMap)
	}

	srcArr, srcIsArr := src.([]any)
	tgtArr, tgtIsArr := tgt.([]any)
	if srcIsArr && tgtIsArr {
		return diffArray(path, srcArr, tgtArr)
	}

	// Kind mismatch (map vs array vs scalar, or either side missing/nil) or
	// differing scalars: replace wholesale at path. The top-level call (path
	// == "") with two differing non-container values also falls here and is
	// emitted as a replace at "", matching the behavior for a whole-document
	// type change.
	return []Op{{Op: "replace", Path: path, Value: tgt}}
}

func diffObject(path string, src, tgt map[string]any) []Op {
	var ops []Op

	// Pass 1: keys present in src — recurse if also in tgt, else remove.
	for k, sv := range src {
		childPath := path + "/" + k
		if tv, ok := tgt[k]; ok {
			ops = append(ops, diffAt(childPath, sv, tv)...)
		} else {
			ops = append(ops, Op{Op: "remove", Path: childPath})
		}
	}

	// Pass 2: keys only in tgt — add.
	for k, tv := range tgt {
		if _, ok := src[k]; !ok {
			ops = append(ops, Op{Op: "add", Path: path + "/" + k, Value: tv})
		}
	}

	return ops
}

func diffArray(path string, src, tgt []any) []Op {
	var ops []Op

	n := len(src)
	if len(tgt) < n {
		n = len(tgt)
	}

	// Parallel prefix: recurse position-by-position.
	for i := 0; i < n; i++ {
		ops = append(ops, diffAt(fmt.Sprintf("%s/%d", path, i), src[i], tgt[i])...)
	}

	// Trailing source elements beyond tgt's length: remove from the back so
	// earlier removals don't shift the positions of later ones.
	for i := len(src) - 1; i >= len(tgt); i-- {
		ops = append(ops, Op{Op: "remove", Path: fmt.Sprintf("%s/%d", path, i)})
	}

	// Trailing target elements beyond src's length: append in order, each
	// as its own "add" at the RFC 6902 end-of-array marker "-". Every
	// element is visited exactly once — no double-increment, unlike a
	// prior implementation of this same shape that advanced i twice per
	// iteration and silently dropped every other trailing element.
	for i := len(src); i < len(tgt); i++ {
		ops = append(ops, Op{Op: "add", Path: path + "/-", Value: tgt[i]})
	}

	return ops
}

func deepEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
