package infra

import (
	"errors"
	"strings"
)

var ErrNoRoute = errors.New("no route matched")

type TrieNode struct {
	Pattern  string
	Value    any
	terminal bool
	segment  string
	children map[string]*TrieNode
	param    *TrieNode
}

// Trie maps url paths to values. A segment starting with ':' matches any
// single segment and is captured by name; static segments win over params.
type Trie struct {
	root *TrieNode
}

type MatchResult struct {
	Node   *TrieNode
	Params map[string]string
}

func NewTrie() *Trie {
	return &Trie{root: &TrieNode{children: map[string]*TrieNode{}}}
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func (t *Trie) Parse(path string, value any) {
	node := t.root
	for _, seg := range split(path) {
		if strings.HasPrefix(seg, ":") {
			if node.param == nil {
				node.param = &TrieNode{segment: seg, children: map[string]*TrieNode{}}
			}
			node = node.param
			continue
		}
		child, ok := node.children[seg]
		if !ok {
			child = &TrieNode{segment: seg, children: map[string]*TrieNode{}}
			node.children[seg] = child
		}
		node = child
	}
	node.Pattern = path
	node.Value = value
	node.terminal = true
}

func (t *Trie) Match(path string) (*MatchResult, error) {
	params := map[string]string{}
	node := t.match(t.root, split(path), params)
	if node == nil {
		return nil, ErrNoRoute
	}
	return &MatchResult{Node: node, Params: params}, nil
}

func (t *Trie) match(node *TrieNode, segs []string, params map[string]string) *TrieNode {
	if len(segs) == 0 {
		if !node.terminal {
			return nil
		}
		return node
	}
	if child, ok := node.children[segs[0]]; ok {
		if found := t.match(child, segs[1:], params); found != nil {
			return found
		}
	}
	if node.param != nil {
		if found := t.match(node.param, segs[1:], params); found != nil {
			params[node.param.segment[1:]] = segs[0]
			return found
		}
	}
	return nil
}
