// Package conv rebuilds flat chat transcripts into the canonical
// conversation-export tree shape used by shared-conversation records.
package conv

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Turn is one message of a flat transcript. Time is epoch seconds,
// zero when the source supplied no timestamp.
type Turn struct {
	Role string
	Text string
	Time float64
}

// Tree is a reconstructed conversation chain. Mapping holds one node
// per surviving turn, keyed node_0..node_{k-1}. CurrentNode is
// "node_0", or empty when the chain has no nodes.
type Tree struct {
	Mapping     map[string]any
	CurrentNode string
}

// Len returns the node count.
func (t Tree) Len() int { return len(t.Mapping) }

// Reconstruct builds a Tree from turns. Turns whose text trims to
// empty are dropped first, so a non-empty input can still produce an
// empty tree. Surviving turns are stably sorted ascending by
// timestamp; turns without one sort as zero, which keeps an untimed
// transcript in source order. Each node is chained to its neighbours,
// and create_time is synthesized at a 60-second stride counting
// backward from now wherever the source gave no timestamp. create_time
// is strictly increasing along the chain, so equal source timestamps
// are nudged forward by one second.
func Reconstruct(turns []Turn, now time.Time) Tree {
	kept := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		kept = append(kept, t)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Time < kept[j].Time })

	k := len(kept)
	base := float64(now.Unix())
	mapping := make(map[string]any, k)
	prev := 0.0
	for i, t := range kept {
		nodeID := fmt.Sprintf("node_%d", i)
		role := t.Role
		if role == "" {
			role = "user"
		}
		createTime := t.Time
		if createTime == 0 {
			createTime = base - float64(k-i)*60
		}
		if i > 0 && createTime <= prev {
			createTime = prev + 1
		}
		prev = createTime

		var parent any
		if i > 0 {
			parent = fmt.Sprintf("node_%d", i-1)
		}
		children := []any{}
		if i < k-1 {
			children = []any{fmt.Sprintf("node_%d", i+1)}
		}
		mapping[nodeID] = map[string]any{
			"id": nodeID,
			"message": map[string]any{
				"id":          fmt.Sprintf("msg_%d", i),
				"author":      map[string]any{"role": role},
				"create_time": createTime,
				"content": map[string]any{
					"content_type": "text",
					"parts":        []any{t.Text},
				},
			},
			"parent":   parent,
			"children": children,
		}
	}

	current := ""
	if k > 0 {
		current = "node_0"
	}
	return Tree{Mapping: mapping, CurrentNode: current}
}

// Envelope wraps the reconstructed tree in the export file shape:
// title, create_time, update_time, mapping, current_node and share_id.
// current_node is null (not "") when the tree is empty.
func Envelope(title, shareID string, turns []Turn, now time.Time) map[string]any {
	tree := Reconstruct(turns, now)

	if title == "" {
		title = "ChatGPT Conversation"
	}
	createTime := now.Unix()
	if tree.Len() > 0 {
		createTime = now.Unix() - int64(tree.Len())*60
	}
	var current any
	if tree.CurrentNode != "" {
		current = tree.CurrentNode
	}
	return map[string]any{
		"title":        title,
		"create_time":  createTime,
		"update_time":  now.Unix(),
		"mapping":      tree.Mapping,
		"current_node": current,
		"share_id":     shareID,
	}
}
