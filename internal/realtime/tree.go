package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hitoshi/zemong/internal/model"
)

// cleanPath は前後と連続するスラッシュを取り除いたパスを返す。
func cleanPath(p string) string {
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "/")
}

// ancestors はルートを除く祖先パスを浅い順に返す。
func ancestors(p string) []string {
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "/"))
	}
	return out
}

// isDescendant はchildがparentの子孫（自身を含まない）かを返す。
func isDescendant(child, parent string) bool {
	if parent == "" {
		return child != ""
	}
	return strings.HasPrefix(child, parent+"/")
}

// related は購読パスと書き込みパスが同じ部分木に属するかを返す。
func related(subscribed, written string) bool {
	return subscribed == written || isDescendant(subscribed, written) || isDescendant(written, subscribed)
}

// flatten は値を葉のパスとJSON値の組に分解する。
// 配列は添字をキーとするオブジェクトとして扱う。
// nil・空オブジェクト・空配列は葉を持たない。
func flatten(path string, value any) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value at %q: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to decode value at %q: %w", path, err)
	}

	leaves := make(map[string]json.RawMessage)
	if err := walk(path, tree, leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

func walk(path string, node any, leaves map[string]json.RawMessage) error {
	switch v := node.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range v {
			if k == "" || strings.Contains(k, "/") {
				return fmt.Errorf("invalid key %q at %q", k, path)
			}
			if err := walk(join(path, k), child, leaves); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, child := range v {
			if err := walk(join(path, strconv.Itoa(i)), child, leaves); err != nil {
				return err
			}
		}
		return nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode leaf at %q: %w", path, err)
		}
		leaves[path] = b
		return nil
	}
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "/" + key
}

// build は葉の集合からpathのスナップショットを組み立てる。
// leavesにはpath自身またはその子孫だけが含まれている前提。
// オブジェクトのキーはjson.Marshalによりソートされる。
func build(path string, leaves map[string]json.RawMessage) (model.Snapshot, error) {
	snap := model.Snapshot{Path: path}
	if v, ok := leaves[path]; ok {
		snap.Exists = true
		snap.Value = v
		return snap, nil
	}

	keys := make([]string, 0, len(leaves))
	for k := range leaves {
		if isDescendant(k, path) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return snap, nil
	}
	sort.Strings(keys)

	root := make(map[string]any)
	for _, k := range keys {
		rel := k
		if path != "" {
			rel = strings.TrimPrefix(k, path+"/")
		}
		parts := strings.Split(rel, "/")
		node := root
		ok := true
		for _, part := range parts[:len(parts)-1] {
			next, exists := node[part]
			if !exists {
				m := make(map[string]any)
				node[part] = m
				node = m
				continue
			}
			m, isMap := next.(map[string]any)
			if !isMap {
				ok = false
				break
			}
			node = m
		}
		if ok {
			node[parts[len(parts)-1]] = leaves[k]
		}
	}

	b, err := json.Marshal(root)
	if err != nil {
		return snap, fmt.Errorf("failed to encode snapshot at %q: %w", path, err)
	}
	snap.Exists = true
	snap.Value = b
	return snap, nil
}
