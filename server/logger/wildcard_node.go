package logger

import (
	"strings"
)

const (
	wildcardOne = "*"
	wildcardAny = "**"
)

type wildcardNode struct {
	level    Level
	name     string
	children map[string]*wildcardNode
}

var _ Config = &wildcardNode{}

func newWildcardNode(configMap ConfigMap) Config {
	if configMap == nil {
		return nil
	}

	root := &wildcardNode{}

	for pattern, level := range configMap {
		root.add(pattern, level)
	}

	return root
}

func (n *wildcardNode) child(name string) *wildcardNode {
	if c, ok := n.children[name]; ok {
		return c
	}

	if n.children == nil {
		n.children = map[string]*wildcardNode{}
	}

	c := &wildcardNode{
		level: LevelUnknown,
		name:  name,
	}

	n.children[name] = c

	return c
}

func (n *wildcardNode) add(pattern string, level Level) {
	node := n

	if pattern != "" {
		for _, name := range strings.Split(pattern, ":") {
			node = node.child(name)
		}
	}

	node.level = level
}

func (n *wildcardNode) resolve(names []string) (Level, bool) {
	if len(names) == 0 {
		if n.level == LevelUnknown {
			// A trailing ** also matches zero sections.
			if c, ok := n.children[wildcardAny]; ok && c.level != LevelUnknown {
				return c.level, true
			}
		}

		return n.level, n.level != LevelUnknown
	}

	if c, ok := n.children[names[0]]; ok {
		if level, ok := c.resolve(names[1:]); ok {
			return level, true
		}
	}

	if n.name == wildcardAny {
		// Skip any number of sections looking for the next literal match.
		for i := range names {
			if c, ok := n.children[names[i]]; ok {
				if level, ok := c.resolve(names[i+1:]); ok {
					return level, true
				}
			}
		}

		if n.level != LevelUnknown {
			return n.level, true
		}
	}

	if c, ok := n.children[wildcardOne]; ok {
		if level, ok := c.resolve(names[1:]); ok {
			return level, true
		}
	}

	if c, ok := n.children[wildcardAny]; ok {
		if level, ok := c.resolve(names); ok {
			return level, true
		}
	}

	return LevelDisabled, false
}

func (n *wildcardNode) LevelForNamespace(namespace string) Level {
	if namespace == "" {
		return n.level
	}

	if level, ok := n.resolve(strings.Split(namespace, ":")); ok {
		return level
	}

	return n.level
}
