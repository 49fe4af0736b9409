// Package engine evaluates Lisp node scripts into buildable node
// trees. A script is a .burl file of defnode forms; evaluation happens
// in a sandboxed zygomys environment with the geometry builtins
// registered, and the script file itself becomes the source location
// of every node it defines.
package engine

import (
	"fmt"
	"os"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/rs/zerolog"

	"github.com/chazu/burl/pkg/node"
	"github.com/chazu/burl/pkg/scad"
)

// EvalTimeout is the hard limit for evaluating one script.
const EvalTimeout = 10 * time.Second

type loadResult struct {
	n   *node.Node
	err error
}

// LoadNode evaluates the script at path and returns the root of the
// node tree it defines. The root is the last defined node that no
// other node claims as a child. Evaluation is bounded by EvalTimeout
// and isolated from panics in user code.
func LoadNode(path, buildRoot string, logger zerolog.Logger) (*node.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	ch := make(chan loadResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- loadResult{err: fmt.Errorf("engine: panic during evaluation of %s: %v", path, r)}
			}
		}()
		n, err := load(path, buildRoot, string(data), logger)
		ch <- loadResult{n: n, err: err}
	}()

	timer := time.NewTimer(EvalTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.n, res.err
	case <-timer.C:
		return nil, fmt.Errorf("engine: evaluation of %s exceeded %v", path, EvalTimeout)
	}
}

func load(path, buildRoot, source string, logger zerolog.Logger) (*node.Node, error) {
	st := &evalState{
		path:       path,
		buildRoot:  buildRoot,
		logger:     logger,
		byName:     make(map[string]*node.Node),
		childNames: make(map[string]bool),
	}

	// Sandbox mode keeps user scripts away from the filesystem and
	// syscalls; all effects flow through the registered builtins.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, st)

	if err := env.LoadString(preprocess(source)); err != nil {
		return nil, fmt.Errorf("engine: %s: %w", path, err)
	}
	if _, err := env.Run(); err != nil {
		return nil, fmt.Errorf("engine: %s: %w", path, err)
	}

	return st.root()
}

// evalState accumulates the nodes defined during one script
// evaluation.
type evalState struct {
	path      string
	buildRoot string
	logger    zerolog.Logger

	defined    []*node.Node
	byName     map[string]*node.Node
	childNames map[string]bool

	// pendingSlots are (children) placeholders created since the last
	// defnode; the next defnode takes ownership of them.
	pendingSlots []*scad.Slot
}

func (st *evalState) takeSlots() []*scad.Slot {
	slots := st.pendingSlots
	st.pendingSlots = nil
	return slots
}

// root picks the script's buildable root: the last defined node not
// claimed as a child of another.
func (st *evalState) root() (*node.Node, error) {
	if len(st.defined) == 0 {
		return nil, fmt.Errorf("engine: %s defines no nodes", st.path)
	}
	for i := len(st.defined) - 1; i >= 0; i-- {
		if !st.childNames[st.defined[i].Name()] {
			return st.defined[i], nil
		}
	}
	return nil, fmt.Errorf("engine: %s: every node is claimed as a child, no root", st.path)
}

// kwPrefix marks keyword tokens rewritten by preprocess.
const kwPrefix = "__kw_"

// preprocess rewrites script source for zygomys: ; comments become //
// comments, and :keyword tokens become marked string literals so the
// builtins can recognize them without registering global symbols.
// String literal boundaries are respected.
func preprocess(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		if b[i] == ';' {
			result = append(result, '/', '/')
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		if b[i] == ':' && i+1 < len(b) && isLetter(b[i+1]) {
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			result = append(result, '"')
			result = append(result, []byte(kwPrefix)...)
			result = append(result, b[i+1:j]...)
			result = append(result, '"')
			i = j
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}
