package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrMalformedChain reports an access-chain shape the parser does not
// support (slices, tuple subscripts, calls of call results). Callers
// treat the whole chain as unresolved; this is never fatal.
var ErrMalformedChain = errors.New("chain: malformed access chain")

// Marker characters recognized ahead of an identifier. They are not part
// of the host syntax, so they are stripped before parsing and re-attached
// to the atom that starts at the stripped position.
const (
	reactiveMarker = '$'
	blockingMarker = '!'
)

// Parser parses textual access chains using the tree-sitter Python
// grammar. Parsed chains are cached by source text since the same text
// always yields the same chain shape. Not safe for concurrent use, in
// keeping with the engine's single-threaded execution model.
type Parser struct {
	parser *sitter.Parser
	cache  map[string]*Ref
}

// NewParser creates a chain parser.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{
		parser: p,
		cache:  make(map[string]*Ref),
	}
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	p.parser.Close()
}

// Parse turns an access-chain expression like "a.$b[0].c()" into a Ref.
// Returns ErrMalformedChain for shapes the resolver cannot walk.
func (p *Parser) Parse(ctx context.Context, text string) (*Ref, error) {
	if ref, ok := p.cache[text]; ok {
		return ref, nil
	}

	src, marks := stripMarkers(text)

	tree, err := p.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("chain: parse %q: %w", text, err)
	}
	defer tree.Close()

	expr := expressionRoot(tree.RootNode())
	if expr == nil {
		return nil, fmt.Errorf("chain: parse %q: %w", text, ErrMalformedChain)
	}

	atoms, err := buildAtoms(expr, src, marks)
	if err != nil {
		return nil, fmt.Errorf("chain: parse %q: %w", text, err)
	}
	if len(atoms) == 0 {
		return nil, fmt.Errorf("chain: parse %q: %w", text, ErrMalformedChain)
	}

	ref := &Ref{Atoms: atoms}
	p.cache[text] = ref
	return ref, nil
}

// stripMarkers removes $ and ! markers from the text and records the byte
// offset, in the stripped text, of the identifier each marker annotated.
// Markers inside string literals are literal characters: a quoted
// subscript key like a['$x'] keeps its dollar sign.
func stripMarkers(text string) ([]byte, map[uint32]byte) {
	marks := make(map[uint32]byte)
	out := make([]byte, 0, len(text))
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == '\\' && i+1 < len(text) {
				out = append(out, c, text[i+1])
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			out = append(out, c)
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			out = append(out, c)
			continue
		}
		if (c == reactiveMarker || c == blockingMarker) && i+1 < len(text) && isIdentStart(text[i+1]) {
			marks[uint32(len(out))] = c
			continue
		}
		out = append(out, c)
	}
	return out, marks
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// expressionRoot digs through module and expression_statement wrappers to
// the expression node itself.
func expressionRoot(root *sitter.Node) *sitter.Node {
	node := root
	for node != nil {
		switch node.Type() {
		case "module", "expression_statement", "parenthesized_expression":
			if node.NamedChildCount() == 0 {
				return nil
			}
			node = node.NamedChild(0)
		default:
			return node
		}
	}
	return nil
}

// buildAtoms walks an expression tree root-first and emits the chain.
// Resolution past a variable subscript is impossible statically, so the
// chain is truncated there; unsupported shapes are malformed.
func buildAtoms(node *sitter.Node, src []byte, marks map[uint32]byte) ([]Atom, error) {
	switch node.Type() {
	case "identifier":
		return []Atom{namedAtom(node, src, marks)}, nil

	case "parenthesized_expression":
		inner := expressionRoot(node)
		if inner == nil {
			return nil, ErrMalformedChain
		}
		return buildAtoms(inner, src, marks)

	case "attribute":
		obj := node.ChildByFieldName("object")
		attr := node.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return nil, ErrMalformedChain
		}
		head, err := buildAtoms(obj, src, marks)
		if err != nil {
			return nil, err
		}
		return append(head, namedAtom(attr, src, marks)), nil

	case "subscript":
		value := node.ChildByFieldName("value")
		sub := node.ChildByFieldName("subscript")
		if value == nil || sub == nil {
			return nil, ErrMalformedChain
		}
		head, err := buildAtoms(value, src, marks)
		if err != nil {
			return nil, err
		}
		key, ok, err := constantKey(sub, src)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Variable index: static resolution stops here.
			return head, nil
		}
		return append(head, Atom{Key: key, Subscript: true}), nil

	case "call":
		fn := node.ChildByFieldName("function")
		if fn == nil {
			return nil, ErrMalformedChain
		}
		switch fn.Type() {
		case "identifier":
			a := namedAtom(fn, src, marks)
			a.Callpoint = true
			return []Atom{a}, nil
		case "attribute":
			obj := fn.ChildByFieldName("object")
			attr := fn.ChildByFieldName("attribute")
			if obj == nil || attr == nil {
				return nil, ErrMalformedChain
			}
			head, err := buildAtoms(obj, src, marks)
			if err != nil {
				return nil, err
			}
			a := namedAtom(attr, src, marks)
			a.Callpoint = true
			return append(head, a), nil
		case "subscript":
			value := fn.ChildByFieldName("value")
			sub := fn.ChildByFieldName("subscript")
			if value == nil || sub == nil {
				return nil, ErrMalformedChain
			}
			head, err := buildAtoms(value, src, marks)
			if err != nil {
				return nil, err
			}
			key, ok, err := constantKey(sub, src)
			if err != nil {
				return nil, err
			}
			if !ok {
				return head, nil
			}
			return append(head, Atom{Key: key, Subscript: true, Callpoint: true}), nil
		default:
			// e.g. f()() — cannot name the callee.
			return nil, ErrMalformedChain
		}

	default:
		return nil, ErrMalformedChain
	}
}

// namedAtom builds an atom for an identifier-shaped node, attaching any
// reactivity marker recorded at the node's start offset.
func namedAtom(node *sitter.Node, src []byte, marks map[uint32]byte) Atom {
	a := Atom{Key: NameKey(node.Content(src))}
	switch marks[node.StartByte()] {
	case reactiveMarker:
		a.Reactive = true
	case blockingMarker:
		a.Blocking = true
	}
	return a
}

// constantKey folds a constant subscript expression into a Key. The
// second return is false when the subscript is a name (resolution should
// truncate); an error means the shape is unsupported.
func constantKey(node *sitter.Node, src []byte) (Key, bool, error) {
	switch node.Type() {
	case "integer":
		n, err := strconv.ParseInt(node.Content(src), 10, 64)
		if err != nil {
			return Key{}, false, ErrMalformedChain
		}
		return IndexKey(n), true, nil

	case "string":
		return NameKey(unquote(node.Content(src))), true, nil

	case "unary_operator":
		op := node.ChildByFieldName("operator")
		operand := node.ChildByFieldName("argument")
		if op == nil || operand == nil || operand.Type() != "integer" {
			return Key{}, false, ErrMalformedChain
		}
		// Only negation folds to a constant index; + and ~ are unsupported
		// rather than silently misread.
		if op.Content(src) != "-" {
			return Key{}, false, ErrMalformedChain
		}
		n, err := strconv.ParseInt(operand.Content(src), 10, 64)
		if err != nil {
			return Key{}, false, ErrMalformedChain
		}
		return IndexKey(-n), true, nil

	case "identifier":
		return Key{}, false, nil

	default:
		// Slices, tuples, and anything fancier are unsupported.
		return Key{}, false, ErrMalformedChain
	}
}

// unquote strips one layer of matching quotes from a string literal.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '\'' || first == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
