package parser

// AST for the participle parser. The conversion to domain queries lives in
// convert.go.

type astFile struct {
	Queries []*astQuery `parser:"@@+"`
}

type astQuery struct {
	Prologue  []*astPrologue  `parser:"@@*"`
	Select    *astSelect      `parser:"( @@"`
	Construct *astConstruct   `parser:"| @@ )"`
	From      []string        `parser:"( 'FROM' @IRIRef )*"`
	Where     *astGroup       `parser:"'WHERE'? @@"`
	Modifiers []*astModifier  `parser:"@@*"`
}

type astPrologue struct {
	Base   *string    `parser:"  'BASE' @IRIRef"`
	Prefix *astPrefix `parser:"| 'PREFIX' @@"`
}

type astPrefix struct {
	Name string `parser:"@PName"`
	IRI  string `parser:"@IRIRef"`
}

type astSelect struct {
	Distinct bool             `parser:"'SELECT' ( @'DISTINCT' | 'REDUCED' )?"`
	Star     bool             `parser:"( @'*'"`
	Items    []*astSelectItem `parser:"| @@+ )"`
}

type astSelectItem struct {
	Var  *string  `parser:"  @Var"`
	Expr *astExpr `parser:"| '(' @@"`
	As   string   `parser:"  'AS' @Var ')'"`
}

type astConstruct struct {
	Template []*astTriples `parser:"'CONSTRUCT' '{' @@? ( '.' @@? )* '}'"`
}

// astTriples is a subject with a predicate-object list, as in
// "?s :p ?o1, ?o2 ; :q ?o3".
type astTriples struct {
	Subject    *astTerm              `parser:"@@"`
	Predicates []*astPredicateObject `parser:"@@ ( ';' @@? )*"`
}

type astPredicateObject struct {
	Verb    *astTerm   `parser:"@@"`
	Objects []*astTerm `parser:"@@ ( ',' @@ )*"`
}

type astTerm struct {
	Var     *string     `parser:"  @Var"`
	IRI     *astIRI     `parser:"| @@"`
	Blank   *string     `parser:"| @BlankNode"`
	A       bool        `parser:"| @'a'"`
	Literal *astLiteral `parser:"| @@"`
}

type astIRI struct {
	Ref   *string `parser:"  @IRIRef"`
	PName *string `parser:"| @PName"`
}

type astLiteral struct {
	String *astString `parser:"  @@"`
	Number *astNumber `parser:"| @@"`
	Bool   *string    `parser:"| @( 'true' | 'false' )"`
}

type astString struct {
	Value    string  `parser:"@String"`
	Lang     *string `parser:"( @LangTag"`
	Datatype *astIRI `parser:"| '^^' @@ )?"`
}

type astNumber struct {
	Sign    *string `parser:"@( '-' | '+' )?"`
	Double  *string `parser:"( @Double"`
	Decimal *string `parser:"| @Decimal"`
	Integer *string `parser:"| @Integer )"`
}

type astGroup struct {
	Elements []*astElement `parser:"'{' ( @@ '.'? )* '}'"`
}

type astElement struct {
	Filter *astConstraint `parser:"  'FILTER' @@"`
	Bind   *astBind       `parser:"| 'BIND' '(' @@"`
	Group  *astGroup      `parser:"| @@"`
}

type astConstraint struct {
	Bracketed *astExpr `parser:"  '(' @@ ')'"`
	Call      *astCall `parser:"| @@"`
}

type astBind struct {
	Expr *astExpr `parser:"@@"`
	Var  string   `parser:"'AS' @Var ')'"`
}

type astModifier struct {
	Limit  *int64 `parser:"  'LIMIT' @Integer"`
	Offset *int64 `parser:"| 'OFFSET' @Integer"`
}

type astExpr struct {
	Or []*astAnd `parser:"@@ ( '||' @@ )*"`
}

type astAnd struct {
	And []*astRelational `parser:"@@ ( '&&' @@ )*"`
}

type astRelational struct {
	Left  *astAdditive `parser:"@@"`
	Op    *string      `parser:"( @( '=' | '!=' | '<=' | '>=' | '<' | '>' )"`
	Right *astAdditive `parser:"  @@ )?"`
}

type astAdditive struct {
	Head *astMultiplicative `parser:"@@"`
	Tail []*astAdditiveOp   `parser:"@@*"`
}

type astAdditiveOp struct {
	Op      string             `parser:"@( '+' | '-' )"`
	Operand *astMultiplicative `parser:"@@"`
}

type astMultiplicative struct {
	Head *astUnary              `parser:"@@"`
	Tail []*astMultiplicativeOp `parser:"@@*"`
}

type astMultiplicativeOp struct {
	Op      string    `parser:"@( '*' | '/' )"`
	Operand *astUnary `parser:"@@"`
}

type astUnary struct {
	Op      *string     `parser:"@( '!' | '-' | '+' )?"`
	Primary *astPrimary `parser:"@@"`
}

type astPrimary struct {
	Bracketed *astExpr    `parser:"  '(' @@ ')'"`
	Call      *astCall    `parser:"| @@"`
	Var       *string     `parser:"| @Var"`
	Literal   *astLiteral `parser:"| @@"`
	IRI       *astIRI     `parser:"| @@"`
}

type astCall struct {
	Name *astCallName `parser:"@@"`
	Args []*astExpr   `parser:"'(' ( @@ ( ',' @@ )* )? ')'"`
}

type astCallName struct {
	Keyword *string `parser:"  @Ident"`
	IRI     *astIRI `parser:"| @@"`
}
