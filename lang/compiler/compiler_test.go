package compiler

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/mna/lox/lang/obj"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, source string) (*obj.Function, string, error) {
	t.Helper()
	heap := obj.NewHeap()
	var errOut bytes.Buffer
	fn, err := Compile(source, heap, &errOut)
	return fn, errOut.String(), err
}

func TestCompileSimpleExpressionStatement(t *testing.T) {
	fn, errOut, err := compile(t, `print 1 + 2;`)
	require.NoError(t, err)
	require.Empty(t, errOut)
	require.NotNil(t, fn)
	require.Equal(t, obj.KindScript, fn.Kind)
}

func TestCompileErrorIsDistinguishableType(t *testing.T) {
	_, errOut, err := compile(t, `print ;`)
	require.Error(t, err)
	var compileErr *Error
	require.ErrorAs(t, err, &compileErr)
	require.Contains(t, errOut, "Error")
}

func TestReadOwnInitializerIsAnError(t *testing.T) {
	_, errOut, err := compile(t, `{ var a = a; }`)
	require.Error(t, err)
	require.Contains(t, errOut, "Can't read local variable in its own initializer.")
}

func TestDuplicateLocalInSameScopeIsAnError(t *testing.T) {
	_, errOut, err := compile(t, `{ var a = 1; var a = 2; }`)
	require.Error(t, err)
	require.Contains(t, errOut, "Already a variable with this name in this scope.")
}

func TestShadowingInNestedScopeIsFine(t *testing.T) {
	_, errOut, err := compile(t, `var a = 1; { var a = 2; print a; }`)
	require.NoError(t, err)
	require.Empty(t, errOut)
}

func TestTopLevelReturnIsAnError(t *testing.T) {
	_, errOut, err := compile(t, `return 1;`)
	require.Error(t, err)
	require.Contains(t, errOut, "Can't return from top-level code.")
}

func TestReturnValueFromInitializerIsAnError(t *testing.T) {
	_, errOut, err := compile(t, `
class Foo {
  init() {
    return 1;
  }
}
`)
	require.Error(t, err)
	require.Contains(t, errOut, "Can't return a value from an initializer.")
}

func TestClassCannotInheritFromItself(t *testing.T) {
	_, errOut, err := compile(t, `class Oops < Oops {}`)
	require.Error(t, err)
	require.Contains(t, errOut, "A class can't inherit from itself.")
}

func TestSuperOutsideClassIsAnError(t *testing.T) {
	_, errOut, err := compile(t, `
fun notAMethod() {
  super.foo();
}
`)
	require.Error(t, err)
	require.Contains(t, errOut, "Can't use 'super'")
}

func TestSuperWithoutSuperclassIsAnError(t *testing.T) {
	_, errOut, err := compile(t, `
class Foo {
  bar() {
    super.bar();
  }
}
`)
	require.Error(t, err)
	require.Contains(t, errOut, "Can't use 'super' in a class with no superclass.")
}

func TestThisOutsideClassIsAnError(t *testing.T) {
	_, errOut, err := compile(t, `print this;`)
	require.Error(t, err)
	require.Contains(t, errOut, "Can't use 'this'")
}

func TestTooManyLocalsIsAnError(t *testing.T) {
	var b strings.Builder
	b.WriteString("fun f() {\n")
	for i := 0; i < 257; i++ {
		fmt.Fprintf(&b, "var v%d = 0;\n", i)
	}
	b.WriteString("}\n")
	_, errOut, err := compile(t, b.String())
	require.Error(t, err)
	require.Contains(t, errOut, "Too many local variables in function.")
}

func TestClosureCapturesEnclosingLocalAsUpvalue(t *testing.T) {
	fn, errOut, err := compile(t, `
fun outer() {
  var x = 1;
  fun inner() {
    return x;
  }
  return inner;
}
`)
	require.NoError(t, err)
	require.Empty(t, errOut)
	require.NotNil(t, fn)

	var outer, inner *obj.Function
	for _, c := range fn.Chunk.Constants {
		if f, ok := c.(*obj.Function); ok && f.Name != nil && f.Name.Chars == "outer" {
			outer = f
		}
	}
	require.NotNil(t, outer)
	for _, c := range outer.Chunk.Constants {
		if f, ok := c.(*obj.Function); ok && f.Name != nil && f.Name.Chars == "inner" {
			inner = f
		}
	}
	require.NotNil(t, inner)
	require.Equal(t, 1, inner.UpvalueCount)
}

func TestMultipleSyntaxErrorsAreAllReportedViaSynchronize(t *testing.T) {
	_, errOut, err := compile(t, `
var = 1;
var = 2;
`)
	require.Error(t, err)
	require.Equal(t, 2, strings.Count(errOut, "Error"))
}
