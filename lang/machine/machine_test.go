package machine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mna/lox/lang/obj"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, source string) (stdout, stderr string, err error) {
	t.Helper()
	heap := obj.NewHeap()
	var out, errOut bytes.Buffer
	vm := New(heap, &out, &errOut)
	err = vm.Interpret(source)
	return out.String(), errOut.String(), err
}

func TestArithmeticPrecedence(t *testing.T) {
	out, _, err := run(t, `print 2 + 3 * 4 - 1;`)
	require.NoError(t, err)
	require.Equal(t, "13\n", out)
}

func TestStringConcatenation(t *testing.T) {
	out, _, err := run(t, `print "foo" + "bar";`)
	require.NoError(t, err)
	require.Equal(t, "foobar\n", out)
}

func TestRecursiveFibonacci(t *testing.T) {
	out, _, err := run(t, `
fun fib(n) {
  if (n < 2) return n;
  return fib(n - 1) + fib(n - 2);
}
print fib(10);
`)
	require.NoError(t, err)
	require.Equal(t, "55\n", out)
}

func TestClosureSharesUpvalueAcrossCalls(t *testing.T) {
	out, _, err := run(t, `
fun makeCounter() {
  var count = 0;
  fun counter() {
    count = count + 1;
    return count;
  }
  return counter;
}
var c = makeCounter();
print c();
print c();
print c();
`)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestClassInheritanceAndSuperCall(t *testing.T) {
	out, _, err := run(t, `
class Animal {
  speak() {
    print "generic noise";
  }
}
class Dog < Animal {
  speak() {
    super.speak();
    print "woof";
  }
}
Dog().speak();
`)
	require.NoError(t, err)
	require.Equal(t, "generic noise\nwoof\n", out)
}

func TestInitAndThisTrackInstanceState(t *testing.T) {
	out, _, err := run(t, `
class Counter {
  init() {
    this.count = 0;
  }
  bump() {
    this.count = this.count + 1;
    return this.count;
  }
}
var c = Counter();
c.bump();
c.bump();
print c.bump();
`)
	require.NoError(t, err)
	require.Equal(t, "3\n", out)
}

func TestRuntimeErrorOnTypeMismatch(t *testing.T) {
	_, errOut, err := run(t, `print 1 + "two";`)
	require.Error(t, err)
	require.Contains(t, errOut, "[line 1] in script")
}

func TestCompileErrorOnOwnInitializerRead(t *testing.T) {
	_, errOut, err := run(t, `{ var a = a; }`)
	require.Error(t, err)
	require.Contains(t, errOut, "Error")
}

func TestStackOverflowOnUnboundedRecursion(t *testing.T) {
	_, errOut, err := run(t, `
fun recurse() {
  return recurse();
}
recurse();
`)
	require.Error(t, err)
	require.True(t, strings.Contains(errOut, "Stack overflow") || strings.Contains(err.Error(), "Stack overflow"))
}

func TestNativeClockReturnsNumber(t *testing.T) {
	out, _, err := run(t, `
var t = clock();
print t >= 0;
`)
	require.NoError(t, err)
	require.Equal(t, "true\n", out)
}

// TestStressGCTracesNamelessScriptFunctionAndPartialClosures forces a
// collection on every single allocation (heap.StressGC) while running a
// script whose own top-level Function has a nil Name and which builds
// closures capturing upvalues, so a collection is guaranteed to trace a
// reachable Function with a nil Name and a Closure whose Upvalues slice is
// still partially filled with nil entries mid-OP_CLOSURE.
func TestStressGCTracesNamelessScriptFunctionAndPartialClosures(t *testing.T) {
	heap := obj.NewHeap()
	heap.StressGC = true
	var out, errOut bytes.Buffer
	vm := New(heap, &out, &errOut)

	err := vm.Interpret(`
fun makeAdder(a, b) {
  fun add() {
    return a + b;
  }
  return add;
}
for (var i = 0; i < 5; i = i + 1) {
  var adder = makeAdder(i, i * 2);
  print adder();
}
`)
	require.NoError(t, err)
	require.Empty(t, errOut)
	require.Equal(t, "0\n3\n6\n9\n12\n", out.String())
}
