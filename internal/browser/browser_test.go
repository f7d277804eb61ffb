package browser

import (
	"fmt"
	"strings"
	"testing"
)

func TestConsoleTailBounded(t *testing.T) {
	c := &Chrome{}
	for i := 0; i < consoleTailSize+10; i++ {
		c.appendConsole(fmt.Sprintf("[log] line %d", i))
	}

	tail := c.ConsoleTail()
	if len(tail) != consoleTailSize {
		t.Fatalf("ConsoleTail() len=%d, want %d", len(tail), consoleTailSize)
	}
	if !strings.Contains(tail[len(tail)-1], fmt.Sprintf("line %d", consoleTailSize+9)) {
		t.Fatalf("ConsoleTail() last=%q, want newest line", tail[len(tail)-1])
	}
	if !strings.Contains(tail[0], "line 10") {
		t.Fatalf("ConsoleTail() first=%q, want oldest retained line", tail[0])
	}
}

func TestConsoleTailCopies(t *testing.T) {
	c := &Chrome{}
	c.appendConsole("[log] original")

	tail := c.ConsoleTail()
	tail[0] = "mutated"

	if got := c.ConsoleTail()[0]; got != "[log] original" {
		t.Fatalf("ConsoleTail() returned shared slice, got %q", got)
	}
}
