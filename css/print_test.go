package css_test

import (
	"strings"
	"testing"
)

func TestPrint_RoundTrip(t *testing.T) {
	input := `.foo, .bar {
  color: red;
  margin: 0 auto;
}

@media screen {
  .baz {
    color: blue !important;
  }
}

@import "other.css";
`
	sheet := parse(t, input)
	printed := sheet.String()

	// printing the printed text again must be a fixed point
	again := parse(t, printed).String()
	if printed != again {
		t.Errorf("print is not stable:\nfirst:\n%s\nsecond:\n%s", printed, again)
	}

	for _, want := range []string{
		".foo, .bar {",
		"color: red;",
		"color: blue !important;",
		"@media screen {",
		`@import "other.css";`,
	} {
		if !strings.Contains(printed, want) {
			t.Errorf("printed output missing %q:\n%s", want, printed)
		}
	}
}

func TestPrint_CommentsPreserved(t *testing.T) {
	sheet := parse(t, "/* note */\n.a { color: red; }")
	printed := sheet.String()
	if !strings.Contains(printed, "/* note */") {
		t.Errorf("comment lost:\n%s", printed)
	}
}
