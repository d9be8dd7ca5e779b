package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kosss26/storybot/pkg/story"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <story.yaml> [more.yaml ...]\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	for _, filename := range os.Args[1:] {
		if !validateFile(filename) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func validateFile(filename string) bool {
	fmt.Printf("Validating %s...\n", filename)

	base := filepath.Base(filename)
	if !strings.HasSuffix(base, ".yaml") && !strings.HasSuffix(base, ".yml") {
		fmt.Fprintf(os.Stderr, "  story file must have a .yaml or .yml extension: %s\n", base)
		return false
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  failed to read file: %v\n", err)
		return false
	}

	st, err := story.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		return false
	}

	// The filename should match the declared id, since the store derives
	// filenames from ids on save.
	name := strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
	if st.ID != "" && st.ID != name {
		fmt.Printf("  warning: filename %q does not match story id %q\n", name, st.ID)
	}

	res := story.Validate(st)
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", e)
	}
	if !res.Valid() {
		return false
	}

	fmt.Printf("  ok: %s\n", story.Summary(st))
	return true
}
