//go:build ignore

// Runs the url-shortener test suite: go run test_runner.go [-short]
package main

import (
	"fmt"
	"os"
	"os/exec"
)

type step struct {
	name     string
	args     []string
	required bool
}

func main() {
	testArgs := []string{"test", "-race", "-cover", "./..."}
	if len(os.Args) > 1 && os.Args[1] == "-short" {
		testArgs = append(testArgs, "-short")
	}

	steps := []step{
		{name: "vet", args: []string{"vet", "./..."}, required: true},
		{name: "tests", args: testArgs, required: true},
		// Allocation and click-queue throughput only; failures are reported, not fatal.
		{name: "benchmarks", args: []string{"test", "-run=^$", "-bench=.", "-benchmem", "./internal/shortener/...", "./internal/tracker/..."}},
	}

	for _, s := range steps {
		fmt.Printf("==> %s: go %v\n", s.name, s.args)
		cmd := exec.Command("go", s.args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			fmt.Printf("%s failed: %v\n", s.name, err)
			if s.required {
				os.Exit(1)
			}
		}
	}

	fmt.Println("\nAll checks passed!")
}
