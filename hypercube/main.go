// Command hypercube circulates a token over an n-dimensional hypercube of
// concurrently running vertices and records its inter-arrival latency.
package main

import "github.com/sarchlab/hypercube/hypercube/cmd"

func main() {
	cmd.Execute()
}
