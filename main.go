package main

import "github.com/agentic-research/qcflat/cmd"

func main() {
	cmd.Execute()
}
