package main

import "github.com/pagopa/interop-platform-state/cmd"

func main() {
	cmd.Execute()
}
