package main

import (
	"github.com/sidkik/dbkernel/cmd"
	"github.com/sidkik/dbkernel/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
